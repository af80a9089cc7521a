// Package version reports build information for link-weaver.
package version

import "runtime/debug"

// Version information set at build time via ldflags.
var (
	Version = ""
	Commit  = ""
)

// String returns the version.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// Revision returns the short commit hash, or "unknown"
func Revision() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				if len(s.Value) > 7 {
					return s.Value[:7]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}
