// Package main provides the link-weaver CLI.
//
// link-weaver crawls a wiki-style site from a seed page and exports the
// page link graph.
//
// Usage:
//
//	link-weaver <url> [flags]
//	link-weaver version
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a second signal kills the process
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		logrus.Fatalf("link-weaver: %v", err)
	}
}
