package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/alvmarrod/link-weaver/internal/version"
)

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"keywords":            "keywords",
	"depth":               "depth",
	"output-file":         "output_prefix",
	"num-threads":         "workers",
	"undirected":          "undirected",
	"keep-external-links": "keep_external_links",
	"db":                  "db_path",
	"metrics-file":        "metrics_path",
	"metrics-addr":        "metrics_addr",
	"skip-fetch-errors":   "skip_fetch_errors",
}

// NewRootCmd creates the root command. Each call gets its own viper
// instance so commands can be built and executed independently in tests.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var (
		cfgFile string
		envFile string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "link-weaver <url>",
		Short: "Crawl a wiki and export its page link graph",
		Long: `link-weaver crawls a wiki-style site starting from a seed page, following
in-site content links up to a maximum depth with a pool of concurrent workers.

Every page is assigned a numeric id and every distinct link between two pages
is recorded once. The graph can be written as two CSV files
(<output-file>_nodes.csv and <output-file>_edges.csv), stored in SQLite, or
reduced to its reciprocal links with --undirected.

Flags can also be set through LINKWEAVER_* environment variables (optionally
loaded from a dotenv file with --env-file) or a config file passed with --config.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd, verbose)
			if envFile != "" {
				// variables already set in the environment win
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", envFile, err)
				}
			}
			if cfgFile == "" {
				cfgFile = config.DefaultConfigFile()
			}
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
			}
			logrus.Debugf("Using config file %s", v.ConfigFileUsed())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("seed_url", args[0])
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runCrawl(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (json, yaml or toml; default "+config.XDGConfigDir()+"/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load LINKWEAVER_* variables from this dotenv file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	flags := cmd.Flags()
	flags.StringSliceP("keywords", "k", nil, "Only keep pages containing at least one of these keywords (case-insensitive)")
	flags.IntP("depth", "d", 5, "Depth of the crawl; the seed counts as depth 1")
	flags.StringP("output-file", "o", "", "Prefix of the output files: <prefix>_nodes.csv and <prefix>_edges.csv")
	flags.IntP("num-threads", "t", 4, "Number of concurrent workers")
	flags.Bool("undirected", false, "Only keep links present in both directions")
	flags.Bool("keep-external-links", false, "Keep links pointing outside the wiki as graph nodes")
	flags.String("db", "", "Also store the graph in this SQLite database")
	flags.String("metrics-file", "", "Write a JSON crawl summary to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("skip-fetch-errors", false, "Log and skip pages that fail to download instead of aborting")
	bindFlags(v, flags)

	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func setupLogging(cmd *cobra.Command, verbose bool) {
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "link-weaver version %s\n", version.String())
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", version.Revision())
		},
	}
}
