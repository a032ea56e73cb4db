package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/ringctl/pkg/ops"
)

var version = "dev"
var help bool
var verbose bool
var configPath string

var rootCmd = &cobra.Command{
	Use:   "ringctl",
	Short: "Run commands across the nodes of the NLNOG ring",
	Long: `       _             _   _
  _ __(_)_ __   __ _ ___| |_| |
 | '__| | '_ \ / _` + "`" + ` |/ __| __| |
 | |  | | | | | (_| | (__| |_| |
 |_|  |_|_| |_|\__, |\___|\__|_|
               |___/

Run a command on many ring nodes at once and collect
the output of every node, prefixed with its name.
Nodes are queried from the ring directory service or
selected explicitly.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if help {
			cmd.Help()
			os.Exit(0)
		}

		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&help, "help", "h", false, "display help for command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ops.DefaultConfigPath, "path to the configuration file")
}

// newLogger creates the logger shared by all commands.
func newLogger() *zerolog.Logger {
	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	return &logger
}

// commonOptions returns the options shared by all operations.
func commonOptions(cmd *cobra.Command) []ops.Option {
	opts := []ops.Option{
		ops.WithLogger(newLogger()),
	}

	// A path passed explicitly must exist.
	if cmd.Flags().Changed("config") {
		opts = append(opts, ops.WithConfigPath(configPath))
	}

	return opts
}

// Execute starts the invocation of the command line interface.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
