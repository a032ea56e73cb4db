package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/ringctl/pkg/ops"
)

var runFlags struct {
	nodes    []string
	country  string
	user     string
	env      []string
	script   string
	stream   bool
	paged    bool
	fallback bool
	parallel int
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run a command on ring nodes",
	Long: `Run a command on all active ring nodes, the nodes of a
country or an explicit list of nodes.

By default the output of every node is printed as one
block once the node finished. Use --stream to print
lines as they arrive instead. Every line is prefixed
with the name of the node that produced it.`,
	Example: `  ringctl run -- uptime
  ringctl run --country NL --stream -- ping -c 3 example.org
  ringctl run --nodes a,b --script ./check.sh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		if command == "" && runFlags.script == "" {
			return errors.New("no command specified")
		}

		opts := append(commonOptions(cmd),
			ops.WithNodes(runFlags.nodes...),
			ops.WithCountry(runFlags.country),
			ops.WithUser(runFlags.user),
			ops.WithEnv(runFlags.env...),
			ops.WithScript(runFlags.script),
			ops.WithStream(runFlags.stream),
			ops.WithFallback(runFlags.fallback),
			ops.WithParallel(runFlags.parallel),
		)

		if runFlags.paged {
			if err := ops.AttachPager(opts...); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := ops.Run(ctx, command, opts...)
		return err
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringSliceVarP(&runFlags.nodes, "nodes", "n", nil, "comma-separated list of nodes")
	flags.StringVar(&runFlags.country, "country", "", "only run on nodes in this country")
	flags.StringVarP(&runFlags.user, "user", "u", "", "login on the nodes")
	flags.StringArrayVarP(&runFlags.env, "env", "e", nil, "environment variable as KEY=VALUE")
	flags.StringVar(&runFlags.script, "script", "", "upload and run a local script")
	flags.BoolVar(&runFlags.stream, "stream", false, "print lines as they arrive")
	flags.BoolVar(&runFlags.paged, "pager", false, "pipe the output through a pager")
	flags.BoolVar(&runFlags.fallback, "fallback", false, "retry unreachable nodes with the ssh binary")
	flags.IntVarP(&runFlags.parallel, "parallel", "p", 0, "maximum number of concurrent sessions")

	rootCmd.AddCommand(runCmd)
}
