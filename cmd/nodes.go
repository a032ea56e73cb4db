package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/ringctl/pkg/ops"
)

var nodesCountry string

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List active ring nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := append(commonOptions(cmd), ops.WithCountry(nodesCountry))

		return ops.Nodes(cmd.Context(), opts...)
	},
}

var countryCmd = &cobra.Command{
	Use:   "country <node>",
	Short: "Show the country of a ring node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ops.Country(cmd.Context(), args[0], commonOptions(cmd)...)
	},
}

func init() {
	nodesCmd.Flags().StringVar(&nodesCountry, "country", "", "only list nodes in this country")

	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(countryCmd)
}
