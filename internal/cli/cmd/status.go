package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <pipeline-id>",
		Short: "Print the current snapshot of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			formatted, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return fmt.Errorf("format output: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
			return nil
		},
	}
}
