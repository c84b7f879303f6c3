package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(opts *options) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.client().List(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tASSET\tSTATUS\tPROGRESS\tSTAGE\tUPDATED")
			for _, p := range list.Pipelines {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n", p.ID, p.AssetID, p.Status, p.Progress, p.ActiveStage, p.UpdatedAt)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only pipelines in this status")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of pipelines")
	return cmd
}
