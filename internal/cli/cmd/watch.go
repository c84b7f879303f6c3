package cmd

import (
	"errors"
	"fmt"
	"time"

	"forge/internal/cli/client"
	"forge/internal/pipeline"

	"github.com/spf13/cobra"
)

var errPipelineFailed = errors.New("pipeline failed")

func newWatchCommand(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <pipeline-id>",
		Short: "Poll a pipeline until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return follow(cmd, opts.client(), args[0], interval)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "poll interval")
	return cmd
}

// follow prints a line whenever the active stage or progress changes and
// returns errPipelineFailed when the pipeline ends failed.
func follow(cmd *cobra.Command, c *client.Client, id string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		p, err := c.Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%-10s %3d%%  %s", p.Status, p.Progress(), p.ActiveStage())
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}

		switch p.Status {
		case pipeline.StatusCompleted:
			fmt.Fprintf(out, "asset %s ready at %s\n", p.Results[pipeline.ResultAssetID], p.Results[pipeline.ResultAssetURL])
			return nil
		case pipeline.StatusFailed:
			if p.Error != nil {
				fmt.Fprintf(out, "failed (%s): %s\n", p.Error.Kind, p.Error.Message)
			}
			return errPipelineFailed
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
