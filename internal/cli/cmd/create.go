package cmd

import (
	"fmt"
	"strings"
	"time"

	"forge/internal/pipeline"

	"github.com/spf13/cobra"
)

func newCreateCommand(opts *options) *cobra.Command {
	var (
		req   pipeline.GenerationRequest
		post  pipeline.PostProcessOptions
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a pipeline for a new asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if post.Enabled || post.TexturePrompt != "" {
				req.PostProcess = &post
			}
			c := opts.client()
			resp, err := c.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s %s\n", resp.PipelineID, resp.Status)
			if !watch {
				return nil
			}
			return follow(cmd, c, resp.PipelineID, 2*time.Second)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Description, "description", "d", "", "what the asset looks like (required)")
	f.StringVarP(&req.Name, "name", "n", "", "asset name (required)")
	f.StringVar(&req.Type, "type", "", "asset category, e.g. weapon")
	f.StringVar(&req.Subtype, "subtype", "", "asset subcategory")
	f.StringVar(&req.AssetID, "asset-id", "", "asset id, derived from the name when empty")
	f.StringVar((*string)(&req.Quality), "quality", "", "one of "+qualityNames())
	f.StringVar(&req.Style, "style", "", "art style hint")
	f.BoolVar(&post.Enabled, "post-process", false, "run the post-processing stage")
	f.StringVar(&post.TexturePrompt, "texture-prompt", "", "texture hint for post-processing")
	f.BoolVarP(&watch, "watch", "w", false, "follow the pipeline until it finishes")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func qualityNames() string {
	names := make([]string, len(pipeline.Qualities))
	for i, q := range pipeline.Qualities {
		names[i] = string(q)
	}
	return strings.Join(names, ", ")
}
