// Package cmd implements the forgectl commands.
package cmd

import (
	"os"

	"forge/internal/cli/client"

	"github.com/spf13/cobra"
)

type options struct {
	server string
	token  string
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.token)
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "forgectl",
		Short:         "Start and follow asset generation pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("FORGE_SERVER", "http://localhost:8080"), "forge API address")
	root.PersistentFlags().StringVarP(&opts.token, "token", "t", os.Getenv("FORGE_TOKEN"), "bearer token")

	root.AddCommand(
		newCreateCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		newListCommand(opts),
		newTokenCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
