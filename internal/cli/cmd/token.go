package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"forge/internal/server/middleware"

	"github.com/spf13/cobra"
)

// newTokenCommand mints a bearer token with the server's shared secret. It is
// an operator tool; the server has no login endpoint.
func newTokenCommand() *cobra.Command {
	var (
		secret string
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			token, err := middleware.GenerateJWT(secret, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id placed in the sub claim (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
