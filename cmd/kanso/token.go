package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

var errTokenUser = errors.New("token needs --user")

type tokenOptions struct {
	UserID string
	TTL    time.Duration
}

// newTokenCommand signs a bearer token with the configured secret. Real
// clients get theirs from the identity service; this is for local use.
func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a user (local and development use)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.UserID == "" {
				return errTokenUser
			}
			if err := root.cfg.Validate(); err != nil {
				return err
			}

			ttl := root.cfg.Auth.TokenTTL
			if opts.TTL > 0 {
				ttl = opts.TTL
			}

			token, err := services.NewTokenService(root.cfg.Auth.JWTSecret, root.cfg.Auth.Issuer, ttl).GenerateToken(opts.UserID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "subject of the token")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to JWT_TTL)")

	return cmd
}
