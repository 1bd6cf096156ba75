package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/config"
	transporthttp "github.com/vovakirdan/wirecall/internal/transport/http"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the bridge API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, root.configPath)
			if err != nil {
				return err
			}
			jwtConfig := transporthttp.JWTConfigFrom(&cfg)
			if ttl > 0 {
				jwtConfig.TTL = ttl
			}

			token, err := auth.GenerateToken(jwtConfig, args[0], name)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}
