package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/middleware"
	"cardkeep/pkg/requestcontext"
)

var (
	tokenEmail  string
	tokenName   string
	tokenUserID int64
	tokenTTL    time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if tokenEmail == "" {
				return fmt.Errorf("--email is required")
			}
			token, err := middleware.IssueToken(cfg.Auth.JWTSigningKey, requestcontext.Actor{
				ID:    tokenUserID,
				Email: tokenEmail,
				Name:  tokenName,
			}, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "actor e-mail")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "actor display name")
	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "actor user id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
