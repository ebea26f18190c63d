package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuwenbin0122/convo-sync/internal/auth"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the ops API",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().String("subject", "ops", "Token subject, logged with manual runs")
}

func runToken(cmd *cobra.Command, _ []string) error {
	subject, _ := cmd.Flags().GetString("subject")

	cfg, err := utils.LoadLocalConfig()
	if err != nil {
		return err
	}

	svc, err := auth.NewService(cfg.Ops.JWTSecret, cfg.Ops.TokenTTL)
	if err != nil {
		return fmt.Errorf("OPS_JWT_SECRET: %w", err)
	}

	token, err := svc.IssueToken(subject)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token.Value)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", token.ExpiresAt.Format(time.RFC3339))
	return nil
}
