// Package authcmd holds identity helpers for local development.
package authcmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	platformauth "github.com/hourledger/hourledger/platform/go/auth"
)

// Command groups auth-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Identity utilities (dev tokens)",
	}

	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var params platformauth.DevTokenParams

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate an unsigned JWT for dev/local use (AUTH_PROVIDER=dev only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := platformauth.MintDevToken(params)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Subject, "subject", "", "identity provider subject (sub/uid claim)")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().DurationVar(&params.TTL, "expires-in", 24*time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
