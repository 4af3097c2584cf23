// File: cmd/token.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/bizmint-cli/internal/captcha"
	"github.com/xkilldash9x/bizmint-cli/internal/config"
	"github.com/xkilldash9x/bizmint-cli/internal/network"
	"github.com/xkilldash9x/bizmint-cli/internal/observability"
)

// newTokenCmd creates the `token` command. It fetches a reCAPTCHA scoring
// token for the degraded-trust session refresh; the signup batch itself
// never needs one.
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Fetches a reCAPTCHA scoring token for a degraded-trust session refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}

			logger := observability.GetLogger()
			svc := captcha.NewService(cfg.Captcha, network.NewClient(nil), logger)
			if !svc.Enabled() {
				return fmt.Errorf("captcha.api_key is not configured")
			}

			token, err := svc.Token(cmd.Context(), action)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	tokenCmd.Flags().String("action", "login", "pageAction value for the scoring task")
	return tokenCmd
}
