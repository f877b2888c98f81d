package cmd

import (
	"errors"
	"fmt"

	"lnurl-atm-gateway/config"
	"lnurl-atm-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tokenSubject string

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "operator id the token is issued for")
	_ = tokenCmd.MarkFlagRequired("sub")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "mints an admin API token for an operator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		operatorID, err := uuid.Parse(tokenSubject)
		if err != nil {
			return fmt.Errorf("invalid --sub: %w", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.JWT.Secret == "" {
			return errors.New("jwt.secret is not configured")
		}

		tokens := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
		token, expiresAt, err := tokens.Generate(operatorID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}
