package cmd

import (
	"lnurl-atm-gateway/config"
	pgStorage "lnurl-atm-gateway/internal/adapter/storage/postgres"
	"lnurl-atm-gateway/pkg/logger"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "applies pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr())
		return pgStorage.Migrate(cfg.Database.MigrateURL(), log)
	},
}
