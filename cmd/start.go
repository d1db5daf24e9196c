package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/cmd/bot"
	"github.com/apexarb/dexarb/config"
	"github.com/apexarb/dexarb/utils"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage bot",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Fatal("Failed to load environment", zap.Error(err))
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}

		// Signing is wired separately; without it the bot discovers and
		// reports opportunities but never submits a transaction.
		b, err := bot.New(cfg, nil, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}

		ctx := cmd.Context()
		if err := b.Start(ctx); err != nil {
			log.Fatal("Failed to start bot", zap.Error(err))
		}

		<-ctx.Done()
		b.Stop()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
