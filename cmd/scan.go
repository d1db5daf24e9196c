package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexarb/dexarb/cmd/bot"
	"github.com/apexarb/dexarb/config"
	"github.com/apexarb/dexarb/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one read-only search and print the best path per token",
	Run: func(cmd *cobra.Command, args []string) {
		log := utils.GetLogger()

		if err := config.LoadEnv(); err != nil {
			log.Fatal("Failed to load environment", zap.Error(err))
		}
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatal("Failed to load config", zap.Error(err))
		}

		b, err := bot.New(cfg, nil, log)
		if err != nil {
			log.Fatal("Failed to create bot", zap.Error(err))
		}

		results, err := b.ScanOnce(cmd.Context())
		if err != nil {
			log.Fatal("Scan failed", zap.Error(err))
		}

		if len(results) == 0 {
			fmt.Println("No profitable path found")
			return
		}
		for symbol, result := range results {
			fmt.Printf("%s: %s  net $%s  roi %s%%\n",
				symbol,
				strings.Join(result.Path, " -> "),
				result.NetProfitUsd.StringFixed(2),
				result.RoiPercent.StringFixed(2))
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
