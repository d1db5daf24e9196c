package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/apexarb/dexarb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "dexarb",
	Short: "A CLI bot that hunts multi-hop arbitrage across DEX venues",
	Long: `A CLI arbitrage bot that continuously evaluates multi-hop swap paths
across registered DEX venues and executes the ones whose simulated profit
survives fees and gas.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dexarb.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
