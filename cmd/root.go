package cmd

import (
	"fmt"
	"os"

	"AudioDeck/config"
	"AudioDeck/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "audiodeck",
	Short: "AudioDeck is a multi-project audio transport service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(config.Load())
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger 按配置初始化日志
func initLogger(cfg *config.Config) error {
	return logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
}
