package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jdziat/simple-report-runs/pkg/config"
	"github.com/jdziat/simple-report-runs/pkg/logger"
)

var (
	envFile string
	cfg     *config.Config
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "reportd",
	Short:         "Scheduled stock report runs with per-stage tracking",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg != nil {
			return nil
		}
		c, err := loadConfig(envFile)
		if err != nil {
			return err
		}
		cfg = c
		log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
		logger.SetGlobalLogger(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load variables from this file before reading the environment (default .env)")
}
