package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/termchat/termchat-server/internal/app"
	"github.com/termchat/termchat-server/internal/config"
	"github.com/termchat/termchat-server/internal/log"
)

func main() {
	var (
		configPath string
		scriptPath string
		overrides  config.Config
	)

	rootCmd := &cobra.Command{
		Use:          "termchat-server",
		Short:        "Text-command chat backend",
		Long:         "termchat-server runs an interactive chat backend driven by line commands on stdin.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(overrides.LogLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			in := io.Reader(os.Stdin)
			if scriptPath != "" {
				f, err := os.Open(scriptPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return application.Run(ctx, in, os.Stdout)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&overrides.DBPath, "db", "", "path to sqlite database")
	rootCmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&overrides.AuditPath, "audit", "", "path to audit csv file")
	rootCmd.Flags().StringVar(&scriptPath, "script", "", "read commands from a file instead of stdin")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
