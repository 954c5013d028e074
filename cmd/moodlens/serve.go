package main

import (
	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP inference gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		logger.WithFields(logging.Fields{
			"version":  Version,
			"addr":     cfg.Server.Addr,
			"detector": cfg.Detector.Backend,
			"models":   cfg.Models.Dir,
			"db":       cfg.Store.Path,
		}).Info("starting moodlens")

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	serveCmd.Flags().IntVar(&camera, "camera", 0, "capture device index")
	rootCmd.AddCommand(serveCmd)
}
