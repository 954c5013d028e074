package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/moodlens/internal/config"
	"github.com/ayusman/moodlens/internal/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	addr       string
	camera     int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "moodlens",
	Short:         "Multimodal emotion inference gateway",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "moodlens.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = addr
	}
	if cmd.Flags().Changed("camera") {
		cfg.Camera.DeviceID = camera
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
}
