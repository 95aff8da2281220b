package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/missionloop/missiond/internal/config"
	"github.com/missionloop/missiond/internal/daemon"
	"github.com/missionloop/missiond/internal/logger"
)

var version = "0.3.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "missiond",
		Short:   "mission control daemon",
		Long:    "Bridges the agent gateway to a task board: dispatches tasks to agents over WebSocket and watches their sessions for completion.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real deployments set the environment.
			_ = godotenv.Load()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
				return err
			}
			return daemon.Run(cfg, version)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
