package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/facelocker/server/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "facelocker",
	Short: "Face-verified locker access server",
	Long: `facelocker grants or denies access to numbered lockers by matching a
presented face encoding against enrolled identities, and keeps an
append-only log of every attempt.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file overlaid on FACELOCKER_* environment")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and applies --config when given.
func loadConfig() (config.Config, error) {
	cfg := config.FromEnv()
	if configFile != "" {
		if err := config.LoadFile(configFile, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	return cfg, cfg.Validate()
}
