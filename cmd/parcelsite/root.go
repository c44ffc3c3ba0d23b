package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/example/parcel-express/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "parcelsite",
	Short: "Parcel Express website and its supporting tools",
	Long: `parcelsite serves the Parcel Express website (public pages, admin console
and rider dashboard) and ships the tools around it: a development backend,
database migrations, proof uploads and the activity rollup consumer.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(loadDotEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml); environment variables override it")

	rootCmd.AddCommand(serveCmd, backendCmd, migrateCmd, uploadProofCmd, consumeCmd)
}

// loadDotEnv reads .env into the environment when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env:", err)
	}
}

func loadConfig() (config.ServerConfig, error) {
	cfg, err := config.LoadServerConfig(cfgFile)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
