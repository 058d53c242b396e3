package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalitcap23/defess-v3/internal/config"
	"github.com/lalitcap23/defess-v3/internal/logger"
)

const programName = "defess"

var globalFlags = struct {
	configFile string
	envOnly    bool
	debug      bool
}{}

// loadConfig resolves the config path from flags first, then DEFESS_CONFIG and
// DEFESS_ENV_ONLY.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfgPath := globalFlags.configFile
	if cfgPath == "" {
		cfgPath = os.Getenv("DEFESS_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := globalFlags.envOnly
	if raw := os.Getenv("DEFESS_ENV_ONLY"); raw != "" {
		envOnly = envOnly || strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log.Named(programName), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Periodic winner selection and Solana rewards for Defess",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.envOnly, "env-only", false, "read configuration from the environment only")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(processPeriodCommand())
	rootCmd.AddCommand(addressesCommand())
	rootCmd.AddCommand(healthCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
