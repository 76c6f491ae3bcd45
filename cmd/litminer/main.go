// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litminer CLI. Each engine
// operation is a subcommand: run, analyze, prompts, checkpoint, results,
// and providers.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litminer/internal/logger"
	"github.com/pdiddy/litminer/internal/secrets"
	"github.com/pdiddy/litminer/internal/telemetry"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from the secrets directory at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the litminer CLI.
var rootCmd = &cobra.Command{
	Use:   "litminer",
	Short: "Extract structured data from literature tables with LLMs",
	Long: `litminer reads a table of literature records (CSV or XLSX with title and
abstract columns), sends each record through a prompt template to an LLM
provider, and records one structured result per record in a checkpoint.
Interrupted runs resume where they stopped.

Use "litminer prompts init" to create a starter template, "litminer run" to
process a table, and "litminer results export" to produce the merged table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		quiet, _ := cmd.Flags().GetBool("quiet")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		logger.Init(logger.Options{Debug: debug, Quiet: quiet, JSON: jsonLogs})

		if used := viper.ConfigFileUsed(); used != "" {
			logger.Default().Debug("using config file", slog.String("path", used))
		}

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Default().Debug("loaded secrets", slog.Any("keys", keys))
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			bound, err := telemetry.StartMetricsServer(cmd.Context(), addr, logger.Default())
			if err != nil {
				return err
			}
			logger.Default().Info("serving metrics", slog.String("addr", "http://"+bound+"/metrics"))
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./litminer.yaml or ~/.config/litminer/litminer.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of API key files (<provider>-api-key)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "log errors only")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litminer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litminer"))
		}
	}

	viper.SetEnvPrefix("LITMINER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setConfigDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			logger.Default().Warn("reading config file", slog.String("error", err.Error()))
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
