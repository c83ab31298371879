// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ground-extract CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ground-extract/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return fallback
}

// rootCmd is the base command for the ground-extract CLI.
var rootCmd = &cobra.Command{
	Use:   "ground-extract",
	Short: "A chunked, grounded LLM extraction and alignment pipeline",
	Long: `ground-extract chunks a document, fans extraction prompts out to an LLM
across bounded-concurrency passes, and aligns every returned extraction back
to its exact source span. Use "run" to extract from a batch of documents and
"validate" to pre-flight a few-shot example file before spending an LLM call.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
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
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ground-extract.yaml or ~/.config/ground-extract/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ground-extract")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ground-extract"))
		}
	}

	viper.SetEnvPrefix("GROUND_EXTRACT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
