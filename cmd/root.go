// Package cmd implements the dnsflow command tree: a root command plus the
// run (sniffer) and filter (print-only filter builder) subcommands.
package cmd

import (
	"fmt"
	"os"

	"dnsflow/internal/pkg/logger"
	"dnsflow/internal/pkg/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "dnsflow",
	Short:   "Summarize recursive DNS responses into flow datagrams",
	Long:    `dnsflow observes DNS traffic, extracts successful recursive A-record responses, and emits them as compact flow datagrams over UDP and/or a capture file.`,
	Version: version.GetFullVersion(),
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(filterCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dnsflow.yaml)")
}

func initConfig() {
	logger.Initialize()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".dnsflow")
		}
	}

	viper.SetEnvPrefix("dnsflow")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
