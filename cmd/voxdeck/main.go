package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voxdeck",
	Short: "Voxdeck, a self-hosted console for AI voice agents",
	Long:  "Voxdeck is a self-hosted admin console daemon for an AI voice-agent platform: it manages agents, batch calling campaigns, billing, analytics, and notifications against the platform REST API.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/voxdeck.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
