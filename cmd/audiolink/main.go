package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version can be overridden at build time via:
// go build -ldflags "-X main.version=1.2.3"
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "audiolink",
	Short:         "Chat bot that answers audio uploads with direct download links",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")
	rootCmd.AddCommand(serveCmd, checkConfigCmd, versionCmd)
}
