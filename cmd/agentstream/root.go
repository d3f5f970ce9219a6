package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	cfgFile string
	debugF  bool
)

var rootCmd = &cobra.Command{
	Use:   "agentstream",
	Short: "Stream agent workflow events to HTTP consumers",
	Long: `agentstream runs communications agent workflows and exposes each one as a
live event feed over server-sent events and websockets.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentstream version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML); environment variables override it")
	rootCmd.PersistentFlags().BoolVar(&debugF, "debug", false, "enable debug logs, request body logging and pprof endpoints")
	rootCmd.Version = version

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
