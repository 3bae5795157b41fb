// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/wisniff/internal/daemon"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wisniff",
	Short: "wisniff - 802.11 sniffer relaying frame metadata to a paired peer",
	Long: `wisniff puts a wireless interface into monitor mode, captures management and
data frames and relays per-frame metadata plus a payload prefix to exactly one
peer over Bluetooth LE (or TCP).

Features:
  - Promiscuous capture with kernel prefilter
  - Single-peer link with MTU chunking and pacing
  - Manual and periodic channel hopping
  - Periodic status reports to the peer`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "/var/run/wisniff.pid",
		"PID file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(channelsCmd)
}
