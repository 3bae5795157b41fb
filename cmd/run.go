package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/wisniff/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sniffer in foreground",
	Long: `Run the sniffer in foreground.

The daemon will:
  1. Load configuration from the config file and WISNIFF_* environment
  2. Initialize logging and metrics
  3. Bring up the peer link and start advertising
  4. Start capturing on radio.channel (and hop if enabled)
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

Examples:
  wisniff run -c /etc/wisniff/wisniff.yml
  WISNIFF_RADIO_DRIVER=sim WISNIFF_LINK_TYPE=tcp wisniff run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
