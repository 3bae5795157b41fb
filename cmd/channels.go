package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/radio/monitor"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List tunable channels",
	Long: `List the 2.4 GHz channels accepted by radio.channel and hop.channels with
their centre frequencies. With --interfaces, also list capture devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := printChannels(cmd.OutOrStdout()); err != nil {
			return err
		}
		if !listInterfaces {
			return nil
		}
		names, err := monitor.Interfaces()
		if err != nil {
			return fmt.Errorf("failed to list interfaces: %w", err)
		}
		return printInterfaces(cmd.OutOrStdout(), names)
	},
}

var listInterfaces bool

func init() {
	channelsCmd.Flags().BoolVarP(&listInterfaces, "interfaces", "i", false,
		"also list capture interfaces")
}

func printChannels(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tFREQ (MHz)")
	for ch := core.MinChannel; ch <= core.MaxChannel; ch++ {
		fmt.Fprintf(w, "%d\t%d\n", ch, core.ChannelFrequency(ch))
	}
	return w.Flush()
}

func printInterfaces(out io.Writer, names []string) error {
	fmt.Fprintln(out, "\nINTERFACES")
	for _, n := range names {
		fmt.Fprintf(out, "  %s\n", n)
	}
	return nil
}
