// Package main is the entry point for the wisniff 802.11 sniffer relay.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/wisniff/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
