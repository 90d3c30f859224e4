// Package main is the entry point for the keeper daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keeperd",
	Short: "Keeper turn-orchestration daemon",
	Long:  `keeperd drives one Call of Cthulhu keeper's turn pipeline: intent parsing, trigger evaluation, skill checks, NPC reactions, and narrative synthesis, over HTTP and WebSocket.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
