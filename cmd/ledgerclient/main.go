package main

import (
	"os"

	"github.com/lavanet/ledgerclient/protocol/client"
)

func main() {
	rootCmd := client.CreateLedgerClientCobraCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
