// Command dw is the DashWizard sync engine CLI.
//
// It runs the local-first engine (dw serve), triggers manual syncs
// (dw sync), reports cache and queue state (dw status), and clears the
// operation queue as an explicit recovery step (dw queue clear).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
