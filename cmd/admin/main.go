// Command admin runs operator tasks against the sync engine: budget status,
// manual syncs, connection listings and schema migrations.
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
