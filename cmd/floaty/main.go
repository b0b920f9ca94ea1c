// Command floaty runs a standalone SWIM membership node, or queries a
// running one's status API. Process entry point and flag/config parsing
// live here, outside internal/swim: the protocol core never touches
// os.Args or a config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "floaty",
	Short: "A SWIM membership and failure-detection node",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
