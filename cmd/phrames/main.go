// Command phrames runs the photo frame service and renders composites
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phrames",
		Short:         "Phrames - frame campaign photo compositing",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(renderCmd())
	return cmd
}
