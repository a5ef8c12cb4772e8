package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "adaptation-manager",
		Short:        "Self-adaptive control loop: utility aggregation and configuration space enumeration",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default $CONFIG or adaptation.yaml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newEnumerateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
