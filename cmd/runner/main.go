package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "runner",
		Short: "Fixbench runner - Automated bug-fixing pipeline",
		Long: `Fixbench runner drives a coding model against repositories with known
failing tests. It prepares an isolated working copy per task, runs a
tool-use session with the model, and extracts a canonical result record
from the execution log.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
