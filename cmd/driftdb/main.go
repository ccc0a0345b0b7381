package main

import (
	"os"

	"github.com/driftdb/driftdb/pkg/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	benchCmd := cmd.NewBenchCommand()
	rootCmd.AddCommand(benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
