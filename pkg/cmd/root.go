package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "driftdb",
		Short: "An embeddable document store with an aggregation pipeline planner that fuses leading stages into the physical scan",
		Long: `An embeddable document store with an aggregation pipeline planner that fuses leading stages into the physical scan.
DriftDB analyzes the field dependencies of an aggregation pipeline, pushes leading filter and sort stages down into the storage
engine when a compatible access path exists, and executes the rest of the pipeline over an interruptible cursor.`,
	}
}
