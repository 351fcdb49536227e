package main

import (
	"fmt"
	"io"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"github.com/vkngwrapper/memsim/simulator"
)

var strategies = []metadata.AllocationStrategy{
	metadata.AllocationStrategyFirstFit,
	metadata.AllocationStrategyBestFit,
	metadata.AllocationStrategyWorstFit,
}

func init() {
	rootCmd.AddCommand(newTechniquesCmd())
}

func newTechniquesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "techniques",
		Short: "List the memory-management techniques and placement strategies",
		Long: `The techniques command lists the names accepted by the technique and strategy
fields of a scenario file.

Example:
  memsim techniques
  memsim techniques --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTechniques(cmd.OutOrStdout())
		},
	}
	return cmd
}

func runTechniques(out io.Writer) error {
	if jsonOut {
		writer := jwriter.NewWriter()
		obj := writer.Object()

		techniques := obj.Name("Techniques").Array()
		for _, technique := range simulator.Techniques {
			techniqueObj := techniques.Object()
			techniqueObj.Name("Name").String(technique.String())
			techniqueObj.Name("Compaction").Bool(technique == simulator.TechniqueDynamic)
			techniqueObj.Name("UsesStrategy").Bool(technique.IsPartitioned())
			techniqueObj.End()
		}
		techniques.End()

		strategyArray := obj.Name("Strategies").Array()
		for _, strategy := range strategies {
			strategyArray.String(strategy.String())
		}
		strategyArray.End()

		obj.End()

		_, err := fmt.Fprintln(out, string(writer.Bytes()))
		return err
	}

	fmt.Fprintln(out, "Techniques:")
	for _, technique := range simulator.Techniques {
		fmt.Fprintf(out, "  %s\n", technique)
	}

	fmt.Fprintln(out, "\nStrategies (fixed, unequal and dynamic only):")
	for _, strategy := range strategies {
		fmt.Fprintf(out, "  %s\n", strategy)
	}

	return nil
}
