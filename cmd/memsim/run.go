package main

import (
	"fmt"
	"io"
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/memsim/scenario"
	"github.com/vkngwrapper/memsim/simulator"
)

var runTechnique string

func init() {
	cmd := newRunCmd()
	cmd.Flags().StringVarP(&runTechnique, "technique", "t", "", "Run the scenario under this technique instead")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Replay a scenario and print the memory map",
		Long: `The run command initializes memory as the scenario file describes, runs every
step in order and prints the memory allocation status once the last step is done.
Steps the allocator refuses are reported and do not stop the scenario.

Example:
  memsim run dynamic.toml
  memsim run dynamic.toml --technique buddy
  memsim run dynamic.toml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkArgs(args, 1, "memsim run <scenario>"); err != nil {
				return err
			}
			return runRun(cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func runRun(out io.Writer, args []string) error {
	applyColor()

	config, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	if runTechnique != "" {
		config.Technique = runTechnique
	}

	logger := newLogger(os.Stderr)
	allocator := simulator.New(logger, config.CreateOptions())

	report, err := scenario.Run(logger, allocator, config)
	if err != nil {
		return fmt.Errorf("failed to run scenario: %w", err)
	}

	if verbose {
		allocator.DebugLogAllAllocations()
	}

	if jsonOut {
		return printJSONReport(out, allocator, report)
	}

	if quiet {
		return nil
	}

	printSteps(out, report)
	fmt.Fprintln(out)
	printStatus(out, report.Snapshot)

	return nil
}

func printJSONReport(out io.Writer, allocator *simulator.Allocator, report scenario.Report) error {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	steps := obj.Name("Steps").Array()
	for _, step := range report.Steps {
		stepObj := steps.Object()
		stepObj.Name("Index").Int(step.Index)
		stepObj.Name("Op").String(string(step.Step.Op))
		if step.ProcessID != 0 {
			stepObj.Name("ProcessID").Int(int(step.ProcessID))
		}
		if step.Compaction != nil {
			stepObj.Name("Compacted").Bool(step.Compaction.Compacted)
			stepObj.Name("BytesMoved").Int(step.Compaction.Stats.BytesMoved)
			stepObj.Name("AllocationsMoved").Int(step.Compaction.Stats.AllocationsMoved)
		}
		if step.Err != nil {
			stepObj.Name("Error").String(step.Err.Error())
		}
		stepObj.End()
	}
	steps.End()

	if report.Snapshot.Fragmentation != nil {
		fragmentation := obj.Name("Fragmentation").Object()
		fragmentation.Name("Internal").Int(report.Snapshot.Fragmentation.Internal)
		fragmentation.Name("External").Int(report.Snapshot.Fragmentation.External)
		fragmentation.End()
	}

	err := allocator.PrintDetailedMap(obj.Name("Map"))
	obj.End()
	if err != nil {
		return fmt.Errorf("failed to print memory map: %w", err)
	}

	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to build json output: %w", err)
	}

	_, err = fmt.Fprintln(out, string(writer.Bytes()))
	return err
}
