package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/vkngwrapper/memsim/scenario"
	"github.com/vkngwrapper/memsim/simulator"
)

var (
	freeColor    = color.New(color.FgGreen).SprintFunc()
	processColor = color.New(color.FgCyan).SprintFunc()
	refusedColor = color.New(color.FgRed).SprintFunc()
)

func printSteps(out io.Writer, report scenario.Report) {
	for _, step := range report.Steps {
		var description string
		switch step.Step.Op {
		case scenario.OpAllocate:
			description = fmt.Sprintf("allocate %d", step.Step.Size)
		case scenario.OpDeallocate:
			description = fmt.Sprintf("deallocate process %d", step.Step.Process)
		default:
			description = string(step.Step.Op)
		}

		if step.Err != nil {
			fmt.Fprintf(out, "Step %d: %s: %s\n", step.Index, description, refusedColor(step.Err.Error()))
			continue
		}

		switch {
		case step.Step.Op == scenario.OpAllocate:
			fmt.Fprintf(out, "Step %d: %s: %s\n", step.Index, description, processColor(fmt.Sprintf("Process %d", step.ProcessID)))
		case step.Compaction != nil && !step.Compaction.Compacted:
			fmt.Fprintf(out, "Step %d: %s: nothing to compact\n", step.Index, description)
		case step.Compaction != nil && step.Compaction.Stats.AllocationsMoved == 0:
			fmt.Fprintf(out, "Step %d: %s: already compact\n", step.Index, description)
		case step.Compaction != nil:
			fmt.Fprintf(out, "Step %d: %s: moved %d process(es), %d units\n", step.Index, description,
				step.Compaction.Stats.AllocationsMoved, step.Compaction.Stats.BytesMoved)
		default:
			fmt.Fprintf(out, "Step %d: %s\n", step.Index, description)
		}
	}

	if failed := report.Failed(); failed > 0 {
		fmt.Fprintf(out, "%s\n", refusedColor(fmt.Sprintf("%d step(s) refused", failed)))
	}
}

// printStatus writes the memory allocation status report
func printStatus(out io.Writer, snapshot simulator.Snapshot) {
	fmt.Fprintln(out, "Memory Allocation Status:")

	if snapshot.Technique == simulator.TechniquePaging {
		fmt.Fprintf(out, "Page Table: Page size(%d)\n", snapshot.PageSize)
		for _, process := range snapshot.Processes {
			fmt.Fprintf(out, "Process %d: Frames %s\n", process.ID, formatFrames(process.Frames))
		}

		fmt.Fprintln(out, "\nFrames:")
		for _, frame := range snapshot.Frames {
			status := freeColor("Free")
			if !frame.Free() {
				status = processColor(fmt.Sprintf("Process %d", frame.ProcessID))
			}
			fmt.Fprintf(out, "Frame %d: %s\n", frame.Index, status)
		}
		return
	}

	for _, block := range snapshot.Blocks {
		status := freeColor("Free")
		if !block.Free {
			occupant := fmt.Sprintf("Process %d, P-size: %d", block.ProcessID, block.ProcessSize)
			if snapshot.Technique.IsPartitioned() {
				occupant += fmt.Sprintf(", Internal-Fragmentation: %d", block.InternalFragmentation())
			}
			status = processColor(occupant)
		}
		fmt.Fprintf(out, "Block: Start: %d, Size: %d, Status: %s\n", block.Start, block.Size, status)
	}

	if snapshot.Fragmentation != nil {
		fmt.Fprintln(out, "\nFragmentation:")
		fmt.Fprintf(out, "\nTotal external fragmentation: %d\n", snapshot.Fragmentation.External)
		fmt.Fprintf(out, "Total internal fragmentation: %d\n", snapshot.Fragmentation.Internal)
	}
}

func formatFrames(frames []int) string {
	parts := make([]string, len(frames))
	for i, frame := range frames {
		parts[i] = strconv.Itoa(frame)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
