package scenario

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/simulator"
	"golang.org/x/exp/slog"
)

// StepResult records the outcome of one step. Err holds the rejection of a step the allocator refused, such
// as an allocation no free memory could satisfy. A refused step leaves the allocator unchanged and the
// scenario carries on with the next step.
type StepResult struct {
	Index int
	Step  Step
	// ProcessID is the id assigned by an allocate step or removed by a deallocate step
	ProcessID  simulator.ProcessID
	Compaction *simulator.CompactionResult
	Err        error
}

// Report is the outcome of a whole scenario
type Report struct {
	Steps    []StepResult
	Snapshot simulator.Snapshot
}

// Failed returns the number of steps the allocator refused
func (r *Report) Failed() int {
	var failed int
	for _, step := range r.Steps {
		if step.Err != nil {
			failed++
		}
	}
	return failed
}

// Run initializes allocator with the scenario's technique and total size, then runs every step in order.
// An error is only returned if the allocator could not be initialized or could not be read back afterward.
func Run(logger *slog.Logger, allocator *simulator.Allocator, c Config) (Report, error) {
	var report Report

	technique, err := simulator.ParseTechnique(c.Technique)
	if err != nil {
		return report, err
	}

	err = allocator.Initialize(technique, c.TotalSize)
	if err != nil {
		return report, err
	}

	for i, step := range c.Steps {
		result := runStep(allocator, c, step)
		result.Index = i + 1

		if result.Err != nil && logger != nil {
			logger.LogAttrs(context.Background(), slog.LevelInfo, "Step refused",
				slog.Int("Step", result.Index),
				slog.String("Op", string(step.Op)),
				slog.String("Error", result.Err.Error()))
		}

		report.Steps = append(report.Steps, result)
	}

	report.Snapshot, err = allocator.Snapshot()
	if err != nil {
		return report, errors.Wrap(err, "could not snapshot the allocator")
	}

	return report, nil
}

func runStep(allocator *simulator.Allocator, c Config, step Step) StepResult {
	result := StepResult{Step: step}

	switch step.Op {
	case OpAllocate:
		strategy, err := c.strategy(step)
		if err != nil {
			result.Err = err
			return result
		}
		result.ProcessID, result.Err = allocator.Allocate(step.Size, strategy)
	case OpDeallocate:
		result.ProcessID = simulator.ProcessID(step.Process)
		result.Err = allocator.Deallocate(result.ProcessID)
	case OpCompact:
		compaction, err := allocator.Compact(simulator.CompactionInfo{MaxAllocationsPerPass: step.MaxAllocations})
		result.Err = err
		if err == nil {
			result.Compaction = &compaction
		}
	case OpReset:
		result.Err = allocator.Reset()
	default:
		result.Err = errors.Newf("unknown op %q", step.Op)
	}

	return result
}
