package simulator

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/defrag"
	"golang.org/x/exp/slog"
)

// CompactionInfo is used to specify options for a compaction run. The zero value compacts everything in
// a single pass.
type CompactionInfo struct {
	// MaxBytesPerPass is the maximum number of units to relocate in each pass. Zero means no limit.
	MaxBytesPerPass int
	// MaxAllocationsPerPass is the maximum number of processes to relocate in each pass. Zero means no limit.
	MaxAllocationsPerPass int
}

// CompactionResult reports what a compaction run did
type CompactionResult struct {
	// Compacted is false when there was nothing to do: no free block or no resident process. Memory whose
	// processes are already packed at the start is still reported as compacted, with nothing moved.
	Compacted bool
	Stats     defrag.DefragmentationStats
}

// Compact slides every resident process toward offset zero, in address order, leaving a single free
// block at the end of memory. Only TechniqueDynamic supports compaction: other techniques return an error
// wrapping memutils.ErrUnsupported.
func (a *Allocator) Compact(o CompactionInfo) (CompactionResult, error) {
	a.logger.Debug("Allocator::Compact")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	var result CompactionResult

	if a.metadata == nil {
		return result, memutils.ErrNotInitialized
	}

	block, ok := a.metadata.(defrag.Compactable)
	if !ok || !block.SupportsRandomAccess() {
		return result, errors.Wrapf(memutils.ErrUnsupported, "%s memory cannot be compacted", a.technique)
	}

	defragContext := defrag.MetadataDefragContext{
		Block:   block,
		Handler: a.completeMove,
	}

	pass := defrag.PassContext{
		MaxPassBytes:       o.MaxBytesPerPass,
		MaxPassAllocations: o.MaxAllocationsPerPass,
	}

	needsCompaction := defragContext.NeedsCompaction()
	err := defragContext.Run(&pass)
	memutils.DebugValidate(a.metadata)

	result.Stats = pass.Stats
	if err != nil {
		return result, err
	}
	result.Compacted = needsCompaction

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Compaction complete",
		slog.Bool("Compacted", result.Compacted),
		slog.Int("AllocationsMoved", pass.Stats.AllocationsMoved),
		slog.Int("BytesMoved", pass.Stats.BytesMoved),
		slog.Int("Passes", pass.Stats.Passes))

	return result, nil
}

func (a *Allocator) completeMove(move defrag.DefragmentationMove) error {
	process, ok := move.UserData.(*Process)
	if !ok {
		return errors.Newf("allocation at offset %d is not a process", move.SrcOffset)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Moved process",
		slog.Int("ProcessID", int(process.id)),
		slog.Int("From", move.SrcOffset),
		slog.Int("To", move.DstOffset))

	return nil
}
