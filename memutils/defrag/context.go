package defrag

import (
	"errors"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"golang.org/x/exp/slices"
)

// MetadataDefragContext is the core of the compaction logic for memutils. It slides every live allocation
// of a Compactable block toward offset zero, in offset order, so that all free space ends up in a single
// region at the end of the block. A run consists of one or more passes.
type MetadataDefragContext struct {
	// Block is the memory object this context exists to compact
	Block Compactable
	// Handler is an optional method that will be called for each relocation as part of CompletePass
	Handler DefragmentOperationHandler

	moves []DefragmentationMove
}

type occupiedRegion struct {
	handle   metadata.BlockAllocationHandle
	offset   int
	size     int
	userData any
}

// Init checks that Block can be compacted. MetadataDefragContext can be reused for multiple runs, as long as
// this method is called prior to beginning each run, including the first
func (c *MetadataDefragContext) Init() error {
	if c.Block == nil {
		panic("attempted to init defragmentation context without a block")
	}

	if !c.Block.SupportsRandomAccess() {
		return cerrors.Wrap(memutils.ErrUnsupported, "attempted to compact a block that does not support random access")
	}

	c.moves = c.moves[:0]
	return nil
}

// Moves returns the list of relocation operations most recently collected with CollectMoves
func (c *MetadataDefragContext) Moves() []DefragmentationMove {
	return c.moves
}

// NeedsCompaction returns false when there is nothing to slide: the block has no free region or no
// allocation
func (c *MetadataDefragContext) NeedsCompaction() bool {
	return c.Block.FreeRegionsCount() > 0 && !c.Block.IsEmpty()
}

func (c *MetadataDefragContext) occupiedRegions() ([]occupiedRegion, error) {
	regions := make([]occupiedRegion, 0, c.Block.AllocationCount())
	err := c.Block.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if !free {
			regions = append(regions, occupiedRegion{handle: handle, offset: offset, size: size, userData: userData})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(regions, func(left, right occupiedRegion) int {
		return left.offset - right.offset
	})

	return regions, nil
}

// CollectMoves will retrieve a single pass's worth of DefragmentationMove operations to be completed.
// Those operations can be retrieved from MetadataDefragContext.Moves. The first move of a pass is always
// collected even when it is larger than MaxPassBytes, so every pass makes progress. CollectMoves returns
// true if the pass budget ran out before every allocation was visited.
func (c *MetadataDefragContext) CollectMoves(pass *PassContext) (bool, error) {
	c.moves = c.moves[:0]

	if !c.NeedsCompaction() {
		return false, nil
	}

	regions, err := c.occupiedRegions()
	if err != nil {
		return false, err
	}

	cursor := 0
	for _, region := range regions {
		if region.offset != cursor {
			if len(c.moves) > 0 && !pass.checkCounters(region.size) {
				return true, nil
			}

			c.moves = append(c.moves, DefragmentationMove{
				Handle:    region.handle,
				UserData:  region.userData,
				Size:      region.size,
				SrcOffset: region.offset,
				DstOffset: cursor,
			})

			if pass.incrementCounters(region.size) {
				return true, nil
			}
		}

		cursor += region.size
	}

	return false, nil
}

// CompletePass should be called after CollectMoves. It relocates every collected allocation in a single
// Block.Relocate call, then calls Handler for each move. If Relocate fails, the block is left as it was and
// the pass statistics are rolled back. Errors returned from Handler are combined with errors.Join.
func (c *MetadataDefragContext) CompletePass(pass *PassContext) error {
	if len(c.moves) == 0 {
		return nil
	}

	relocations := make([]metadata.Relocation, 0, len(c.moves))
	var bytes int
	for _, move := range c.moves {
		relocations = append(relocations, metadata.Relocation{Handle: move.Handle, Offset: move.DstOffset})
		bytes += move.Size
	}

	prevFreeRegions := c.Block.FreeRegionsCount()
	err := c.Block.Relocate(relocations)
	if err != nil {
		pass.Stats.BytesMoved -= bytes
		pass.Stats.AllocationsMoved -= len(c.moves)
		c.moves = c.moves[:0]
		return err
	}

	pass.Stats.FreeRegionsMerged += prevFreeRegions - c.Block.FreeRegionsCount()
	pass.Stats.Passes++

	var allErrors []error
	if c.Handler != nil {
		for _, move := range c.moves {
			err = c.Handler(move)
			if err != nil {
				allErrors = append(allErrors, err)
			}
		}
	}

	c.moves = c.moves[:0]

	if len(allErrors) == 1 {
		return allErrors[0]
	}

	if len(allErrors) > 0 {
		return errors.Join(allErrors...)
	}

	return nil
}

// Run performs passes until every allocation is packed at the start of the block. The budgets on pass apply
// to each individual pass, while pass.Stats accumulates the statistics of the whole run.
func (c *MetadataDefragContext) Run(pass *PassContext) error {
	err := c.Init()
	if err != nil {
		return err
	}

	for {
		current := PassContext{
			MaxPassBytes:       pass.MaxPassBytes,
			MaxPassAllocations: pass.MaxPassAllocations,
		}

		_, err = c.CollectMoves(&current)
		if err != nil {
			return err
		}

		if len(c.moves) == 0 {
			return nil
		}

		err = c.CompletePass(&current)
		pass.Stats.Add(current.Stats)
		if err != nil {
			return err
		}
	}
}
