package defrag

import (
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

//go:generate mockgen -source defrag.go -destination ./mocks/compactable.go

// Compactable is a block whose live allocations can be slid to new offsets. metadata.PartitionBlockMetadata
// satisfies it, but only dynamic partitions report SupportsRandomAccess.
type Compactable interface {
	SupportsRandomAccess() bool
	Size() int
	AllocationCount() int
	IsEmpty() bool
	FreeRegionsCount() int
	SumFreeSize() int
	VisitAllRegions(handleBlock func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error) error
	Relocate(moves []metadata.Relocation) error
}

// DefragmentationMove describes a single allocation being slid toward the start of the block
type DefragmentationMove struct {
	Handle    metadata.BlockAllocationHandle
	UserData  any
	Size      int
	SrcOffset int
	DstOffset int
}

// DefragmentOperationHandler is called once for each move after the pass containing it has been
// committed to the block
type DefragmentOperationHandler func(move DefragmentationMove) error

// DefragmentationStats contains basic metrics for compaction over time
type DefragmentationStats struct {
	// BytesMoved is the sum of the sizes of all relocated allocations
	BytesMoved int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// FreeRegionsMerged is the number of free regions that disappeared because the gaps between
	// allocations were folded into the trailing free region
	FreeRegionsMerged int
	// Passes is the number of passes that committed at least one relocation
	Passes int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.AllocationsMoved += stats.AllocationsMoved
	s.FreeRegionsMerged += stats.FreeRegionsMerged
	s.Passes += stats.Passes
}
