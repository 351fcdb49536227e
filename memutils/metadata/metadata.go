package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slog"
)

// BlockMetadata represents a single simulated address space. It manages the regions within it,
// allowing allocations to be requested and freed, as well as enumerated and queried.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It gives the implementation an opportunity
	// to lay out its initial regions over the address space of size units. Init returns an error wrapping
	// memutils.ErrConfiguration when the implementation cannot represent an address space of that size.
	// Calling Init again discards every region and allocation.
	Init(size int) error
	// Size retrieves the size that the block was initialized with
	Size() int
	// SupportsRandomAccess returns a boolean indicating whether live allocations may be moved to arbitrary
	// offsets within the block. This method must return true for the block to be used with the
	// memutils.defrag package.
	SupportsRandomAccess() bool

	// Validate performs internal consistency checks on the metadata. When the implementation is functioning
	// correctly, it should not be possible for this method to return an error.
	Validate() error
	// AllocationCount returns the number of allocations currently live in the implementation.
	AllocationCount() int
	// FreeRegionsCount returns the number of free regions in the block.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free units in the block.
	SumFreeSize() int
	// IsEmpty will return true if this block has no live allocations
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the block, in table order. Free regions are reported with a nil userData.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error

	// AllocationOffset returns the offset of a live allocation.
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationUserData returns the userData value provided by the consumer when the allocation was committed
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)

	// AddDetailedStatistics sums this block's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json *jwriter.ObjectState)
	// DebugLogAllAllocations calls logFunc once for each live allocation
	DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any))

	// CreateAllocationRequest retrieves an AllocationRequest object indicating where and how the implementation
	// would place an allocation of allocSize units. It returns false with no error when no region can hold
	// the allocation. It never changes the metadata: the request can be passed to Alloc to commit it.
	//
	// strategy - How to choose between several sufficiently large free regions. Implementations whose
	// placement is fixed by their algorithm may ignore it.
	CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest object, creating the allocation within the block based
	// on the data described in the AllocationRequest. The implementation must return an error if the
	// allocation is no longer valid- i.e. the requested free region no longer exists, is not free,
	// offset has changed, is no longer large enough to support the request, etc.
	Alloc(request AllocationRequest, userData any) error

	// Free frees an allocation within the block, causing its region(s) to become free once again.
	//
	// The implementation must return an error if the provided handle does not map to a live allocation
	// within this block.
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size int
}

// Init sizes the block based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block
func (m *BlockMetadataBase) Size() int { return m.size }

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
