package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

type buddyBlock struct {
	handle        BlockAllocationHandle
	offset        int
	size          int
	requestedSize int
	free          bool
	userData      any

	// buddies holds the handle of this block's buddy at each split level, innermost last. The block
	// created by a split only ever knows the block it was split from; the lower half keeps the buddies of
	// its ancestors, so the merged block inherits them when the pair recombines.
	buddies []BlockAllocationHandle
}

func (b *buddyBlock) buddy() BlockAllocationHandle {
	if len(b.buddies) == 0 {
		return NoAllocation
	}
	return b.buddies[len(b.buddies)-1]
}

// BuddyBlockMetadata is a BlockMetadata implementation that manages power-of-two blocks. Allocations
// take the smallest free block that fits and halve it until the next halving would be too small. Frees
// recombine a block with its buddy for as long as the buddy is free and whole.
type BuddyBlockMetadata struct {
	BlockMetadataBase

	allocCount     int
	freeCount      int
	sumFreeSize    int
	requestedBytes int

	nextAllocationHandle BlockAllocationHandle
	handleKey            *swiss.Map[BlockAllocationHandle, *buddyBlock]
	blocks               []*buddyBlock
}

var _ BlockMetadata = &BuddyBlockMetadata{}

func NewBuddyBlockMetadata() *BuddyBlockMetadata {
	return &BuddyBlockMetadata{}
}

func (m *BuddyBlockMetadata) allocateBlock(offset, size int) *buddyBlock {
	m.nextAllocationHandle++
	b := &buddyBlock{
		handle: m.nextAllocationHandle,
		offset: offset,
		size:   size,
		free:   true,
	}
	m.handleKey.Put(b.handle, b)
	m.blocks = append(m.blocks, b)
	m.freeCount++
	m.sumFreeSize += size
	return b
}

func (m *BuddyBlockMetadata) removeBlock(b *buddyBlock) {
	index := slices.Index(m.blocks, b)
	if index < 0 {
		panic("buddy block was not present in the block list")
	}

	m.blocks = slices.Delete(m.blocks, index, index+1)
	m.handleKey.Delete(b.handle)
	if b.free {
		m.freeCount--
		m.sumFreeSize -= b.size
	}
}

func (m *BuddyBlockMetadata) getBlock(handle BlockAllocationHandle) (*buddyBlock, error) {
	block, ok := m.handleKey.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this metadata")
	}
	return block, nil
}

func (m *BuddyBlockMetadata) Init(size int) error {
	if !memutils.IsPow2(size) {
		return errors.Wrapf(memutils.ErrConfiguration, "buddy system size %d is not a power of two", size)
	}

	m.BlockMetadataBase.Init(size)
	m.reset()
	return nil
}

func (m *BuddyBlockMetadata) reset() {
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *buddyBlock](42)
	m.blocks = nil
	m.allocCount = 0
	m.freeCount = 0
	m.sumFreeSize = 0
	m.requestedBytes = 0
	m.allocateBlock(0, m.size)
}

func (m *BuddyBlockMetadata) SupportsRandomAccess() bool {
	return false
}

func (m *BuddyBlockMetadata) Validate() error {
	if m.handleKey.Count() != len(m.blocks) {
		return errors.Errorf("the metadata tracks %d handles but its tree has %d blocks", m.handleKey.Count(), len(m.blocks))
	}

	sorted := slices.Clone(m.blocks)
	slices.SortStableFunc(sorted, func(left, right *buddyBlock) int {
		return left.offset - right.offset
	})

	var allocCount, freeCount, calculatedFreeSize, calculatedRequested int
	nextOffset := 0

	for _, block := range sorted {
		if block.offset != nextOffset {
			return errors.Errorf("block at offset %d does not start at the previous block's end offset %d", block.offset, nextOffset)
		}
		if !memutils.IsPow2(block.size) || block.size > m.size {
			return errors.Errorf("block at offset %d has size %d, which is not a power of two no larger than %d", block.offset, block.size, m.size)
		}
		if block.offset%block.size != 0 {
			return errors.Errorf("block at offset %d is not aligned to its size %d", block.offset, block.size)
		}

		if block.free {
			if block.userData != nil || block.requestedSize != 0 {
				return errors.Errorf("block at offset %d is free but still has an occupant", block.offset)
			}
			freeCount++
			calculatedFreeSize += block.size
		} else {
			if block.userData == nil {
				return errors.Errorf("block at offset %d is taken but has no occupant", block.offset)
			}
			if block.requestedSize <= 0 || block.requestedSize > block.size || block.size/2 >= block.requestedSize {
				return errors.Errorf("block at offset %d has size %d, which is not the tightest fit for an occupant of size %d", block.offset, block.size, block.requestedSize)
			}
			allocCount++
			calculatedRequested += block.requestedSize
		}

		if buddyHandle := block.buddy(); buddyHandle != NoAllocation {
			buddy, ok := m.handleKey.Get(buddyHandle)
			if !ok {
				return errors.Errorf("block at offset %d is linked to a buddy that no longer exists", block.offset)
			}

			if buddy.size == block.size {
				if buddy.buddy() != block.handle {
					return errors.Errorf("block at offset %d lists the block at offset %d as its buddy, but the reverse reference is broken", block.offset, buddy.offset)
				}
				if block.offset^block.size != buddy.offset {
					return errors.Errorf("blocks at offsets %d and %d are linked as buddies but are not an aligned pair", block.offset, buddy.offset)
				}
				if block.free && buddy.free {
					return errors.Errorf("buddies at offsets %d and %d are both free but were not merged", block.offset, buddy.offset)
				}
			}
		}

		nextOffset = block.offset + block.size
	}

	if nextOffset != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the blocks only added up to %d", m.size, nextOffset)
	}

	if calculatedFreeSize != m.sumFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free blocks only added up to %d", m.sumFreeSize, calculatedFreeSize)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken blocks only added up to %d", m.allocCount, allocCount)
	}

	if freeCount != m.freeCount {
		return errors.Errorf("the free block count of the metadata is %d, but there were only %d free blocks", m.freeCount, freeCount)
	}

	if calculatedRequested != m.requestedBytes {
		return errors.Errorf("the requested size of the metadata is %d, but the occupants only added up to %d", m.requestedBytes, calculatedRequested)
	}

	return nil
}

func (m *BuddyBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	for _, block := range m.blocks {
		if block.free {
			stats.AddUnusedRange(block.size)
		} else {
			stats.AddAllocation(block.size, block.requestedSize)
		}
	}
}

func (m *BuddyBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.sumFreeSize
	stats.RequestedBytes += m.requestedBytes
}

func (m *BuddyBlockMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *BuddyBlockMetadata) FreeRegionsCount() int {
	return m.freeCount
}

func (m *BuddyBlockMetadata) SumFreeSize() int {
	return m.sumFreeSize
}

func (m *BuddyBlockMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

// splitSize is the size a block of blockSize ends up with after being halved for an allocation of allocSize
func splitSize(blockSize, allocSize int) int {
	for blockSize/2 >= allocSize {
		blockSize /= 2
	}
	return blockSize
}

// CreateAllocationRequest picks the smallest free block that can hold allocSize, the first one in the
// block list on ties. The strategy is ignored.
func (m *BuddyBlockMetadata) CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Wrapf(memutils.ErrInvalidSize, "invalid allocSize: %d", allocSize)
	}

	memutils.DebugValidate(m)

	if allocSize > m.sumFreeSize {
		return false, allocRequest, nil
	}

	index := selectRegion(len(m.blocks),
		func(i int) bool { return m.blocks[i].free && m.blocks[i].size >= allocSize },
		func(i int) int { return m.blocks[i].size },
		AllocationStrategyBestFit,
	)
	if index < 0 {
		return false, allocRequest, nil
	}

	block := m.blocks[index]
	allocRequest.Type = AllocationRequestBuddy
	allocRequest.BlockAllocationHandle = block.handle
	allocRequest.Size = splitSize(block.size, allocSize)
	allocRequest.RequestedSize = allocSize
	allocRequest.AlgorithmData = uint64(block.offset)

	return true, allocRequest, nil
}

func (m *BuddyBlockMetadata) Alloc(req AllocationRequest, userData any) error {
	if req.Type != AllocationRequestBuddy {
		return errors.New("allocation request was received by an incompatible metadata")
	}

	block, err := m.getBlock(req.BlockAllocationHandle)
	if err != nil {
		return err
	}
	if !block.free {
		return errors.Errorf("allocation request targets the block at offset %d, which is already taken", block.offset)
	}
	if block.offset != int(req.AlgorithmData) {
		return errors.New("allocation request had a block allocation header that was incompatible with the requested offset")
	}
	if req.RequestedSize < 1 || block.size < req.RequestedSize {
		return errors.New("allocation request had a block allocation header too small for the request")
	}

	for block.size/2 >= req.RequestedSize {
		half := block.size / 2
		memutils.DebugCheckPow2(half, "split size")

		block.size = half
		m.sumFreeSize -= half

		sibling := m.allocateBlock(block.offset+half, half)
		sibling.buddies = []BlockAllocationHandle{block.handle}
		block.buddies = append(block.buddies, sibling.handle)
	}

	block.free = false
	block.userData = userData
	block.requestedSize = req.RequestedSize
	m.allocCount++
	m.freeCount--
	m.sumFreeSize -= block.size
	m.requestedBytes += block.requestedSize

	return nil
}

func (m *BuddyBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return err
	}
	if block.free {
		return errors.New("block is already free")
	}

	m.requestedBytes -= block.requestedSize
	block.free = true
	block.userData = nil
	block.requestedSize = 0
	m.allocCount--
	m.freeCount++
	m.sumFreeSize += block.size

	err = m.coalesce(block)
	if err != nil {
		return err
	}

	// With nothing allocated the tree must be the single root block again
	if m.allocCount == 0 && len(m.blocks) > 1 {
		m.reset()
	}

	return nil
}

// coalesce merges a free block with its buddy for as long as the buddy is free and has not been split.
// The merged block keeps the lower block's handle and inherits its remaining (grand)buddy links.
func (m *BuddyBlockMetadata) coalesce(block *buddyBlock) error {
	for buddyHandle := block.buddy(); buddyHandle != NoAllocation; buddyHandle = block.buddy() {
		buddy, err := m.getBlock(buddyHandle)
		if err != nil {
			return errors.Wrapf(err, "block at offset %d is linked to a missing buddy", block.offset)
		}

		if !buddy.free || buddy.size != block.size {
			return nil
		}

		lower, upper := block, buddy
		if buddy.offset < block.offset {
			lower, upper = buddy, block
		}

		if lower.buddy() != upper.handle {
			return errors.Errorf("blocks at offsets %d and %d are not linked to each other", lower.offset, upper.offset)
		}

		m.removeBlock(upper)
		m.sumFreeSize += lower.size
		lower.size *= 2
		lower.buddies = lower.buddies[:len(lower.buddies)-1]
		block = lower
	}

	return nil
}

func (m *BuddyBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for _, block := range m.blocks {
		err := handleBlock(block.handle, block.offset, block.size, block.userData, block.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *BuddyBlockMetadata) Clear() {
	m.reset()
}

func (m *BuddyBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.sumFreeSize, m.allocCount, m.freeCount)
}

func (m *BuddyBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any)) {
	for _, block := range m.blocks {
		if !block.free {
			logFunc(logger, block.offset, block.size, block.userData)
		}
	}
}

func (m *BuddyBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return 0, err
	}

	return block.offset, nil
}

func (m *BuddyBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return nil, err
	}

	if block.free {
		return nil, errors.New("user data cannot be retrieved for a free block")
	}

	return block.userData, nil
}
