package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// DefaultPartitionCount is the number of partitions fixed and unequal partitioning divide memory into
const DefaultPartitionCount = 10

// PartitionMode selects how a PartitionBlockMetadata lays out its table and whether allocations split blocks
type PartitionMode uint32

const (
	// PartitionFixed divides memory into equally-sized partitions that are never split or merged
	PartitionFixed PartitionMode = iota
	// PartitionUnequal divides memory into randomly-sized partitions that are never split or merged
	PartitionUnequal
	// PartitionDynamic starts with a single free block, splits blocks on allocation and merges
	// neighboring free blocks after every allocation and free
	PartitionDynamic
)

var partitionModeMapping = map[PartitionMode]string{
	PartitionFixed:   "Fixed",
	PartitionUnequal: "Unequal",
	PartitionDynamic: "Dynamic",
}

func (m PartitionMode) String() string {
	return partitionModeMapping[m]
}

type partitionBlock struct {
	handle        BlockAllocationHandle
	offset        int
	size          int
	requestedSize int
	free          bool
	userData      any
}

// PartitionBlockMetadata is a BlockMetadata implementation backed by a table of contiguous,
// non-overlapping blocks. Placement is first, best or worst fit over the table.
//
// Fixed and unequal partitions keep the table they were initialized with: an allocation occupies a whole
// partition and any unused space in it is internal fragmentation. Dynamic partitions split the chosen block
// so the allocation fits exactly, with the remainder appended to the table as a new free block.
type PartitionBlockMetadata struct {
	BlockMetadataBase

	mode           PartitionMode
	partitionCount int
	random         *rand.Rand

	coveredSize    int
	allocCount     int
	freeCount      int
	sumFreeSize    int
	requestedBytes int

	nextAllocationHandle BlockAllocationHandle
	handleKey            *swiss.Map[BlockAllocationHandle, *partitionBlock]
	blocks               []*partitionBlock
}

var _ BlockMetadata = &PartitionBlockMetadata{}

// NewFixedPartitionMetadata creates metadata that divides memory into partitionCount equal partitions.
// Any remainder of the size passed to Init that does not divide evenly is left out of the table.
func NewFixedPartitionMetadata(partitionCount int) *PartitionBlockMetadata {
	return &PartitionBlockMetadata{
		mode:           PartitionFixed,
		partitionCount: partitionCount,
	}
}

// NewUnequalPartitionMetadata creates metadata that divides memory into partitionCount partitions separated
// by distinct cut points drawn from random
func NewUnequalPartitionMetadata(partitionCount int, random *rand.Rand) *PartitionBlockMetadata {
	return &PartitionBlockMetadata{
		mode:           PartitionUnequal,
		partitionCount: partitionCount,
		random:         random,
	}
}

// NewDynamicPartitionMetadata creates metadata that starts as one free block and splits and merges blocks
// as allocations come and go
func NewDynamicPartitionMetadata() *PartitionBlockMetadata {
	return &PartitionBlockMetadata{
		mode:           PartitionDynamic,
		partitionCount: 1,
	}
}

func (m *PartitionBlockMetadata) Mode() PartitionMode { return m.mode }

func (m *PartitionBlockMetadata) allocateBlock(offset, size int) *partitionBlock {
	m.nextAllocationHandle++
	b := &partitionBlock{
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

func (m *PartitionBlockMetadata) freeBlock(b *partitionBlock) {
	m.handleKey.Delete(b.handle)
}

func (m *PartitionBlockMetadata) getBlock(handle BlockAllocationHandle) (*partitionBlock, error) {
	block, ok := m.handleKey.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this metadata")
	}
	return block, nil
}

func (m *PartitionBlockMetadata) Init(size int) error {
	if err := memutils.CheckPositive(size, "total size"); err != nil {
		return errors.Wrap(memutils.ErrConfiguration, err.Error())
	}
	if m.partitionCount < 1 {
		return errors.Wrapf(memutils.ErrConfiguration, "partition count is %d", m.partitionCount)
	}
	if size < m.partitionCount {
		return errors.Wrapf(memutils.ErrConfiguration, "cannot divide %d units into %d %s partitions", size, m.partitionCount, m.mode)
	}

	var sizes []int
	switch m.mode {
	case PartitionFixed:
		blockSize := size / m.partitionCount
		sizes = make([]int, m.partitionCount)
		for i := range sizes {
			sizes[i] = blockSize
		}
	case PartitionUnequal:
		if m.random == nil {
			return errors.Wrap(memutils.ErrConfiguration, "unequal partitioning requires a random source")
		}
		sizes = partitionSizes(size, sampleCutPoints(m.random, size, m.partitionCount-1))
	case PartitionDynamic:
		sizes = []int{size}
	default:
		return errors.Errorf("unknown partition mode %d", m.mode)
	}

	m.BlockMetadataBase.Init(size)
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *partitionBlock](uint32(len(sizes)))
	m.blocks = make([]*partitionBlock, 0, len(sizes))
	m.allocCount = 0
	m.freeCount = 0
	m.sumFreeSize = 0
	m.requestedBytes = 0
	m.coveredSize = 0

	for _, blockSize := range sizes {
		m.allocateBlock(m.coveredSize, blockSize)
		m.coveredSize += blockSize
	}

	return nil
}

// sampleCutPoints draws count distinct values from [1, size) using Floyd's algorithm and returns them sorted
func sampleCutPoints(random *rand.Rand, size, count int) []int {
	n := size - 1
	chosen := swiss.NewMap[int, struct{}](uint32(count + 1))
	cuts := make([]int, 0, count)

	for j := n - count; j < n; j++ {
		t := random.Intn(j + 1)
		if chosen.Has(t) {
			t = j
		}
		chosen.Put(t, struct{}{})
		cuts = append(cuts, t+1)
	}

	slices.Sort(cuts)
	return cuts
}

func partitionSizes(size int, cuts []int) []int {
	sizes := make([]int, 0, len(cuts)+1)
	prev := 0
	for _, cut := range cuts {
		sizes = append(sizes, cut-prev)
		prev = cut
	}
	return append(sizes, size-prev)
}

// CoveredSize is the number of units the partition table spans. It is smaller than Size when fixed
// partitioning leaves a remainder out of the table.
func (m *PartitionBlockMetadata) CoveredSize() int {
	return m.coveredSize
}

func (m *PartitionBlockMetadata) SupportsRandomAccess() bool {
	return m.mode == PartitionDynamic
}

func (m *PartitionBlockMetadata) Validate() error {
	if m.SumFreeSize() > m.coveredSize {
		return errors.New("invalid metadata free size")
	}

	if m.handleKey.Count() != len(m.blocks) {
		return errors.Errorf("the metadata tracks %d handles but its table has %d blocks", m.handleKey.Count(), len(m.blocks))
	}

	sorted := slices.Clone(m.blocks)
	slices.SortStableFunc(sorted, func(left, right *partitionBlock) int {
		return left.offset - right.offset
	})

	var allocCount, freeCount, calculatedFreeSize, calculatedRequested int
	nextOffset := 0

	for i, block := range sorted {
		if block.offset != nextOffset {
			return errors.Errorf("block at offset %d does not start at the previous block's end offset %d", block.offset, nextOffset)
		}
		if block.size <= 0 {
			return errors.Errorf("block at offset %d has non-positive size %d", block.offset, block.size)
		}

		tracked, ok := m.handleKey.Get(block.handle)
		if !ok || tracked != block {
			return errors.Errorf("block at offset %d is not tracked by its handle", block.offset)
		}

		if block.free {
			if block.userData != nil || block.requestedSize != 0 {
				return errors.Errorf("block at offset %d is free but still has an occupant", block.offset)
			}

			if m.mode == PartitionDynamic && i > 0 && sorted[i-1].free {
				return errors.Errorf("free blocks at offsets %d and %d are adjacent but were not merged", sorted[i-1].offset, block.offset)
			}

			freeCount++
			calculatedFreeSize += block.size
		} else {
			if block.userData == nil {
				return errors.Errorf("block at offset %d is taken but has no occupant", block.offset)
			}
			if block.requestedSize <= 0 || block.requestedSize > block.size {
				return errors.Errorf("block at offset %d has size %d but holds an occupant of size %d", block.offset, block.size, block.requestedSize)
			}
			if m.mode == PartitionDynamic && block.requestedSize != block.size {
				return errors.Errorf("dynamic block at offset %d has size %d but was not split to its occupant size %d", block.offset, block.size, block.requestedSize)
			}

			allocCount++
			calculatedRequested += block.requestedSize
		}

		if m.mode == PartitionFixed && block.size != sorted[0].size {
			return errors.Errorf("fixed partition at offset %d has size %d, expected %d", block.offset, block.size, sorted[0].size)
		}

		nextOffset = block.offset + block.size
	}

	if nextOffset != m.coveredSize {
		return errors.Errorf("the table should cover %d units, but the blocks only added up to %d", m.coveredSize, nextOffset)
	}

	if m.coveredSize > m.size {
		return errors.Errorf("the table covers %d units, which is past the end of the block at %d", m.coveredSize, m.size)
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

func (m *PartitionBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.coveredSize

	for _, block := range m.blocks {
		if block.free {
			stats.AddUnusedRange(block.size)
		} else {
			stats.AddAllocation(block.size, block.requestedSize)
		}
	}
}

func (m *PartitionBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.coveredSize
	stats.AllocationBytes += m.coveredSize - m.sumFreeSize
	stats.RequestedBytes += m.requestedBytes
}

func (m *PartitionBlockMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *PartitionBlockMetadata) FreeRegionsCount() int {
	return m.freeCount
}

func (m *PartitionBlockMetadata) SumFreeSize() int {
	return m.sumFreeSize
}

func (m *PartitionBlockMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

func (m *PartitionBlockMetadata) CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Wrapf(memutils.ErrInvalidSize, "invalid allocSize: %d", allocSize)
	}

	memutils.DebugValidate(m)

	// Is the table big enough?
	if allocSize > m.sumFreeSize {
		return false, allocRequest, nil
	}

	index := selectRegion(len(m.blocks),
		func(i int) bool { return m.blocks[i].free && m.blocks[i].size >= allocSize },
		func(i int) int { return m.blocks[i].size },
		strategy,
	)
	if index < 0 {
		return false, allocRequest, nil
	}

	block := m.blocks[index]
	allocRequest.Type = AllocationRequestPartition
	allocRequest.BlockAllocationHandle = block.handle
	allocRequest.RequestedSize = allocSize
	allocRequest.AlgorithmData = uint64(block.offset)

	allocRequest.Size = block.size
	if m.mode == PartitionDynamic {
		allocRequest.Size = allocSize
	}

	return true, allocRequest, nil
}

func (m *PartitionBlockMetadata) Alloc(req AllocationRequest, userData any) error {
	if req.Type != AllocationRequestPartition {
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

	if m.mode == PartitionDynamic && block.size > req.RequestedSize {
		// The tail becomes a new free block at the end of the table
		tailSize := block.size - req.RequestedSize
		block.size = req.RequestedSize
		m.sumFreeSize -= tailSize
		m.allocateBlock(block.offset+block.size, tailSize)
	}

	block.free = false
	block.userData = userData
	block.requestedSize = req.RequestedSize
	m.allocCount++
	m.freeCount--
	m.sumFreeSize -= block.size
	m.requestedBytes += block.requestedSize

	if m.mode == PartitionDynamic {
		m.mergeFreeBlocks()
	}

	return nil
}

func (m *PartitionBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
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

	if m.mode == PartitionDynamic {
		m.mergeFreeBlocks()
	}

	return nil
}

// mergeFreeBlocks sorts the table by offset and combines every run of adjacent free blocks into a single
// block. The table is rebuilt rather than edited while it is walked.
func (m *PartitionBlockMetadata) mergeFreeBlocks() {
	slices.SortStableFunc(m.blocks, func(left, right *partitionBlock) int {
		return left.offset - right.offset
	})

	merged := make([]*partitionBlock, 0, len(m.blocks))
	for _, block := range m.blocks {
		if len(merged) > 0 {
			last := merged[len(merged)-1]
			if last.free && block.free && last.offset+last.size == block.offset {
				last.size += block.size
				m.freeCount--
				m.freeBlock(block)
				continue
			}
		}

		merged = append(merged, block)
	}

	m.blocks = merged
}

// Relocate moves live allocations to new offsets and rebuilds the free blocks from the gaps left between
// allocations. It is only supported by dynamic partitions. Nothing is changed if the moves would make
// two allocations overlap or push one past the end of the block.
func (m *PartitionBlockMetadata) Relocate(moves []Relocation) error {
	if !m.SupportsRandomAccess() {
		return errors.Wrapf(memutils.ErrUnsupported, "%s partitions cannot relocate allocations", m.mode)
	}

	newOffsets := make(map[*partitionBlock]int, len(moves))
	for _, move := range moves {
		block, err := m.getBlock(move.Handle)
		if err != nil {
			return err
		}
		if block.free {
			return errors.Errorf("cannot relocate the free block at offset %d", block.offset)
		}
		newOffsets[block] = move.Offset
	}

	taken := make([]Suballocation, 0, m.allocCount)
	owners := make([]*partitionBlock, 0, m.allocCount)
	for _, block := range m.blocks {
		if block.free {
			continue
		}

		offset, moved := newOffsets[block]
		if !moved {
			offset = block.offset
		}
		taken = append(taken, Suballocation{Offset: offset, Size: block.size})
		owners = append(owners, block)
	}

	order := make([]int, len(taken))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(left, right int) int {
		return taken[left].Offset - taken[right].Offset
	})

	end := 0
	for _, i := range order {
		if taken[i].Offset < end {
			return errors.Errorf("relocating to offset %d would overlap the allocation ending at %d", taken[i].Offset, end)
		}
		end = taken[i].Offset + taken[i].Size
	}
	if end > m.coveredSize {
		return errors.Errorf("relocation would place an allocation past the end of the block at %d", m.coveredSize)
	}

	// Commit: drop every free block and rebuild them from the gaps
	for _, block := range m.blocks {
		if block.free {
			m.freeBlock(block)
		}
	}

	m.blocks = make([]*partitionBlock, 0, len(owners)+1)
	m.freeCount = 0
	m.sumFreeSize = 0

	cursor := 0
	for _, i := range order {
		block := owners[i]
		block.offset = taken[i].Offset
		if block.offset > cursor {
			m.allocateBlock(cursor, block.offset-cursor)
		}
		m.blocks = append(m.blocks, block)
		cursor = block.offset + block.size
	}

	if cursor < m.coveredSize {
		m.allocateBlock(cursor, m.coveredSize-cursor)
	}

	return nil
}

func (m *PartitionBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for _, block := range m.blocks {
		err := handleBlock(block.handle, block.offset, block.size, block.userData, block.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *PartitionBlockMetadata) Clear() {
	if m.mode == PartitionDynamic {
		for _, block := range m.blocks {
			m.freeBlock(block)
		}
		m.blocks = m.blocks[:0]
		m.allocCount = 0
		m.freeCount = 0
		m.sumFreeSize = 0
		m.requestedBytes = 0
		m.allocateBlock(0, m.coveredSize)
		return
	}

	for _, block := range m.blocks {
		if !block.free {
			block.free = true
			block.userData = nil
			block.requestedSize = 0
			m.freeCount++
			m.sumFreeSize += block.size
		}
	}
	m.allocCount = 0
	m.requestedBytes = 0
}

func (m *PartitionBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.sumFreeSize, m.allocCount, m.freeCount)
	json.Name("Mode").String(m.mode.String())
	json.Name("CoveredBytes").Int(m.coveredSize)
}

func (m *PartitionBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any)) {
	for _, block := range m.blocks {
		if !block.free {
			logFunc(logger, block.offset, block.size, block.userData)
		}
	}
}

func (m *PartitionBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return 0, err
	}

	return block.offset, nil
}

func (m *PartitionBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	block, err := m.getBlock(allocHandle)
	if err != nil {
		return nil, err
	}

	if block.free {
		return nil, errors.New("user data cannot be retrieved for a free block")
	}

	return block.userData, nil
}
