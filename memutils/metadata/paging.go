package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// DefaultPageSize is the frame size PagingMetadata uses when none is provided
const DefaultPageSize = 100

type pagingAllocation struct {
	handle        BlockAllocationHandle
	frames        []int
	requestedSize int
	userData      any
}

// PagingMetadata is a BlockMetadata implementation that divides memory into fixed-size frames. An
// allocation claims enough free frames to hold it, lowest index first, without requiring them to be
// contiguous. Any remainder of the size passed to Init that does not fill a whole frame is not used.
type PagingMetadata struct {
	BlockMetadataBase

	pageSize   int
	frames     []BlockAllocationHandle
	freeFrames int

	nextAllocationHandle BlockAllocationHandle
	handleKey            *swiss.Map[BlockAllocationHandle, *pagingAllocation]
}

var _ BlockMetadata = &PagingMetadata{}

func NewPagingMetadata(pageSize int) *PagingMetadata {
	return &PagingMetadata{
		pageSize: pageSize,
	}
}

func (m *PagingMetadata) getAllocation(handle BlockAllocationHandle) (*pagingAllocation, error) {
	alloc, ok := m.handleKey.Get(handle)
	if !ok {
		return nil, errors.New("received a handle that was incompatible with this metadata")
	}
	return alloc, nil
}

func (m *PagingMetadata) Init(size int) error {
	if m.pageSize < 1 {
		return errors.Wrapf(memutils.ErrConfiguration, "page size is %d", m.pageSize)
	}

	frameCount := size / m.pageSize
	if frameCount < 1 {
		return errors.Wrapf(memutils.ErrConfiguration, "%d units cannot hold a single frame of size %d", size, m.pageSize)
	}

	m.BlockMetadataBase.Init(size)
	m.frames = make([]BlockAllocationHandle, frameCount)
	for i := range m.frames {
		m.frames[i] = NoAllocation
	}
	m.freeFrames = frameCount
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *pagingAllocation](42)

	return nil
}

func (m *PagingMetadata) PageSize() int {
	return m.pageSize
}

func (m *PagingMetadata) FrameCount() int {
	return len(m.frames)
}

// Frames returns the frame indices held by a live allocation, in ascending order
func (m *PagingMetadata) Frames(allocHandle BlockAllocationHandle) ([]int, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}

	return slices.Clone(alloc.frames), nil
}

// FrameOwner returns the handle of the allocation occupying the frame at index, or NoAllocation if the
// frame is free
func (m *PagingMetadata) FrameOwner(index int) (BlockAllocationHandle, error) {
	if index < 0 || index >= len(m.frames) {
		return NoAllocation, errors.Errorf("frame index %d is outside of the frame table of size %d", index, len(m.frames))
	}

	return m.frames[index], nil
}

func (m *PagingMetadata) SupportsRandomAccess() bool {
	return false
}

func (m *PagingMetadata) Validate() error {
	freeFrames := 0
	for index, owner := range m.frames {
		if owner == NoAllocation {
			freeFrames++
			continue
		}

		alloc, ok := m.handleKey.Get(owner)
		if !ok {
			return errors.Errorf("frame %d is claimed by an allocation that no longer exists", index)
		}
		if !slices.Contains(alloc.frames, index) {
			return errors.Errorf("frame %d is claimed by an allocation that does not list it", index)
		}
	}

	if freeFrames != m.freeFrames {
		return errors.Errorf("the free frame count of the metadata is %d, but there were %d free frames", m.freeFrames, freeFrames)
	}

	claimed := 0
	var err error
	m.handleKey.Iter(func(handle BlockAllocationHandle, alloc *pagingAllocation) bool {
		if alloc.handle != handle {
			err = errors.Errorf("allocation %d is tracked under handle %d", alloc.handle, handle)
			return true
		}
		if alloc.userData == nil {
			err = errors.Errorf("allocation %d has no occupant", handle)
			return true
		}
		if len(alloc.frames) != memutils.CeilDiv(alloc.requestedSize, m.pageSize) {
			err = errors.Errorf("allocation %d of size %d holds %d frames", handle, alloc.requestedSize, len(alloc.frames))
			return true
		}

		for _, frame := range alloc.frames {
			if frame < 0 || frame >= len(m.frames) || m.frames[frame] != handle {
				err = errors.Errorf("allocation %d lists frame %d, which it does not occupy", handle, frame)
				return true
			}
		}

		claimed += len(alloc.frames)
		return false
	})
	if err != nil {
		return err
	}

	if claimed+m.freeFrames != len(m.frames) {
		return errors.Errorf("allocations claim %d frames and %d are free, but the frame table has %d frames", claimed, m.freeFrames, len(m.frames))
	}

	return nil
}

func (m *PagingMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += len(m.frames) * m.pageSize

	for _, owner := range m.frames {
		if owner == NoAllocation {
			stats.AddUnusedRange(m.pageSize)
		}
	}

	m.handleKey.Iter(func(handle BlockAllocationHandle, alloc *pagingAllocation) bool {
		stats.AddAllocation(len(alloc.frames)*m.pageSize, alloc.requestedSize)
		return false
	})
}

func (m *PagingMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.handleKey.Count()
	stats.BlockBytes += len(m.frames) * m.pageSize
	stats.AllocationBytes += (len(m.frames) - m.freeFrames) * m.pageSize

	m.handleKey.Iter(func(handle BlockAllocationHandle, alloc *pagingAllocation) bool {
		stats.RequestedBytes += alloc.requestedSize
		return false
	})
}

func (m *PagingMetadata) AllocationCount() int {
	return m.handleKey.Count()
}

func (m *PagingMetadata) FreeRegionsCount() int {
	return m.freeFrames
}

func (m *PagingMetadata) SumFreeSize() int {
	return m.freeFrames * m.pageSize
}

func (m *PagingMetadata) IsEmpty() bool {
	return m.handleKey.Count() == 0
}

// CreateAllocationRequest succeeds when at least ceil(allocSize / page size) frames are free. The
// strategy is ignored.
func (m *PagingMetadata) CreateAllocationRequest(allocSize int, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	var allocRequest AllocationRequest

	if allocSize < 1 {
		return false, allocRequest, errors.Wrapf(memutils.ErrInvalidSize, "invalid allocSize: %d", allocSize)
	}

	memutils.DebugValidate(m)

	if allocSize > m.SumFreeSize() {
		return false, allocRequest, nil
	}

	pagesNeeded := memutils.CeilDiv(allocSize, m.pageSize)
	if pagesNeeded > m.freeFrames {
		return false, allocRequest, nil
	}

	allocRequest.Type = AllocationRequestPaging
	allocRequest.BlockAllocationHandle = m.nextAllocationHandle + 1
	allocRequest.Size = pagesNeeded * m.pageSize
	allocRequest.RequestedSize = allocSize
	allocRequest.AlgorithmData = uint64(pagesNeeded)

	return true, allocRequest, nil
}

func (m *PagingMetadata) Alloc(req AllocationRequest, userData any) error {
	if req.Type != AllocationRequestPaging {
		return errors.New("allocation request was received by an incompatible metadata")
	}
	if req.BlockAllocationHandle != m.nextAllocationHandle+1 {
		return errors.New("allocation request is stale: another allocation was committed after it was created")
	}

	pagesNeeded := int(req.AlgorithmData)
	if req.RequestedSize < 1 || pagesNeeded < 1 {
		return errors.Errorf("allocation request has an invalid size %d", req.RequestedSize)
	}
	if pagesNeeded != memutils.CeilDiv(req.RequestedSize, m.pageSize) {
		return errors.New("allocation request frame count does not match its requested size")
	}
	if pagesNeeded > m.freeFrames {
		return errors.Errorf("allocation request needs %d frames but only %d are free", pagesNeeded, m.freeFrames)
	}

	m.nextAllocationHandle++
	alloc := &pagingAllocation{
		handle:        m.nextAllocationHandle,
		frames:        make([]int, 0, pagesNeeded),
		requestedSize: req.RequestedSize,
		userData:      userData,
	}

	for index := 0; index < len(m.frames) && len(alloc.frames) < pagesNeeded; index++ {
		if m.frames[index] == NoAllocation {
			m.frames[index] = alloc.handle
			alloc.frames = append(alloc.frames, index)
		}
	}

	m.freeFrames -= pagesNeeded
	m.handleKey.Put(alloc.handle, alloc)

	return nil
}

func (m *PagingMetadata) Free(allocHandle BlockAllocationHandle) error {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}

	for _, frame := range alloc.frames {
		m.frames[frame] = NoAllocation
	}
	m.freeFrames += len(alloc.frames)
	m.handleKey.Delete(allocHandle)

	return nil
}

// VisitAllRegions reports each frame as its own region, in frame index order
func (m *PagingMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for index, owner := range m.frames {
		var userData any
		if owner != NoAllocation {
			alloc, err := m.getAllocation(owner)
			if err != nil {
				return err
			}
			userData = alloc.userData
		}

		err := handleBlock(owner, index*m.pageSize, m.pageSize, userData, owner == NoAllocation)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *PagingMetadata) Clear() {
	for i := range m.frames {
		m.frames[i] = NoAllocation
	}
	m.freeFrames = len(m.frames)
	m.handleKey = swiss.NewMap[BlockAllocationHandle, *pagingAllocation](42)
}

func (m *PagingMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.AllocationCount(), m.freeFrames)
	json.Name("PageSize").Int(m.pageSize)
	json.Name("FrameCount").Int(len(m.frames))
}

func (m *PagingMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int, userData any)) {
	for index, owner := range m.frames {
		if owner == NoAllocation {
			continue
		}

		alloc, ok := m.handleKey.Get(owner)
		if ok {
			logFunc(logger, index*m.pageSize, m.pageSize, alloc.userData)
		}
	}
}

// AllocationOffset returns the offset of the first frame held by the allocation
func (m *PagingMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}

	return alloc.frames[0] * m.pageSize, nil
}

func (m *PagingMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	alloc, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}

	return alloc.userData, nil
}
