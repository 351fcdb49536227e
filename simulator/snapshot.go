package simulator

import (
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

// BlockSnapshot is a read-only view of one block of a partition table or buddy tree
type BlockSnapshot struct {
	Start int
	Size  int
	Free  bool
	// ProcessID and ProcessSize are zero when the block is free
	ProcessID   ProcessID
	ProcessSize int
}

// InternalFragmentation is the space inside the block that its occupant does not use
func (b BlockSnapshot) InternalFragmentation() int {
	if b.Free {
		return 0
	}
	return b.Size - b.ProcessSize
}

// FrameSnapshot is a read-only view of one paging frame. ProcessID is zero when the frame is free.
type FrameSnapshot struct {
	Index     int
	ProcessID ProcessID
}

func (f FrameSnapshot) Free() bool {
	return f.ProcessID == 0
}

// ProcessSnapshot is a read-only view of a resident process. Start is the offset of its block, or of its
// first frame under paging. Frames is only populated under paging.
type ProcessSnapshot struct {
	ID     ProcessID
	Size   int
	Start  int
	Frames []int
}

// FragmentationTotals are the status report totals. Internal is the sum of the unused space inside occupied
// blocks and External is the sum of the sizes of free blocks.
type FragmentationTotals struct {
	Internal int
	External int
}

// Snapshot is a copy of the allocator state taken between commands. Blocks is populated for every technique
// except TechniquePaging, which populates Frames and PageSize instead. Fragmentation is only reported for the
// partitioned techniques.
type Snapshot struct {
	Technique     Technique
	TotalSize     int
	Blocks        []BlockSnapshot
	Frames        []FrameSnapshot
	PageSize      int
	Processes     []ProcessSnapshot
	Fragmentation *FragmentationTotals
	// Usage sums the space held by processes. AllocationBytes counts whole blocks or frames and
	// RequestedBytes counts process sizes.
	Usage memutils.Statistics
}

// PageTable returns the frames held by each resident process under paging
func (s *Snapshot) PageTable() map[ProcessID][]int {
	table := make(map[ProcessID][]int, len(s.Processes))
	for _, process := range s.Processes {
		if process.Frames != nil {
			table[process.ID] = process.Frames
		}
	}
	return table
}

// Snapshot copies the current state of the allocator. The returned value shares nothing with the allocator.
func (a *Allocator) Snapshot() (Snapshot, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var snapshot Snapshot
	if a.metadata == nil {
		return snapshot, memutils.ErrNotInitialized
	}

	snapshot.Technique = a.technique
	snapshot.TotalSize = a.metadata.Size()
	a.metadata.AddStatistics(&snapshot.Usage)

	paging, isPaging := a.metadata.(*metadata.PagingMetadata)
	if isPaging {
		snapshot.PageSize = paging.PageSize()
		snapshot.Frames = make([]FrameSnapshot, 0, paging.FrameCount())
	}

	err := a.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		var id ProcessID
		var processSize int
		if process, ok := userData.(*Process); ok && !free {
			id = process.id
			processSize = process.size
		}

		if isPaging {
			snapshot.Frames = append(snapshot.Frames, FrameSnapshot{Index: offset / snapshot.PageSize, ProcessID: id})
			return nil
		}

		snapshot.Blocks = append(snapshot.Blocks, BlockSnapshot{
			Start:       offset,
			Size:        size,
			Free:        free,
			ProcessID:   id,
			ProcessSize: processSize,
		})
		return nil
	})
	if err != nil {
		return snapshot, err
	}

	for _, process := range a.sortedProcesses() {
		processSnapshot := ProcessSnapshot{ID: process.id, Size: process.size}

		processSnapshot.Start, err = a.metadata.AllocationOffset(process.handle)
		if err != nil {
			return snapshot, err
		}

		if isPaging {
			processSnapshot.Frames, err = paging.Frames(process.handle)
			if err != nil {
				return snapshot, err
			}
		}

		snapshot.Processes = append(snapshot.Processes, processSnapshot)
	}

	if a.technique.IsPartitioned() {
		var stats memutils.DetailedStatistics
		stats.Clear()
		a.metadata.AddDetailedStatistics(&stats)

		snapshot.Fragmentation = &FragmentationTotals{
			Internal: stats.InternalFragmentation(),
			External: stats.ExternalFragmentation(),
		}
	}

	return snapshot, nil
}
