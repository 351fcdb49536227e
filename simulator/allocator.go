package simulator

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/internal/utils"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Allocator is the allocation engine. It runs exactly one technique at a time over a single simulated
// address space and keeps the registry of resident processes. Every command is serialized behind a mutex
// unless AllocatorCreateExternallySynchronized was passed to New.
type Allocator struct {
	mutex  utils.OptionalRWMutex
	logger *slog.Logger

	createFlags    CreateFlags
	pageSize       int
	partitionCount int
	random         *rand.Rand

	technique     Technique
	metadata      metadata.BlockMetadata
	nextProcessID ProcessID
	processes     *swiss.Map[ProcessID, *Process]
}

func (a *Allocator) createMetadata(technique Technique) (metadata.BlockMetadata, error) {
	switch technique {
	case TechniqueFixed:
		return metadata.NewFixedPartitionMetadata(a.partitionCount), nil
	case TechniqueUnequal:
		return metadata.NewUnequalPartitionMetadata(a.partitionCount, a.random), nil
	case TechniqueDynamic:
		return metadata.NewDynamicPartitionMetadata(), nil
	case TechniqueBuddy:
		return metadata.NewBuddyBlockMetadata(), nil
	case TechniquePaging:
		return metadata.NewPagingMetadata(a.pageSize), nil
	}

	return nil, errors.Wrapf(memutils.ErrConfiguration, "unknown technique %d", technique)
}

// Technique returns the active technique, or 0 if Initialize has not succeeded yet
func (a *Allocator) Technique() Technique {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.technique
}

// Initialize discards every process and block and starts technique over an address space of totalSize
// units. If the technique cannot represent that address space, an error wrapping memutils.ErrConfiguration
// is returned and the previous state is kept.
func (a *Allocator) Initialize(technique Technique, totalSize int) error {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Initialize",
		slog.String("Technique", technique.String()),
		slog.Int("TotalSize", totalSize))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	md, err := a.createMetadata(technique)
	if err != nil {
		return err
	}

	err = md.Init(totalSize)
	if err != nil {
		return errors.Wrapf(err, "failed to initialize %s memory", technique)
	}

	a.technique = technique
	a.metadata = md
	a.nextProcessID = 0
	a.processes = swiss.NewMap[ProcessID, *Process](16)

	return nil
}

// Allocate places a new process of size units using strategy and returns its id. strategy is ignored by
// TechniqueBuddy and TechniquePaging. If no region can hold the process, an error wrapping
// memutils.ErrAllocationFailure is returned and nothing changes: no process id is consumed.
func (a *Allocator) Allocate(size int, strategy metadata.AllocationStrategy) (ProcessID, error) {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Allocate",
		slog.Int("Size", size),
		slog.String("Strategy", strategy.String()))

	err := memutils.CheckPositive(size, "process size")
	if err != nil {
		return 0, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.metadata == nil {
		return 0, memutils.ErrNotInitialized
	}

	success, allocRequest, err := a.metadata.CreateAllocationRequest(size, strategy)
	if err != nil {
		return 0, err
	} else if !success {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Allocation failed",
			slog.Int("Size", size),
			slog.Int("SumFreeSize", a.metadata.SumFreeSize()))
		return 0, errors.Wrapf(memutils.ErrAllocationFailure, "%s memory cannot hold a process of size %d", a.technique, size)
	}

	process := &Process{
		id:     a.nextProcessID + 1,
		size:   size,
		handle: allocRequest.BlockAllocationHandle,
	}

	err = a.metadata.Alloc(allocRequest, process)
	if err != nil {
		return 0, errors.Wrap(err, "failed to commit allocation request")
	}
	memutils.DebugValidate(a.metadata)

	a.nextProcessID = process.id
	a.processes.Put(process.id, process)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Allocated process",
		slog.Int("ProcessID", int(process.id)),
		slog.Int("BlockSize", allocRequest.Size))

	return process.id, nil
}

// Deallocate frees every block or frame held by the process and removes it from the registry. An error
// wrapping memutils.ErrNotFound is returned if the process is not resident.
func (a *Allocator) Deallocate(id ProcessID) error {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Deallocate", slog.Int("ProcessID", int(id)))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.metadata == nil {
		return memutils.ErrNotInitialized
	}

	process, ok := a.processes.Get(id)
	if !ok {
		return errors.Wrapf(memutils.ErrNotFound, "process %d", id)
	}

	err := a.metadata.Free(process.handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when freeing process %d with handle %+v in metadata: %+v", id, process.handle, err))
	}
	memutils.DebugValidate(a.metadata)

	a.processes.Delete(id)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Freed process",
		slog.Int("ProcessID", int(id)),
		slog.Int("FreeRegions", a.metadata.FreeRegionsCount()))

	return nil
}

// Reset frees every resident process but keeps the active technique and its layout, so unequal partitions
// keep their sizes. Process ids keep counting from where they were.
func (a *Allocator) Reset() error {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Reset",
		slog.String("Technique", a.Technique().String()))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.metadata == nil {
		return memutils.ErrNotInitialized
	}

	freed := a.processes.Count()
	a.metadata.Clear()
	memutils.DebugValidate(a.metadata)
	a.processes = swiss.NewMap[ProcessID, *Process](16)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Freed all processes",
		slog.Int("Freed", freed),
		slog.Int("FreeRegions", a.metadata.FreeRegionsCount()))

	return nil
}

// Process retrieves a resident process by id
func (a *Allocator) Process(id ProcessID) (*Process, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.processes.Get(id)
}

// ProcessCount returns the number of resident processes
func (a *Allocator) ProcessCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.processes.Count()
}

func (a *Allocator) sortedProcesses() []*Process {
	processes := make([]*Process, 0, a.processes.Count())
	a.processes.Iter(func(id ProcessID, process *Process) bool {
		processes = append(processes, process)
		return false
	})

	slices.SortFunc(processes, func(left, right *Process) int {
		return int(left.id - right.id)
	})

	return processes
}

// Validate checks the active back end's invariants and that every resident process is the occupant of the
// allocation it was registered with
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return memutils.ErrNotInitialized
	}

	err := a.validate()
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "Allocator::Validate failed",
			slog.String("Technique", a.technique.String()),
			slog.String("Error", err.Error()))
	}

	return err
}

func (a *Allocator) validate() error {
	err := a.metadata.Validate()
	if err != nil {
		return err
	}

	if a.metadata.AllocationCount() != a.processes.Count() {
		return errors.Newf("the %s metadata has %d allocations but %d processes are resident", a.technique, a.metadata.AllocationCount(), a.processes.Count())
	}

	a.processes.Iter(func(id ProcessID, process *Process) bool {
		if process.id != id || id < 1 || id > a.nextProcessID {
			err = errors.Newf("process %d is registered under id %d", process.id, id)
			return true
		}

		var userData any
		userData, err = a.metadata.AllocationUserData(process.handle)
		if err != nil {
			err = errors.Wrapf(err, "process %d", id)
			return true
		}

		if userData != process {
			err = errors.Newf("process %d does not occupy the allocation it was registered with", id)
			return true
		}

		return false
	})

	return err
}

// CalculateStatistics sums the active back end's statistics, including internal fragmentation
// (Statistics.InternalFragmentation) and external fragmentation (DetailedStatistics.ExternalFragmentation)
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return memutils.ErrNotInitialized
	}

	stats.Clear()
	a.metadata.AddDetailedStatistics(stats)
	return nil
}

// DebugLogAllAllocations writes every resident process to the logger at Debug
func (a *Allocator) DebugLogAllAllocations() {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return
	}

	a.metadata.DebugLogAllAllocations(a.logger, func(log *slog.Logger, offset int, size int, userData any) {
		process, ok := userData.(*Process)
		if !ok {
			return
		}

		log.LogAttrs(context.Background(), slog.LevelDebug, "    Resident process",
			slog.Int("ProcessID", int(process.id)),
			slog.Int("ProcessSize", process.size),
			slog.Int("Offset", offset),
			slog.Int("Size", size))
	})
}

// PrintDetailedMap writes the active technique, the back end's block data, every region and every resident
// process to writer as a json object
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return memutils.ErrNotInitialized
	}

	objState := writer.Object()
	defer objState.End()

	objState.Name("Technique").String(a.technique.String())

	blockObj := objState.Name("Block").Object()
	a.metadata.BlockJsonData(&blockObj)
	a.printDetailedMapRegions(&blockObj)
	blockObj.End()

	processArray := objState.Name("Processes").Array()
	for _, process := range a.sortedProcesses() {
		processObj := processArray.Object()
		process.printParameters(&processObj)
		processObj.End()
	}
	processArray.End()

	return nil
}

func (a *Allocator) printDetailedMapRegions(json *jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	_ = a.metadata.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			obj.Name("Size").Int(size)

			if free {
				obj.Name("Type").String("Free")
				return nil
			}

			obj.Name("Type").String("Process")
			process, isProcess := userData.(*Process)
			if isProcess && process != nil {
				process.printParameters(&obj)
			} else if userData != nil {
				obj.Name("CustomData").String(fmt.Sprintf("%+v", userData))
			}

			return nil
		})
}
