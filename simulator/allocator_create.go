package simulator

import (
	"io"
	"strings"
	"time"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or is
	// synchronized by some other mechanism.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

var allocatorCreateFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range allocatorCreateFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// PageSize is the frame size used by TechniquePaging. metadata.DefaultPageSize is used when it is 0.
	PageSize int
	// PartitionCount is the number of partitions TechniqueFixed and TechniqueUnequal divide memory into.
	// metadata.DefaultPartitionCount is used when it is 0.
	PartitionCount int
	// RandSource provides the cut points for TechniqueUnequal. A time-seeded source is used when it is nil.
	RandSource rand.Source
}

// New creates a new Allocator. No technique is active until Initialize is called. A nil logger discards
// all output.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) *Allocator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	allocator := &Allocator{
		logger:         logger,
		createFlags:    options.Flags,
		pageSize:       options.PageSize,
		partitionCount: options.PartitionCount,
		processes:      swiss.NewMap[ProcessID, *Process](16),
	}
	allocator.mutex.UseMutex = options.Flags&AllocatorCreateExternallySynchronized == 0

	if allocator.pageSize == 0 {
		allocator.pageSize = metadata.DefaultPageSize
	}

	if allocator.partitionCount == 0 {
		allocator.partitionCount = metadata.DefaultPartitionCount
	}

	source := options.RandSource
	if source == nil {
		source = rand.NewSource(uint64(time.Now().UnixNano()))
	}
	allocator.random = rand.New(source)

	return allocator
}
