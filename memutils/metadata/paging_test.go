package metadata_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func TestPagingInit(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1050))
	require.NoError(t, paging.Validate())

	require.Equal(t, 100, paging.PageSize())
	require.Equal(t, 10, paging.FrameCount())
	require.Equal(t, 1000, paging.SumFreeSize())
	require.Equal(t, 10, paging.FreeRegionsCount())

	require.ErrorIs(t, paging.Init(50), memutils.ErrConfiguration)
	require.ErrorIs(t, metadata.NewPagingMetadata(0).Init(1000), memutils.ErrConfiguration)
}

func TestPagingAllocate(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	success, req, err := paging.CreateAllocationRequest(250, metadata.AllocationStrategyBestFit)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 300, req.Size)

	require.NoError(t, paging.Alloc(req, "P1"))
	require.NoError(t, paging.Validate())

	frames, err := paging.Frames(req.BlockAllocationHandle)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, frames)

	for i := 0; i < paging.FrameCount(); i++ {
		owner, err := paging.FrameOwner(i)
		require.NoError(t, err)
		if i < 3 {
			require.Equal(t, req.BlockAllocationHandle, owner)
		} else {
			require.Equal(t, metadata.NoAllocation, owner)
		}
	}

	_, err = paging.FrameOwner(10)
	require.Error(t, err)

	var stats memutils.DetailedStatistics
	stats.Clear()
	paging.AddDetailedStatistics(&stats)
	require.Equal(t, 300, stats.AllocationBytes)
	require.Equal(t, 50, stats.InternalFragmentation())
	require.Equal(t, 7, stats.UnusedRangeCount)
}

func TestPagingReusesFreedFrames(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	p1 := allocate(t, paging, 250, metadata.AllocationStrategyFirstFit, "P1")
	require.NoError(t, paging.Free(p1))
	require.NoError(t, paging.Validate())

	_, err := paging.Frames(p1)
	require.Error(t, err)

	p2 := allocate(t, paging, 300, metadata.AllocationStrategyFirstFit, "P2")
	frames, err := paging.Frames(p2)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, frames)
}

func TestPagingNonContiguous(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	allocate(t, paging, 100, metadata.AllocationStrategyFirstFit, "A")
	b := allocate(t, paging, 100, metadata.AllocationStrategyFirstFit, "B")
	allocate(t, paging, 100, metadata.AllocationStrategyFirstFit, "C")
	require.NoError(t, paging.Free(b))

	d := allocate(t, paging, 250, metadata.AllocationStrategyFirstFit, "D")
	frames, err := paging.Frames(d)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 4}, frames)

	offset, err := paging.AllocationOffset(d)
	require.NoError(t, err)
	require.Equal(t, 100, offset)

	userData, err := paging.AllocationUserData(d)
	require.NoError(t, err)
	require.Equal(t, "D", userData)
}

func TestPagingAllOrNothing(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	success, _, err := paging.CreateAllocationRequest(1001, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.False(t, success)

	allocate(t, paging, 900, metadata.AllocationStrategyFirstFit, "P1")
	before := collectRegions(t, paging)

	success, _, err = paging.CreateAllocationRequest(200, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.False(t, success)
	require.Equal(t, before, collectRegions(t, paging))
	require.Equal(t, 1, paging.FreeRegionsCount())

	_, _, err = paging.CreateAllocationRequest(-5, metadata.AllocationStrategyFirstFit)
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
}

func TestPagingStaleRequest(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	success, first, err := paging.CreateAllocationRequest(100, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.True(t, success)

	success, second, err := paging.CreateAllocationRequest(100, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.True(t, success)

	require.NoError(t, paging.Alloc(first, "P1"))
	require.Error(t, paging.Alloc(second, "P2"))
	require.NoError(t, paging.Validate())
	require.Equal(t, 1, paging.AllocationCount())
}

func TestPagingClear(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	allocate(t, paging, 450, metadata.AllocationStrategyFirstFit, "P1")
	paging.Clear()

	require.NoError(t, paging.Validate())
	require.True(t, paging.IsEmpty())
	require.Equal(t, 10, paging.FreeRegionsCount())
}

func TestPagingHugeRequest(t *testing.T) {
	paging := metadata.NewPagingMetadata(metadata.DefaultPageSize)
	require.NoError(t, paging.Init(1000))

	for _, size := range []int{1001, math.MaxInt - 1, math.MaxInt} {
		success, _, err := paging.CreateAllocationRequest(size, metadata.AllocationStrategyFirstFit)
		require.NoError(t, err)
		require.False(t, success, "%d", size)
	}

	require.NoError(t, paging.Validate())
	require.Equal(t, 10, paging.FreeRegionsCount())

	success, request, err := paging.CreateAllocationRequest(1000, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 1000, request.Size)
}
