package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func TestBuddyRequiresPowerOfTwo(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.ErrorIs(t, buddy.Init(1000), memutils.ErrConfiguration)
	require.ErrorIs(t, buddy.Init(0), memutils.ErrConfiguration)
	require.NoError(t, buddy.Init(1024))
	require.NoError(t, buddy.Validate())

	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, collectRegions(t, buddy))
}

func TestBuddySplit(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	success, req, err := buddy.CreateAllocationRequest(100, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 128, req.Size)

	require.NoError(t, buddy.Alloc(req, "P1"))
	require.NoError(t, buddy.Validate())

	require.Equal(t, []region{
		{Offset: 0, Size: 128, UserData: "P1"},
		{Offset: 512, Size: 512, Free: true},
		{Offset: 256, Size: 256, Free: true},
		{Offset: 128, Size: 128, Free: true},
	}, collectRegions(t, buddy))

	require.Equal(t, 3, buddy.FreeRegionsCount())
	require.Equal(t, 896, buddy.SumFreeSize())

	var stats memutils.Statistics
	buddy.AddStatistics(&stats)
	require.Equal(t, 28, stats.InternalFragmentation())

	require.NoError(t, buddy.Free(req.BlockAllocationHandle))
	require.NoError(t, buddy.Validate())
	require.True(t, buddy.IsEmpty())
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, collectRegions(t, buddy))
}

func TestBuddySmallestBlockWins(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	allocate(t, buddy, 100, metadata.AllocationStrategyWorstFit, "P1")

	// The 128 unit buddy of P1 is the tightest fit, regardless of strategy
	handle := allocate(t, buddy, 100, metadata.AllocationStrategyWorstFit, "P2")
	offset, err := buddy.AllocationOffset(handle)
	require.NoError(t, err)
	require.Equal(t, 128, offset)

	handle = allocate(t, buddy, 300, metadata.AllocationStrategyFirstFit, "P3")
	offset, err = buddy.AllocationOffset(handle)
	require.NoError(t, err)
	require.Equal(t, 512, offset)
}

func TestBuddyPartialCoalesce(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	a := allocate(t, buddy, 100, metadata.AllocationStrategyFirstFit, "A")
	b := allocate(t, buddy, 100, metadata.AllocationStrategyFirstFit, "B")
	allocate(t, buddy, 300, metadata.AllocationStrategyFirstFit, "D")

	require.NoError(t, buddy.Free(a))
	require.NoError(t, buddy.Validate())
	require.Equal(t, 2, buddy.FreeRegionsCount())

	require.NoError(t, buddy.Free(b))
	require.NoError(t, buddy.Validate())

	require.Equal(t, []region{
		{Offset: 0, Size: 512, Free: true},
		{Offset: 512, Size: 512, UserData: "D"},
	}, collectRegions(t, buddy))
}

func TestBuddyUpperHalfCoalesce(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(256))

	low := allocate(t, buddy, 128, metadata.AllocationStrategyFirstFit, "Low")
	high := allocate(t, buddy, 30, metadata.AllocationStrategyFirstFit, "High")

	offset, err := buddy.AllocationOffset(high)
	require.NoError(t, err)
	require.Equal(t, 128, offset)

	require.NoError(t, buddy.Free(high))
	require.NoError(t, buddy.Validate())
	require.Equal(t, []region{
		{Offset: 0, Size: 128, UserData: "Low"},
		{Offset: 128, Size: 128, Free: true},
	}, collectRegions(t, buddy))

	require.NoError(t, buddy.Free(low))
	require.NoError(t, buddy.Validate())
	require.Equal(t, []region{{Offset: 0, Size: 256, Free: true}}, collectRegions(t, buddy))
}

func TestBuddyExactAndTooLarge(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	success, _, err := buddy.CreateAllocationRequest(1025, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.False(t, success)

	handle := allocate(t, buddy, 1024, metadata.AllocationStrategyFirstFit, "P1")
	require.Equal(t, []region{{Offset: 0, Size: 1024, UserData: "P1"}}, collectRegions(t, buddy))

	success, _, err = buddy.CreateAllocationRequest(1, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.False(t, success)

	require.NoError(t, buddy.Free(handle))
	require.Error(t, buddy.Free(handle))
}

func TestBuddyFragmentedFailure(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	allocate(t, buddy, 100, metadata.AllocationStrategyFirstFit, "P1")
	before := collectRegions(t, buddy)

	// 896 units are free but the largest free block is 512
	success, _, err := buddy.CreateAllocationRequest(600, metadata.AllocationStrategyFirstFit)
	require.NoError(t, err)
	require.False(t, success)
	require.Equal(t, before, collectRegions(t, buddy))
}

func TestBuddyManyAllocations(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	var handles []metadata.BlockAllocationHandle
	for i := 0; i < 16; i++ {
		handles = append(handles, allocate(t, buddy, 64, metadata.AllocationStrategyFirstFit, i+1))
	}
	require.Equal(t, 0, buddy.SumFreeSize())

	// Free every other block, then the rest, checking that no two free buddies survive
	for i := 0; i < len(handles); i += 2 {
		require.NoError(t, buddy.Free(handles[i]))
		require.NoError(t, buddy.Validate())
	}
	require.Equal(t, 8, buddy.FreeRegionsCount())

	for i := 1; i < len(handles); i += 2 {
		require.NoError(t, buddy.Free(handles[i]))
		require.NoError(t, buddy.Validate())
	}
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, collectRegions(t, buddy))
}

func TestBuddyClear(t *testing.T) {
	buddy := metadata.NewBuddyBlockMetadata()
	require.NoError(t, buddy.Init(1024))

	allocate(t, buddy, 100, metadata.AllocationStrategyFirstFit, "P1")
	allocate(t, buddy, 300, metadata.AllocationStrategyFirstFit, "P2")

	buddy.Clear()
	require.NoError(t, buddy.Validate())
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, collectRegions(t, buddy))
}
