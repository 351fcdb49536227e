package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
)

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)
	require.Equal(t, math.MaxInt, stats.UnusedRangeSizeMin)

	stats.BlockCount = 1
	stats.BlockBytes = 1000
	stats.AddAllocation(100, 50)
	stats.AddAllocation(300, 300)
	stats.AddUnusedRange(400)
	stats.AddUnusedRange(200)

	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 400, stats.AllocationBytes)
	require.Equal(t, 100, stats.AllocationSizeMin)
	require.Equal(t, 300, stats.AllocationSizeMax)
	require.Equal(t, 2, stats.UnusedRangeCount)
	require.Equal(t, 200, stats.UnusedRangeSizeMin)
	require.Equal(t, 400, stats.UnusedRangeSizeMax)

	require.Equal(t, 50, stats.InternalFragmentation())
	require.Equal(t, 600, stats.ExternalFragmentation())
}

func TestAddDetailedStatistics(t *testing.T) {
	var left, right memutils.DetailedStatistics
	left.Clear()
	right.Clear()

	left.AddAllocation(128, 100)
	left.AddUnusedRange(128)
	right.AddAllocation(64, 64)
	right.AddUnusedRange(512)

	left.AddDetailedStatistics(&right)

	require.Equal(t, 2, left.AllocationCount)
	require.Equal(t, 192, left.AllocationBytes)
	require.Equal(t, 164, left.RequestedBytes)
	require.Equal(t, 64, left.AllocationSizeMin)
	require.Equal(t, 128, left.AllocationSizeMax)
	require.Equal(t, 128, left.UnusedRangeSizeMin)
	require.Equal(t, 512, left.UnusedRangeSizeMax)
	require.Equal(t, 28, left.InternalFragmentation())
	require.Equal(t, 640, left.ExternalFragmentation())

	left.Clear()
	require.Zero(t, left.AllocationCount)
	require.Zero(t, left.ExternalFragmentation())
}
