package simulator_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/defrag"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"github.com/vkngwrapper/memsim/simulator"
)

func buildHoles(t *testing.T) *simulator.Allocator {
	allocator := newAllocator(t, simulator.TechniqueDynamic, 1000)

	for _, size := range []int{300, 100, 150, 50} {
		mustAllocate(t, allocator, size, metadata.AllocationStrategyFirstFit)
	}

	require.NoError(t, allocator.Deallocate(1))
	require.NoError(t, allocator.Deallocate(3))
	require.NoError(t, allocator.Validate())

	return allocator
}

func TestCompactSlidesProcesses(t *testing.T) {
	allocator := buildHoles(t)

	result, err := allocator.Compact(simulator.CompactionInfo{})
	require.NoError(t, err)
	require.NoError(t, allocator.Validate())

	require.True(t, result.Compacted)
	require.Equal(t, 2, result.Stats.AllocationsMoved)
	require.Equal(t, 150, result.Stats.BytesMoved)
	require.Equal(t, 1, result.Stats.Passes)

	snapshot := mustSnapshot(t, allocator)
	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 100, ProcessID: 2, ProcessSize: 100},
		{Start: 100, Size: 50, ProcessID: 4, ProcessSize: 50},
		{Start: 150, Size: 850, Free: true},
	}, snapshot.Blocks)
	require.Equal(t, &simulator.FragmentationTotals{Internal: 0, External: 850}, snapshot.Fragmentation)
	require.Equal(t, []simulator.ProcessSnapshot{
		{ID: 2, Size: 100, Start: 0},
		{ID: 4, Size: 50, Start: 100},
	}, snapshot.Processes)

	// Deallocation still works against the relocated blocks
	require.NoError(t, allocator.Deallocate(2))
	require.NoError(t, allocator.Validate())
	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 100, Free: true},
		{Start: 100, Size: 50, ProcessID: 4, ProcessSize: 50},
		{Start: 150, Size: 850, Free: true},
	}, mustSnapshot(t, allocator).Blocks)
}

func TestCompactBudget(t *testing.T) {
	allocator := buildHoles(t)

	result, err := allocator.Compact(simulator.CompactionInfo{MaxAllocationsPerPass: 1})
	require.NoError(t, err)
	require.NoError(t, allocator.Validate())

	require.True(t, result.Compacted)
	require.Equal(t, 2, result.Stats.AllocationsMoved)
	require.Equal(t, 2, result.Stats.Passes)

	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 100, ProcessID: 2, ProcessSize: 100},
		{Start: 100, Size: 50, ProcessID: 4, ProcessSize: 50},
		{Start: 150, Size: 850, Free: true},
	}, mustSnapshot(t, allocator).Blocks)
}

func TestCompactNothingToDo(t *testing.T) {
	allocator := newAllocator(t, simulator.TechniqueDynamic, 1000)

	result, err := allocator.Compact(simulator.CompactionInfo{})
	require.NoError(t, err)
	require.False(t, result.Compacted)

	mustAllocate(t, allocator, 1000, metadata.AllocationStrategyFirstFit)
	result, err = allocator.Compact(simulator.CompactionInfo{})
	require.NoError(t, err)
	require.False(t, result.Compacted)

	require.NoError(t, allocator.Deallocate(1))
	result, err = allocator.Compact(simulator.CompactionInfo{})
	require.NoError(t, err)
	require.False(t, result.Compacted)
}

func TestCompactPackedMemory(t *testing.T) {
	allocator := newAllocator(t, simulator.TechniqueDynamic, 1000)
	mustAllocate(t, allocator, 400, metadata.AllocationStrategyFirstFit)
	before := mustSnapshot(t, allocator)

	result, err := allocator.Compact(simulator.CompactionInfo{})
	require.NoError(t, err)
	require.True(t, result.Compacted)
	require.Equal(t, defrag.DefragmentationStats{}, result.Stats)
	require.Equal(t, before, mustSnapshot(t, allocator))
	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 400, ProcessID: 1, ProcessSize: 400},
		{Start: 400, Size: 600, Free: true},
	}, before.Blocks)
}

func TestCompactUnsupported(t *testing.T) {
	for _, technique := range []simulator.Technique{simulator.TechniqueFixed, simulator.TechniqueUnequal, simulator.TechniqueBuddy, simulator.TechniquePaging} {
		t.Run(technique.String(), func(t *testing.T) {
			allocator := newAllocator(t, technique, 1024)
			mustAllocate(t, allocator, 10, metadata.AllocationStrategyFirstFit)

			before := mustSnapshot(t, allocator)
			_, err := allocator.Compact(simulator.CompactionInfo{})
			require.ErrorIs(t, err, memutils.ErrUnsupported)
			require.Equal(t, before, mustSnapshot(t, allocator))
		})
	}
}
