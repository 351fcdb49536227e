package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func TestParseAllocationStrategy(t *testing.T) {
	testCases := map[string]metadata.AllocationStrategy{
		"FirstFit":  metadata.AllocationStrategyFirstFit,
		"first fit": metadata.AllocationStrategyFirstFit,
		"best-fit":  metadata.AllocationStrategyBestFit,
		"WORST_FIT": metadata.AllocationStrategyWorstFit,
	}

	for name, expected := range testCases {
		t.Run(name, func(t *testing.T) {
			strategy, err := metadata.ParseAllocationStrategy(name)
			require.NoError(t, err)
			require.Equal(t, expected, strategy)
		})
	}

	_, err := metadata.ParseAllocationStrategy("next fit")
	require.ErrorIs(t, err, memutils.ErrConfiguration)
}

func TestAllocationStrategyString(t *testing.T) {
	require.Equal(t, "FirstFit", metadata.AllocationStrategy(0).String())
	require.Equal(t, "BestFit", metadata.AllocationStrategyBestFit.String())
	require.Equal(t, "WorstFit", metadata.AllocationStrategyWorstFit.String())
}
