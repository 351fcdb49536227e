package metadata

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/memsim/memutils"
)

// AllocationStrategy chooses which free region a new allocation is placed into when more than one region is
// large enough. If none is chosen, first fit is used. Ties are always resolved in favor of the region
// encountered first in table order.
type AllocationStrategy uint32

const (
	// AllocationStrategyFirstFit selects the first sufficiently large free region in table order
	AllocationStrategyFirstFit AllocationStrategy = iota + 1
	// AllocationStrategyBestFit selects the smallest sufficiently large free region, minimizing the space left over
	AllocationStrategyBestFit
	// AllocationStrategyWorstFit selects the largest free region, leaving the largest possible remainder
	AllocationStrategyWorstFit
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyFirstFit: "FirstFit",
	AllocationStrategyBestFit:  "BestFit",
	AllocationStrategyWorstFit: "WorstFit",
}

func (s AllocationStrategy) String() string {
	if s == 0 {
		return allocationStrategyMapping[AllocationStrategyFirstFit]
	}
	return allocationStrategyMapping[s]
}

// ParseAllocationStrategy accepts the strategy names produced by String as well as the spaced and dashed
// spellings ("best fit", "best-fit"), case-insensitively
func ParseAllocationStrategy(name string) (AllocationStrategy, error) {
	normalized := strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name))
	for strategy, strategyName := range allocationStrategyMapping {
		if strings.ToLower(strategyName) == normalized {
			return strategy, nil
		}
	}

	return 0, errors.Wrapf(memutils.ErrConfiguration, "unknown allocation strategy %q", name)
}

// selectRegion applies strategy to the candidates in table order and returns the index of the chosen
// candidate, or -1 if no candidate fits.
func selectRegion(count int, fits func(index int) bool, sizeOf func(index int) int, strategy AllocationStrategy) int {
	chosen := -1

	for i := 0; i < count; i++ {
		if !fits(i) {
			continue
		}

		switch strategy {
		case AllocationStrategyBestFit:
			if chosen < 0 || sizeOf(i) < sizeOf(chosen) {
				chosen = i
			}
		case AllocationStrategyWorstFit:
			if chosen < 0 || sizeOf(i) > sizeOf(chosen) {
				chosen = i
			}
		default:
			return i
		}
	}

	return chosen
}
