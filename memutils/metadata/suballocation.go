package metadata

import "math"

type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// Suballocation is an occupied range of a block
type Suballocation struct {
	Offset int
	Size   int
}

// Relocation moves a live allocation to a new offset within the same block
type Relocation struct {
	Handle BlockAllocationHandle
	Offset int
}
