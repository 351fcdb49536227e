package defrag

// PassContext is an object used to track data for the current compaction
// pass across multiple relocations
type PassContext struct {
	// MaxPassBytes is the maximum number of bytes to relocate in each pass. Zero means no limit. A pass
	// ends at the first allocation that would take it over budget, so it may move fewer bytes than this.
	MaxPassBytes int
	// MaxPassAllocations is the maximum number of relocations to perform in each pass. Zero means no limit.
	MaxPassAllocations int
	// Stats contains statistics for the current pass, such as bytes moved,
	// allocations relocated, etc.
	Stats DefragmentationStats
}

// checkCounters reports whether an allocation of the given size fits in what is left of the pass budget
func (p *PassContext) checkCounters(bytes int) bool {
	if p.MaxPassBytes > 0 && p.Stats.BytesMoved+bytes > p.MaxPassBytes {
		return false
	}

	return true
}

// incrementCounters records a relocation and returns true once the pass budget is used up
func (p *PassContext) incrementCounters(bytes int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++

	// Early return when max found
	if p.MaxPassAllocations > 0 && p.Stats.AllocationsMoved >= p.MaxPassAllocations {
		return true
	}

	return p.MaxPassBytes > 0 && p.Stats.BytesMoved >= p.MaxPassBytes
}
