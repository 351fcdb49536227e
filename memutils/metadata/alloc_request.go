package metadata

// AllocationRequestType is an enum that indicates the type of allocation that is being made.
// It is returned in AllocationRequest from CreateAllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestPartition indicates that the allocation request was sourced from PartitionBlockMetadata
	AllocationRequestPartition AllocationRequestType = iota
	// AllocationRequestBuddy indicates that the allocation request was sourced from BuddyBlockMetadata
	AllocationRequestBuddy
	// AllocationRequestPaging indicates that the allocation request was sourced from PagingMetadata
	AllocationRequestPaging
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestPartition: "Partition",
	AllocationRequestBuddy:     "Buddy",
	AllocationRequestPaging:    "Paging",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is a type returned from BlockMetadata.CreateAllocationRequest which indicates where and how
// the metadata intends to allocate new memory. Creating a request never changes the metadata: the request
// must be committed with BlockMetadata.Alloc
type AllocationRequest struct {
	// BlockAllocationHandle is the handle the allocation will be known by once committed
	BlockAllocationHandle BlockAllocationHandle
	// Size the total size of the allocation, maybe larger than what was originally requested
	Size int
	// RequestedSize is the size passed to CreateAllocationRequest
	RequestedSize int
	// Type identifies the sort of allocation this request represents (and can be used
	// to identify the BlockMetadata implementation used to generate this request).
	Type AllocationRequestType

	// AlgorithmData is arbitrary data used by the BlockMetadata implementation for internal
	// purposes
	AlgorithmData uint64
}
