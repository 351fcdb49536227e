package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrConfiguration indicates that a technique cannot be initialized with the requested total size, such as
	// unequal partitioning of fewer than ten addressable units or a buddy tree over a size that is not a power of two
	ErrConfiguration = errors.New("invalid memory configuration")
	// ErrAllocationFailure indicates that no block or run of frames could satisfy an allocation request. It is a
	// normal outcome: nothing was changed and the caller may retry with a smaller size or after freeing memory
	ErrAllocationFailure = errors.New("no free memory can satisfy the request")
	// ErrNotFound indicates that a process id does not refer to a resident process
	ErrNotFound = errors.New("process is not resident")
	// ErrInvalidSize indicates a non-positive size was passed to an allocation or initialization
	ErrInvalidSize = errors.New("size must be a positive integer")
	// ErrUnsupported indicates that the active technique does not offer the requested operation
	ErrUnsupported = errors.New("operation is not supported by the active technique")
	// ErrNotInitialized indicates that a command was issued before any technique was initialized
	ErrNotInitialized = errors.New("memory has not been initialized")
)
