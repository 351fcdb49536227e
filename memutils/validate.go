package memutils

// Validatable is anything DebugValidate can check. Every metadata.BlockMetadata implementation is one, and
// the allocator runs DebugValidate over its active metadata after each command.
type Validatable interface {
	Validate() error
}
