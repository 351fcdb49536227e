package simulator

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

// ProcessID identifies a resident process. Ids start at 1 and are never reused until the allocator is
// initialized again.
type ProcessID int

// Process is a resident process: a successful allocation of Size units
type Process struct {
	id     ProcessID
	size   int
	handle metadata.BlockAllocationHandle
}

func (p *Process) ID() ProcessID { return p.id }
func (p *Process) Size() int     { return p.size }

func (p *Process) printParameters(json *jwriter.ObjectState) {
	json.Name("ProcessID").Int(int(p.id))
	json.Name("ProcessSize").Int(p.size)
}
