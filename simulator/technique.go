package simulator

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
)

// Technique identifies the memory-management back end an Allocator is running
type Technique uint32

const (
	// TechniqueFixed divides memory into equally-sized partitions
	TechniqueFixed Technique = iota + 1
	// TechniqueUnequal divides memory into randomly-sized partitions
	TechniqueUnequal
	// TechniqueDynamic carves exactly-sized blocks out of free memory, merging free neighbors and
	// supporting compaction
	TechniqueDynamic
	// TechniqueBuddy manages power-of-two blocks that split and coalesce with their buddies
	TechniqueBuddy
	// TechniquePaging places processes into fixed-size frames that need not be contiguous
	TechniquePaging
)

var techniqueMapping = map[Technique]string{
	TechniqueFixed:   "Fixed",
	TechniqueUnequal: "Unequal",
	TechniqueDynamic: "Dynamic",
	TechniqueBuddy:   "Buddy",
	TechniquePaging:  "Paging",
}

// Techniques lists every technique in declaration order
var Techniques = []Technique{TechniqueFixed, TechniqueUnequal, TechniqueDynamic, TechniqueBuddy, TechniquePaging}

func (t Technique) String() string {
	name, ok := techniqueMapping[t]
	if !ok {
		return "None"
	}
	return name
}

// IsPartitioned returns true for the techniques backed by a partition table, which are the ones that report
// fragmentation totals
func (t Technique) IsPartitioned() bool {
	return t == TechniqueFixed || t == TechniqueUnequal || t == TechniqueDynamic
}

// ParseTechnique accepts the names produced by String case-insensitively, along with the long forms
// such as "Fixed-sized Partitioning", "Dynamic Allocation" and "Buddy System"
func ParseTechnique(name string) (Technique, error) {
	normalized := strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name))
	for _, suffix := range []string{"partitioning", "allocation", "system", "sized", "size"} {
		normalized = strings.TrimSuffix(normalized, suffix)
	}

	for _, technique := range Techniques {
		if strings.ToLower(techniqueMapping[technique]) == normalized {
			return technique, nil
		}
	}

	return 0, errors.Wrapf(memutils.ErrConfiguration, "unknown technique %q", name)
}
