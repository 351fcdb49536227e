// Package scenario replays scripted allocator commands. A scenario is a toml document naming a technique and
// a total size, followed by a list of steps:
//
//	technique = "dynamic"
//	total_size = 1000
//	strategy = "best fit"
//
//	[[steps]]
//	op = "allocate"
//	size = 300
//
//	[[steps]]
//	op = "deallocate"
//	process = 1
//
//	[[steps]]
//	op = "compact"
package scenario

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"github.com/vkngwrapper/memsim/simulator"
	"golang.org/x/exp/rand"
)

// Op names a scenario step
type Op string

const (
	OpAllocate   Op = "allocate"
	OpDeallocate Op = "deallocate"
	OpCompact    Op = "compact"
	// OpReset frees every process and keeps the partition layout
	OpReset      Op = "reset"
)

// Config defines the format of scenario toml files
type Config struct {
	// Technique is parsed with simulator.ParseTechnique
	Technique string `toml:"technique"`
	TotalSize int    `toml:"total_size"`
	// Strategy is the placement strategy for allocate steps that do not name their own. Defaults to first fit.
	Strategy string `toml:"strategy"`
	// PageSize is the frame size used by paging. Defaults to metadata.DefaultPageSize.
	PageSize int `toml:"page_size"`
	// Partitions is the partition count used by fixed and unequal partitioning. Defaults to
	// metadata.DefaultPartitionCount.
	Partitions int `toml:"partitions"`
	// Seed seeds the cut points of unequal partitioning. Zero means a time-seeded source.
	Seed uint64 `toml:"seed"`

	Steps []Step `toml:"steps"`
}

// Step is a single command
type Step struct {
	Op Op `toml:"op"`
	// Size is the process size of an allocate step
	Size int `toml:"size"`
	// Process is the id removed by a deallocate step
	Process int `toml:"process"`
	// Strategy overrides Config.Strategy for an allocate step
	Strategy string `toml:"strategy"`
	// MaxAllocations limits how many processes a compact step moves in each pass
	MaxAllocations int `toml:"max_allocations"`
}

// ParseConfig decodes and checks a scenario. Every name in the document is resolved here, so a config
// returned without error can be run to completion.
func ParseConfig(raw []byte) (c Config, err error) {
	err = toml.Unmarshal(raw, &c)
	if err != nil {
		return c, errors.Wrap(err, "could not parse scenario")
	}

	err = c.check()
	return c, err
}

// Load reads and parses the scenario at path
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "could not read scenario %s", path)
	}

	c, err := ParseConfig(raw)
	if err != nil {
		return c, errors.Wrapf(err, "scenario %s", path)
	}
	return c, nil
}

func (c Config) check() error {
	_, err := simulator.ParseTechnique(c.Technique)
	if err != nil {
		return err
	}

	err = memutils.CheckPositive(c.TotalSize, "total_size")
	if err != nil {
		return err
	}

	if c.PageSize < 0 || c.Partitions < 0 {
		return errors.Wrap(memutils.ErrConfiguration, "page_size and partitions cannot be negative")
	}

	_, err = c.strategy(Step{})
	if err != nil {
		return err
	}

	for i, step := range c.Steps {
		switch step.Op {
		case OpAllocate:
			_, err = c.strategy(step)
		case OpDeallocate:
			if step.Process < 1 {
				err = errors.Newf("deallocate needs a process id, got %d", step.Process)
			}
		case OpCompact:
			if step.MaxAllocations < 0 {
				err = errors.Newf("max_allocations cannot be negative, got %d", step.MaxAllocations)
			}
		case OpReset:
		default:
			err = errors.Newf("unknown op %q", step.Op)
		}

		if err != nil {
			return errors.Wrapf(err, "step %d", i+1)
		}
	}

	return nil
}

func (c Config) strategy(step Step) (metadata.AllocationStrategy, error) {
	name := step.Strategy
	if name == "" {
		name = c.Strategy
	}
	if name == "" {
		return metadata.AllocationStrategyFirstFit, nil
	}

	return metadata.ParseAllocationStrategy(name)
}

// CreateOptions builds the allocator options the scenario asks for
func (c Config) CreateOptions() simulator.CreateOptions {
	options := simulator.CreateOptions{
		PageSize:       c.PageSize,
		PartitionCount: c.Partitions,
	}

	if c.Seed != 0 {
		options.RandSource = rand.NewSource(c.Seed)
	}

	return options
}
