package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/scenario"
	"github.com/vkngwrapper/memsim/simulator"
)

const dynamicScenario = `
technique = "Dynamic Allocation"
total_size = 1000

[[steps]]
op = "allocate"
size = 300

[[steps]]
op = "allocate"
size = 200

[[steps]]
op = "deallocate"
process = 1

[[steps]]
op = "compact"
`

func runScenario(t *testing.T, raw string) scenario.Report {
	config, err := scenario.ParseConfig([]byte(raw))
	require.NoError(t, err)

	allocator := simulator.New(nil, config.CreateOptions())
	report, err := scenario.Run(nil, allocator, config)
	require.NoError(t, err)
	require.NoError(t, allocator.Validate())

	return report
}

func TestParseConfig(t *testing.T) {
	config, err := scenario.ParseConfig([]byte(dynamicScenario))
	require.NoError(t, err)

	require.Equal(t, "Dynamic Allocation", config.Technique)
	require.Equal(t, 1000, config.TotalSize)
	require.Equal(t, []scenario.Step{
		{Op: scenario.OpAllocate, Size: 300},
		{Op: scenario.OpAllocate, Size: 200},
		{Op: scenario.OpDeallocate, Process: 1},
		{Op: scenario.OpCompact},
	}, config.Steps)
}

func TestParseConfigErrors(t *testing.T) {
	testCases := []struct {
		name   string
		raw    string
		target error
	}{
		{
			name:   "unknown technique",
			raw:    "technique = \"segmentation\"\ntotal_size = 100",
			target: memutils.ErrConfiguration,
		},
		{
			name:   "missing size",
			raw:    "technique = \"paging\"",
			target: memutils.ErrInvalidSize,
		},
		{
			name:   "unknown default strategy",
			raw:    "technique = \"dynamic\"\ntotal_size = 100\nstrategy = \"next fit\"",
			target: memutils.ErrConfiguration,
		},
		{
			name:   "unknown step strategy",
			raw:    "technique = \"dynamic\"\ntotal_size = 100\n[[steps]]\nop = \"allocate\"\nsize = 10\nstrategy = \"next fit\"",
			target: memutils.ErrConfiguration,
		},
		{
			name:   "negative page size",
			raw:    "technique = \"paging\"\ntotal_size = 100\npage_size = -1",
			target: memutils.ErrConfiguration,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := scenario.ParseConfig([]byte(testCase.raw))
			require.ErrorIs(t, err, testCase.target)
		})
	}

	_, err := scenario.ParseConfig([]byte("technique = \"dynamic\"\ntotal_size = 100\n[[steps]]\nop = \"swap\""))
	require.ErrorContains(t, err, "step 1")
	require.ErrorContains(t, err, "swap")

	_, err = scenario.ParseConfig([]byte("technique = \"dynamic\"\ntotal_size = 100\n[[steps]]\nop = \"deallocate\""))
	require.ErrorContains(t, err, "process id")

	_, err = scenario.ParseConfig([]byte("technique = "))
	require.Error(t, err)
}

func TestRunDynamicScenario(t *testing.T) {
	report := runScenario(t, dynamicScenario)

	require.Len(t, report.Steps, 4)
	require.Zero(t, report.Failed())
	require.Equal(t, simulator.ProcessID(1), report.Steps[0].ProcessID)
	require.Equal(t, simulator.ProcessID(2), report.Steps[1].ProcessID)
	require.Equal(t, simulator.ProcessID(1), report.Steps[2].ProcessID)
	require.Equal(t, 4, report.Steps[3].Index)

	require.NotNil(t, report.Steps[3].Compaction)
	require.True(t, report.Steps[3].Compaction.Compacted)
	require.Equal(t, 200, report.Steps[3].Compaction.Stats.BytesMoved)

	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 200, ProcessID: 2, ProcessSize: 200},
		{Start: 200, Size: 800, Free: true},
	}, report.Snapshot.Blocks)
	require.Equal(t, &simulator.FragmentationTotals{External: 800}, report.Snapshot.Fragmentation)
}

func TestRefusedStepsCarryOn(t *testing.T) {
	report := runScenario(t, `
technique = "fixed"
total_size = 1000

[[steps]]
op = "allocate"
size = 150

[[steps]]
op = "allocate"
size = 80

[[steps]]
op = "deallocate"
process = 7

[[steps]]
op = "compact"
`)

	require.Equal(t, 3, report.Failed())
	require.ErrorIs(t, report.Steps[0].Err, memutils.ErrAllocationFailure)
	require.Zero(t, report.Steps[0].ProcessID)

	require.NoError(t, report.Steps[1].Err)
	require.Equal(t, simulator.ProcessID(1), report.Steps[1].ProcessID)

	require.ErrorIs(t, report.Steps[2].Err, memutils.ErrNotFound)
	require.ErrorIs(t, report.Steps[3].Err, memutils.ErrUnsupported)
	require.Nil(t, report.Steps[3].Compaction)

	require.Equal(t, &simulator.FragmentationTotals{Internal: 20, External: 900}, report.Snapshot.Fragmentation)
}

func TestStepStrategyOverride(t *testing.T) {
	report := runScenario(t, `
technique = "dynamic"
total_size = 1000
strategy = "worst fit"

[[steps]]
op = "allocate"
size = 300
[[steps]]
op = "allocate"
size = 100
[[steps]]
op = "allocate"
size = 150
[[steps]]
op = "allocate"
size = 50
[[steps]]
op = "deallocate"
process = 1
[[steps]]
op = "deallocate"
process = 3

[[steps]]
op = "allocate"
size = 120
strategy = "best fit"

[[steps]]
op = "allocate"
size = 120
`)

	require.Zero(t, report.Failed())

	offsets := map[simulator.ProcessID]int{}
	for _, process := range report.Snapshot.Processes {
		offsets[process.ID] = process.Start
	}

	require.Equal(t, 400, offsets[5])
	require.Equal(t, 600, offsets[6])
}

func TestSeededUnequalScenario(t *testing.T) {
	raw := `
technique = "Unequal-size Partitioning"
total_size = 1000
partitions = 4
seed = 42

[[steps]]
op = "allocate"
size = 1
`

	first := runScenario(t, raw)
	second := runScenario(t, raw)

	require.Len(t, first.Snapshot.Blocks, 4)
	require.Equal(t, first.Snapshot, second.Snapshot)
}

func TestPagingScenario(t *testing.T) {
	report := runScenario(t, `
technique = "paging"
total_size = 1000
page_size = 250

[[steps]]
op = "allocate"
size = 300
`)

	require.Equal(t, 250, report.Snapshot.PageSize)
	require.Len(t, report.Snapshot.Frames, 4)
	require.Equal(t, map[simulator.ProcessID][]int{1: {0, 1}}, report.Snapshot.PageTable())
}

func TestResetStep(t *testing.T) {
	report := runScenario(t, `
technique = "dynamic"
total_size = 1000

[[steps]]
op = "allocate"
size = 300

[[steps]]
op = "reset"

[[steps]]
op = "allocate"
size = 100

[[steps]]
op = "compact"
`)

	require.Zero(t, report.Failed())
	require.Equal(t, simulator.ProcessID(2), report.Steps[2].ProcessID)
	require.True(t, report.Steps[3].Compaction.Compacted)
	require.Zero(t, report.Steps[3].Compaction.Stats.AllocationsMoved)
	require.Equal(t, []simulator.BlockSnapshot{
		{Start: 0, Size: 100, ProcessID: 2, ProcessSize: 100},
		{Start: 100, Size: 900, Free: true},
	}, report.Snapshot.Blocks)
}

func TestRunRejectsConfiguration(t *testing.T) {
	config, err := scenario.ParseConfig([]byte("technique = \"buddy\"\ntotal_size = 1000"))
	require.NoError(t, err)

	_, err = scenario.Run(nil, simulator.New(nil, config.CreateOptions()), config)
	require.ErrorIs(t, err, memutils.ErrConfiguration)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic.toml")
	require.NoError(t, os.WriteFile(path, []byte(dynamicScenario), 0o644))

	config, err := scenario.Load(path)
	require.NoError(t, err)
	require.Len(t, config.Steps, 4)

	_, err = scenario.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
