package consistency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

func newValidator() Validator {
	return New(config.Default(), findings.Stamper{
		Now:   func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string { return "x" },
	})
}

func worker(id string, slots []int, load int, skills ...string) domain.Worker {
	return domain.Worker{ID: id, Name: id, Skills: skills, AvailableSlots: slots, MaxLoadPerPhase: domain.Int(load)}
}

func task(id string, duration int, phases []int, skills ...string) domain.Task {
	return domain.Task{
		ID: id, Name: id, Duration: domain.Int(duration), PreferredPhases: phases,
		RequiredSkills: skills, MaxConcurrent: domain.Int(1),
	}
}

func byCheck(list []domain.Finding, code string) []domain.Finding {
	var out []domain.Finding
	for _, f := range list {
		if f.Check == code {
			out = append(out, f)
		}
	}
	return out
}

func messages(list []domain.Finding) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.Message)
	}
	return out
}

func TestChecksRunInFixedOrder(t *testing.T) {
	assert.Equal(t, []string{
		CheckMissingColumn, CheckDuplicateID, CheckMalformedList, CheckOutOfRange, CheckBrokenJSON,
		CheckUnknownReference, CheckCircularDependency, CheckWorkerOverload, CheckPhaseSaturation,
		CheckSkillCoverage, CheckMaxConcurrency, CheckConflicting, CheckRequestedTask,
		CheckPhaseConsistency, CheckWorkload,
	}, Checks())
}

func TestCleanSnapshotHasNoFindings(t *testing.T) {
	snap := domain.Snapshot{
		Clients: []domain.Client{{ID: "C1", Name: "Acme", Priority: domain.Int(3), RequestedTaskIDs: []string{"T1"}}},
		Workers: []domain.Worker{worker("W1", []int{1, 2}, 2, "go"), worker("W2", []int{1, 2}, 2, "go")},
		Tasks: []domain.Task{
			task("T1", 1, []int{1}, "go"),
			func() domain.Task { t := task("T2", 1, []int{2}, "go"); t.Dependencies = []string{"T1"}; return t }(),
		},
	}
	got := newValidator().Validate(snap)
	assert.Empty(t, got, "%v", messages(got))
}

func TestMissingColumns(t *testing.T) {
	snap := domain.Snapshot{
		Clients: []domain.Client{{}},
		Workers: []domain.Worker{{ID: "W1"}},
		Tasks:   []domain.Task{{ID: "T1", Name: "t"}},
	}
	got := byCheck(newValidator().Validate(snap), CheckMissingColumn)
	assert.Equal(t, []string{
		"Missing required column: ClientID",
		"Missing required column: ClientName",
		"Missing required column: PriorityLevel",
		"Missing required column: WorkerName",
		"Missing required column: Skills",
		"Missing required column: AvailableSlots",
		"Missing required column: MaxLoadPerPhase",
		"Missing required column: Duration",
		"Missing required column: MaxConcurrent",
	}, messages(got))
	assert.Equal(t, "row-0", got[0].EntityID)
	assert.Equal(t, "row-0", got[1].EntityID)
}

func TestDuplicateIDs(t *testing.T) {
	snap := domain.Snapshot{
		Tasks: []domain.Task{task("T1", 1, nil), task("T1", 1, nil), task("T2", 1, nil)},
	}
	got := byCheck(newValidator().Validate(snap), CheckDuplicateID)
	require.Len(t, got, 1)
	assert.Equal(t, "T1", got[0].EntityID)
	assert.Equal(t, "id", got[0].Field)
	assert.Equal(t, domain.SeverityError, got[0].Severity)
}

func TestMalformedLists(t *testing.T) {
	w := worker("W1", nil, 1, "go")
	w.MarkMalformed("availableSlots")
	tk := task("T1", 1, nil)
	tk.MarkMalformed("dependencies")
	got := byCheck(newValidator().Validate(domain.Snapshot{Workers: []domain.Worker{w}, Tasks: []domain.Task{tk}}), CheckMalformedList)
	assert.Equal(t, []string{
		"AvailableSlots must be a valid array/list",
		"Dependencies must be a valid array/list",
	}, messages(got))
}

func TestOutOfRange(t *testing.T) {
	tk := task("T1", 0, nil)
	tk.MaxConcurrent = domain.Int(0)
	tk.Priority = domain.Int(6)
	tk.EstimatedHours = domain.Float(-1)
	snap := domain.Snapshot{
		Clients: []domain.Client{{ID: "C1", Name: "c", Priority: domain.Int(0)}},
		Tasks:   []domain.Task{tk},
	}
	got := byCheck(newValidator().Validate(snap), CheckOutOfRange)
	assert.Equal(t, []string{
		"PriorityLevel must be between 1-5",
		"Priority level must be between 1-5",
		"Duration must be at least 1",
		"MaxConcurrent must be at least 1",
		"Estimated hours cannot be negative",
	}, messages(got))
}

func TestBrokenJSON(t *testing.T) {
	w := worker("W1", []int{1}, 1, "go")
	w.AttributesJSON = "{"
	tk := task("T1", 1, nil)
	tk.AttributesJSON = `{"ok":true}`
	got := byCheck(newValidator().Validate(domain.Snapshot{Workers: []domain.Worker{w}, Tasks: []domain.Task{tk}}), CheckBrokenJSON)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EntityWorker, got[0].EntityType)
}

func TestUnknownReferencesOnePerMissingID(t *testing.T) {
	tk := task("T1", 1, nil)
	tk.Dependencies = []string{"T9", "T8"}
	tk.ClientID = "C7"
	c := domain.Client{ID: "C1", Name: "c", Priority: domain.Int(1), RequestedTaskIDs: []string{"T1", "T5"}}
	snap := domain.Snapshot{Clients: []domain.Client{c}, Tasks: []domain.Task{tk}}
	all := newValidator().Validate(snap)

	assert.Equal(t, []string{
		"Referenced client 'C7' does not exist",
		"Referenced task dependency 'T9' does not exist",
		"Referenced task dependency 'T8' does not exist",
	}, messages(byCheck(all, CheckUnknownReference)))
	assert.Equal(t, []string{"RequestedTaskID 'T5' does not exist"}, messages(byCheck(all, CheckRequestedTask)))
}

func TestCircularDependencies(t *testing.T) {
	chain := func(back bool) []domain.Task {
		a, b, c := task("A", 1, nil), task("B", 1, nil), task("C", 1, nil)
		a.Dependencies = []string{"B"}
		b.Dependencies = []string{"C"}
		if back {
			c.Dependencies = []string{"A"}
		}
		return []domain.Task{a, b, c}
	}

	t.Run("cycle flags every member", func(t *testing.T) {
		got := byCheck(newValidator().Validate(domain.Snapshot{Tasks: chain(true)}), CheckCircularDependency)
		require.Len(t, got, 3)
		for i, id := range []string{"A", "B", "C"} {
			assert.Equal(t, id, got[i].EntityID)
			assert.Equal(t, "dependencies", got[i].Field)
			assert.Equal(t, domain.SeverityError, got[i].Severity)
		}
	})
	t.Run("dag has no cycle findings", func(t *testing.T) {
		got := byCheck(newValidator().Validate(domain.Snapshot{Tasks: chain(false)}), CheckCircularDependency)
		assert.Empty(t, got)
	})
	t.Run("self dependency", func(t *testing.T) {
		a := task("A", 1, nil)
		a.Dependencies = []string{"A"}
		got := newValidator().Validate(domain.Snapshot{Tasks: []domain.Task{a}})
		assert.Len(t, byCheck(got, CheckCircularDependency), 1)
		assert.Empty(t, byCheck(got, CheckUnknownReference))
	})
}

func TestCapacityBoundary(t *testing.T) {
	workers := []domain.Worker{worker("W1", []int{1}, 2)}
	two := []domain.Task{task("T1", 1, []int{1}), task("T2", 1, []int{1})}

	got := newValidator().Validate(domain.Snapshot{Workers: workers, Tasks: two})
	assert.Empty(t, findings.Filter{Field: "capacity"}.Apply(got))
	assert.Empty(t, findings.Filter{Field: "phaseCapacity"}.Apply(got))

	three := append(two, task("T3", 1, []int{1}))
	got = newValidator().Validate(domain.Snapshot{Workers: workers, Tasks: three})
	capacity := findings.Filter{Field: "capacity"}.Apply(got)
	require.Len(t, capacity, 1)
	assert.Equal(t, domain.SystemEntityID, capacity[0].EntityID)
	assert.Equal(t, domain.SeverityWarning, capacity[0].Severity)
	assert.Equal(t, "Phase 1 has 3 task-days but only 2 worker capacity", capacity[0].Message)
	saturation := findings.Filter{Field: "phaseCapacity"}.Apply(got)
	require.Len(t, saturation, 1)
	assert.Equal(t, "Phase 1 has 3 task-days but only 2 worker slots available", saturation[0].Message)
}

func TestOverloadCountsDuplicateSlotsSaturationDoesNot(t *testing.T) {
	workers := []domain.Worker{worker("W1", []int{1, 1}, 2)}
	tasks := []domain.Task{task("T1", 3, []int{1})}
	got := newValidator().Validate(domain.Snapshot{Workers: workers, Tasks: tasks})
	assert.Empty(t, findings.Filter{Field: "capacity"}.Apply(got))
	assert.Len(t, findings.Filter{Field: "phaseCapacity"}.Apply(got), 1)
}

func TestWorkerOverloadPerWorker(t *testing.T) {
	workers := []domain.Worker{
		worker("W1", []int{1}, 11, "go"),
		worker("W2", []int{1}, 0, "go"),
		worker("W3", []int{}, 1, "go"),
	}
	got := byCheck(newValidator().Validate(domain.Snapshot{Workers: workers}), CheckWorkerOverload)
	assert.Equal(t, []string{
		"MaxLoadPerPhase seems unrealistic (>10)",
		"Worker must be able to handle at least 1 task per phase",
		"Worker must be available in at least one phase",
	}, messages(got))
	assert.Equal(t, domain.SeverityWarning, got[0].Severity)
}

func TestSkillCoverage(t *testing.T) {
	t.Run("no worker has skill", func(t *testing.T) {
		snap := domain.Snapshot{
			Workers: []domain.Worker{worker("W1", []int{1}, 1, "go")},
			Tasks:   []domain.Task{task("T1", 1, nil, "X")},
		}
		got := byCheck(newValidator().Validate(snap), CheckSkillCoverage)
		require.Len(t, got, 2)
		assert.Equal(t, domain.SystemEntityID, got[0].EntityID)
		assert.Equal(t, "No worker available with required skill: x", got[0].Message)
		assert.Equal(t, "No worker has all required skills: X", got[1].Message)
		assert.Equal(t, domain.SeverityError, got[1].Severity)
	})
	t.Run("exactly one worker has skill", func(t *testing.T) {
		snap := domain.Snapshot{
			Workers: []domain.Worker{worker("W1", []int{1}, 1, "x"), worker("W2", []int{1}, 1, "go")},
			Tasks:   []domain.Task{task("T1", 1, nil, "X")},
		}
		got := byCheck(newValidator().Validate(snap), CheckSkillCoverage)
		assert.Empty(t, got)
	})
	t.Run("skills spread across workers", func(t *testing.T) {
		snap := domain.Snapshot{
			Workers: []domain.Worker{worker("W1", []int{1}, 1, "a"), worker("W2", []int{1}, 1, "b")},
			Tasks:   []domain.Task{task("T1", 1, nil, "a", "b")},
		}
		got := byCheck(newValidator().Validate(snap), CheckSkillCoverage)
		require.Len(t, got, 1)
		assert.Equal(t, "T1", got[0].EntityID)
	})
}

func TestMaxConcurrency(t *testing.T) {
	tk := task("T1", 1, nil, "go")
	tk.MaxConcurrent = domain.Int(3)
	snap := domain.Snapshot{
		Workers: []domain.Worker{worker("W1", []int{1}, 1, "Go"), worker("W2", []int{1}, 1, "rust")},
		Tasks:   []domain.Task{tk},
	}
	got := byCheck(newValidator().Validate(snap), CheckMaxConcurrency)
	require.Len(t, got, 1)
	assert.Equal(t, "MaxConcurrent (3) exceeds number of qualified workers (1)", got[0].Message)
}

func TestConflictingConstraints(t *testing.T) {
	dep := task("T1", 1, []int{2, 3})
	later := task("T2", 1, []int{4})
	later.Dependencies = []string{"T1"}
	overlap := task("T3", 1, []int{3, 5})
	overlap.Dependencies = []string{"T1"}
	heavy := task("T4", 2, nil)
	heavy.EstimatedHours = domain.Float(50)

	got := byCheck(newValidator().Validate(domain.Snapshot{Tasks: []domain.Task{dep, later, overlap, heavy}}), CheckConflicting)
	assert.Equal(t, []string{
		"Task preferred phases conflict with dependency 'T1' phases",
		"Estimated hours (50) exceed realistic daily capacity for duration (2 days)",
	}, messages(got))
	assert.Equal(t, "T3", got[0].EntityID)
}

func TestPhaseConsistency(t *testing.T) {
	snap := domain.Snapshot{
		Workers: []domain.Worker{worker("W1", []int{1}, 5)},
		Tasks:   []domain.Task{task("T1", 1, []int{3, 1}), task("T2", 1, []int{2})},
	}
	got := byCheck(newValidator().Validate(snap), CheckPhaseConsistency)
	assert.Equal(t, []string{
		"Phase 3 is required by tasks but no workers are available in this phase",
		"Phase 2 is required by tasks but no workers are available in this phase",
	}, messages(got))
}

func TestWorkloadDistribution(t *testing.T) {
	snap := domain.Snapshot{
		Workers: []domain.Worker{
			worker("W1", []int{1}, 1, "go", "rust"),
			worker("W2", []int{1}, 1, "sql"),
			worker("W3", []int{1}, 1, "sql"),
		},
		Tasks: []domain.Task{task("T1", 6, nil, "go"), task("T2", 3, nil, "rust"), task("T3", 1, nil, "sql")},
	}
	got := byCheck(newValidator().Validate(snap), CheckWorkload)
	require.Len(t, got, 1)
	assert.Equal(t, "W1", got[0].EntityID)
	assert.Equal(t, domain.SeverityInfo, got[0].Severity)
	assert.Equal(t, "Worker has significantly higher potential workload (9) than average (4)", got[0].Message)
}

func TestThresholdsComeFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Checks.MaxLoadWarning = 3
	v := New(cfg, findings.Stamper{})
	got := byCheck(v.Validate(domain.Snapshot{Workers: []domain.Worker{worker("W1", []int{1}, 4, "go")}}), CheckWorkerOverload)
	require.Len(t, got, 1)
	assert.Equal(t, "MaxLoadPerPhase seems unrealistic (>3)", got[0].Message)
}

func TestRunSingleCheck(t *testing.T) {
	snap := domain.Snapshot{Tasks: []domain.Task{task("T1", 1, nil), task("T1", 1, nil)}}
	got := newValidator().Run(CheckDuplicateID, snap)
	require.Len(t, got, 1)
	assert.Empty(t, newValidator().Run("nope", snap))
}
