// Package consistency implements the whole-collection checks layered on top of
// the basic field validator: referential integrity, dependency cycles,
// capacity against demand, skill coverage and workload balance.
package consistency

import (
	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

// Check codes, listed in the order the checks run.
const (
	CheckMissingColumn      = "missing_column"
	CheckDuplicateID        = "duplicate_id"
	CheckMalformedList      = "malformed_list"
	CheckOutOfRange         = "out_of_range"
	CheckBrokenJSON         = "broken_json"
	CheckUnknownReference   = "unknown_reference"
	CheckCircularDependency = "circular_dependency"
	CheckWorkerOverload     = "worker_overload"
	CheckPhaseSaturation    = "phase_slot_saturation"
	CheckSkillCoverage      = "skill_coverage"
	CheckMaxConcurrency     = "max_concurrency"
	CheckConflicting        = "conflicting_constraints"
	CheckRequestedTask      = "requested_task_reference"
	CheckPhaseConsistency   = "phase_consistency"
	CheckWorkload           = "workload_distribution"
)

type pass struct {
	rec  *findings.Recorder
	snap domain.Snapshot
}

type check struct {
	code string
	run  func(v Validator, p pass)
}

var checks = []check{
	{CheckMissingColumn, Validator.missingColumns},
	{CheckDuplicateID, Validator.duplicateIDs},
	{CheckMalformedList, Validator.malformedLists},
	{CheckOutOfRange, Validator.outOfRange},
	{CheckBrokenJSON, Validator.brokenJSON},
	{CheckUnknownReference, Validator.unknownReferences},
	{CheckCircularDependency, Validator.circularDependencies},
	{CheckWorkerOverload, Validator.workerOverload},
	{CheckPhaseSaturation, Validator.phaseSlotSaturation},
	{CheckSkillCoverage, Validator.skillCoverage},
	{CheckMaxConcurrency, Validator.maxConcurrency},
	{CheckConflicting, Validator.conflictingConstraints},
	{CheckRequestedTask, Validator.requestedTaskReferences},
	{CheckPhaseConsistency, Validator.phaseConsistency},
	{CheckWorkload, Validator.workloadDistribution},
}

// Checks returns the check codes in execution order.
func Checks() []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.code)
	}
	return out
}

// Validator runs every consistency check over a full snapshot. It holds no
// state between calls and may be shared across goroutines.
type Validator struct {
	Checks  config.Checks
	Stamper findings.Stamper
}

func New(cfg *config.Config, s findings.Stamper) Validator {
	if cfg == nil {
		cfg = config.Default()
	}
	return Validator{Checks: cfg.Checks, Stamper: s}
}

// Validate returns the findings of all checks in their fixed order. The snapshot
// is only read.
func (v Validator) Validate(snap domain.Snapshot) []domain.Finding {
	p := pass{rec: findings.NewRecorder(v.Stamper), snap: snap}
	for _, c := range checks {
		c.run(v, p)
	}
	return p.rec.Findings()
}

// Run executes a single check by code; unknown codes yield no findings.
func (v Validator) Run(code string, snap domain.Snapshot) []domain.Finding {
	p := pass{rec: findings.NewRecorder(v.Stamper), snap: snap}
	for _, c := range checks {
		if c.code == code {
			c.run(v, p)
		}
	}
	return p.rec.Findings()
}

// phaseDemand holds phases in first-appearance order across the tasks'
// preferred phases, with the tasks listing each phase.
type phaseDemand struct {
	order []int
	tasks map[int][]domain.Task
}

func collectDemand(tasks []domain.Task) phaseDemand {
	d := phaseDemand{tasks: map[int][]domain.Task{}}
	for _, t := range tasks {
		for _, phase := range t.PreferredPhases {
			if _, ok := d.tasks[phase]; !ok {
				d.order = append(d.order, phase)
			}
			d.tasks[phase] = append(d.tasks[phase], t)
		}
	}
	return d
}

func (d phaseDemand) duration(phase int) int {
	total := 0
	for _, t := range d.tasks[phase] {
		total += t.Length()
	}
	return total
}

func qualifiedCount(required []string, workers []domain.Worker) int {
	n := 0
	for _, w := range workers {
		if w.Qualifies(required) {
			n++
		}
	}
	return n
}
