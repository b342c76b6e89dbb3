package consistency

import (
	"fmt"
	"math"

	"alchemist/internal/domain"
	"alchemist/internal/validation"
)

// workerOverload checks each worker's own capacity, then compares per-phase
// demand with the capacity summed over every available-slot entry.
func (v Validator) workerOverload(p pass) {
	for i, w := range p.snap.Workers {
		key := validation.EntityKey(w.ID, i)
		if w.MaxLoadPerPhase != nil {
			if *w.MaxLoadPerPhase > v.Checks.MaxLoadWarning {
				p.rec.Warning(CheckWorkerOverload, domain.EntityWorker, key, "maxLoadPerPhase",
					fmt.Sprintf("MaxLoadPerPhase seems unrealistic (>%d)", v.Checks.MaxLoadWarning))
			}
			if *w.MaxLoadPerPhase < 1 {
				p.rec.Error(CheckWorkerOverload, domain.EntityWorker, key, "maxLoadPerPhase",
					"Worker must be able to handle at least 1 task per phase")
			}
		}
		if len(w.AvailableSlots) == 0 && !w.IsMalformed("availableSlots") {
			p.rec.Error(CheckWorkerOverload, domain.EntityWorker, key, "availableSlots",
				"Worker must be available in at least one phase")
		}
	}

	capacity := map[int]int{}
	for _, w := range p.snap.Workers {
		for _, phase := range w.AvailableSlots {
			capacity[phase] += w.Load()
		}
	}
	demand := collectDemand(p.snap.Tasks)
	for _, phase := range demand.order {
		need := demand.duration(phase)
		if need > capacity[phase] {
			p.rec.Warning(CheckWorkerOverload, domain.EntityTask, domain.SystemEntityID, "capacity",
				fmt.Sprintf("Phase %d has %d task-days but only %d worker capacity", phase, need, capacity[phase]))
		}
	}
}

// phaseSlotSaturation repeats the demand comparison counting each worker
// available in the phase once.
func (v Validator) phaseSlotSaturation(p pass) {
	demand := collectDemand(p.snap.Tasks)
	for _, phase := range demand.order {
		need := demand.duration(phase)
		slots := 0
		for _, w := range p.snap.Workers {
			if w.AvailableIn(phase) {
				slots += w.Load()
			}
		}
		if need > slots {
			p.rec.Warning(CheckPhaseSaturation, domain.EntityTask, domain.SystemEntityID, "phaseCapacity",
				fmt.Sprintf("Phase %d has %d task-days but only %d worker slots available", phase, need, slots))
		}
	}
}

func (v Validator) phaseConsistency(p pass) {
	staffed := map[int]bool{}
	for _, w := range p.snap.Workers {
		for _, phase := range w.AvailableSlots {
			staffed[phase] = true
		}
	}
	for _, phase := range collectDemand(p.snap.Tasks).order {
		if !staffed[phase] {
			p.rec.Warning(CheckPhaseConsistency, domain.EntityTask, domain.SystemEntityID, "phaseConsistency",
				fmt.Sprintf("Phase %d is required by tasks but no workers are available in this phase", phase))
		}
	}
}

// workloadDistribution sums, per worker, the durations of every task the worker
// is qualified for and reports workers above ImbalanceFactor times the mean.
func (v Validator) workloadDistribution(p pass) {
	workers := p.snap.Workers
	if len(workers) == 0 {
		return
	}
	potential := make([]int, len(workers))
	total := 0
	for i, w := range workers {
		for _, t := range p.snap.Tasks {
			if w.Qualifies(t.RequiredSkills) {
				potential[i] += t.Length()
			}
		}
		total += potential[i]
	}
	avg := float64(total) / float64(len(workers))
	for i, w := range workers {
		if float64(potential[i]) > avg*v.Checks.ImbalanceFactor {
			p.rec.Info(CheckWorkload, domain.EntityWorker, validation.EntityKey(w.ID, i), "workload",
				fmt.Sprintf("Worker has significantly higher potential workload (%d) than average (%d)",
					potential[i], int(math.Round(avg))))
		}
	}
}
