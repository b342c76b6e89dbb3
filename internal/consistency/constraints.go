package consistency

import (
	"fmt"
	"strconv"

	"alchemist/internal/domain"
	"alchemist/internal/validation"
)

// conflictingConstraints warns when a dependency may still be running at the
// dependent's earliest preferred phase, and when the estimated effort exceeds
// MaxHoursPerDay per phase of duration.
func (v Validator) conflictingConstraints(p pass) {
	tasks := p.snap.Tasks
	for i, t := range tasks {
		key := validation.EntityKey(t.ID, i)
		if len(t.Dependencies) > 0 && len(t.PreferredPhases) > 0 {
			start := minInt(t.PreferredPhases)
			for _, dep := range tasks {
				if dep.ID == "" || !contains(t.Dependencies, dep.ID) || len(dep.PreferredPhases) == 0 {
					continue
				}
				if start <= maxInt(dep.PreferredPhases) {
					p.rec.Warning(CheckConflicting, domain.EntityTask, key, "preferredPhases",
						fmt.Sprintf("Task preferred phases conflict with dependency '%s' phases", dep.ID))
				}
			}
		}
		if t.Length() != 0 && t.EstimatedHours != nil && *t.EstimatedHours != 0 {
			if *t.EstimatedHours/float64(t.Length()) > v.Checks.MaxHoursPerDay {
				p.rec.Warning(CheckConflicting, domain.EntityTask, key, "estimatedHours",
					fmt.Sprintf("Estimated hours (%s) exceed realistic daily capacity for duration (%d days)",
						strconv.FormatFloat(*t.EstimatedHours, 'f', -1, 64), t.Length()))
			}
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
