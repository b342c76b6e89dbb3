package consistency

import (
	"fmt"
	"strings"

	"alchemist/internal/domain"
	"alchemist/internal/validation"
)

func (v Validator) skillCoverage(p pass) {
	available := map[string]bool{}
	for _, w := range p.snap.Workers {
		for _, s := range w.Skills {
			available[strings.ToLower(s)] = true
		}
	}
	seen := map[string]bool{}
	for _, t := range p.snap.Tasks {
		for _, s := range t.RequiredSkills {
			skill := strings.ToLower(s)
			if seen[skill] {
				continue
			}
			seen[skill] = true
			if !available[skill] {
				p.rec.Warning(CheckSkillCoverage, domain.EntityTask, domain.SystemEntityID, "skillCoverage",
					fmt.Sprintf("No worker available with required skill: %s", skill))
			}
		}
	}

	for i, t := range p.snap.Tasks {
		if len(t.RequiredSkills) == 0 {
			continue
		}
		if qualifiedCount(t.RequiredSkills, p.snap.Workers) == 0 {
			p.rec.Error(CheckSkillCoverage, domain.EntityTask, validation.EntityKey(t.ID, i), "requiredSkills",
				fmt.Sprintf("No worker has all required skills: %s", strings.Join(t.RequiredSkills, ", ")))
		}
	}
}

func (v Validator) maxConcurrency(p pass) {
	for i, t := range p.snap.Tasks {
		if len(t.RequiredSkills) == 0 || t.MaxConcurrent == nil {
			continue
		}
		qualified := qualifiedCount(t.RequiredSkills, p.snap.Workers)
		if *t.MaxConcurrent > qualified {
			p.rec.Warning(CheckMaxConcurrency, domain.EntityTask, validation.EntityKey(t.ID, i), "maxConcurrent",
				fmt.Sprintf("MaxConcurrent (%d) exceeds number of qualified workers (%d)", *t.MaxConcurrent, qualified))
		}
	}
}
