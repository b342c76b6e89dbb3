package findings

import (
	"sort"

	"alchemist/internal/domain"
)

// Counts tallies findings by severity.
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Total    int `json:"total"`
}

func (c *Counts) add(sev domain.Severity) {
	c.Total++
	switch sev {
	case domain.SeverityError:
		c.Errors++
	case domain.SeverityWarning:
		c.Warnings++
	case domain.SeverityInfo:
		c.Infos++
	}
}

type FieldSummary struct {
	Field string `json:"field"`
	Counts
}

type EntitySummary struct {
	EntityType domain.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Counts
	Fields []FieldSummary `json:"fields"`
}

// Summary is the badge view of a finding list: overall counts plus a
// deterministic grouping by entity and field.
type Summary struct {
	Counts
	Entities []EntitySummary `json:"entities"`
}

// Count tallies findings by severity without grouping.
func Count(list []domain.Finding) Counts {
	var c Counts
	for _, f := range list {
		c.add(f.Severity)
	}
	return c
}

// Summarize builds counts and entity/field groupings for list.
func Summarize(list []domain.Finding) Summary {
	ordered := sortFindings(list)
	summary := Summary{Entities: make([]EntitySummary, 0)}

	entityIndex := -1
	fieldIndex := -1
	for _, f := range ordered {
		summary.add(f.Severity)

		if entityIndex < 0 || summary.Entities[entityIndex].EntityType != f.EntityType || summary.Entities[entityIndex].EntityID != f.EntityID {
			summary.Entities = append(summary.Entities, EntitySummary{
				EntityType: f.EntityType,
				EntityID:   f.EntityID,
				Fields:     make([]FieldSummary, 0),
			})
			entityIndex = len(summary.Entities) - 1
			fieldIndex = -1
		}
		entity := &summary.Entities[entityIndex]
		entity.add(f.Severity)

		if fieldIndex < 0 || entity.Fields[fieldIndex].Field != f.Field {
			entity.Fields = append(entity.Fields, FieldSummary{Field: f.Field})
			fieldIndex = len(entity.Fields) - 1
		}
		entity.Fields[fieldIndex].add(f.Severity)
	}
	return summary
}

// HasBlocking reports whether list contains at least one error.
func HasBlocking(list []domain.Finding) bool {
	for _, f := range list {
		if f.Severity == domain.SeverityError {
			return true
		}
	}
	return false
}

// Filter selects findings; empty fields match everything.
type Filter struct {
	EntityType domain.EntityType
	EntityID   string
	Field      string
	Severity   domain.Severity
}

func (flt Filter) Match(f domain.Finding) bool {
	if flt.EntityType != "" && f.EntityType != flt.EntityType {
		return false
	}
	if flt.EntityID != "" && f.EntityID != flt.EntityID {
		return false
	}
	if flt.Field != "" && f.Field != flt.Field {
		return false
	}
	if flt.Severity != "" && f.Severity != flt.Severity {
		return false
	}
	return true
}

// Apply returns the findings matching flt, preserving order.
func (flt Filter) Apply(list []domain.Finding) []domain.Finding {
	out := make([]domain.Finding, 0, len(list))
	for _, f := range list {
		if flt.Match(f) {
			out = append(out, f)
		}
	}
	return out
}

func sortFindings(list []domain.Finding) []domain.Finding {
	ordered := append([]domain.Finding(nil), list...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.EntityType != b.EntityType {
			return entityRank(a.EntityType) < entityRank(b.EntityType)
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		return severityRank(a.Severity) < severityRank(b.Severity)
	})
	return ordered
}

func entityRank(et domain.EntityType) int {
	switch et {
	case domain.EntityClient:
		return 0
	case domain.EntityWorker:
		return 1
	case domain.EntityTask:
		return 2
	default:
		return 3
	}
}

func severityRank(sev domain.Severity) int {
	switch sev {
	case domain.SeverityError:
		return 0
	case domain.SeverityWarning:
		return 1
	default:
		return 2
	}
}
