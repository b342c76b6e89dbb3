package consistency

import (
	"encoding/json"
	"fmt"
	"strings"

	"alchemist/internal/domain"
	"alchemist/internal/validation"
)

func (v Validator) missingColumns(p pass) {
	missing := func(et domain.EntityType, key, field, column string) {
		p.rec.Error(CheckMissingColumn, et, key, field, "Missing required column: "+column)
	}
	for i, c := range p.snap.Clients {
		key := validation.EntityKey(c.ID, i)
		if blank(c.ID) {
			missing(domain.EntityClient, key, "id", "ClientID")
		}
		if blank(c.Name) {
			missing(domain.EntityClient, key, "name", "ClientName")
		}
		if c.Priority == nil {
			missing(domain.EntityClient, key, "priority", "PriorityLevel")
		}
	}
	for i, w := range p.snap.Workers {
		key := validation.EntityKey(w.ID, i)
		if blank(w.ID) {
			missing(domain.EntityWorker, key, "id", "WorkerID")
		}
		if blank(w.Name) {
			missing(domain.EntityWorker, key, "name", "WorkerName")
		}
		if len(w.Skills) == 0 {
			missing(domain.EntityWorker, key, "skills", "Skills")
		}
		if len(w.AvailableSlots) == 0 {
			missing(domain.EntityWorker, key, "availableSlots", "AvailableSlots")
		}
		if w.MaxLoadPerPhase == nil {
			missing(domain.EntityWorker, key, "maxLoadPerPhase", "MaxLoadPerPhase")
		}
	}
	for i, t := range p.snap.Tasks {
		key := validation.EntityKey(t.ID, i)
		if blank(t.ID) {
			missing(domain.EntityTask, key, "id", "TaskID")
		}
		if blank(t.Name) {
			missing(domain.EntityTask, key, "name", "TaskName")
		}
		if t.Duration == nil {
			missing(domain.EntityTask, key, "duration", "Duration")
		}
		if t.MaxConcurrent == nil {
			missing(domain.EntityTask, key, "maxConcurrent", "MaxConcurrent")
		}
	}
}

func (v Validator) duplicateIDs(p pass) {
	dup := func(et domain.EntityType, ids []string, label string) {
		seen := map[string]bool{}
		for _, id := range ids {
			if id != "" && seen[id] {
				p.rec.Error(CheckDuplicateID, et, id, "id", fmt.Sprintf("Duplicate %s found", label))
			}
			seen[id] = true
		}
	}
	dup(domain.EntityClient, clientIDs(p.snap.Clients), "ClientID")
	dup(domain.EntityWorker, workerIDs(p.snap.Workers), "WorkerID")
	dup(domain.EntityTask, taskIDs(p.snap.Tasks), "TaskID")
}

func (v Validator) malformedLists(p pass) {
	report := func(et domain.EntityType, key string, c domain.Coercion, fields ...string) {
		for _, field := range fields {
			if c.IsMalformed(field) {
				p.rec.Error(CheckMalformedList, et, key, field, fmt.Sprintf("%s must be a valid array/list", columnLabel(field)))
			}
		}
	}
	for i, w := range p.snap.Workers {
		report(domain.EntityWorker, validation.EntityKey(w.ID, i), w.Coercion, "skills", "availableSlots")
	}
	for i, t := range p.snap.Tasks {
		report(domain.EntityTask, validation.EntityKey(t.ID, i), t.Coercion, "requiredSkills", "dependencies", "preferredPhases")
	}
}

func (v Validator) outOfRange(p pass) {
	lo, hi := v.Checks.Priority.Min, v.Checks.Priority.Max
	for i, c := range p.snap.Clients {
		if c.Priority != nil && (*c.Priority < lo || *c.Priority > hi) {
			p.rec.Error(CheckOutOfRange, domain.EntityClient, validation.EntityKey(c.ID, i), "priority",
				fmt.Sprintf("PriorityLevel must be between %d-%d", lo, hi))
		}
	}
	for i, t := range p.snap.Tasks {
		key := validation.EntityKey(t.ID, i)
		if t.Priority != nil && (*t.Priority < lo || *t.Priority > hi) {
			p.rec.Error(CheckOutOfRange, domain.EntityTask, key, "priority",
				fmt.Sprintf("Priority level must be between %d-%d", lo, hi))
		}
		if t.Duration != nil && *t.Duration < 1 {
			p.rec.Error(CheckOutOfRange, domain.EntityTask, key, "duration", "Duration must be at least 1")
		}
		if t.MaxConcurrent != nil && *t.MaxConcurrent < 1 {
			p.rec.Error(CheckOutOfRange, domain.EntityTask, key, "maxConcurrent", "MaxConcurrent must be at least 1")
		}
		if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
			p.rec.Error(CheckOutOfRange, domain.EntityTask, key, "estimatedHours", "Estimated hours cannot be negative")
		}
	}
}

func (v Validator) brokenJSON(p pass) {
	broken := func(et domain.EntityType, key, raw string) {
		if raw != "" && !json.Valid([]byte(raw)) {
			p.rec.Error(CheckBrokenJSON, et, key, "attributesJson", "Invalid JSON format in AttributesJSON")
		}
	}
	for i, c := range p.snap.Clients {
		broken(domain.EntityClient, validation.EntityKey(c.ID, i), c.AttributesJSON)
	}
	for i, w := range p.snap.Workers {
		broken(domain.EntityWorker, validation.EntityKey(w.ID, i), w.AttributesJSON)
	}
	for i, t := range p.snap.Tasks {
		broken(domain.EntityTask, validation.EntityKey(t.ID, i), t.AttributesJSON)
	}
}

func columnLabel(field string) string {
	switch field {
	case "availableSlots":
		return "AvailableSlots"
	case "requiredSkills":
		return "RequiredSkills"
	case "preferredPhases":
		return "PreferredPhases"
	default:
		return strings.ToUpper(field[:1]) + field[1:]
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func clientIDs(cs []domain.Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func workerIDs(ws []domain.Worker) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func taskIDs(ts []domain.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func set(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			out[id] = true
		}
	}
	return out
}
