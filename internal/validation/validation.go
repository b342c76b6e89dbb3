// Package validation implements the per-record field checks run on every
// upload or edit.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

// Check codes reported on basic findings.
const (
	CheckRequired       = "required"
	CheckDuplicateID    = "duplicate_id"
	CheckRange          = "range"
	CheckListShape      = "list_shape"
	CheckJSON           = "json"
	CheckEmail          = "email"
	CheckSkills         = "skills"
	CheckPhases         = "phases"
	CheckReference      = "reference"
	CheckSelfDependency = "self_dependency"
	CheckSkillCoverage  = "skill_coverage"
	CheckNumber         = "number"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator runs the basic field checks. It holds no state between calls and
// may be shared across goroutines.
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

// EntityKey is the entity id used on findings; records without an id are
// addressed by their row index.
func EntityKey(id string, index int) string {
	if strings.TrimSpace(id) == "" {
		return fmt.Sprintf("row-%d", index)
	}
	return id
}

func (v Validator) priorityOK(p int) bool {
	return p >= v.Checks.Priority.Min && p <= v.Checks.Priority.Max
}

// ValidateClients checks clients. RequestedTaskIDs resolve against refs.Tasks
// so a single edited client can be validated on its own.
func (v Validator) ValidateClients(clients []domain.Client, refs domain.Snapshot) []domain.Finding {
	rec := findings.NewRecorder(v.Stamper)
	taskIDs := idSet(refs.Tasks, func(t domain.Task) string { return t.ID })
	seen := map[string]bool{}
	const et = domain.EntityClient

	for i, c := range clients {
		key := EntityKey(c.ID, i)
		if strings.TrimSpace(c.ID) == "" {
			rec.Error(CheckRequired, et, key, "id", "ClientID is required")
		}
		if c.ID != "" && seen[c.ID] {
			rec.Error(CheckDuplicateID, et, key, "id", "Duplicate ClientID found")
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.Name) == "" {
			rec.Error(CheckRequired, et, key, "name", "ClientName is required")
		}
		if c.Priority != nil && !v.priorityOK(*c.Priority) {
			rec.Error(CheckRange, et, key, "priority",
				fmt.Sprintf("PriorityLevel must be between %d and %d", v.Checks.Priority.Min, v.Checks.Priority.Max))
		}
		malformedNumbers(rec, et, key, c.Coercion, "priority")
		if c.IsMalformed("requestedTaskIds") {
			rec.Error(CheckListShape, et, key, "requestedTaskIds", "RequestedTaskIDs must be a valid array")
		}
		if c.AttributesJSON != "" && !json.Valid([]byte(c.AttributesJSON)) {
			rec.Error(CheckJSON, et, key, "attributesJson", "Invalid JSON format in AttributesJSON")
		}
		if c.Email != "" && !emailPattern.MatchString(c.Email) {
			rec.Warning(CheckEmail, et, key, "email", "Invalid email format")
		}
		for _, id := range c.RequestedTaskIDs {
			if !taskIDs[id] {
				rec.Error(CheckReference, et, key, "requestedTaskIds",
					fmt.Sprintf("RequestedTaskIDs reference non-existent task: %s", id))
			}
		}
	}
	return rec.Findings()
}

func (v Validator) ValidateWorkers(workers []domain.Worker) []domain.Finding {
	rec := findings.NewRecorder(v.Stamper)
	seen := map[string]bool{}
	const et = domain.EntityWorker

	for i, w := range workers {
		key := EntityKey(w.ID, i)
		if strings.TrimSpace(w.ID) == "" {
			rec.Error(CheckRequired, et, key, "id", "WorkerID is required")
		}
		if w.ID != "" && seen[w.ID] {
			rec.Error(CheckDuplicateID, et, key, "id", "Duplicate WorkerID found")
		}
		seen[w.ID] = true
		if strings.TrimSpace(w.Name) == "" {
			rec.Error(CheckRequired, et, key, "name", "WorkerName is required")
		}
		if len(w.Skills) == 0 {
			rec.Warning(CheckSkills, et, key, "skills", "At least one skill is required")
		}
		switch {
		case w.IsMalformed("availableSlots") || !validPhases(w.AvailableSlots):
			rec.Error(CheckPhases, et, key, "availableSlots", "AvailableSlots must contain valid phase numbers (≥1)")
		case len(w.AvailableSlots) == 0:
			rec.Error(CheckPhases, et, key, "availableSlots", "AvailableSlots must contain at least one phase number")
		}
		malformedNumbers(rec, et, key, w.Coercion, "maxLoadPerPhase", "qualificationLevel")
		if w.MaxLoadPerPhase != nil && *w.MaxLoadPerPhase < 1 {
			rec.Error(CheckRange, et, key, "maxLoadPerPhase", "MaxLoadPerPhase must be at least 1")
		}
		if w.QualificationLevel != nil && *w.QualificationLevel < 0 {
			rec.Warning(CheckRange, et, key, "qualificationLevel", "QualificationLevel cannot be negative")
		}
		if w.Email != "" && !emailPattern.MatchString(w.Email) {
			rec.Warning(CheckEmail, et, key, "email", "Invalid email format")
		}
	}
	return rec.Findings()
}

// ValidateTasks checks tasks. Dependencies resolve against tasks and refs.Tasks;
// legacy client ids against refs.Clients; skill coverage against refs.Workers.
func (v Validator) ValidateTasks(tasks []domain.Task, refs domain.Snapshot) []domain.Finding {
	rec := findings.NewRecorder(v.Stamper)
	clientIDs := idSet(refs.Clients, func(c domain.Client) string { return c.ID })
	taskIDs := idSet(refs.Tasks, func(t domain.Task) string { return t.ID })
	for _, t := range tasks {
		if t.ID != "" {
			taskIDs[t.ID] = true
		}
	}
	seen := map[string]bool{}
	const et = domain.EntityTask

	for i, t := range tasks {
		key := EntityKey(t.ID, i)
		if strings.TrimSpace(t.ID) == "" {
			rec.Error(CheckRequired, et, key, "id", "TaskID is required")
		}
		if t.ID != "" && seen[t.ID] {
			rec.Error(CheckDuplicateID, et, key, "id", "Duplicate TaskID found")
		}
		seen[t.ID] = true
		if strings.TrimSpace(t.Name) == "" {
			rec.Error(CheckRequired, et, key, "name", "TaskName is required")
		}
		malformedNumbers(rec, et, key, t.Coercion, "duration", "maxConcurrent", "priority", "estimatedHours")
		if t.Duration != nil && *t.Duration < 1 {
			rec.Error(CheckRange, et, key, "duration", "Duration must be at least 1 phase")
		}
		if t.IsMalformed("requiredSkills") {
			rec.Error(CheckListShape, et, key, "requiredSkills", "RequiredSkills must be a valid array")
		}
		if t.MaxConcurrent != nil && *t.MaxConcurrent < 1 {
			rec.Error(CheckRange, et, key, "maxConcurrent", "MaxConcurrent must be at least 1")
		}
		if missing := uncoveredSkills(t.RequiredSkills, refs.Workers); len(missing) > 0 {
			rec.Warning(CheckSkillCoverage, et, key, "requiredSkills",
				fmt.Sprintf("No workers available with skills: %s", strings.Join(missing, ", ")))
		}
		if t.IsMalformed("preferredPhases") || !validPhases(t.PreferredPhases) {
			rec.Error(CheckPhases, et, key, "preferredPhases", "PreferredPhases must contain valid phase numbers (≥1)")
		}
		if t.ClientID != "" && !clientIDs[t.ClientID] {
			rec.Error(CheckReference, et, key, "clientId", "Referenced client does not exist")
		}
		if t.Priority != nil && !v.priorityOK(*t.Priority) {
			rec.Error(CheckRange, et, key, "priority",
				fmt.Sprintf("Priority must be between %d and %d", v.Checks.Priority.Min, v.Checks.Priority.Max))
		}
		for _, dep := range t.Dependencies {
			if !taskIDs[dep] {
				rec.Error(CheckReference, et, key, "dependencies", fmt.Sprintf("Invalid task dependency: %s", dep))
			}
		}
		if t.ID != "" && contains(t.Dependencies, t.ID) {
			rec.Error(CheckSelfDependency, et, key, "dependencies", "Task cannot depend on itself")
		}
		if t.AttributesJSON != "" && !json.Valid([]byte(t.AttributesJSON)) {
			rec.Error(CheckJSON, et, key, "attributesJson", "Invalid JSON format in AttributesJSON")
		}
	}
	return rec.Findings()
}

var numberLabels = map[string]string{
	"priority":           "Priority",
	"maxLoadPerPhase":    "MaxLoadPerPhase",
	"qualificationLevel": "QualificationLevel",
	"duration":           "Duration",
	"maxConcurrent":      "MaxConcurrent",
	"estimatedHours":     "EstimatedHours",
}

// malformedNumbers reports numeric fields whose raw value ingest could not
// read as a number. The parsed value is absent, so range checks stay silent.
func malformedNumbers(rec *findings.Recorder, et domain.EntityType, key string, c domain.Coercion, fields ...string) {
	for _, field := range fields {
		if c.IsMalformed(field) {
			rec.Error(CheckNumber, et, key, field, fmt.Sprintf("%s must be a number", numberLabels[field]))
		}
	}
}

// uncoveredSkills returns the required skills no worker has, matched case-insensitively.
func uncoveredSkills(required []string, workers []domain.Worker) []string {
	var missing []string
	for _, skill := range required {
		covered := false
		for _, w := range workers {
			if w.HasSkill(skill) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, skill)
		}
	}
	return missing
}

func validPhases(phases []int) bool {
	for _, p := range phases {
		if p < 1 {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func idSet[T any](items []T, id func(T) string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if k := id(it); k != "" {
			out[k] = true
		}
	}
	return out
}
