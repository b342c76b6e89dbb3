package domain

import (
	"strings"
	"time"
)

// EntityType names one of the three validated collections.
type EntityType string

const (
	EntityClient EntityType = "client"
	EntityWorker EntityType = "worker"
	EntityTask   EntityType = "task"
)

// ParseEntityType accepts singular or plural names ("task", "tasks").
func ParseEntityType(s string) (EntityType, bool) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "client":
		return EntityClient, true
	case "worker":
		return EntityWorker, true
	case "task":
		return EntityTask, true
	default:
		return "", false
	}
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// SystemEntityID marks findings that concern a whole collection rather than one record.
const SystemEntityID = "system"

// Coercion records fields whose raw value could not be coerced into the declared type
// by the ingest layer. Validators use it to re-check the shape of list fields.
type Coercion struct {
	Malformed []string `json:"malformedFields,omitempty"`
}

// IsMalformed reports whether field was marked malformed during ingest.
func (c Coercion) IsMalformed(field string) bool {
	for _, f := range c.Malformed {
		if f == field {
			return true
		}
	}
	return false
}

// MarkMalformed adds field to the malformed list once.
func (c *Coercion) MarkMalformed(field string) {
	if c.IsMalformed(field) {
		return
	}
	c.Malformed = append(c.Malformed, field)
}

type Client struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Address          string   `json:"address,omitempty"`
	Priority         *int     `json:"priority,omitempty"`
	RequestedTaskIDs []string `json:"requestedTaskIds,omitempty"`
	GroupTag         string   `json:"groupTag,omitempty"`
	AttributesJSON   string   `json:"attributesJson,omitempty"`
	Coercion
}

type Worker struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Email              string   `json:"email,omitempty"`
	Skills             []string `json:"skills,omitempty"`
	AvailableSlots     []int    `json:"availableSlots,omitempty"`
	MaxLoadPerPhase    *int     `json:"maxLoadPerPhase,omitempty"`
	WorkerGroup        string   `json:"workerGroup,omitempty"`
	QualificationLevel *int     `json:"qualificationLevel,omitempty"`
	AttributesJSON     string   `json:"attributesJson,omitempty"`
	Coercion
}

// Load returns MaxLoadPerPhase, treating an absent value as zero capacity.
func (w Worker) Load() int {
	if w.MaxLoadPerPhase == nil {
		return 0
	}
	return *w.MaxLoadPerPhase
}

// AvailableIn reports whether phase is one of the worker's available slots.
func (w Worker) AvailableIn(phase int) bool {
	for _, p := range w.AvailableSlots {
		if p == phase {
			return true
		}
	}
	return false
}

// HasSkill matches skill case-insensitively.
func (w Worker) HasSkill(skill string) bool {
	for _, s := range w.Skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// Qualifies reports whether the worker possesses every skill in required.
func (w Worker) Qualifies(required []string) bool {
	for _, skill := range required {
		if !w.HasSkill(skill) {
			return false
		}
	}
	return true
}

type Task struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Category        string   `json:"category,omitempty"`
	Duration        *int     `json:"duration,omitempty"`
	RequiredSkills  []string `json:"requiredSkills,omitempty"`
	PreferredPhases []int    `json:"preferredPhases,omitempty"`
	MaxConcurrent   *int     `json:"maxConcurrent,omitempty"`
	Dependencies    []string `json:"dependencies,omitempty"`
	// ClientID and Priority are legacy columns still present in older uploads.
	ClientID       string   `json:"clientId,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimatedHours,omitempty"`
	AttributesJSON string   `json:"attributesJson,omitempty"`
	Coercion
}

// Length returns Duration, treating an absent value as zero phases.
func (t Task) Length() int {
	if t.Duration == nil {
		return 0
	}
	return *t.Duration
}

// Snapshot is one consistent view of the three collections handed to a validation pass.
type Snapshot struct {
	Clients []Client `json:"clients"`
	Workers []Worker `json:"workers"`
	Tasks   []Task   `json:"tasks"`
}

// Clone returns a deep copy so callers can mutate without affecting a running pass.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Clients: make([]Client, len(s.Clients)),
		Workers: make([]Worker, len(s.Workers)),
		Tasks:   make([]Task, len(s.Tasks)),
	}
	for i, c := range s.Clients {
		c.RequestedTaskIDs = cloneStrings(c.RequestedTaskIDs)
		c.Priority = cloneInt(c.Priority)
		c.Malformed = cloneStrings(c.Malformed)
		out.Clients[i] = c
	}
	for i, w := range s.Workers {
		w.Skills = cloneStrings(w.Skills)
		w.AvailableSlots = cloneInts(w.AvailableSlots)
		w.MaxLoadPerPhase = cloneInt(w.MaxLoadPerPhase)
		w.QualificationLevel = cloneInt(w.QualificationLevel)
		w.Malformed = cloneStrings(w.Malformed)
		out.Workers[i] = w
	}
	for i, t := range s.Tasks {
		t.Duration = cloneInt(t.Duration)
		t.RequiredSkills = cloneStrings(t.RequiredSkills)
		t.PreferredPhases = cloneInts(t.PreferredPhases)
		t.MaxConcurrent = cloneInt(t.MaxConcurrent)
		t.Dependencies = cloneStrings(t.Dependencies)
		t.Priority = cloneInt(t.Priority)
		if t.EstimatedHours != nil {
			h := *t.EstimatedHours
			t.EstimatedHours = &h
		}
		t.Malformed = cloneStrings(t.Malformed)
		out.Tasks[i] = t
	}
	return out
}

// Finding is one data-quality observation produced by a validation pass.
type Finding struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entityType" enum:"client,worker,task"`
	EntityID   string     `json:"entityId"`
	Field      string     `json:"field"`
	Message    string     `json:"message"`
	Severity   Severity   `json:"severity" enum:"error,warning,info"`
	Check      string     `json:"check"`
	Timestamp  time.Time  `json:"timestamp" format:"date-time"`
}

// Int returns a pointer to v; handy for optional numeric columns.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	return append([]int(nil), in...)
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
