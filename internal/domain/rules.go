package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type RuleType string

const (
	RuleCoLocation      RuleType = "co-location"
	RuleSlotRestriction RuleType = "slot-restriction"
	RuleLoadLimit       RuleType = "load-limit"
	RulePhaseWindow     RuleType = "phase-window"
	RuleCustom          RuleType = "custom"
)

// RuleSpec is the closed set of business-rule variants. Callers switch on the
// concrete type; isRuleSpec keeps the set sealed to this package.
type RuleSpec interface {
	Type() RuleType
	isRuleSpec()
}

// CoLocationRule requires the listed tasks to run together.
type CoLocationRule struct {
	TaskIDs []string
}

// SlotRestrictionRule requires a client or worker group to share at least
// MinCommonSlots available phases.
type SlotRestrictionRule struct {
	GroupKind      EntityType
	Members        []string
	MinCommonSlots int
}

// LoadLimitRule caps how many slots per phase the listed workers may take.
// An empty Phases list applies the cap to every phase.
type LoadLimitRule struct {
	WorkerIDs        []string
	MaxSlotsPerPhase int
	Phases           []int
}

// PhaseWindowRule restricts a task to AllowedPhases. Strict windows must
// intersect the task's own preferred phases.
type PhaseWindowRule struct {
	TaskID        string
	AllowedPhases []int
	Strict        bool
}

// CustomRule carries free-form conditions that are only checked for JSON syntax.
type CustomRule struct {
	Pattern    string
	TaskIDs    []string
	Conditions string
}

func (CoLocationRule) Type() RuleType      { return RuleCoLocation }
func (SlotRestrictionRule) Type() RuleType { return RuleSlotRestriction }
func (LoadLimitRule) Type() RuleType       { return RuleLoadLimit }
func (PhaseWindowRule) Type() RuleType     { return RulePhaseWindow }
func (CustomRule) Type() RuleType          { return RuleCustom }

func (CoLocationRule) isRuleSpec()      {}
func (SlotRestrictionRule) isRuleSpec() {}
func (LoadLimitRule) isRuleSpec()       {}
func (PhaseWindowRule) isRuleSpec()     {}
func (CustomRule) isRuleSpec()          {}

type BusinessRule struct {
	ID          string
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	Spec        RuleSpec
}

// RuleDoc is the flat wire/config form of a BusinessRule. Only the fields that
// belong to Type are read when converting.
type RuleDoc struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name,omitempty" yaml:"name"`
	Description      string   `json:"description,omitempty" yaml:"description"`
	Type             RuleType `json:"type" yaml:"type" enum:"co-location,slot-restriction,load-limit,phase-window,custom"`
	Active           *bool    `json:"active,omitempty" yaml:"active"`
	CreatedAt        string   `json:"createdAt,omitempty" yaml:"created_at" format:"date-time"`
	Tasks            []string `json:"tasks,omitempty" yaml:"tasks"`
	Workers          []string `json:"workers,omitempty" yaml:"workers"`
	Clients          []string `json:"clients,omitempty" yaml:"clients"`
	GroupKind        string   `json:"groupKind,omitempty" yaml:"group_kind"`
	MinCommonSlots   int      `json:"minCommonSlots,omitempty" yaml:"min_common_slots"`
	MaxSlotsPerPhase int      `json:"maxSlotsPerPhase,omitempty" yaml:"max_slots_per_phase"`
	Phases           []int    `json:"phases,omitempty" yaml:"phases"`
	TaskID           string   `json:"taskId,omitempty" yaml:"task_id"`
	AllowedPhases    []int    `json:"allowedPhases,omitempty" yaml:"allowed_phases"`
	Strict           bool     `json:"strict,omitempty" yaml:"strict"`
	Pattern          string   `json:"pattern,omitempty" yaml:"pattern"`
	Conditions       string   `json:"conditions,omitempty" yaml:"conditions"`
}

// Rule converts the flat form into a BusinessRule with a typed Spec.
func (d RuleDoc) Rule() (BusinessRule, error) {
	if strings.TrimSpace(d.ID) == "" {
		return BusinessRule{}, fmt.Errorf("rule id is required")
	}
	r := BusinessRule{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active == nil || *d.Active,
	}
	if d.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, d.CreatedAt)
		if err != nil {
			return BusinessRule{}, fmt.Errorf("rule %s: invalid createdAt: %w", d.ID, err)
		}
		r.CreatedAt = ts
	}
	switch d.Type {
	case RuleCoLocation:
		r.Spec = CoLocationRule{TaskIDs: d.Tasks}
	case RuleSlotRestriction:
		kind, ok := ParseEntityType(d.GroupKind)
		if !ok || kind == EntityTask {
			return BusinessRule{}, fmt.Errorf("rule %s: group kind must be clients or workers", d.ID)
		}
		members := d.Workers
		if kind == EntityClient {
			members = d.Clients
		}
		r.Spec = SlotRestrictionRule{GroupKind: kind, Members: members, MinCommonSlots: d.MinCommonSlots}
	case RuleLoadLimit:
		r.Spec = LoadLimitRule{WorkerIDs: d.Workers, MaxSlotsPerPhase: d.MaxSlotsPerPhase, Phases: d.Phases}
	case RulePhaseWindow:
		r.Spec = PhaseWindowRule{TaskID: d.TaskID, AllowedPhases: d.AllowedPhases, Strict: d.Strict}
	case RuleCustom:
		r.Spec = CustomRule{Pattern: d.Pattern, TaskIDs: d.Tasks, Conditions: d.Conditions}
	default:
		return BusinessRule{}, fmt.Errorf("rule %s: unknown rule type %q", d.ID, d.Type)
	}
	return r, nil
}

// Doc returns the flat form of r.
func (r BusinessRule) Doc() RuleDoc {
	active := r.Active
	d := RuleDoc{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Active:      &active,
	}
	if !r.CreatedAt.IsZero() {
		d.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	switch s := r.Spec.(type) {
	case CoLocationRule:
		d.Type = RuleCoLocation
		d.Tasks = s.TaskIDs
	case SlotRestrictionRule:
		d.Type = RuleSlotRestriction
		d.GroupKind = string(s.GroupKind) + "s"
		if s.GroupKind == EntityClient {
			d.Clients = s.Members
		} else {
			d.Workers = s.Members
		}
		d.MinCommonSlots = s.MinCommonSlots
	case LoadLimitRule:
		d.Type = RuleLoadLimit
		d.Workers = s.WorkerIDs
		d.MaxSlotsPerPhase = s.MaxSlotsPerPhase
		d.Phases = s.Phases
	case PhaseWindowRule:
		d.Type = RulePhaseWindow
		d.TaskID = s.TaskID
		d.AllowedPhases = s.AllowedPhases
		d.Strict = s.Strict
	case CustomRule:
		d.Type = RuleCustom
		d.Pattern = s.Pattern
		d.Tasks = s.TaskIDs
		d.Conditions = s.Conditions
	}
	return d
}

func (r BusinessRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Doc())
}

func (r *BusinessRule) UnmarshalJSON(data []byte) error {
	var d RuleDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := d.Rule()
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// PrioritizationWeights are the relative importance sliders used by allocation.
type PrioritizationWeights struct {
	PriorityLevel float64 `json:"priorityLevel" yaml:"priority_level" minimum:"0" maximum:"100"`
	Fulfillment   float64 `json:"fulfillment" yaml:"fulfillment" minimum:"0" maximum:"100"`
	Fairness      float64 `json:"fairness" yaml:"fairness" minimum:"0" maximum:"100"`
	Efficiency    float64 `json:"efficiency" yaml:"efficiency" minimum:"0" maximum:"100"`
	SkillMatch    float64 `json:"skillMatch" yaml:"skill_match" minimum:"0" maximum:"100"`
}

func DefaultWeights() PrioritizationWeights {
	return PrioritizationWeights{
		PriorityLevel: 30,
		Fulfillment:   25,
		Fairness:      20,
		Efficiency:    15,
		SkillMatch:    10,
	}
}

// Weight criteria in their default rank order.
const (
	CriterionPriorityLevel = "priorityLevel"
	CriterionFulfillment   = "fulfillment"
	CriterionFairness      = "fairness"
	CriterionEfficiency    = "efficiency"
	CriterionSkillMatch    = "skillMatch"
)

// WeightTotal is the sum every weight set must reach.
const WeightTotal = 100

func Criteria() []string {
	return []string{CriterionPriorityLevel, CriterionFulfillment, CriterionFairness, CriterionEfficiency, CriterionSkillMatch}
}

func (w PrioritizationWeights) values() map[string]float64 {
	return map[string]float64{
		CriterionPriorityLevel: w.PriorityLevel,
		CriterionFulfillment:   w.Fulfillment,
		CriterionFairness:      w.Fairness,
		CriterionEfficiency:    w.Efficiency,
		CriterionSkillMatch:    w.SkillMatch,
	}
}

func (w *PrioritizationWeights) set(criterion string, v float64) {
	switch criterion {
	case CriterionPriorityLevel:
		w.PriorityLevel = v
	case CriterionFulfillment:
		w.Fulfillment = v
	case CriterionFairness:
		w.Fairness = v
	case CriterionEfficiency:
		w.Efficiency = v
	case CriterionSkillMatch:
		w.SkillMatch = v
	}
}

func (w PrioritizationWeights) Total() float64 {
	return w.PriorityLevel + w.Fulfillment + w.Fairness + w.Efficiency + w.SkillMatch
}

// Validate checks every weight lies in [0,100] and the weights total 100.
func (w PrioritizationWeights) Validate() error {
	values := w.values()
	for _, name := range Criteria() {
		if v := values[name]; v < 0 || v > 100 {
			return fmt.Errorf("weight %s must be between 0 and 100", name)
		}
	}
	if total := w.Total(); math.Abs(total-WeightTotal) > 1e-6 {
		return fmt.Errorf("weights must total %d, got %g", WeightTotal, total)
	}
	return nil
}

func knownCriterion(name string) bool {
	for _, c := range Criteria() {
		if c == name {
			return true
		}
	}
	return false
}

var rankingWeights = []float64{40, 30, 20, 7, 3}

// WeightsFromRanking assigns 40/30/20/7/3 to the criteria in order of
// importance. order must list every criterion exactly once.
func WeightsFromRanking(order []string) (PrioritizationWeights, error) {
	var w PrioritizationWeights
	if len(order) != len(rankingWeights) {
		return w, fmt.Errorf("ranking must list all %d criteria, got %d", len(rankingWeights), len(order))
	}
	seen := map[string]bool{}
	for i, name := range order {
		if !knownCriterion(name) {
			return w, fmt.Errorf("unknown criterion %q", name)
		}
		if seen[name] {
			return w, fmt.Errorf("criterion %q ranked twice", name)
		}
		seen[name] = true
		w.set(name, rankingWeights[i])
	}
	return w, nil
}

// Comparison records a preference between two criteria on a -3..3 scale.
// Negative values favor First, positive values favor Second, zero is a tie.
type Comparison struct {
	First      string `json:"first" yaml:"first"`
	Second     string `json:"second" yaml:"second"`
	Preference int    `json:"preference,omitempty" yaml:"preference"`
}

// WeightsFromPairwise scores each criterion by the strength of the
// preferences it wins, half a point each on ties, then rounds the shares to
// whole percentages. Any rounding remainder goes to priorityLevel.
func WeightsFromPairwise(list []Comparison) (PrioritizationWeights, error) {
	var w PrioritizationWeights
	scores := map[string]float64{}
	for i, c := range list {
		if !knownCriterion(c.First) || !knownCriterion(c.Second) {
			return w, fmt.Errorf("comparison %d: unknown criterion", i+1)
		}
		if c.First == c.Second {
			return w, fmt.Errorf("comparison %d: %s compared with itself", i+1, c.First)
		}
		if c.Preference < -3 || c.Preference > 3 {
			return w, fmt.Errorf("comparison %d: preference must be between -3 and 3", i+1)
		}
		switch {
		case c.Preference < 0:
			scores[c.First] += float64(-c.Preference)
		case c.Preference > 0:
			scores[c.Second] += float64(c.Preference)
		default:
			scores[c.First] += 0.5
			scores[c.Second] += 0.5
		}
	}
	total := 0.0
	for _, v := range scores {
		total += v
	}
	if total == 0 {
		return w, fmt.Errorf("at least one comparison is required")
	}
	for _, name := range Criteria() {
		w.set(name, math.Round(scores[name]/total*WeightTotal))
	}
	w.PriorityLevel += WeightTotal - w.Total()
	return w, nil
}

// Normalized scales the weights so they sum to 1. Zero totals are returned unchanged.
func (w PrioritizationWeights) Normalized() PrioritizationWeights {
	total := w.Total()
	if total == 0 {
		return w
	}
	return PrioritizationWeights{
		PriorityLevel: w.PriorityLevel / total,
		Fulfillment:   w.Fulfillment / total,
		Fairness:      w.Fairness / total,
		Efficiency:    w.Efficiency / total,
		SkillMatch:    w.SkillMatch / total,
	}
}
