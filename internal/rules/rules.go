// Package rules checks business rules against the current snapshot.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"

	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

const (
	CheckRuleShape       = "rule_shape"
	CheckRuleReference   = "rule_reference"
	CheckRuleFeasibility = "rule_feasibility"
)

// Checker validates rules; like the validators it holds no pass state.
type Checker struct {
	Stamper findings.Stamper
}

type ruleCtx struct {
	rec   *findings.Recorder
	rule  domain.BusinessRule
	field string
	index index
}

type index struct {
	clients map[string]domain.Client
	workers map[string]domain.Worker
	tasks   map[string]domain.Task
	staffed map[int]bool
}

func buildIndex(s domain.Snapshot) index {
	idx := index{
		clients: map[string]domain.Client{},
		workers: map[string]domain.Worker{},
		tasks:   map[string]domain.Task{},
		staffed: map[int]bool{},
	}
	for _, c := range s.Clients {
		if _, ok := idx.clients[c.ID]; !ok && c.ID != "" {
			idx.clients[c.ID] = c
		}
	}
	for _, w := range s.Workers {
		if _, ok := idx.workers[w.ID]; !ok && w.ID != "" {
			idx.workers[w.ID] = w
		}
		for _, p := range w.AvailableSlots {
			idx.staffed[p] = true
		}
	}
	for _, t := range s.Tasks {
		if _, ok := idx.tasks[t.ID]; !ok && t.ID != "" {
			idx.tasks[t.ID] = t
		}
	}
	return idx
}

func (c ruleCtx) errorf(et domain.EntityType, id, check, format string, args ...any) {
	c.rec.Error(check, et, id, c.field, fmt.Sprintf("Rule '%s': ", c.rule.ID)+fmt.Sprintf(format, args...))
}

func (c ruleCtx) warnf(et domain.EntityType, id, check, format string, args ...any) {
	c.rec.Warning(check, et, id, c.field, fmt.Sprintf("Rule '%s': ", c.rule.ID)+fmt.Sprintf(format, args...))
}

func (c ruleCtx) infof(et domain.EntityType, id, check, format string, args ...any) {
	c.rec.Info(check, et, id, c.field, fmt.Sprintf("Rule '%s': ", c.rule.ID)+fmt.Sprintf(format, args...))
}

// Check reports rule findings in rule order. Inactive rules are skipped; a
// repeated rule id is reported once per repeat.
func (ch Checker) Check(list []domain.BusinessRule, snap domain.Snapshot) []domain.Finding {
	rec := findings.NewRecorder(ch.Stamper)
	idx := buildIndex(snap)
	seen := map[string]bool{}
	for _, r := range list {
		c := ruleCtx{rec: rec, rule: r, field: "rule:" + r.ID, index: idx}
		if seen[r.ID] {
			c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "duplicate rule id")
		}
		seen[r.ID] = true
		if !r.Active {
			continue
		}
		switch s := r.Spec.(type) {
		case domain.CoLocationRule:
			c.coLocation(s)
		case domain.SlotRestrictionRule:
			c.slotRestriction(s)
		case domain.LoadLimitRule:
			c.loadLimit(s)
		case domain.PhaseWindowRule:
			c.phaseWindow(s)
		case domain.CustomRule:
			c.custom(s)
		default:
			c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "unsupported rule type %T", r.Spec)
		}
	}
	return rec.Findings()
}

func (c ruleCtx) knownTasks(ids []string) []domain.Task {
	var out []domain.Task
	for _, id := range ids {
		t, ok := c.index.tasks[id]
		if !ok {
			c.errorf(domain.EntityTask, id, CheckRuleReference, "unknown task '%s'", id)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (c ruleCtx) knownWorkers(ids []string) []domain.Worker {
	var out []domain.Worker
	for _, id := range ids {
		w, ok := c.index.workers[id]
		if !ok {
			c.errorf(domain.EntityWorker, id, CheckRuleReference, "unknown worker '%s'", id)
			continue
		}
		out = append(out, w)
	}
	return out
}

func (c ruleCtx) coLocation(s domain.CoLocationRule) {
	if len(s.TaskIDs) < 2 {
		c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "co-location needs at least two tasks")
	}
	c.knownTasks(s.TaskIDs)
}

func (c ruleCtx) slotRestriction(s domain.SlotRestrictionRule) {
	if s.MinCommonSlots < 1 {
		c.errorf(s.GroupKind, domain.SystemEntityID, CheckRuleShape, "min common slots must be at least 1")
	}
	if len(s.Members) == 0 {
		c.errorf(s.GroupKind, domain.SystemEntityID, CheckRuleShape, "group has no members")
		return
	}
	if s.GroupKind == domain.EntityClient {
		for _, id := range s.Members {
			if _, ok := c.index.clients[id]; !ok {
				c.errorf(domain.EntityClient, id, CheckRuleReference, "unknown client '%s'", id)
			}
		}
		return
	}
	members := c.knownWorkers(s.Members)
	if len(members) == 0 || s.MinCommonSlots < 1 {
		return
	}
	common := commonSlots(members)
	if len(common) < s.MinCommonSlots {
		c.warnf(domain.EntityWorker, domain.SystemEntityID, CheckRuleFeasibility,
			"workers share %d common slots but %d are required", len(common), s.MinCommonSlots)
	}
}

func (c ruleCtx) loadLimit(s domain.LoadLimitRule) {
	if s.MaxSlotsPerPhase < 1 {
		c.errorf(domain.EntityWorker, domain.SystemEntityID, CheckRuleShape, "max slots per phase must be at least 1")
	}
	members := c.knownWorkers(s.WorkerIDs)
	if len(members) == 0 {
		return
	}
	for _, phase := range s.Phases {
		available := false
		for _, w := range members {
			if w.AvailableIn(phase) {
				available = true
				break
			}
		}
		if !available {
			c.warnf(domain.EntityWorker, domain.SystemEntityID, CheckRuleFeasibility,
				"no listed worker is available in phase %d", phase)
		}
	}
	binding := false
	for _, w := range members {
		if s.MaxSlotsPerPhase < w.Load() {
			binding = true
			break
		}
	}
	if !binding && s.MaxSlotsPerPhase >= 1 {
		c.infof(domain.EntityWorker, domain.SystemEntityID, CheckRuleFeasibility,
			"limit %d does not restrict any worker below its MaxLoadPerPhase", s.MaxSlotsPerPhase)
	}
}

func (c ruleCtx) phaseWindow(s domain.PhaseWindowRule) {
	if len(s.AllowedPhases) == 0 {
		c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "phase window allows no phases")
	}
	for _, phase := range s.AllowedPhases {
		if phase < 1 {
			c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "phase %d is not a valid phase number", phase)
		} else if !c.index.staffed[phase] {
			c.warnf(domain.EntityTask, domain.SystemEntityID, CheckRuleFeasibility, "no worker is available in phase %d", phase)
		}
	}
	t, ok := c.index.tasks[s.TaskID]
	if !ok {
		c.errorf(domain.EntityTask, s.TaskID, CheckRuleReference, "unknown task '%s'", s.TaskID)
		return
	}
	if s.Strict && len(t.PreferredPhases) > 0 && len(s.AllowedPhases) > 0 && !intersects(t.PreferredPhases, s.AllowedPhases) {
		c.errorf(domain.EntityTask, t.ID, CheckRuleFeasibility, "strict window %v excludes every preferred phase of task '%s'", s.AllowedPhases, t.ID)
	}
}

func (c ruleCtx) custom(s domain.CustomRule) {
	if s.Conditions != "" && !json.Valid([]byte(s.Conditions)) {
		c.errorf(domain.EntityTask, domain.SystemEntityID, CheckRuleShape, "conditions are not valid JSON")
	}
	c.knownTasks(s.TaskIDs)
}

func commonSlots(workers []domain.Worker) []int {
	counts := map[int]int{}
	for _, w := range workers {
		seen := map[int]bool{}
		for _, p := range w.AvailableSlots {
			if !seen[p] {
				seen[p] = true
				counts[p]++
			}
		}
	}
	var out []int
	for p, n := range counts {
		if n == len(workers) {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func intersects(a, b []int) bool {
	in := map[int]bool{}
	for _, x := range a {
		in[x] = true
	}
	for _, x := range b {
		if in[x] {
			return true
		}
	}
	return false
}
