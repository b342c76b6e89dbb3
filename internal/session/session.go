// Package session holds the working state of one data-cleaning session: the
// three collections, the latest findings, business rules and prioritization
// weights. Every mutation re-validates what it touched.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"alchemist/internal/domain"
	"alchemist/internal/engine"
	"alchemist/internal/events"
	"alchemist/internal/export"
	"alchemist/internal/findings"
	"alchemist/internal/ingest"
	"alchemist/internal/validation"
)

var ErrRecordNotFound = errors.New("record not found")

type Session struct {
	ID     string
	Engine engine.Engine
	Events *events.Writer

	mu      sync.RWMutex
	snap    domain.Snapshot
	rules   []domain.BusinessRule
	weights domain.PrioritizationWeights
	store   findings.Store
}

// New starts an empty session with weights taken from the engine config.
func New(eng engine.Engine, ev *events.Writer) *Session {
	s := &Session{ID: uuid.NewString(), Engine: eng, Events: ev}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.snap = domain.Snapshot{Clients: []domain.Client{}, Workers: []domain.Worker{}, Tasks: []domain.Task{}}
	s.rules = nil
	s.weights = domain.DefaultWeights()
	if s.Engine.Config != nil && s.Engine.Config.Weights.Validate() == nil {
		s.weights = s.Engine.Config.Weights
	}
	s.store.Reset()
}

func (s *Session) record(evtType, kind, id string, payload events.EventPayload) {
	if err := s.Events.Append(evtType, s.ID, kind, id, payload); err != nil {
		s.Engine.Log().Printf("activity log: %v", err)
	}
}

// Snapshot returns a deep copy of the current collections.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Load replaces all three collections and re-validates everything.
func (s *Session) Load(snap domain.Snapshot) engine.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	report := s.validateLocked()
	s.record(events.TypeCollectionReplaced, "", "", events.EventPayload{
		"clients": len(snap.Clients), "workers": len(snap.Workers), "tasks": len(snap.Tasks),
		"errors": report.Summary.Errors,
	})
	return report
}

// ReplaceCollection swaps collection et for the one in from and re-validates
// the whole snapshot.
func (s *Session) ReplaceCollection(et domain.EntityType, from domain.Snapshot) (engine.Report, error) {
	from = from.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	switch et {
	case domain.EntityClient:
		s.snap.Clients, n = from.Clients, len(from.Clients)
	case domain.EntityWorker:
		s.snap.Workers, n = from.Workers, len(from.Workers)
	case domain.EntityTask:
		s.snap.Tasks, n = from.Tasks, len(from.Tasks)
	default:
		return engine.Report{}, fmt.Errorf("%w: %q", engine.ErrUnknownEntityType, et)
	}
	report := s.validateLocked()
	s.record(events.TypeCollectionReplaced, string(et), "", events.EventPayload{"records": n, "errors": report.Summary.Errors})
	return report, nil
}

// Validate re-runs the full pass over the current snapshot.
func (s *Session) Validate() engine.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Session) validateLocked() engine.Report {
	report := s.Engine.ValidateAll(s.snap)
	s.store.Replace(report.Findings)
	return report
}

// Edit is the outcome of replacing one record: its finding key after the
// edit and the findings recomputed for it.
type Edit struct {
	Key      string
	Findings []domain.Finding
}

// UpdateClient replaces the client whose finding key is key (its id, or
// row-<index> when it has none) and re-validates only that record.
func (s *Session) UpdateClient(key string, c domain.Client) (Edit, error) {
	return s.update(domain.EntityClient, key, func(snap *domain.Snapshot, i int) error {
		snap.Clients[i] = c
		return nil
	})
}

func (s *Session) UpdateWorker(key string, w domain.Worker) (Edit, error) {
	return s.update(domain.EntityWorker, key, func(snap *domain.Snapshot, i int) error {
		snap.Workers[i] = w
		return nil
	})
}

func (s *Session) UpdateTask(key string, t domain.Task) (Edit, error) {
	return s.update(domain.EntityTask, key, func(snap *domain.Snapshot, i int) error {
		snap.Tasks[i] = t
		return nil
	})
}

// UpdateRow parses a raw record in place of the one addressed by key. Ids are
// filled the same way a full parse would fill them at that position.
func (s *Session) UpdateRow(et domain.EntityType, key string, row ingest.Row) (Edit, error) {
	return s.update(et, key, func(snap *domain.Snapshot, i int) error {
		rec, err := s.parser().RecordAt(et, row, i)
		if err != nil {
			return err
		}
		switch et {
		case domain.EntityClient:
			snap.Clients[i] = rec.Clients[0]
		case domain.EntityWorker:
			snap.Workers[i] = rec.Workers[0]
		case domain.EntityTask:
			snap.Tasks[i] = rec.Tasks[0]
		}
		return nil
	})
}

func (s *Session) parser() ingest.Parser {
	if cfg := s.Engine.Config; cfg != nil {
		return ingest.Parser{FillMissingIDs: cfg.Ingest.FillMissingIDs}
	}
	return ingest.Parser{}
}

func indexOf(snap domain.Snapshot, et domain.EntityType, key string) (int, error) {
	var n int
	var id func(int) string
	switch et {
	case domain.EntityClient:
		n, id = len(snap.Clients), func(i int) string { return snap.Clients[i].ID }
	case domain.EntityWorker:
		n, id = len(snap.Workers), func(i int) string { return snap.Workers[i].ID }
	case domain.EntityTask:
		n, id = len(snap.Tasks), func(i int) string { return snap.Tasks[i].ID }
	default:
		return 0, fmt.Errorf("%q: %w", et, engine.ErrUnknownEntityType)
	}
	for i := 0; i < n; i++ {
		if validation.EntityKey(id(i), i) == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s %q: %w", et, key, ErrRecordNotFound)
}

// update applies the edit to a copy, recomputes findings for the edited
// record and splices them into the store. Findings of other records are kept.
func (s *Session) update(et domain.EntityType, key string, apply func(*domain.Snapshot, int) error) (Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := indexOf(s.snap, et, key)
	if err != nil {
		return Edit{}, err
	}
	next := s.snap.Clone()
	if err := apply(&next, idx); err != nil {
		return Edit{}, err
	}
	fresh, err := s.Engine.Revalidate(next, et, idx)
	if err != nil {
		return Edit{}, err
	}
	newKey, err := engine.RecordKey(next, et, idx)
	if err != nil {
		return Edit{}, err
	}
	s.snap = next
	if newKey != key {
		s.store.ReplaceFor(et, key, nil)
	}
	s.store.ReplaceFor(et, newKey, fresh)
	s.record(events.TypeRecordUpdated, string(et), newKey, events.EventPayload{"previousKey": key, "findings": len(fresh)})
	return Edit{Key: newKey, Findings: fresh}, nil
}

// Dismiss hides one finding until the next validation that produces it again.
func (s *Session) Dismiss(findingID string) error {
	if err := s.store.Dismiss(findingID); err != nil {
		return err
	}
	s.record(events.TypeFindingDismissed, "", "", events.EventPayload{"findingId": findingID})
	return nil
}

func (s *Session) Findings(flt findings.Filter) []domain.Finding {
	return s.store.List(flt)
}

func (s *Session) Summary() findings.Summary {
	return findings.Summarize(s.store.List(findings.Filter{}))
}

// HasBlocking reports whether any error finding is currently listed.
func (s *Session) HasBlocking() bool {
	return findings.HasBlocking(s.store.List(findings.Filter{}))
}

func (s *Session) Rules() []domain.BusinessRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BusinessRule(nil), s.rules...)
}

// SetRules replaces the business rules and returns their findings against the
// current snapshot.
func (s *Session) SetRules(list []domain.BusinessRule) []domain.Finding {
	s.mu.Lock()
	s.rules = append([]domain.BusinessRule(nil), list...)
	out := s.Engine.CheckRules(s.rules, s.snap)
	s.mu.Unlock()
	s.record(events.TypeRulesUpdated, "", "", events.EventPayload{"rules": len(list), "findings": len(out)})
	return out
}

// CheckRules evaluates the current rules against the current snapshot.
func (s *Session) CheckRules() []domain.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Engine.CheckRules(s.rules, s.snap)
}

func (s *Session) Weights() domain.PrioritizationWeights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

func (s *Session) SetWeights(w domain.PrioritizationWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()
	s.record(events.TypeWeightsUpdated, "", "", events.EventPayload{
		"priorityLevel": w.PriorityLevel, "fulfillment": w.Fulfillment, "fairness": w.Fairness,
		"efficiency": w.Efficiency, "skillMatch": w.SkillMatch,
	})
	return nil
}

// Reset clears data, findings and rules and restores the configured weights.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.record(events.TypeSessionReset, "", "", nil)
}

// Export writes the cleaned data, rules and weights into dir. It refuses while
// error findings are listed unless force is set.
func (s *Session) Export(x export.Exporter, dir string, force bool) ([]string, error) {
	s.mu.RLock()
	b := export.Bundle{
		Snapshot: s.snap.Clone(),
		Rules:    append([]domain.BusinessRule(nil), s.rules...),
		Weights:  s.weights,
	}
	s.mu.RUnlock()
	b.Findings = s.store.List(findings.Filter{})
	return x.WriteDir(dir, b, force)
}
