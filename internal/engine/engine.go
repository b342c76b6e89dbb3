package engine

import (
	"errors"
	"fmt"
	"log"
	"time"

	"alchemist/internal/config"
	"alchemist/internal/consistency"
	"alchemist/internal/depgraph"
	"alchemist/internal/domain"
	"alchemist/internal/findings"
	"alchemist/internal/rules"
	"alchemist/internal/validation"
)

var ErrUnknownEntityType = errors.New("unknown entity type")

// Engine orchestrates a validation pass: basic field checks first, then the
// consistency checks, with no deduplication between them. It is a plain value;
// construct one per caller and share it freely.
type Engine struct {
	Config *config.Config
	Now    func() time.Time
	NewID  func() string
	Logger *log.Logger
}

func New(cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Config: cfg,
		Now:    time.Now,
	}
}

// Log returns Logger, falling back to the standard logger.
func (e Engine) Log() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) stamper() findings.Stamper {
	return findings.Stamper{Now: e.Now, NewID: e.NewID}
}

func (e Engine) basic() validation.Validator {
	return validation.New(e.config(), e.stamper())
}

func (e Engine) advanced() consistency.Validator {
	return consistency.New(e.config(), e.stamper())
}

// Report is the merged result of one pass.
type Report struct {
	Findings []domain.Finding `json:"findings"`
	Summary  findings.Counts  `json:"summary"`
}

func newReport(list []domain.Finding) Report {
	return Report{Findings: list, Summary: findings.Count(list)}
}

// ValidateClients runs the basic checks over clients; refs supplies the task
// collection for requested-task references.
func (e Engine) ValidateClients(clients []domain.Client, refs domain.Snapshot) []domain.Finding {
	return e.basic().ValidateClients(clients, refs)
}

func (e Engine) ValidateWorkers(workers []domain.Worker) []domain.Finding {
	return e.basic().ValidateWorkers(workers)
}

// ValidateTasks runs the basic checks over tasks. tasks may be a single edited
// record; refs carries the unmodified sibling collections.
func (e Engine) ValidateTasks(tasks []domain.Task, refs domain.Snapshot) []domain.Finding {
	return e.basic().ValidateTasks(tasks, refs)
}

// ValidateEntity runs the basic checks for one collection of snap.
func (e Engine) ValidateEntity(et domain.EntityType, snap domain.Snapshot) ([]domain.Finding, error) {
	switch et {
	case domain.EntityClient:
		return e.ValidateClients(snap.Clients, snap), nil
	case domain.EntityWorker:
		return e.ValidateWorkers(snap.Workers), nil
	case domain.EntityTask:
		return e.ValidateTasks(snap.Tasks, snap), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, et)
	}
}

// ValidateBasic runs the basic checks over all three collections.
func (e Engine) ValidateBasic(snap domain.Snapshot) []domain.Finding {
	v := e.basic()
	out := v.ValidateClients(snap.Clients, snap)
	out = append(out, v.ValidateWorkers(snap.Workers)...)
	out = append(out, v.ValidateTasks(snap.Tasks, snap)...)
	return out
}

// ValidateAll returns basic findings followed by consistency findings.
func (e Engine) ValidateAll(snap domain.Snapshot) Report {
	out := e.ValidateBasic(snap)
	out = append(out, e.advanced().Validate(snap)...)
	r := newReport(out)
	e.Log().Printf("validated %d clients, %d workers, %d tasks: %d errors, %d warnings, %d info",
		len(snap.Clients), len(snap.Workers), len(snap.Tasks), r.Summary.Errors, r.Summary.Warnings, r.Summary.Infos)
	return r
}

// Revalidate recomputes the findings attributable to one record of snap after
// an edit. index is the record's position in its collection. Collection-wide
// findings are not recomputed; callers keep their previous ones.
func (e Engine) Revalidate(snap domain.Snapshot, et domain.EntityType, index int) ([]domain.Finding, error) {
	key, err := RecordKey(snap, et, index)
	if err != nil {
		return nil, err
	}
	basic, err := e.ValidateEntity(et, snap)
	if err != nil {
		return nil, err
	}
	flt := findings.Filter{EntityType: et, EntityID: key}
	out := flt.Apply(basic)
	out = append(out, flt.Apply(e.advanced().Validate(snap))...)
	return out, nil
}

// RecordKey returns the finding entity id of the record at index.
func RecordKey(snap domain.Snapshot, et domain.EntityType, index int) (string, error) {
	var id string
	var n int
	switch et {
	case domain.EntityClient:
		n = len(snap.Clients)
		if index >= 0 && index < n {
			id = snap.Clients[index].ID
		}
	case domain.EntityWorker:
		n = len(snap.Workers)
		if index >= 0 && index < n {
			id = snap.Workers[index].ID
		}
	case domain.EntityTask:
		n = len(snap.Tasks)
		if index >= 0 && index < n {
			id = snap.Tasks[index].ID
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, et)
	}
	if index < 0 || index >= n {
		return "", fmt.Errorf("%s index %d out of range", et, index)
	}
	return validation.EntityKey(id, index), nil
}

// CheckRules validates business rules against snap.
func (e Engine) CheckRules(list []domain.BusinessRule, snap domain.Snapshot) []domain.Finding {
	return rules.Checker{Stamper: e.stamper()}.Check(list, snap)
}

// TaskOrder returns task ids with dependencies first, or an error when the
// dependency graph has a cycle.
func (e Engine) TaskOrder(snap domain.Snapshot) ([]string, error) {
	return depgraph.Build(snap.Tasks).TopoOrder()
}
