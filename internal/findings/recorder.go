package findings

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"alchemist/internal/domain"
)

// Stamper supplies the per-finding timestamp and id suffix. Zero values fall
// back to time.Now and random UUIDs.
type Stamper struct {
	Now   func() time.Time
	NewID func() string
}

func (s Stamper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Stamper) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Recorder appends findings in emission order. It is not safe for concurrent use;
// each validation pass owns its own Recorder.
type Recorder struct {
	stamp Stamper
	items []domain.Finding
}

func NewRecorder(s Stamper) *Recorder {
	return &Recorder{stamp: s}
}

// Record appends one finding with the given check code.
func (r *Recorder) Record(check string, sev domain.Severity, et domain.EntityType, entityID, field, message string) {
	ts := r.stamp.now().UTC()
	r.items = append(r.items, domain.Finding{
		ID:         fmt.Sprintf("%s-%s-%s-%s", et, entityID, field, r.stamp.newID()),
		EntityType: et,
		EntityID:   entityID,
		Field:      field,
		Message:    message,
		Severity:   sev,
		Check:      check,
		Timestamp:  ts,
	})
}

func (r *Recorder) Error(check string, et domain.EntityType, entityID, field, message string) {
	r.Record(check, domain.SeverityError, et, entityID, field, message)
}

func (r *Recorder) Warning(check string, et domain.EntityType, entityID, field, message string) {
	r.Record(check, domain.SeverityWarning, et, entityID, field, message)
}

func (r *Recorder) Info(check string, et domain.EntityType, entityID, field, message string) {
	r.Record(check, domain.SeverityInfo, et, entityID, field, message)
}

// Findings returns the recorded findings. An empty pass yields a non-nil slice.
func (r *Recorder) Findings() []domain.Finding {
	if r.items == nil {
		return []domain.Finding{}
	}
	return r.items
}

// Len reports how many findings have been recorded.
func (r *Recorder) Len() int { return len(r.items) }
