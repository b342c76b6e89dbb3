package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCollectionReplaced = "collection.replaced"
	TypeRecordUpdated      = "record.updated"
	TypeFindingDismissed   = "finding.dismissed"
	TypeRulesUpdated       = "rules.updated"
	TypeWeightsUpdated     = "weights.updated"
	TypeSessionReset       = "session.reset"
)

type EventPayload map[string]any

// Event is one line of the activity log.
type Event struct {
	ID         string       `json:"id"`
	TS         string       `json:"ts"`
	Type       string       `json:"type"`
	SessionID  string       `json:"sessionId"`
	EntityKind string       `json:"entityKind,omitempty"`
	EntityID   string       `json:"entityId,omitempty"`
	Payload    EventPayload `json:"payload"`
}

// Writer appends events as JSON lines to Out. A nil Writer or nil Out drops
// events.
type Writer struct {
	Out   io.Writer
	Now   func() time.Time
	NewID func() string

	mu sync.Mutex
}

func (w *Writer) Append(evtType, sessionID, entityKind, entityID string, payload EventPayload) error {
	if w == nil || w.Out == nil {
		return nil
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	newID := w.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(Event{
		ID:         newID(),
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		SessionID:  sessionID,
		EntityKind: entityKind,
		EntityID:   entityID,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.Out.Write(append(data, '\n'))
	return err
}

// Read decodes every event in r.
func Read(r io.Reader) ([]Event, error) {
	var out []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("event line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
