package events

import (
	"bytes"
	"testing"
	"time"
)

func TestAppendWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{
		Out:   &buf,
		Now:   func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) },
		NewID: func() string { return "evt" },
	}
	if err := w.Append(TypeRecordUpdated, "s1", "task", "T1", EventPayload{"findings": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(TypeSessionReset, "s1", "", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	first := got[0]
	if first.ID != "evt" || first.TS != "2024-02-03T04:05:06Z" || first.Type != TypeRecordUpdated || first.EntityID != "T1" {
		t.Fatalf("unexpected event %+v", first)
	}
	if first.Payload["findings"] != float64(2) {
		t.Fatalf("payload not preserved: %+v", first.Payload)
	}
	if got[1].Payload == nil {
		t.Fatalf("expected empty payload object")
	}
}

func TestNilWriterDrops(t *testing.T) {
	var w *Writer
	if err := w.Append(TypeSessionReset, "s", "", "", nil); err != nil {
		t.Fatalf("nil writer: %v", err)
	}
	if err := (&Writer{}).Append(TypeSessionReset, "s", "", "", nil); err != nil {
		t.Fatalf("nil out: %v", err)
	}
}
