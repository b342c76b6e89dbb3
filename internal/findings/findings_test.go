package findings

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alchemist/internal/domain"
)

func fixedStamper() Stamper {
	n := 0
	return Stamper{
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("%d", n)
		},
	}
}

func sample() []domain.Finding {
	rec := NewRecorder(fixedStamper())
	rec.Error("duplicate_id", domain.EntityTask, "T1", "id", "Duplicate TaskID found")
	rec.Warning("skill_coverage", domain.EntityTask, "T1", "requiredSkills", "No workers available with skills: go")
	rec.Info("workload_distribution", domain.EntityWorker, "W1", "workload", "high")
	rec.Error("missing_column", domain.EntityClient, "C1", "name", "Missing required column: ClientName")
	return rec.Findings()
}

func TestRecorderStampsFindings(t *testing.T) {
	list := sample()
	require.Len(t, list, 4)
	assert.Equal(t, "task-T1-id-1", list[0].ID)
	assert.Equal(t, "duplicate_id", list[0].Check)
	assert.Equal(t, domain.SeverityError, list[0].Severity)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), list[0].Timestamp)
	assert.Equal(t, "worker-W1-workload-3", list[2].ID)
}

func TestRecorderEmptyIsNonNil(t *testing.T) {
	rec := NewRecorder(Stamper{})
	assert.NotNil(t, rec.Findings())
	assert.Equal(t, 0, rec.Len())
}

func TestSummarizeCountsAndGroups(t *testing.T) {
	s := Summarize(sample())
	assert.Equal(t, Counts{Errors: 2, Warnings: 1, Infos: 1, Total: 4}, s.Counts)
	require.Len(t, s.Entities, 3)
	assert.Equal(t, domain.EntityClient, s.Entities[0].EntityType)
	assert.Equal(t, "W1", s.Entities[1].EntityID)
	task := s.Entities[2]
	assert.Equal(t, "T1", task.EntityID)
	assert.Equal(t, 2, task.Total)
	require.Len(t, task.Fields, 2)
	assert.Equal(t, "id", task.Fields[0].Field)
	assert.Equal(t, 1, task.Fields[0].Errors)
}

func TestHasBlocking(t *testing.T) {
	assert.True(t, HasBlocking(sample()))
	rec := NewRecorder(fixedStamper())
	rec.Warning("x", domain.EntityWorker, "W1", "skills", "w")
	assert.False(t, HasBlocking(rec.Findings()))
}

func TestFilter(t *testing.T) {
	list := sample()
	t.Run("by entity", func(t *testing.T) {
		got := Filter{EntityType: domain.EntityTask, EntityID: "T1"}.Apply(list)
		assert.Len(t, got, 2)
	})
	t.Run("by field", func(t *testing.T) {
		got := Filter{Field: "requiredSkills"}.Apply(list)
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityWarning, got[0].Severity)
	})
	t.Run("by severity", func(t *testing.T) {
		got := Filter{Severity: domain.SeverityError}.Apply(list)
		assert.Len(t, got, 2)
	})
	t.Run("empty matches all", func(t *testing.T) {
		assert.Len(t, Filter{}.Apply(list), len(list))
	})
}

func TestStoreDismissAndReplaceFor(t *testing.T) {
	var s Store
	list := sample()
	s.Replace(list)

	require.NoError(t, s.Dismiss(list[1].ID))
	assert.Len(t, s.List(Filter{}), 3)
	assert.ErrorIs(t, s.Dismiss("missing"), ErrNotFound)

	rec := NewRecorder(fixedStamper())
	rec.Error("out_of_range", domain.EntityTask, "T1", "duration", "Duration must be at least 1 phase")
	s.ReplaceFor(domain.EntityTask, "T1", rec.Findings())

	all := s.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, "W1", all[0].EntityID)
	assert.Equal(t, "C1", all[1].EntityID)
	assert.Equal(t, "duration", all[2].Field)

	s.Reset()
	assert.Empty(t, s.List(Filter{}))
}
