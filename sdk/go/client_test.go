package alchemistsdk

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"alchemist/internal/config"
	"alchemist/internal/engine"
	"alchemist/internal/server"
	"alchemist/internal/session"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	eng := engine.New(config.Default())
	eng.Logger = logger
	handler, err := server.New(server.Config{Session: session.New(eng, nil), Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	data := Data{
		Workers: []Record{{"WorkerID": "W1", "WorkerName": "Ana", "Skills": "go", "AvailableSlots": "1,2", "MaxLoadPerPhase": 1}},
		Tasks: []Record{
			{"TaskID": "T1", "TaskName": "Build", "Duration": 1, "MaxConcurrent": 1, "Dependencies": "T1"},
		},
	}
	report, err := c.Validate(ctx, data, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.Summary.Errors == 0 {
		t.Fatalf("expected self-dependency errors")
	}

	if _, err := c.ReplaceCollection(ctx, "tasks", data.Tasks); err != nil {
		t.Fatalf("replace tasks: %v", err)
	}
	edited, err := c.UpdateRecord(ctx, "task", "T1", Record{"id": "T1", "name": "Build", "duration": 1, "maxConcurrent": 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, f := range edited.Findings {
		if f.Field == "dependencies" {
			t.Fatalf("stale dependency finding %+v", f)
		}
	}

	listed, err := c.ListFindings(ctx, FindingFilter{EntityType: "task", EntityID: "T1", Field: "dependencies"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Findings) != 0 {
		t.Fatalf("expected no dependency findings, got %+v", listed.Findings)
	}

	rules, err := c.PutRules(ctx, []Rule{{ID: "r1", Type: "phase-window", TaskID: "T1", AllowedPhases: []int{1}}})
	if err != nil {
		t.Fatalf("put rules: %v", err)
	}
	if len(rules.Rules) != 1 {
		t.Fatalf("expected stored rule, got %+v", rules)
	}
	if _, err := c.CheckRules(ctx); err != nil {
		t.Fatalf("check rules: %v", err)
	}

	w, err := c.PutWeights(ctx, Weights{PriorityLevel: 25, Fulfillment: 25, Fairness: 25, Efficiency: 25})
	if err != nil {
		t.Fatalf("put weights: %v", err)
	}
	if w.Normalized.PriorityLevel != 0.25 {
		t.Fatalf("unexpected normalized weights %+v", w.Normalized)
	}
	if _, err := c.PutWeights(ctx, Weights{PriorityLevel: 1, Fulfillment: 1}); err == nil {
		t.Fatalf("expected weights not totalling 100 to be rejected")
	}

	w, err = c.RankWeights(ctx, []string{"priorityLevel", "fulfillment", "fairness", "efficiency", "skillMatch"})
	if err != nil {
		t.Fatalf("rank weights: %v", err)
	}
	if w.Weights != (Weights{PriorityLevel: 40, Fulfillment: 30, Fairness: 20, Efficiency: 7, SkillMatch: 3}) {
		t.Fatalf("unexpected ranked weights %+v", w.Weights)
	}
	w, err = c.PairwiseWeights(ctx, []Comparison{{First: "fairness", Second: "efficiency", Preference: 2}})
	if err != nil {
		t.Fatalf("pairwise weights: %v", err)
	}
	if w.Weights.Efficiency != 100 {
		t.Fatalf("unexpected pairwise weights %+v", w.Weights)
	}
}

func TestClientAPIError(t *testing.T) {
	c := newClient(t)
	err := c.DismissFinding(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
}
