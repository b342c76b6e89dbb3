package server

import (
	"alchemist/internal/domain"
	"alchemist/internal/findings"
)

// Request payloads

// DataRequest carries raw records per collection. Records use the same loose
// shape as uploaded JSON files: any header alias, lists as arrays or comma
// separated strings, phases as ranges.
type DataRequest struct {
	Clients []map[string]any `json:"clients,omitempty"`
	Workers []map[string]any `json:"workers,omitempty"`
	Tasks   []map[string]any `json:"tasks,omitempty"`
}

type CollectionRequest struct {
	Records []map[string]any `json:"records"`
}

type RulesRequest struct {
	Rules []domain.RuleDoc `json:"rules"`
}

// Response payloads

type ReportResponse struct {
	Findings []domain.Finding `json:"findings"`
	Summary  findings.Counts  `json:"summary"`
}

type RecordFindingsResponse struct {
	EntityType domain.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Findings   []domain.Finding  `json:"findings"`
}

type SessionDataResponse struct {
	ID       string          `json:"id"`
	Snapshot domain.Snapshot `json:"data"`
}

type RulesResponse struct {
	Rules    []domain.RuleDoc `json:"rules"`
	Findings []domain.Finding `json:"findings"`
	Summary  findings.Counts  `json:"summary"`
}

// RankingRequest lists every weight criterion, most important first.
type RankingRequest struct {
	Order []string `json:"order"`
}

type PairwiseRequest struct {
	Comparisons []domain.Comparison `json:"comparisons"`
}

type WeightsResponse struct {
	Weights    domain.PrioritizationWeights `json:"weights"`
	Normalized domain.PrioritizationWeights `json:"normalized"`
}

func reportResponse(list []domain.Finding) ReportResponse {
	list = nonNil(list)
	return ReportResponse{Findings: list, Summary: findings.Count(list)}
}

func rulesResponse(list []domain.BusinessRule, out []domain.Finding) RulesResponse {
	docs := make([]domain.RuleDoc, 0, len(list))
	for _, r := range list {
		docs = append(docs, r.Doc())
	}
	out = nonNil(out)
	return RulesResponse{Rules: docs, Findings: out, Summary: findings.Count(out)}
}

func weightsResponse(w domain.PrioritizationWeights) WeightsResponse {
	return WeightsResponse{Weights: w, Normalized: w.Normalized()}
}

func nonNil(list []domain.Finding) []domain.Finding {
	if list == nil {
		return []domain.Finding{}
	}
	return list
}
