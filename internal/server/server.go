package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"alchemist/internal/domain"
	"alchemist/internal/engine"
	"alchemist/internal/findings"
	"alchemist/internal/ingest"
	"alchemist/internal/session"
)

// Config for the HTTP API handler.
type Config struct {
	Session  *session.Session
	BasePath string
	Logger   *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"finding not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"entity_type\":\"robot\"}"`
}

// apiError models the error envelope returned by every operation.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the validation API over cfg.Session.
func New(cfg Config) (http.Handler, error) {
	if cfg.Session == nil {
		return nil, errors.New("server: session is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are reported as 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	hcfg := huma.DefaultConfig("Data Alchemist API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{session: cfg.Session}
	registerDocs(router, basePath)
	registerHealth(group)
	registerValidate(group, h)
	registerSession(group, h)
	registerFindings(group, h)
	registerRules(group, h)
	registerWeights(group, h)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, session.ErrRecordNotFound), errors.Is(err, findings.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownEntityType):
		return newAPIError(http.StatusBadRequest, "unknown_entity_type", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "must") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseEntityType(raw string) (domain.EntityType, error) {
	et, ok := domain.ParseEntityType(raw)
	if !ok {
		return "", newAPIError(http.StatusBadRequest, "unknown_entity_type",
			fmt.Sprintf("unknown entity type %q", raw), map[string]any{"entity_type": raw, "allowed": []string{"client", "worker", "task"}})
	}
	return et, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Data Alchemist API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type handlers struct {
	session *session.Session
}

func (h handlers) engine() engine.Engine { return h.session.Engine }

func (h handlers) parser() ingest.Parser {
	if cfg := h.engine().Config; cfg != nil {
		return ingest.Parser{FillMissingIDs: cfg.Ingest.FillMissingIDs}
	}
	return ingest.Parser{}
}

// snapshot parses the raw records of every collection present in req.
func (h handlers) snapshot(req DataRequest) (domain.Snapshot, error) {
	p := h.parser()
	snap := domain.Snapshot{Clients: []domain.Client{}, Workers: []domain.Worker{}, Tasks: []domain.Task{}}
	for _, part := range []struct {
		et   domain.EntityType
		objs []map[string]any
	}{
		{domain.EntityClient, req.Clients},
		{domain.EntityWorker, req.Workers},
		{domain.EntityTask, req.Tasks},
	} {
		rows, err := ingest.FromObjects(part.objs)
		if err != nil {
			return snap, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"entity_type": part.et})
		}
		col, err := p.Collection(part.et, rows)
		if err != nil {
			return snap, handleError(err)
		}
		snap.Clients = append(snap.Clients, col.Clients...)
		snap.Workers = append(snap.Workers, col.Workers...)
		snap.Tasks = append(snap.Tasks, col.Tasks...)
	}
	return snap, nil
}

func registerValidate(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "validate",
		Method:      http.MethodPost,
		Path:        "/validate",
		Summary:     "Validate a full data set",
		Description: "Runs the basic field checks followed by the cross-entity consistency checks. Nothing is stored.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Basic bool        `query:"basic" doc:"Run only the basic field checks"`
		Body  DataRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		snap, err := h.snapshot(input.Body)
		if err != nil {
			return nil, err
		}
		var list []domain.Finding
		if input.Basic {
			list = h.engine().ValidateBasic(snap)
		} else {
			list = h.engine().ValidateAll(snap).Findings
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-entity",
		Method:      http.MethodPost,
		Path:        "/validate/{entity_type}",
		Summary:     "Validate one collection",
		Description: "Runs the basic field checks for one collection. The other collections in the body are used to resolve references.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string      `path:"entity_type" example:"task"`
		Body       DataRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		et, err := parseEntityType(input.EntityType)
		if err != nil {
			return nil, err
		}
		snap, err := h.snapshot(input.Body)
		if err != nil {
			return nil, err
		}
		list, err := h.engine().ValidateEntity(et, snap)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(list)}, nil
	})
}

func registerSession(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session-data",
		Method:      http.MethodGet,
		Path:        "/session/data",
		Summary:     "Current session data",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionDataResponse `json:"body"`
	}, error) {
		return &struct {
			Body SessionDataResponse `json:"body"`
		}{Body: SessionDataResponse{ID: h.session.ID, Snapshot: h.session.Snapshot()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-collection",
		Method:      http.MethodPut,
		Path:        "/session/{entity_type}",
		Summary:     "Replace a collection",
		Description: "Replaces one collection of the session and re-validates the whole data set.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string            `path:"entity_type" example:"worker"`
		Body       CollectionRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		et, err := parseEntityType(input.EntityType)
		if err != nil {
			return nil, err
		}
		rows, err := ingest.FromObjects(input.Body.Records)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		col, err := h.parser().Collection(et, rows)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := h.session.ReplaceCollection(et, col)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report.Findings)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-record",
		Method:      http.MethodPatch,
		Path:        "/session/{entity_type}/{id}",
		Summary:     "Replace one record",
		Description: "Replaces the record addressed by id (or row-<n> for rows without an id) and re-validates only that record.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntityType string         `path:"entity_type" example:"task"`
		ID         string         `path:"id" example:"T1"`
		Body       map[string]any `json:"body"`
	}) (*struct {
		Body RecordFindingsResponse `json:"body"`
	}, error) {
		et, err := parseEntityType(input.EntityType)
		if err != nil {
			return nil, err
		}
		rows, err := ingest.FromObjects([]map[string]any{input.Body})
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		edit, err := h.session.UpdateRow(et, input.ID, rows[0])
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecordFindingsResponse `json:"body"`
		}{Body: RecordFindingsResponse{EntityType: et, EntityID: edit.Key, Findings: nonNil(edit.Findings)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reset-session",
		Method:        http.MethodPost,
		Path:          "/session/reset",
		Summary:       "Reset the session",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		h.session.Reset()
		return nil, nil
	})
}

func registerFindings(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-findings",
		Method:      http.MethodGet,
		Path:        "/session/findings",
		Summary:     "List session findings",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entity_type" example:"task"`
		EntityID   string `query:"entity_id"`
		Field      string `query:"field"`
		Severity   string `query:"severity" enum:"error,warning,info"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		flt := findings.Filter{EntityID: input.EntityID, Field: input.Field, Severity: domain.Severity(input.Severity)}
		if input.EntityType != "" {
			et, err := parseEntityType(input.EntityType)
			if err != nil {
				return nil, err
			}
			flt.EntityType = et
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(h.session.Findings(flt))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "summarize-findings",
		Method:      http.MethodGet,
		Path:        "/session/summary",
		Summary:     "Finding counts grouped by entity and field",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body findings.Summary `json:"body"`
	}, error) {
		return &struct {
			Body findings.Summary `json:"body"`
		}{Body: h.session.Summary()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "dismiss-finding",
		Method:        http.MethodDelete,
		Path:          "/session/findings/{finding_id}",
		Summary:       "Dismiss a finding",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FindingID string `path:"finding_id"`
	}) (*struct{}, error) {
		if err := h.session.Dismiss(input.FindingID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerRules(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "put-rules",
		Method:      http.MethodPut,
		Path:        "/session/rules",
		Summary:     "Replace business rules",
		Description: "Stores the rules and returns their consistency findings against the current data.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RulesRequest `json:"body"`
	}) (*struct {
		Body RulesResponse `json:"body"`
	}, error) {
		list := make([]domain.BusinessRule, 0, len(input.Body.Rules))
		for i, doc := range input.Body.Rules {
			r, err := doc.Rule()
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "invalid_rule", err.Error(), map[string]any{"index": i})
			}
			list = append(list, r)
		}
		out := h.session.SetRules(list)
		return &struct {
			Body RulesResponse `json:"body"`
		}{Body: rulesResponse(list, out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-rules",
		Method:      http.MethodGet,
		Path:        "/session/rules/check",
		Summary:     "Check business rules against the session data",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RulesResponse `json:"body"`
	}, error) {
		return &struct {
			Body RulesResponse `json:"body"`
		}{Body: rulesResponse(h.session.Rules(), h.session.CheckRules())}, nil
	})
}

func registerWeights(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-weights",
		Method:      http.MethodGet,
		Path:        "/session/weights",
		Summary:     "Prioritization weights",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WeightsResponse `json:"body"`
	}, error) {
		return &struct {
			Body WeightsResponse `json:"body"`
		}{Body: weightsResponse(h.session.Weights())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-weights",
		Method:      http.MethodPut,
		Path:        "/session/weights",
		Summary:     "Replace prioritization weights",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.PrioritizationWeights `json:"body"`
	}) (*struct {
		Body WeightsResponse `json:"body"`
	}, error) {
		if err := h.session.SetWeights(input.Body); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_weights", err.Error(), nil)
		}
		return &struct {
			Body WeightsResponse `json:"body"`
		}{Body: weightsResponse(h.session.Weights())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rank-weights",
		Method:      http.MethodPost,
		Path:        "/session/weights/ranking",
		Summary:     "Derive weights from a criteria ranking",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RankingRequest `json:"body"`
	}) (*struct {
		Body WeightsResponse `json:"body"`
	}, error) {
		w, err := domain.WeightsFromRanking(input.Body.Order)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_weights", err.Error(), nil)
		}
		return h.setWeights(w)
	})

	huma.Register(api, huma.Operation{
		OperationID: "pairwise-weights",
		Method:      http.MethodPost,
		Path:        "/session/weights/pairwise",
		Summary:     "Derive weights from pairwise comparisons",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PairwiseRequest `json:"body"`
	}) (*struct {
		Body WeightsResponse `json:"body"`
	}, error) {
		w, err := domain.WeightsFromPairwise(input.Body.Comparisons)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_weights", err.Error(), nil)
		}
		return h.setWeights(w)
	})
}

func (h handlers) setWeights(w domain.PrioritizationWeights) (*struct {
	Body WeightsResponse `json:"body"`
}, error) {
	if err := h.session.SetWeights(w); err != nil {
		return nil, newAPIError(http.StatusBadRequest, "invalid_weights", err.Error(), nil)
	}
	return &struct {
		Body WeightsResponse `json:"body"`
	}{Body: weightsResponse(h.session.Weights())}, nil
}
