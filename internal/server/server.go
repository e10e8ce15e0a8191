package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"devterminal/internal/domain"
	"devterminal/internal/engine"
	"devterminal/internal/metrics"
	"devterminal/internal/repo"
)

// DefaultBasePath mirrors the functions prefix clients already call.
const DefaultBasePath = "/functions/v1"

// EndpointName is the path segment of the action endpoint.
const EndpointName = "ashen-dev-terminal"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// ActorID is recorded on events emitted by HTTP actions.
	ActorID string
	Log     zerolog.Logger
}

// apiError models the `{"error": message}` envelope.
type apiError struct {
	status  int
	Message string `json:"error" example:"invalid input: prompt is required"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the dev terminal API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Body schema violations are malformed input, not generation failures.
			status = http.StatusBadRequest
			if len(errs) > 0 {
				msg = msg + ": " + errs[0].Error()
			}
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(hlog.NewHandler(cfg.Log))
	router.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		if r.URL.Path == "/metrics" || strings.HasSuffix(r.URL.Path, "/health") {
			return
		}
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("http request")
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	// OPTIONS without CORS request headers still gets an empty success.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusNoContent)
		})
	})

	hcfg := huma.DefaultConfig("Dev Terminal API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerActions(group, cfg)
	registerOpenAPI(router, api, basePath)
	registerMetrics(router, cfg.Engine.Metrics)

	return router, nil
}

func newAPIError(status int, message string) huma.StatusError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &apiError{status: status, Message: message}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	// Generation failures fall through to 500 with the step in the message.
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, err.Error())
	}
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
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{
							Type:     huma.TypeObject,
							Required: []string{"error"},
							Properties: map[string]*huma.Schema{
								"error": {Type: huma.TypeString},
							},
						},
					},
				},
			}
		}
	}
}

func registerMetrics(r chi.Router, m *metrics.Metrics) {
	if m == nil {
		return
	}
	r.Handle("/metrics", m.Handler())
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

type actionInput struct {
	Body ActionRequest
}

type actionOutput struct {
	Body any
}

func registerActions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-terminal",
		Method:      http.MethodPost,
		Path:        "/" + EndpointName,
		Summary:     "Run a dev terminal action",
		Description: "Dispatches analyze, build, preview, revert, clone and status on a request.",
	}, func(ctx context.Context, input *actionInput) (*actionOutput, error) {
		action := strings.TrimSpace(input.Body.Action)
		body, err := dispatch(ctx, cfg.Engine, cfg.ActorID, action, input.Body)
		cfg.Engine.Metrics.RecordAction(metricAction(action), engine.Outcome(err))
		if err != nil {
			logActionError(ctx, action, err)
			return nil, handleError(err)
		}
		return &actionOutput{Body: body}, nil
	})
}

func dispatch(ctx context.Context, e engine.Engine, actorID, action string, in ActionRequest) (any, error) {
	opts := in.options()
	switch action {
	case ActionAnalyze:
		res, err := e.Analyze(ctx, engine.AnalyzeOptions{
			IntakeOptions: engine.IntakeOptions{
				Prompt:             in.Prompt,
				RequestType:        in.RequestType,
				TargetUsers:        in.TargetUsers,
				BuildMode:          in.BuildMode,
				UseCivicMemory:     in.UseCivicMemory,
				PreviewBeforeBuild: in.PreviewBeforeBuild,
				ActorID:            actorID,
			},
			AutoBuild: opts.AutoBuild,
		})
		if err != nil {
			return nil, err
		}
		return AnalyzeResponse{
			Success:   true,
			Request:   res.Request,
			Analysis:  res.Analysis,
			Steps:     nonNilSteps(res.Steps),
			Artifacts: res.Artifacts,
		}, nil
	case ActionBuild:
		res, err := e.Build(ctx, in.RequestID, actorID)
		if err != nil {
			return nil, err
		}
		return BuildResponse{Success: true, Request: res.Request, Artifacts: nonNilArtifacts(res.Artifacts)}, nil
	case ActionPreview:
		res, err := e.Preview(ctx, in.RequestID)
		if err != nil {
			return nil, err
		}
		return PreviewResponse{
			Success:   true,
			Request:   res.Request,
			Steps:     nonNilSteps(res.Steps),
			Artifacts: nonNilArtifacts(res.Artifacts),
		}, nil
	case ActionRevert:
		res, err := e.Revert(ctx, in.RequestID, opts.Reason, actorID)
		if err != nil {
			return nil, err
		}
		return RevertResponse{Success: true, Request: res.Request, Reverted: res.Reverted}, nil
	case ActionClone:
		prompt := opts.Prompt
		if prompt == "" {
			prompt = in.Prompt
		}
		clone, err := e.Clone(ctx, engine.CloneOptions{RequestID: in.RequestID, Prompt: prompt, ActorID: actorID})
		if err != nil {
			return nil, err
		}
		return CloneResponse{Success: true, Request: clone}, nil
	case ActionStatus:
		report, err := e.Status(ctx, opts.Limit)
		if err != nil {
			return nil, err
		}
		return StatusResponse{Success: true, StatusReport: normalizeReport(report)}, nil
	case "":
		return nil, engineInvalid("action is required")
	default:
		return nil, engineInvalid(fmt.Sprintf("unknown action %q", action))
	}
}

func engineInvalid(msg string) error {
	return fmt.Errorf("%w: %s", engine.ErrInvalidInput, msg)
}

func normalizeReport(r domain.StatusReport) domain.StatusReport {
	if r.RecentRequests == nil {
		r.RecentRequests = []domain.DevRequest{}
	}
	if r.ActiveRequests == nil {
		r.ActiveRequests = []domain.DevRequest{}
	}
	r.RecentArtifacts = nonNilArtifacts(r.RecentArtifacts)
	if r.Patterns == nil {
		r.Patterns = []domain.CivicMemoryPattern{}
	}
	return r
}

// metricAction keeps label cardinality bounded for unknown actions.
func metricAction(action string) string {
	switch action {
	case ActionAnalyze, ActionBuild, ActionPreview, ActionRevert, ActionClone, ActionStatus:
		return action
	}
	return "unknown"
}

func logActionError(ctx context.Context, action string, err error) {
	log := zerolog.Ctx(ctx)
	evt := log.Warn()
	if engine.Outcome(err) == "error" {
		evt = log.Error()
	}
	evt.Err(err).Str("action", action).Str("outcome", engine.Outcome(err)).Msg("action failed")
}
