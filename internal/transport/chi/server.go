package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/lexdex/internal/logger"
	batchuc "github.com/kailas-cloud/lexdex/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/lexdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/lexdex/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/lexdex/internal/usecase/pipeline"
)

// maxBodyBytes bounds request bodies; inline document text is the largest payload.
const maxBodyBytes = 16 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the lexdex HTTP API.
type Server struct {
	svc           Services
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, logger *zap.Logger) *Server {
	s := &Server{svc: svc, logger: logger}
	s.errorHandlers = []errorHandler{
		reasonHandler(domain.ReasonValidation, http.StatusBadRequest),
		reasonHandler(domain.ReasonNotFound, http.StatusNotFound),
		reasonHandler(domain.ReasonInvalidTransition, http.StatusConflict),
		reasonHandler(domain.ReasonContentTooShort, http.StatusUnprocessableEntity),
		reasonHandler(domain.ReasonExtractionFailed, http.StatusUnprocessableEntity),
		reasonHandler(domain.ReasonClassificationAmbiguous, http.StatusUnprocessableEntity),
		reasonHandler(domain.ReasonCitationUnverified, http.StatusUnprocessableEntity),
		reasonHandler(domain.ReasonProviderUnavailable, http.StatusServiceUnavailable),
	}
	return s
}

// Routes mounts the API on a router. middlewares run in order before every route.
func (s *Server) Routes(middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := gochi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r gochi.Router) {
		r.Post("/documents", s.CreateDocument)
		r.Get("/documents/{id}", s.GetDocument)
		r.Post("/pipeline/run", s.RunPipeline)
		r.Get("/pipeline/stats", s.PipelineStats)
		r.Post("/pipeline/bulk", s.BulkAction)
		r.Post("/search", s.Search)
		r.Post("/answers/validate", s.ValidateAnswer)
		r.Post("/feedback", s.SubmitFeedback)
		r.Get("/drift", s.DriftReport)
	})
	return r
}

// CreateDocument handles POST /api/v1/documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	d, err := s.svc.Documents.Create(r.Context(), documentuc.CreateRequest{
		Title:    req.Title,
		Text:     req.Text,
		Category: req.Category,
		Language: req.Language,
		Source:   req.Source,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logpkg.Annotate(r.Context(), zap.String("document_id", d.ID()), zap.String("stage", string(d.Stage())))
	writeJSON(w, http.StatusCreated, documentToAPI(d))
}

// GetDocument handles GET /api/v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", gochi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid id: "+err.Error())
		return
	}

	logpkg.Annotate(r.Context(), zap.String("document_id", id))
	v, err := s.svc.Documents.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewToAPI(v))
}

// RunPipeline handles POST /api/v1/pipeline/run. The body is optional.
func (s *Server) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req RunPipelineRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	res, err := s.svc.Pipeline.Run(r.Context(), pipelineuc.Trigger{
		BatchSize: req.BatchSize,
		Category:  req.Category,
		MaxItems:  req.MaxItems,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logpkg.Annotate(r.Context(), zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))
	writeJSON(w, http.StatusOK, RunPipelineResponse{
		Processed:  res.Processed,
		Failed:     res.Failed,
		DurationMs: float64(res.Duration) / float64(time.Millisecond),
	})
}

// PipelineStats handles GET /api/v1/pipeline/stats?stuck_after=72h.
func (s *Server) PipelineStats(w http.ResponseWriter, r *http.Request) {
	stuckAfter, ok := durationParam(w, r, "stuck_after")
	if !ok {
		return
	}

	funnel, err := s.svc.Stats.Funnel(r.Context(), stuckAfter)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, funnel)
}

// BulkAction handles POST /api/v1/pipeline/bulk.
func (s *Server) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidation, "ids must not be empty")
		return
	}

	logpkg.Annotate(r.Context(), zap.String("action", req.Action), zap.Int("ids", len(req.IDs)))
	results, err := s.svc.Bulk.Apply(r.Context(), batchuc.Request{
		Action:   batchuc.Action(req.Action),
		IDs:      req.IDs,
		Category: req.Category,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, bulkToAPI(results))
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	sr, err := request.Parse(req.Query, req.Filters.Category, req.Filters.Language, req.MaxResults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp, err := s.svc.Search.Search(r.Context(), &sr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logpkg.Annotate(r.Context(),
		zap.String("provider", resp.Provider),
		zap.Int("hits", len(resp.Hits)),
		zap.Strings("intent", resp.Intent.Domains),
	)
	w.Header().Set("X-Embedding-Provider", resp.Provider)
	writeJSON(w, http.StatusOK, searchToAPI(resp))
}

// ValidateAnswer handles POST /api/v1/answers/validate.
func (s *Server) ValidateAnswer(w http.ResponseWriter, r *http.Request) {
	var req ValidateAnswerRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	report, err := s.svc.Citations.Validate(r.Context(), req.Answer, sourcesFromAPI(req.Sources))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	logpkg.Annotate(r.Context(),
		zap.Int("citations", report.Total),
		zap.Int("unverified", report.Unverified),
	)

	writeJSON(w, http.StatusOK, report)
}

// SubmitFeedback handles POST /api/v1/feedback.
func (s *Server) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	if err := s.svc.Drift.RecordFeedback(r.Context(), req.Rating, req.Comment); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DriftReport handles GET /api/v1/drift?window=168h.
func (s *Server) DriftReport(w http.ResponseWriter, r *http.Request) {
	window, ok := durationParam(w, r, "window")
	if !ok {
		return
	}

	report, err := s.svc.Drift.Report(r.Context(), window)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// HealthCheck handles GET /health. Only an unhealthy report answers 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode reads a JSON body into dst. With required unset an empty body is accepted.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && !required:
		return true
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Request body is required")
	default:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
	}
	return false
}

// durationParam binds an optional Go duration query parameter; absent means 0.
func durationParam(w http.ResponseWriter, r *http.Request, name string) (time.Duration, bool) {
	var raw string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("Invalid %s: %v", name, err))
		return 0, false
	}
	if raw == "" {
		return 0, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		writeError(w, http.StatusBadRequest, CodeValidation,
			fmt.Sprintf("%s must be a non-negative duration such as 72h, got %q", name, raw))
		return 0, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// reasonHandler returns an errorHandler that matches errors carrying a single reason code.
func reasonHandler(code domain.ReasonCode, status int) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if domain.ReasonOf(err) != code {
			return false
		}
		msg := domain.MessageOf(err)
		if code == domain.ReasonValidation {
			// input errors describe the caller's own request
			msg = err.Error()
		}
		writeError(w, status, ErrorCode(code), msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	logpkg.Annotate(r.Context(), zap.String("reason", string(domain.ReasonOf(err))))
	log.Warn("Domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

// requestLogger prefers the request-scoped logger so errors carry the request id.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l := logpkg.FromContext(r.Context()); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}
