package impact

import (
	"net/http"
	"strings"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for impact analysis and executive reports.
type Handler struct {
	translator *Translator
	reporter   *Reporter
	validator  *validator.Validate
}

// NewHandler creates a new impact handler.
func NewHandler(translator *Translator, reporter *Reporter) *Handler {
	return &Handler{
		translator: translator,
		reporter:   reporter,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers impact and report routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ai/incident/{id}", h.AnalyzeIncident)
	r.Get("/ai/executive-summary", h.GetExecutiveSummary)
	r.Get("/ai/executive-summary/narrative", h.GetExecutiveNarrative)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.ListReports)
		r.Post("/generate", h.GenerateReport)
	})
}

// AnalyzeIncident handles GET /ai/incident/{id} request.
func (h *Handler) AnalyzeIncident(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.translator.AnalyzeIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, analysis)
}

// GetExecutiveSummary handles GET /ai/executive-summary request.
func (h *Handler) GetExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.translator.ExecutiveSummary(r.Context()))
}

// GetExecutiveNarrative handles GET /ai/executive-summary/narrative request.
func (h *Handler) GetExecutiveNarrative(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.translator.ExecutiveNarrative(r.Context()))
}

// GenerateReportRequest represents the request body for generating a report.
type GenerateReportRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	ReportType string `json:"report_type" validate:"omitempty,max=32"`
}

// ListReports handles GET /reports request.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.reporter.ListReports(r.Context(), r.URL.Query().Get("report_type")))
}

// GenerateReport handles POST /reports/generate request. The report type
// defaults to Monthly and is matched ignoring case.
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Title = strings.TrimSpace(req.Title)

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	reportType := domain.ReportTypeMonthly
	if req.ReportType != "" {
		parsed, ok := domain.ParseReportType(req.ReportType)
		if !ok {
			httputil.HandleDomainError(r.Context(), w, ErrInvalidReportType)
			return
		}
		reportType = parsed
	}

	report, err := h.reporter.Generate(r.Context(), GenerateReportInput{Title: req.Title, Type: reportType})
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, report)
}
