package risk

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/riskengine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for program risk and forecasting.
type Handler struct {
	scorer     *Scorer
	forecaster *Forecaster
	now        func() time.Time
}

// NewHandler creates a new risk handler.
func NewHandler(scorer *Scorer, forecaster *Forecaster, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{scorer: scorer, forecaster: forecaster, now: now}
}

// RegisterRoutes registers risk routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/programs/risks", h.GetProgramRisks)
	r.Get("/programs/{id}", h.GetProgram)
	r.Get("/ai/risk-prediction", h.PredictRisk)
}

// ProgramRisksResponse is the aggregate risk with a generation timestamp.
type ProgramRisksResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Aggregate
}

// GetProgramRisks handles GET /programs/risks request.
func (h *Handler) GetProgramRisks(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, ProgramRisksResponse{
		Timestamp: h.now(),
		Aggregate: h.scorer.Programs(r.Context()),
	})
}

// GetProgram handles GET /programs/{id} request.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	detail, err := h.scorer.ProgramDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// PredictRisk handles GET /ai/risk-prediction request.
func (h *Handler) PredictRisk(w http.ResponseWriter, r *http.Request) {
	lookahead := DefaultLookaheadDays
	if v := r.URL.Query().Get("lookahead_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "lookahead_days must be an integer")
			return
		}
		lookahead = parsed
	}

	forecast, err := h.forecaster.Predict(r.Context(), lookahead)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, forecast)
}
