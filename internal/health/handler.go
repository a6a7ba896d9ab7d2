package health

import (
	"net/http"

	"github.com/bissquit/riskengine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for platform and service health.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler creates a new health handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// RegisterRoutes registers health routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.GetPlatformHealth)
	r.Get("/services", h.ListServices)
	r.Get("/services/{name}", h.GetService)
	r.Get("/monitoring/realtime", h.GetRealtime)
}

// ServicesResponse wraps the service list with its size.
type ServicesResponse struct {
	Services []ServiceView `json:"services"`
	Count    int           `json:"count"`
}

// GetPlatformHealth handles GET /health request.
func (h *Handler) GetPlatformHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.aggregator.Overview())
}

// ListServices handles GET /services request.
func (h *Handler) ListServices(w http.ResponseWriter, _ *http.Request) {
	services := h.aggregator.ListServices()
	httputil.Success(w, http.StatusOK, ServicesResponse{
		Services: services,
		Count:    len(services),
	})
}

// GetService handles GET /services/{name} request.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	detail, err := h.aggregator.ServiceDetail(name)
	if err != nil {
		httputil.HandleDomainError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// GetRealtime handles GET /monitoring/realtime request.
func (h *Handler) GetRealtime(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.aggregator.Realtime())
}
