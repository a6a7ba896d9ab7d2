package incidents

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Put("/{id}/resolve", h.ResolveIncident)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Service     string `json:"service" validate:"required,min=1,max=255"`
	Severity    string `json:"severity" validate:"required,oneof=SEV1 SEV2 SEV3"`
	Description string `json:"description" validate:"required,min=1,max=2000"`
	Impact      string `json:"impact" validate:"max=2000"`
}

// normalize trims fields and upper-cases severity so "sev1" is accepted.
func (r *CreateIncidentRequest) normalize() {
	r.Service = strings.TrimSpace(r.Service)
	r.Severity = strings.ToUpper(strings.TrimSpace(r.Severity))
}

// ToInput converts the request to service input.
func (r *CreateIncidentRequest) ToInput() CreateIncidentInput {
	return CreateIncidentInput{
		Service:     r.Service,
		Severity:    domain.Severity(r.Severity),
		Description: r.Description,
		Impact:      r.Impact,
	}
}

// UpdateStatusRequest represents the request body for changing incident status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new investigating mitigated resolved"`
}

var incidentErrorMappings = append([]httputil.ErrorMapping{
	{Error: ErrIncidentResolved, Status: http.StatusConflict},
}, httputil.DomainErrorMappings...)

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.normalize()

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: DefaultListLimit}

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > MaxListLimit {
			parsed = MaxListLimit
		}
		filter.Limit = parsed
	}

	if s := r.URL.Query().Get("severity"); s != "" {
		sev := domain.Severity(strings.ToUpper(strings.TrimSpace(s)))
		filter.Severity = &sev
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// UpdateStatus handles PATCH /incidents/{id}/status request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.IncidentStatus(req.Status))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ResolveIncident handles PUT /incidents/{id}/resolve request.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.ResolveIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, incidentErrorMappings)
}
