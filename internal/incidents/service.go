// Package incidents implements the incident lifecycle and its effect on
// service health.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
	"github.com/bissquit/riskengine/internal/store"
)

// Health policy applied by incident lifecycle events.
const (
	// HealthFloor is the lowest health an incident penalty can push a
	// service to. Incidents degrade a service but never zero it out.
	HealthFloor = 50.0
	// ResolveCredit is the health restored when an incident is resolved.
	ResolveCredit = 5.0
	// DefaultPenalty applies to severities without an explicit penalty.
	DefaultPenalty = 5.0
)

var severityPenalty = map[domain.Severity]float64{
	domain.SeveritySEV1: 15,
	domain.SeveritySEV2: 8,
	domain.SeveritySEV3: 3,
}

// Listing bounds.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	similarLimit     = 3
)

// EscalationNotifier is told about incidents that need an executive alert.
type EscalationNotifier interface {
	NotifyIncident(ctx context.Context, incident domain.Incident)
}

// Service implements the incident lifecycle. It is the only component
// holding write access to the store.
type Service struct {
	store    store.Writer
	notifier EscalationNotifier
	now      func() time.Time
}

// NewService creates a new incident service. notifier may be nil.
func NewService(writer store.Writer, notifier EscalationNotifier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    writer,
		notifier: notifier,
		now:      now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Service     string
	Severity    domain.Severity
	Description string
	Impact      string
}

// ListFilter holds filter options for listing incidents.
type ListFilter struct {
	Limit    int
	Severity *domain.Severity
}

// IncidentList is a filtered page of incidents with totals by severity.
type IncidentList struct {
	Incidents  []domain.Incident       `json:"incidents"`
	Count      int                     `json:"count"`
	BySeverity map[domain.Severity]int `json:"by_severity"`
}

// IncidentDetail is an incident with other incidents on the same service.
type IncidentDetail struct {
	Incident         domain.Incident   `json:"incident"`
	SimilarIncidents []domain.Incident `json:"similar_incidents"`
}

// Penalty returns the health penalty for a severity.
func Penalty(severity domain.Severity) float64 {
	if p, ok := severityPenalty[severity]; ok {
		return p
	}
	return DefaultPenalty
}

// applyPenalty lowers health by the severity penalty without crossing
// HealthFloor. A service already at or below the floor is left as is.
func applyPenalty(current float64, severity domain.Severity) float64 {
	if current <= HealthFloor {
		return current
	}
	return max(HealthFloor, current-Penalty(severity))
}

// CreateIncident records a new incident and degrades the affected service.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if _, err := s.store.GetService(input.Service); err != nil {
		return nil, fmt.Errorf("get service %q: %w", input.Service, err)
	}
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, input.Severity)
	}

	incident := domain.Incident{
		ID:          s.store.NextIncidentID(),
		Service:     input.Service,
		Severity:    input.Severity,
		Timestamp:   s.now(),
		Description: strings.TrimSpace(input.Description),
		Impact:      strings.TrimSpace(input.Impact),
		Status:      domain.IncidentStatusNew,
		AssignedTo:  domain.UnassignedOwner,
	}

	if err := s.store.AppendIncident(incident); err != nil {
		return nil, fmt.Errorf("append incident: %w", err)
	}

	svc, err := s.store.AdjustServiceHealth(input.Service, func(current float64) float64 {
		return applyPenalty(current, input.Severity)
	})
	if err != nil {
		return nil, fmt.Errorf("apply health penalty: %w", err)
	}

	recordCreated(incident.Severity)
	recordServiceHealth(svc)

	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", incident.ID,
		"service", incident.Service,
		"severity", incident.Severity,
		"service_health", svc.Health,
	)

	if s.notifier != nil && incident.Severity == domain.SeveritySEV1 {
		s.notifier.NotifyIncident(ctx, incident)
	}

	return &incident, nil
}

// ResolveIncident marks an incident resolved and credits the service's
// health. Resolving an already-resolved incident returns it unchanged and
// grants no further credit.
func (s *Service) ResolveIncident(ctx context.Context, id string) (*domain.Incident, error) {
	resolved := false
	incident, err := s.store.MutateIncident(id, func(inc *domain.Incident) error {
		if inc.Status.IsResolved() {
			return store.ErrNoChange
		}
		now := s.now()
		inc.Status = domain.IncidentStatusResolved
		inc.ResolvedAt = &now
		resolved = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", id, err)
	}

	logger := ctxlog.FromContext(ctx).With("incident_id", id)

	if !resolved {
		logger.Debug("incident already resolved, skipping health credit")
		return &incident, nil
	}

	svc, err := s.store.AdjustServiceHealth(incident.Service, func(current float64) float64 {
		return current + ResolveCredit
	})
	if err != nil {
		return nil, fmt.Errorf("apply health credit: %w", err)
	}

	recordResolved()
	recordServiceHealth(svc)

	logger.Info("incident resolved",
		"service", incident.Service,
		"service_health", svc.Health,
	)

	return &incident, nil
}

// UpdateStatus moves an open incident between new, investigating and
// mitigated. Resolution must go through ResolveIncident.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.IncidentStatus) (*domain.Incident, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status.IsResolved() {
		return nil, ErrResolveRequired
	}

	var from domain.IncidentStatus
	incident, err := s.store.MutateIncident(id, func(inc *domain.Incident) error {
		if inc.Status.IsResolved() {
			return ErrIncidentResolved
		}
		from = inc.Status
		if inc.Status == status {
			return store.ErrNoChange
		}
		inc.Status = status
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}

	if from != status {
		recordTransition(status)
		ctxlog.FromContext(ctx).Info("incident status updated",
			"incident_id", id,
			"from", from,
			"to", status,
		)
	}

	return &incident, nil
}

// GetIncident returns an incident with up to three similar incidents.
func (s *Service) GetIncident(_ context.Context, id string) (*IncidentDetail, error) {
	incident, err := s.store.GetIncident(id)
	if err != nil {
		return nil, err
	}

	similar := make([]domain.Incident, 0, similarLimit)
	for _, inc := range s.store.ListIncidents() {
		if len(similar) == similarLimit {
			break
		}
		if inc.Service == incident.Service && inc.ID != incident.ID {
			similar = append(similar, inc)
		}
	}

	return &IncidentDetail{Incident: incident, SimilarIncidents: similar}, nil
}

// ListIncidents returns the most recent incidents matching the filter.
// Severity totals always cover every incident.
func (s *Service) ListIncidents(_ context.Context, filter ListFilter) (*IncidentList, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 0 || limit > MaxListLimit {
		return nil, ErrInvalidListLimit
	}
	if filter.Severity != nil && !filter.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, *filter.Severity)
	}

	all := s.store.ListIncidents()
	bySeverity := CountBySeverity(all)

	out := make([]domain.Incident, 0, min(limit, len(all)))
	for _, inc := range all {
		if len(out) == limit {
			break
		}
		if filter.Severity != nil && inc.Severity != *filter.Severity {
			continue
		}
		out = append(out, inc)
	}

	return &IncidentList{
		Incidents:  out,
		Count:      len(out),
		BySeverity: bySeverity,
	}, nil
}

// CountBySeverity counts incidents per severity. Every valid severity is
// present in the result.
func CountBySeverity(incidents []domain.Incident) map[domain.Severity]int {
	counts := make(map[domain.Severity]int, len(domain.Severities))
	for _, sev := range domain.Severities {
		counts[sev] = 0
	}
	for _, inc := range incidents {
		counts[inc.Severity]++
	}
	return counts
}
