// Package store provides the in-memory domain store for services, programs
// and incidents.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
)

// Store errors.
var (
	ErrServiceNotFound  = fmt.Errorf("service %w", domain.ErrNotFound)
	ErrProgramNotFound  = fmt.Errorf("program %w", domain.ErrNotFound)
	ErrIncidentNotFound = fmt.Errorf("incident %w", domain.ErrNotFound)
	ErrDuplicateID      = fmt.Errorf("%w: duplicate incident id", domain.ErrValidation)
	ErrDuplicateReport  = fmt.Errorf("%w: duplicate report id", domain.ErrValidation)
)

const incidentIDPrefix = "INC-"

// incidentIDBase is the numeric offset of generated incident ids.
const incidentIDBase = 1000

const reportIDPrefix = "REPORT-"

// Reader is the read-only view of the store handed to projections.
type Reader interface {
	ListServices() []domain.Service
	GetService(name string) (domain.Service, error)
	ListPrograms() []domain.Program
	GetProgram(id string) (domain.Program, error)
	ListIncidents() []domain.Incident
	GetIncident(id string) (domain.Incident, error)
	ProgramsForService(name string) []string
	ServicesForProgram(id string) []string
	ListReports() []domain.Report
}

// Writer is the mutating view of the store. Only the incident lifecycle
// manager is given a Writer.
type Writer interface {
	Reader
	NextIncidentID() string
	AppendIncident(incident domain.Incident) error
	UpdateServiceHealth(name string, health float64) (domain.Service, error)
	AdjustServiceHealth(name string, fn func(current float64) float64) (domain.Service, error)
	UpdateIncidentStatus(id string, status domain.IncidentStatus, resolvedAt *time.Time) (domain.Incident, error)
	MutateIncident(id string, fn func(incident *domain.Incident) error) (domain.Incident, error)
}

// ReportWriter appends to the executive report ledger. Only the report
// generator is given a ReportWriter.
type ReportWriter interface {
	Reader
	NextReportID() string
	AppendReport(report domain.Report) error
}

type serviceEntry struct {
	mu  sync.RWMutex
	svc domain.Service
}

type incidentEntry struct {
	mu  sync.RWMutex
	inc domain.Incident
}

// Store is a concurrency-safe in-memory domain store.
//
// Services and programs are fixed at construction. Each service and each
// incident carries its own lock, so writers to different entities never
// contend. The incident collection lock only guards the ordered slice and
// the id index.
type Store struct {
	services     map[string]*serviceEntry
	serviceOrder []string

	programs     map[string]domain.Program
	programOrder []string

	dependencies map[string][]string

	incMu     sync.RWMutex
	incidents []*incidentEntry
	incIndex  map[string]*incidentEntry
	seq       atomic.Int64

	reportMu  sync.RWMutex
	reports   []domain.Report
	reportSeq int
}

var (
	_ Reader       = (*Store)(nil)
	_ Writer       = (*Store)(nil)
	_ ReportWriter = (*Store)(nil)
)

// New creates a store from initial data. Incidents are reordered
// most-recent-first; service health is clamped to [0,100].
func New(data Data) (*Store, error) {
	s := &Store{
		services:     make(map[string]*serviceEntry, len(data.Services)),
		programs:     make(map[string]domain.Program, len(data.Programs)),
		dependencies: make(map[string][]string, len(data.Dependencies)),
		incIndex:     make(map[string]*incidentEntry, len(data.Incidents)),
	}

	for _, svc := range data.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("%w: service name is required", domain.ErrValidation)
		}
		if _, exists := s.services[svc.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate service %q", domain.ErrValidation, svc.Name)
		}
		svc.Health = domain.ClampHealth(svc.Health)
		s.services[svc.Name] = &serviceEntry{svc: svc}
		s.serviceOrder = append(s.serviceOrder, svc.Name)
	}

	for _, p := range data.Programs {
		if p.Confidence < 0 || p.Confidence > 100 {
			return nil, fmt.Errorf("%w: program %q confidence %d out of range", domain.ErrValidation, p.ID, p.Confidence)
		}
		if _, exists := s.programs[p.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate program %q", domain.ErrValidation, p.ID)
		}
		s.programs[p.ID] = p
		s.programOrder = append(s.programOrder, p.ID)
	}

	for service, programIDs := range data.Dependencies {
		s.dependencies[service] = slices.Clone(programIDs)
	}

	incidents := slices.Clone(data.Incidents)
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].Timestamp.After(incidents[j].Timestamp)
	})
	for _, inc := range incidents {
		if _, ok := s.services[inc.Service]; !ok {
			return nil, fmt.Errorf("incident %s: %w", inc.ID, ErrServiceNotFound)
		}
		if _, exists := s.incIndex[inc.ID]; exists {
			return nil, fmt.Errorf("incident %s: %w", inc.ID, ErrDuplicateID)
		}
		entry := &incidentEntry{inc: inc.Clone()}
		s.incidents = append(s.incidents, entry)
		s.incIndex[inc.ID] = entry
	}
	s.seq.Store(int64(len(incidents)))

	for _, report := range data.Reports {
		if err := s.AppendReport(report); err != nil {
			return nil, fmt.Errorf("report %s: %w", report.ID, err)
		}
	}
	s.reportSeq = len(s.reports)

	return s, nil
}

// ListServices returns a copy of all services in declaration order.
func (s *Store) ListServices() []domain.Service {
	out := make([]domain.Service, 0, len(s.serviceOrder))
	for _, name := range s.serviceOrder {
		entry := s.services[name]
		entry.mu.RLock()
		out = append(out, entry.svc)
		entry.mu.RUnlock()
	}
	return out
}

// GetService returns a service by name.
func (s *Store) GetService(name string) (domain.Service, error) {
	entry, ok := s.services[name]
	if !ok {
		return domain.Service{}, ErrServiceNotFound
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.svc, nil
}

// ListPrograms returns all programs in declaration order.
func (s *Store) ListPrograms() []domain.Program {
	out := make([]domain.Program, 0, len(s.programOrder))
	for _, id := range s.programOrder {
		out = append(out, s.programs[id])
	}
	return out
}

// GetProgram returns a program by id.
func (s *Store) GetProgram(id string) (domain.Program, error) {
	p, ok := s.programs[id]
	if !ok {
		return domain.Program{}, ErrProgramNotFound
	}
	return p, nil
}

// ListIncidents returns a copy of all incidents, most recent first.
func (s *Store) ListIncidents() []domain.Incident {
	s.incMu.RLock()
	entries := slices.Clone(s.incidents)
	s.incMu.RUnlock()

	out := make([]domain.Incident, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		out = append(out, entry.inc.Clone())
		entry.mu.RUnlock()
	}
	return out
}

// GetIncident returns an incident by id.
func (s *Store) GetIncident(id string) (domain.Incident, error) {
	entry, err := s.incidentEntry(id)
	if err != nil {
		return domain.Incident{}, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.inc.Clone(), nil
}

// ProgramsForService returns ids of programs depending on the service.
func (s *Store) ProgramsForService(name string) []string {
	return slices.Clone(s.dependencies[name])
}

// ServicesForProgram returns names of services the program depends on,
// in service declaration order.
func (s *Store) ServicesForProgram(id string) []string {
	var out []string
	for _, name := range s.serviceOrder {
		if slices.Contains(s.dependencies[name], id) {
			out = append(out, name)
		}
	}
	return out
}

// NextIncidentID returns a fresh, monotonically increasing incident id.
func (s *Store) NextIncidentID() string {
	for {
		n := s.seq.Add(1) - 1
		id := incidentIDPrefix + strconv.FormatInt(incidentIDBase+n, 10)

		s.incMu.RLock()
		_, taken := s.incIndex[id]
		s.incMu.RUnlock()
		if !taken {
			return id
		}
	}
}

// AppendIncident inserts an incident keeping most-recent-first order.
// The referenced service must exist and the id must be unused.
func (s *Store) AppendIncident(incident domain.Incident) error {
	if _, ok := s.services[incident.Service]; !ok {
		return ErrServiceNotFound
	}
	if strings.TrimSpace(incident.ID) == "" {
		return fmt.Errorf("%w: incident id is required", domain.ErrValidation)
	}

	s.incMu.Lock()
	defer s.incMu.Unlock()

	if _, exists := s.incIndex[incident.ID]; exists {
		return ErrDuplicateID
	}

	// Entries ahead of the insertion point are strictly newer. Timestamps
	// are immutable so reading them needs no entry lock.
	pos := sort.Search(len(s.incidents), func(i int) bool {
		return !s.incidents[i].inc.Timestamp.After(incident.Timestamp)
	})

	entry := &incidentEntry{inc: incident.Clone()}
	s.incidents = slices.Insert(s.incidents, pos, entry)
	s.incIndex[incident.ID] = entry
	return nil
}

// UpdateServiceHealth sets a service's health, clamped to [0,100].
func (s *Store) UpdateServiceHealth(name string, health float64) (domain.Service, error) {
	return s.AdjustServiceHealth(name, func(float64) float64 { return health })
}

// AdjustServiceHealth applies fn to the current health under the service
// lock and stores the clamped result.
func (s *Store) AdjustServiceHealth(name string, fn func(current float64) float64) (domain.Service, error) {
	entry, ok := s.services[name]
	if !ok {
		return domain.Service{}, ErrServiceNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.svc.Health = domain.ClampHealth(fn(entry.svc.Health))
	return entry.svc, nil
}

// UpdateIncidentStatus sets an incident's status and, when given, its
// resolution time.
func (s *Store) UpdateIncidentStatus(id string, status domain.IncidentStatus, resolvedAt *time.Time) (domain.Incident, error) {
	if !status.IsValid() {
		return domain.Incident{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	return s.MutateIncident(id, func(inc *domain.Incident) error {
		inc.Status = status
		if resolvedAt != nil {
			t := *resolvedAt
			inc.ResolvedAt = &t
		}
		return nil
	})
}

// MutateIncident runs fn against the incident under its write lock. If fn
// returns an error the incident is left unchanged.
func (s *Store) MutateIncident(id string, fn func(incident *domain.Incident) error) (domain.Incident, error) {
	entry, err := s.incidentEntry(id)
	if err != nil {
		return domain.Incident{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	draft := entry.inc.Clone()
	if err := fn(&draft); err != nil {
		if errors.Is(err, ErrNoChange) {
			return entry.inc.Clone(), nil
		}
		return entry.inc.Clone(), err
	}
	// Only status and resolution time are mutable after creation.
	entry.inc.Status = draft.Status
	entry.inc.ResolvedAt = draft.ResolvedAt
	return entry.inc.Clone(), nil
}

// ErrNoChange is returned from a MutateIncident callback to leave the
// incident untouched and report success.
var ErrNoChange = errors.New("no change")

func (s *Store) incidentEntry(id string) (*incidentEntry, error) {
	s.incMu.RLock()
	entry, ok := s.incIndex[id]
	s.incMu.RUnlock()
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return entry, nil
}

// ListReports returns a copy of all reports, most recently generated first.
func (s *Store) ListReports() []domain.Report {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()

	out := make([]domain.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Clone())
	}
	return out
}

// NextReportID returns a fresh report id.
func (s *Store) NextReportID() string {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	for {
		s.reportSeq++
		id := reportIDPrefix + strconv.Itoa(s.reportSeq)
		if !slices.ContainsFunc(s.reports, func(r domain.Report) bool { return r.ID == id }) {
			return id
		}
	}
}

// AppendReport inserts a report keeping most-recent-first order. The type
// must be valid and the id unused.
func (s *Store) AppendReport(report domain.Report) error {
	if strings.TrimSpace(report.ID) == "" {
		return fmt.Errorf("%w: report id is required", domain.ErrValidation)
	}
	if !report.Type.IsValid() {
		return fmt.Errorf("%w: invalid report type %q", domain.ErrValidation, report.Type)
	}

	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	if slices.ContainsFunc(s.reports, func(r domain.Report) bool { return r.ID == report.ID }) {
		return ErrDuplicateReport
	}

	pos := sort.Search(len(s.reports), func(i int) bool {
		return !s.reports[i].GeneratedAt.After(report.GeneratedAt)
	})
	s.reports = slices.Insert(s.reports, pos, report.Clone())
	return nil
}
