package domain

import "time"

// Severity represents the impact tier of an incident. SEV1 is the most severe.
type Severity string

// Severity levels.
const (
	SeveritySEV1 Severity = "SEV1"
	SeveritySEV2 Severity = "SEV2"
	SeveritySEV3 Severity = "SEV3"
)

// Severities lists all valid severities from most to least severe.
var Severities = []Severity{SeveritySEV1, SeveritySEV2, SeveritySEV3}

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeveritySEV1 || s == SeveritySEV2 || s == SeveritySEV3
}

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses. Resolved is terminal.
const (
	IncidentStatusNew           IncidentStatus = "new"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusMitigated     IncidentStatus = "mitigated"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusNew, IncidentStatusInvestigating,
		IncidentStatusMitigated, IncidentStatusResolved:
		return true
	}
	return false
}

// IsResolved checks if the status is the terminal resolved state.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// UnassignedOwner is the assignee of freshly created incidents.
const UnassignedOwner = "Unassigned"

// Incident represents an operational incident recorded against a service.
type Incident struct {
	ID          string         `json:"id"`
	Service     string         `json:"service"`
	Severity    Severity       `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
	Impact      string         `json:"impact"`
	Status      IncidentStatus `json:"status"`
	AssignedTo  string         `json:"assigned_to"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
}

// Clone returns a deep copy of the incident.
func (i Incident) Clone() Incident {
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		i.ResolvedAt = &t
	}
	return i
}
