package notifications

import (
	"context"
	"time"
)

// ChannelType identifies a delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeMattermost ChannelType = "mattermost"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeEscalation MessageType = "escalation" // Incident needs an executive alert
)

// Notification is a rendered message ready for a sender.
type Notification struct {
	To       string
	Subject  string
	Body     string
	Severity string
}

// Sender delivers rendered notifications over one channel.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, notification Notification) error
}

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	MessageType   MessageType   `json:"message_type"`
	Incident      IncidentData  `json:"incident"`
	Escalation    string        `json:"escalation"`
	RevenueRisk   string        `json:"revenue_risk"`
	DelayDays     string        `json:"delay_days"`
	AffectedAreas []string      `json:"affected_areas"`
	Programs      []ProgramInfo `json:"programs"`
	ServiceHealth float64       `json:"service_health"`
	IncidentURL   string        `json:"incident_url,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// IncidentData contains incident information for a notification.
type IncidentData struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Impact      string    `json:"impact,omitempty"`
	AssignedTo  string    `json:"assigned_to"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProgramInfo contains a program affected by the incident's service.
type ProgramInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}
