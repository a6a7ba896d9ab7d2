// Package notifications delivers escalation alerts for critical incidents.
package notifications

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/riskengine/internal/domain"
	"github.com/bissquit/riskengine/internal/impact"
	"github.com/bissquit/riskengine/internal/pkg/ctxlog"
)

const defaultSendTimeout = 10 * time.Second

// Directory resolves the service and programs behind an incident.
type Directory interface {
	GetService(name string) (domain.Service, error)
	GetProgram(id string) (domain.Program, error)
	ProgramsForService(name string) []string
}

// Config holds notifier configuration.
type Config struct {
	// Target is the channel address, e.g. a Mattermost webhook URL.
	Target string
	// BaseURL, when set, is used to link the incident in messages.
	BaseURL     string
	SendTimeout time.Duration
}

// Notifier renders and sends escalation alerts. Sends run in the
// background so a slow channel never delays the incident creator.
type Notifier struct {
	directory Directory
	renderer  *Renderer
	sender    Sender
	config    Config
	now       func() time.Time

	wg sync.WaitGroup
}

// NewNotifier creates a new Notifier.
func NewNotifier(directory Directory, renderer *Renderer, sender Sender, config Config, now func() time.Time) *Notifier {
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultSendTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		directory: directory,
		renderer:  renderer,
		sender:    sender,
		config:    config,
		now:       now,
	}
}

// NotifyIncident sends an escalation alert for the incident. Failures are
// logged and counted, never returned.
func (n *Notifier) NotifyIncident(ctx context.Context, incident domain.Incident) {
	logger := ctxlog.FromContext(ctx).With("incident_id", incident.ID)
	channel := n.sender.Type()

	payload := n.buildPayload(incident)
	subject, body, err := n.renderer.Render(channel, payload)
	if err != nil {
		recordNotificationSent(channel, statusRenderFailed)
		logger.Error("failed to render escalation", "channel_type", channel, "error", err)
		return
	}

	notification := Notification{
		To:       n.config.Target,
		Subject:  subject,
		Body:     body,
		Severity: string(incident.Severity),
	}

	sendCtx := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(sendCtx, n.config.SendTimeout)
		defer cancel()

		start := time.Now()
		err := n.sender.Send(sendCtx, notification)
		recordNotificationDuration(channel, time.Since(start))

		if err != nil {
			recordNotificationSent(channel, statusFailed)
			logger.Error("failed to send escalation",
				"channel_type", channel,
				"error", err,
			)
			return
		}

		recordNotificationSent(channel, statusSent)
		logger.Info("escalation sent", "channel_type", channel)
	}()
}

// Wait blocks until every in-flight send has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// buildPayload constructs the template payload for an incident.
func (n *Notifier) buildPayload(incident domain.Incident) NotificationPayload {
	detailed := impact.TranslateDetailed(incident)

	payload := NotificationPayload{
		MessageType: MessageTypeEscalation,
		Incident: IncidentData{
			ID:          incident.ID,
			Service:     incident.Service,
			Severity:    string(incident.Severity),
			Status:      string(incident.Status),
			Description: incident.Description,
			Impact:      incident.Impact,
			AssignedTo:  incident.AssignedTo,
			CreatedAt:   incident.Timestamp,
		},
		Escalation:    detailed.EscalationRecommendation,
		RevenueRisk:   detailed.RevenueRisk,
		DelayDays:     detailed.EstimatedDelayDays,
		AffectedAreas: detailed.AffectedPrograms,
		Programs:      make([]ProgramInfo, 0),
		GeneratedAt:   n.now(),
	}

	if svc, err := n.directory.GetService(incident.Service); err == nil {
		payload.ServiceHealth = svc.Health
	}

	for _, id := range n.directory.ProgramsForService(incident.Service) {
		p, err := n.directory.GetProgram(id)
		if err != nil {
			continue
		}
		payload.Programs = append(payload.Programs, ProgramInfo{ID: p.ID, Name: p.Name, Owner: p.Owner})
	}

	if n.config.BaseURL != "" {
		payload.IncidentURL = strings.TrimRight(n.config.BaseURL, "/") + "/api/v1/incidents/" + incident.ID
	}

	return payload
}
