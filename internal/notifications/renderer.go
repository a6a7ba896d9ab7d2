package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":         titleCase,
		"upper":         strings.ToUpper,
		"join":          strings.Join,
		"formatTime":    formatTime,
		"severityEmoji": severityEmoji,
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		funcMap:   funcMap,
	}

	channelTypes := []ChannelType{ChannelTypeMattermost}
	messageTypes := []MessageType{MessageTypeEscalation}

	for _, channel := range channelTypes {
		for _, msg := range messageTypes {
			name := fmt.Sprintf("%s_%s", channel, msg)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// Render renders a notification payload for the specified channel type.
// Returns subject and body.
func (r *Renderer) Render(channelType ChannelType, payload NotificationPayload) (subject, body string, err error) {
	subject = r.renderSubject(payload)

	templateName := fmt.Sprintf("%s_%s", channelType, payload.MessageType)
	tmpl, ok := r.templates[templateName]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", templateName, err)
	}

	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

// renderSubject generates the notification subject line.
func (r *Renderer) renderSubject(payload NotificationPayload) string {
	prefix := "Notification"
	if payload.MessageType == MessageTypeEscalation {
		prefix = payload.Incident.Severity
	}
	return fmt.Sprintf("[%s] %s incident %s", prefix, payload.Incident.Service, payload.Incident.ID)
}

// Template functions

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func severityEmoji(severity string) string {
	switch strings.ToUpper(severity) {
	case "SEV1":
		return "🔴"
	case "SEV2":
		return "🟠"
	case "SEV3":
		return "🟡"
	default:
		return "⚪"
	}
}
