package impact

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var errEmptyReply = errors.New("empty reply")

var narrativeTemplate = template.Must(
	template.New("narrative.tmpl").
		Funcs(template.FuncMap{
			"lower":   func(v any) string { return cases.Lower(language.English).String(fmt.Sprint(v)) },
			"percent": formatPercent,
		}).
		ParseFS(templateFS, "templates/narrative.tmpl"),
)

func renderNarrative(summary ExecutiveSummary) (string, error) {
	var buf bytes.Buffer
	if err := narrativeTemplate.Execute(&buf, summary); err != nil {
		return "", fmt.Errorf("execute narrative template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// staticNarrative is used only if the template cannot be rendered.
func staticNarrative(summary ExecutiveSummary) string {
	return fmt.Sprintf("Platform health at %s%% with %d incidents on record.",
		formatPercent(summary.PlatformHealthScore), summary.IncidentSummary.Total)
}
