package report

import (
	"strconv"
	"strings"

	"github.com/nao1215/excavate/internal/model"
)

// columns returns the table header used for events of type t.
func columns(t model.EventType) []string {
	switch t {
	case model.EventTypeFinding:
		return []string{"Host", "URL", "Description"}
	case model.EventTypeProtocol:
		return []string{"Protocol", "Host", "Port"}
	case model.EventTypeWebParameter:
		return []string{"Name", "Type", "URL", "Technique"}
	case model.EventTypeHTTPResponse:
		return []string{"URL", "Status", "Content-Type"}
	case model.EventTypeURL, model.EventTypeURLUnverified:
		return []string{"URL", "Tags", "Scope Distance", "Spider Distance"}
	default:
		return []string{"Value", "Module"}
	}
}

// row returns the table cells of ev, matching columns(ev.Type).
func row(ev *model.Event) []string {
	switch d := ev.Data.(type) {
	case model.Finding:
		return []string{orDash(d.Host), orDash(d.URL), d.Description}
	case model.Protocol:
		port := "-"
		if d.HasPort() {
			port = strconv.Itoa(d.Port)
		}
		return []string{d.Protocol, d.Host, port}
	case model.Parameter:
		return []string{d.Name, d.ParameterType, d.URL, d.Technique}
	case model.Response:
		return []string{d.URL, strconv.Itoa(d.StatusCode), orDash(d.ContentType)}
	}

	if ev.Type == model.EventTypeURL || ev.Type == model.EventTypeURLUnverified {
		return []string{
			ev.String(),
			orDash(strings.Join(ev.Tags.Sorted(), ", ")),
			strconv.Itoa(ev.ScopeDistance),
			strconv.Itoa(ev.WebSpiderDistance),
		}
	}
	return []string{ev.String(), orDash(ev.Module)}
}

// line renders ev on one line for text output.
func line(ev *model.Event) string {
	switch d := ev.Data.(type) {
	case model.Finding:
		if d.URL != "" {
			return d.Description + " (" + d.URL + ")"
		}
		return d.Description
	case model.Protocol:
		if d.HasPort() {
			return d.Protocol + " " + d.Host + ":" + strconv.Itoa(d.Port)
		}
		return d.Protocol + " " + d.Host
	case model.Parameter:
		return d.Description + " " + d.URL
	case model.Response:
		return strconv.Itoa(d.StatusCode) + " " + d.URL
	}

	s := ev.String()
	if tags := ev.Tags.Sorted(); len(tags) > 0 {
		s += " [" + strings.Join(tags, ", ") + "]"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
