package report

import (
	"time"

	"github.com/nao1215/excavate/internal/model"
)

// TypeOrder is the order in which event types are presented.
var TypeOrder = []model.EventType{
	model.EventTypeFinding,
	model.EventTypeProtocol,
	model.EventTypeURL,
	model.EventTypeURLUnverified,
	model.EventTypeDNSName,
	model.EventTypeEmailAddress,
	model.EventTypeWebParameter,
	model.EventTypeHTTPResponse,
}

// Report is the result of one scan.
type Report struct {
	// ScanID identifies the scan in the event store. Empty when the scan
	// was not stored.
	ScanID string `json:"scan_id,omitempty"`

	// Targets are the scan targets.
	Targets []string `json:"targets"`

	// Date is when the scan started.
	Date time.Time `json:"date"`

	// Elapsed is the wall time of the scan.
	Elapsed time.Duration `json:"elapsed"`

	// PagesFetched is the number of pages fetched and processed.
	PagesFetched int `json:"pages_fetched"`

	// PagesFailed is the number of pages that could not be fetched.
	PagesFailed int `json:"pages_failed"`

	// Canceled reports whether the scan was interrupted.
	Canceled bool `json:"canceled,omitempty"`

	// Events are the emitted events in emission order.
	Events []*model.Event `json:"events"`
}

// NewReport creates a report of targets from the emitted events.
func NewReport(targets []string, events []*model.Event) *Report {
	return &Report{
		Targets: targets,
		Date:    time.Now().UTC(),
		Events:  events,
	}
}

// OfType returns the events of type t in emission order.
func (r *Report) OfType(t model.EventType) []*model.Event {
	var out []*model.Event
	for _, ev := range r.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// CountByType returns the number of events per type.
func (r *Report) CountByType() map[model.EventType]int {
	counts := make(map[model.EventType]int)
	for _, ev := range r.Events {
		counts[ev.Type]++
	}
	return counts
}

// Findings returns the FINDING payloads.
func (r *Report) Findings() []model.Finding {
	var out []model.Finding
	for _, ev := range r.OfType(model.EventTypeFinding) {
		if f, ok := ev.Data.(model.Finding); ok {
			out = append(out, f)
		}
	}
	return out
}

// HasFindings reports whether the scan produced any FINDING event.
func (r *Report) HasFindings() bool {
	for _, ev := range r.Events {
		if ev.Type == model.EventTypeFinding {
			return true
		}
	}
	return false
}
