package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what kind of artifact an Event describes.
// The type decides which Payload shape the event carries.
type EventType string

const (
	// EventTypeURL is a URL that has been fetched and answered.
	EventTypeURL EventType = "URL"

	// EventTypeURLUnverified is a discovered URL that has not been fetched (yet).
	// Every URL found in content starts its life as URL_UNVERIFIED.
	EventTypeURLUnverified EventType = "URL_UNVERIFIED"

	// EventTypeDNSName is a bare hostname found in content or headers.
	EventTypeDNSName EventType = "DNS_NAME"

	// EventTypeEmailAddress is an email address found in content.
	EventTypeEmailAddress EventType = "EMAIL_ADDRESS"

	// EventTypeFinding is a generic human-readable observation.
	EventTypeFinding EventType = "FINDING"

	// EventTypeProtocol is a structured record of a non-HTTP service reference.
	EventTypeProtocol EventType = "PROTOCOL"

	// EventTypeWebParameter is a request parameter recovered from a page.
	EventTypeWebParameter EventType = "WEB_PARAMETER"

	// EventTypeHTTPResponse is the observed transaction itself.
	// It is the source of everything extracted from that response.
	EventTypeHTTPResponse EventType = "HTTP_RESPONSE"
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsURL reports whether the type carries a URL string.
func (t EventType) IsURL() bool {
	return t == EventTypeURL || t == EventTypeURLUnverified
}

// AllEventTypes lists every known event type in a stable order.
// Report writers use it to print sections deterministically.
var AllEventTypes = []EventType{
	EventTypeURL,
	EventTypeURLUnverified,
	EventTypeDNSName,
	EventTypeEmailAddress,
	EventTypeFinding,
	EventTypeProtocol,
	EventTypeWebParameter,
	EventTypeHTTPResponse,
}

// ErrPayloadMismatch is returned when an event is built with a payload
// shape that does not belong to its type (e.g., a Finding on a URL event).
var ErrPayloadMismatch = errors.New("payload does not match event type")

// ErrEmptyPayload is returned when an event is built without data.
var ErrEmptyPayload = errors.New("event payload is empty")

// Event is the unit of output of the extraction core.
// Events are immutable after creation: every field is computed before the
// event is handed to a sink, and nothing modifies it afterwards.
//
// Design decision: Source is kept as a pointer to the parent event rather
// than an ID only, so the spider tracker can read the parent's distances
// without a lookup. SourceID is what gets serialized, because the discovery
// graph is a DAG and a nested JSON tree would duplicate shared parents.
type Event struct {
	// ID uniquely identifies this emission.
	ID string `json:"id"`

	// Type is the event type.
	Type EventType `json:"type"`

	// Data is the type-specific payload.
	Data Payload `json:"data"`

	// Tags is the set of markers attached to the event (spider-max, in-scope...).
	Tags Tags `json:"tags"`

	// ScopeDistance is the hop count to the nearest in-scope target.
	ScopeDistance int `json:"scope_distance"`

	// WebSpiderDistance is the number of pages traversed to reach this event.
	WebSpiderDistance int `json:"web_spider_distance"`

	// Module names the extraction technique that produced the event.
	Module string `json:"module,omitempty"`

	// Source is the parent event. Nil for seeds.
	Source *Event `json:"-"`

	// SourceID is the ID of the parent event. Empty for seeds.
	SourceID string `json:"source_id,omitempty"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// EventOption configures an Event during construction.
type EventOption func(*eventOptions)

// eventOptions collects construction settings so that explicit distances
// win over inherited ones regardless of option order.
type eventOptions struct {
	source        *Event
	tags          []string
	scopeDistance *int
	spiderDist    *int
	module        string
	timestamp     time.Time
	id            string
	sourceID      string
}

// WithSource sets the parent event.
func WithSource(source *Event) EventOption {
	return func(o *eventOptions) {
		o.source = source
	}
}

// WithSourceID records the parent's ID without a pointer to it.
// Used when events are restored from the database.
func WithSourceID(id string) EventOption {
	return func(o *eventOptions) {
		o.sourceID = id
	}
}

// WithTags adds tags to the event.
func WithTags(tags ...string) EventOption {
	return func(o *eventOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// WithScopeDistance sets the scope distance.
func WithScopeDistance(distance int) EventOption {
	return func(o *eventOptions) {
		d := max(0, distance)
		o.scopeDistance = &d
	}
}

// WithWebSpiderDistance sets the web spider distance.
func WithWebSpiderDistance(distance int) EventOption {
	return func(o *eventOptions) {
		d := max(0, distance)
		o.spiderDist = &d
	}
}

// WithModule records which extraction technique produced the event.
func WithModule(module string) EventOption {
	return func(o *eventOptions) {
		o.module = module
	}
}

// WithTimestamp overrides the creation time. Used when events are restored
// from the database.
func WithTimestamp(ts time.Time) EventOption {
	return func(o *eventOptions) {
		o.timestamp = ts
	}
}

// WithID overrides the generated ID. Used when events are restored from the database.
func WithID(id string) EventOption {
	return func(o *eventOptions) {
		o.id = id
	}
}

// NewEvent creates a new event after checking that the payload shape
// belongs to the event type.
//
// Unless overridden with options, the event inherits scope distance and
// web spider distance from its source. The spider tracker is responsible for
// adding hop costs; NewEvent never increments a distance on its own.
func NewEvent(eventType EventType, data Payload, opts ...EventOption) (*Event, error) {
	if data == nil {
		return nil, ErrEmptyPayload
	}
	if !data.accepts(eventType) {
		return nil, fmt.Errorf("%w: %s cannot carry %T", ErrPayloadMismatch, eventType, data)
	}
	if data.Key() == "" {
		return nil, ErrEmptyPayload
	}

	o := &eventOptions{}
	for _, opt := range opts {
		opt(o)
	}

	e := &Event{
		ID:        o.id,
		Type:      eventType,
		Data:      data,
		Tags:      NewTags(o.tags...),
		Module:    o.module,
		Source:    o.source,
		SourceID:  o.sourceID,
		Timestamp: o.timestamp,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if o.source != nil {
		e.SourceID = o.source.ID
		e.ScopeDistance = o.source.ScopeDistance
		e.WebSpiderDistance = o.source.WebSpiderDistance
	}
	if o.scopeDistance != nil {
		e.ScopeDistance = *o.scopeDistance
	}
	if o.spiderDist != nil {
		e.WebSpiderDistance = *o.spiderDist
	}

	return e, nil
}

// UnmarshalJSON restores an event written with encoding/json. Data is
// decoded into the payload shape of Type; Source stays nil and only
// SourceID is restored.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		Data json.RawMessage `json:"data"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return fmt.Errorf("%w: %s event", ErrEmptyPayload, e.Type)
	}
	payload, err := DecodePayload(e.Type, aux.Data)
	if err != nil {
		return err
	}
	e.Data = payload
	return nil
}

// Key returns the deduplication key of the event.
// Two events with the same type and normalized data are duplicates.
func (e *Event) Key() string {
	return string(e.Type) + ":" + e.Data.Key()
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	return e.Tags.Has(tag)
}

// String returns the data as text for URL-like events and the key otherwise.
// This is convenient for logs and simple reports.
func (e *Event) String() string {
	if text, ok := e.Data.(Text); ok {
		return string(text)
	}
	return e.Data.Key()
}
