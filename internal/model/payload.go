package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Payload is the data carried by an Event.
// The set of implementations is closed: only the types in this file satisfy
// the interface, and each one declares which event types may carry it.
//
// Design decision: We model the payload as a tagged variant instead of a
// generic map so that consumers get compile-time field access and the
// event constructor can reject nonsense combinations (a PROTOCOL record on
// a URL event) before anything is emitted.
type Payload interface {
	// Key returns the normalized representation used for deduplication.
	Key() string

	accepts(t EventType) bool
}

// Text is the payload of URL, URL_UNVERIFIED, DNS_NAME and EMAIL_ADDRESS events.
type Text string

// Key returns the text itself.
func (t Text) Key() string {
	return string(t)
}

func (Text) accepts(et EventType) bool {
	switch et {
	case EventTypeURL, EventTypeURLUnverified, EventTypeDNSName, EventTypeEmailAddress:
		return true
	default:
		return false
	}
}

// Finding is the payload of FINDING events.
type Finding struct {
	// Host is the host the finding belongs to.
	Host string `json:"host"`

	// URL is the URL of the response in which the finding was observed.
	URL string `json:"url,omitempty"`

	// Description is the human-readable finding text.
	Description string `json:"description"`
}

// Key returns host, URL and description joined.
func (f Finding) Key() string {
	if f.Description == "" {
		return ""
	}
	return f.Host + "|" + f.URL + "|" + f.Description
}

func (Finding) accepts(et EventType) bool {
	return et == EventTypeFinding
}

// Protocol is the payload of PROTOCOL events.
// Port is zero when the URI did not name one explicitly; it is omitted
// from JSON in that case so consumers never see an inferred default.
type Protocol struct {
	// Protocol is the uppercased scheme (FTP, SMB, ...).
	Protocol string `json:"protocol"`

	// Host is the host named in the URI.
	Host string `json:"host"`

	// Port is the explicit port, or zero.
	Port int `json:"port,omitempty"`
}

// HasPort reports whether the URI named an explicit port.
func (p Protocol) HasPort() bool {
	return p.Port > 0
}

// Key returns protocol, host and port joined.
func (p Protocol) Key() string {
	if p.Protocol == "" || p.Host == "" {
		return ""
	}
	if p.HasPort() {
		return p.Protocol + "|" + p.Host + "|" + strconv.Itoa(p.Port)
	}
	return p.Protocol + "|" + p.Host
}

func (Protocol) accepts(et EventType) bool {
	return et == EventTypeProtocol
}

// Parameter types used in Parameter.ParameterType.
const (
	// ParameterTypeGet marks a query string parameter.
	ParameterTypeGet = "GETPARAM"
	// ParameterTypePost marks a request body parameter.
	ParameterTypePost = "POSTPARAM"
)

// Parameter is the payload of WEB_PARAMETER events.
type Parameter struct {
	// Host is the host of the endpoint that accepts the parameter.
	Host string `json:"host"`

	// URL is the endpoint that accepts the parameter.
	URL string `json:"url"`

	// Name is the parameter name.
	Name string `json:"name"`

	// OriginalValue is the value found in the document.
	OriginalValue string `json:"original_value"`

	// ParameterType is GETPARAM or POSTPARAM.
	ParameterType string `json:"parameter_type"`

	// Technique is the label of the extraction technique
	// (e.g., "GET Form Submodule").
	Technique string `json:"technique"`

	// Description is "HTTP Extracted Parameter [<name>] (<technique>)".
	Description string `json:"description"`

	// AdditionalParams holds sibling parameters found on the same element.
	AdditionalParams map[string]string `json:"additional_params,omitempty"`
}

// Key returns the endpoint, parameter type, name and technique joined.
func (p Parameter) Key() string {
	if p.Name == "" {
		return ""
	}
	return strings.Join([]string{p.ParameterType, p.URL, p.Name, p.Technique}, "|")
}

// AdditionalParamNames returns the sibling parameter names sorted.
func (p Parameter) AdditionalParamNames() []string {
	return slices.Sorted(maps.Keys(p.AdditionalParams))
}

func (Parameter) accepts(et EventType) bool {
	return et == EventTypeWebParameter
}

// Response is the payload of HTTP_RESPONSE events.
type Response struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// Method is the request method.
	Method string `json:"method"`

	// StatusCode is the response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the response media type.
	ContentType string `json:"content_type,omitempty"`

	// Location is the redirect target, if any.
	Location string `json:"location,omitempty"`

	// Hash is the SHA-256 of the body.
	Hash string `json:"hash,omitempty"`
}

// Key returns method, URL and body hash joined.
func (r Response) Key() string {
	if r.URL == "" {
		return ""
	}
	return r.Method + "|" + r.URL + "|" + strconv.Itoa(r.StatusCode) + "|" + r.Hash
}

func (Response) accepts(et EventType) bool {
	return et == EventTypeHTTPResponse
}

// DecodePayload restores a payload from its JSON form.
// The event type selects the concrete shape.
func DecodePayload(eventType EventType, raw []byte) (Payload, error) {
	switch eventType {
	case EventTypeURL, EventTypeURLUnverified, EventTypeDNSName, EventTypeEmailAddress:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return Text(s), nil
	case EventTypeFinding:
		var f Finding
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return f, nil
	case EventTypeProtocol:
		var p Protocol
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventTypeWebParameter:
		var p Parameter
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventTypeHTTPResponse:
		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
