package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestNewEvent tests event construction and payload validation.
func TestNewEvent(t *testing.T) {
	t.Parallel()

	t.Run("accepts matching payloads", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			eventType EventType
			data      Payload
		}{
			{EventTypeURL, Text("http://example.com/")},
			{EventTypeURLUnverified, Text("http://example.com/a")},
			{EventTypeDNSName, Text("example.com")},
			{EventTypeEmailAddress, Text("info@example.com")},
			{EventTypeFinding, Finding{Host: "example.com", Description: "Non-HTTP URI: ftp://example.com"}},
			{EventTypeProtocol, Protocol{Protocol: "FTP", Host: "example.com"}},
			{EventTypeWebParameter, Parameter{Name: "q", URL: "http://example.com/search"}},
			{EventTypeHTTPResponse, Response{URL: "http://example.com/", StatusCode: 200}},
		}

		for _, tc := range testCases {
			event, err := NewEvent(tc.eventType, tc.data)
			if err != nil {
				t.Errorf("NewEvent(%s) failed: %v", tc.eventType, err)
				continue
			}
			if event.ID == "" {
				t.Errorf("expected generated ID for %s", tc.eventType)
			}
			if event.Timestamp.IsZero() {
				t.Errorf("expected timestamp for %s", tc.eventType)
			}
		}
	})

	t.Run("rejects mismatched payloads", func(t *testing.T) {
		t.Parallel()

		_, err := NewEvent(EventTypeURL, Protocol{Protocol: "FTP", Host: "example.com"})
		if !errors.Is(err, ErrPayloadMismatch) {
			t.Errorf("expected ErrPayloadMismatch, got %v", err)
		}

		_, err = NewEvent(EventTypeProtocol, Text("ftp://example.com"))
		if !errors.Is(err, ErrPayloadMismatch) {
			t.Errorf("expected ErrPayloadMismatch, got %v", err)
		}
	})

	t.Run("rejects empty payloads", func(t *testing.T) {
		t.Parallel()

		if _, err := NewEvent(EventTypeURL, nil); !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("expected ErrEmptyPayload, got %v", err)
		}
		if _, err := NewEvent(EventTypeDNSName, Text("")); !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("expected ErrEmptyPayload, got %v", err)
		}
	})

	t.Run("inherits distances from source", func(t *testing.T) {
		t.Parallel()

		parent, err := NewEvent(EventTypeURL, Text("http://example.com/"),
			WithScopeDistance(1), WithWebSpiderDistance(2))
		if err != nil {
			t.Fatalf("failed to create parent: %v", err)
		}

		child, err := NewEvent(EventTypeDNSName, Text("www.example.com"), WithSource(parent))
		if err != nil {
			t.Fatalf("failed to create child: %v", err)
		}
		if child.ScopeDistance != 1 || child.WebSpiderDistance != 2 {
			t.Errorf("expected inherited distances 1/2, got %d/%d", child.ScopeDistance, child.WebSpiderDistance)
		}
		if child.SourceID != parent.ID {
			t.Errorf("expected SourceID %q, got %q", parent.ID, child.SourceID)
		}
	})

	t.Run("explicit distances win regardless of option order", func(t *testing.T) {
		t.Parallel()

		parent, err := NewEvent(EventTypeURL, Text("http://example.com/"), WithWebSpiderDistance(1))
		if err != nil {
			t.Fatalf("failed to create parent: %v", err)
		}

		child, err := NewEvent(EventTypeURLUnverified, Text("http://example.com/a"),
			WithWebSpiderDistance(2), WithSource(parent))
		if err != nil {
			t.Fatalf("failed to create child: %v", err)
		}
		if child.WebSpiderDistance != 2 {
			t.Errorf("expected web spider distance 2, got %d", child.WebSpiderDistance)
		}
	})

	t.Run("negative distances are clamped", func(t *testing.T) {
		t.Parallel()

		event, err := NewEvent(EventTypeURL, Text("http://example.com/"), WithScopeDistance(-3))
		if err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
		if event.ScopeDistance != 0 {
			t.Errorf("expected 0, got %d", event.ScopeDistance)
		}
	})
}

// TestEventKey tests deduplication keys.
func TestEventKey(t *testing.T) {
	t.Parallel()

	a, _ := NewEvent(EventTypeURLUnverified, Text("http://example.com/"))
	b, _ := NewEvent(EventTypeURLUnverified, Text("http://example.com/"), WithTags(TagSpiderMax))
	c, _ := NewEvent(EventTypeURL, Text("http://example.com/"))

	if a.Key() != b.Key() {
		t.Errorf("expected equal keys for same type and data, got %q and %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("expected different keys for different types, got %q", a.Key())
	}
}

// TestEventJSON tests that encoded events decode back to typed payloads.
func TestEventJSON(t *testing.T) {
	t.Parallel()

	parent, err := NewEvent(EventTypeURL, Text("http://example.com/"))
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	finding, err := NewEvent(EventTypeFinding,
		Finding{Host: "example.com", URL: "http://example.com/", Description: "Non-HTTP URI: ftp://example.com:2121"},
		WithSource(parent),
		WithTags(TagSpiderMax),
	)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	t.Run("restores payloads and fields", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal([]*Event{parent, finding})
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}

		var decoded []*Event
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if len(decoded) != 2 {
			t.Fatalf("expected 2 events, got %d", len(decoded))
		}

		if text, ok := decoded[0].Data.(Text); !ok || text != "http://example.com/" {
			t.Errorf("expected Text payload, got %#v", decoded[0].Data)
		}
		f, ok := decoded[1].Data.(Finding)
		if !ok {
			t.Fatalf("expected Finding payload, got %#v", decoded[1].Data)
		}
		if f.Description != "Non-HTTP URI: ftp://example.com:2121" {
			t.Errorf("expected description to survive, got %q", f.Description)
		}
		if decoded[1].Key() != finding.Key() {
			t.Errorf("expected key %q, got %q", finding.Key(), decoded[1].Key())
		}
		if decoded[1].SourceID != parent.ID {
			t.Errorf("expected source ID %q, got %q", parent.ID, decoded[1].SourceID)
		}
		if !decoded[1].HasTag(TagSpiderMax) {
			t.Error("expected spider-max tag to survive")
		}
	})

	t.Run("rejects missing data", func(t *testing.T) {
		t.Parallel()

		var ev Event
		err := json.Unmarshal([]byte(`{"type":"URL","data":null}`), &ev)
		if !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("expected ErrEmptyPayload, got %v", err)
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		t.Parallel()

		var ev Event
		if err := json.Unmarshal([]byte(`{"type":"BOGUS","data":"x"}`), &ev); err == nil {
			t.Error("expected error for unknown type, got nil")
		}
	})
}

// TestProtocolJSON tests that an absent port is omitted entirely.
func TestProtocolJSON(t *testing.T) {
	t.Parallel()

	t.Run("no port key when port is absent", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(Protocol{Protocol: "SMB", Host: "127.0.0.1"})
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}
		if strings.Contains(string(data), "port") {
			t.Errorf("expected no port key, got %s", data)
		}
	})

	t.Run("port key when port is explicit", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(Protocol{Protocol: "FTP", Host: "127.0.0.1", Port: 2121})
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}
		if !strings.Contains(string(data), `"port":2121`) {
			t.Errorf("expected port 2121, got %s", data)
		}
	})
}

// TestDecodePayload tests restoring payloads from JSON.
func TestDecodePayload(t *testing.T) {
	t.Parallel()

	t.Run("restores a parameter payload", func(t *testing.T) {
		t.Parallel()

		original := Parameter{
			Name:             "age",
			OriginalValue:    "456",
			AdditionalParams: map[string]string{"id": "123"},
		}
		raw, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}

		payload, err := DecodePayload(EventTypeWebParameter, raw)
		if err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		param, ok := payload.(Parameter)
		if !ok {
			t.Fatalf("expected Parameter, got %T", payload)
		}
		if param.AdditionalParams["id"] != "123" {
			t.Errorf("expected id=123 in additional params, got %v", param.AdditionalParams)
		}
	})

	t.Run("unknown type fails", func(t *testing.T) {
		t.Parallel()

		if _, err := DecodePayload(EventType("BOGUS"), []byte(`"x"`)); err == nil {
			t.Error("expected error for unknown event type")
		}
	})
}

// TestTags tests the tag set helpers.
func TestTags(t *testing.T) {
	t.Parallel()

	base := NewTags("b", "a", "")
	extended := base.With(TagSpiderMax)

	if base.Has(TagSpiderMax) {
		t.Error("With must not modify the receiver")
	}
	if !extended.Has(TagSpiderMax) || !extended.Has("a") {
		t.Errorf("expected extended set to contain both, got %v", extended.Sorted())
	}
	if got := strings.Join(base.Sorted(), ","); got != "a,b" {
		t.Errorf("expected sorted 'a,b', got %q", got)
	}

	data, err := json.Marshal(Tags(nil))
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty array, got %s", data)
	}

	var decoded Tags
	if err := json.Unmarshal([]byte(`["x","y"]`), &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if !decoded.Has("x") || !decoded.Has("y") {
		t.Errorf("expected x and y, got %v", decoded.Sorted())
	}
}

// TestParseCSP tests Content-Security-Policy parsing and host extraction.
func TestParseCSP(t *testing.T) {
	t.Parallel()

	t.Run("extracts host sources", func(t *testing.T) {
		t.Parallel()

		policy := ParseCSP("default-src 'self'; script-src asdf.test.notreal; object-src 'none';")
		hosts := policy.Hosts()
		if len(hosts) != 1 || hosts[0] != "asdf.test.notreal" {
			t.Errorf("expected [asdf.test.notreal], got %v", hosts)
		}
		if got := policy.Sources("SCRIPT-SRC"); len(got) != 1 {
			t.Errorf("expected one script-src source, got %v", got)
		}
	})

	t.Run("normalizes schemes ports paths and wildcards", func(t *testing.T) {
		t.Parallel()

		policy := ParseCSP("img-src https://cdn.example.com:443/img/ *.static.example.org data: https: *; connect-src CDN.EXAMPLE.COM")
		hosts := policy.Hosts()
		want := []string{"cdn.example.com", "static.example.org"}
		if strings.Join(hosts, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, hosts)
		}
	})

	t.Run("skips keywords nonces and hashes", func(t *testing.T) {
		t.Parallel()

		policy := ParseCSP("script-src 'self' 'unsafe-inline' 'nonce-abc.def' 'sha256-xyz'")
		if hosts := policy.Hosts(); len(hosts) != 0 {
			t.Errorf("expected no hosts, got %v", hosts)
		}
	})

	t.Run("first directive occurrence wins", func(t *testing.T) {
		t.Parallel()

		policy := ParseCSP("script-src a.example.com; script-src b.example.com")
		if got := policy.Sources("script-src"); len(got) != 1 || got[0] != "a.example.com" {
			t.Errorf("expected first occurrence, got %v", got)
		}
	})
}
