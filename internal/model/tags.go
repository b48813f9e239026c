package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// Well-known tags.
const (
	// TagSpiderMax marks an artifact that exceeded a distance, depth or
	// per-page cap. It is reported but never fetched.
	TagSpiderMax = "spider-max"

	// TagInScope marks an event whose scope distance is zero.
	TagInScope = "in-scope"

	// TagTarget marks a seed URL given by the user.
	TagTarget = "target"

	// TagRedirect marks a URL that came from a Location header.
	TagRedirect = "redirect"

	// TagSpeculated marks a synthesized origin-root URL.
	TagSpeculated = "speculated"

	// TagExtensionBlacklisted marks a URL whose extension is never fetched.
	TagExtensionBlacklisted = "extension-blacklisted"
)

// Tags is a set of string markers.
// The zero value is an empty set; Tags serialize as a sorted JSON array.
type Tags map[string]struct{}

// NewTags creates a tag set from the given names. Empty names are ignored.
func NewTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, n := range names {
		if n != "" {
			t[n] = struct{}{}
		}
	}
	return t
}

// Has reports whether the set contains the tag.
func (t Tags) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// With returns a copy of the set with the given tags added.
// The receiver is never modified.
func (t Tags) With(names ...string) Tags {
	out := make(Tags, len(t)+len(names))
	maps.Copy(out, t)
	for _, n := range names {
		if n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tag names in lexical order.
func (t Tags) Sorted() []string {
	return slices.Sorted(maps.Keys(t))
}

// MarshalJSON encodes the set as a sorted array.
func (t Tags) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Sorted())
}

// UnmarshalJSON decodes a JSON array into the set.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*t = NewTags(names...)
	return nil
}
