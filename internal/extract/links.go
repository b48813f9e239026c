package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Link is a URL-bearing attribute value of an HTML element.
type Link struct {
	// Value is the attribute value, trimmed.
	Value string

	// Tag is the element name (a, img, form...).
	Tag string

	// Attr is the attribute name (href, src, action...).
	Attr string
}

// linkAttrs lists the attributes that carry a URL.
// srcset and meta refresh content are handled separately.
var linkAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"data":       true,
	"poster":     true,
	"background": true,
	"cite":       true,
	"longdesc":   true,
	"manifest":   true,
}

// ParseHTML parses a document. The parser is error tolerant; an error is only
// returned when the input cannot be read at all.
func ParseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// Links returns the URL-bearing attribute values of doc in document order.
//
// Design decision: We walk the parsed DOM rather than matching attributes
// with a regular expression because:
//  1. Quoting styles (single, double, none) are normalized by the parser
//  2. Entities in attribute values (&amp;) are decoded
//  3. Attribute names are matched case-insensitively
//
// Values that cannot name a fetchable resource (javascript:, mailto:, tel:,
// data:, bare fragments) are skipped.
func Links(doc *html.Node) []Link {
	if doc == nil {
		return nil
	}

	links := make([]Link, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			links = appendElementLinks(links, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links
}

// appendElementLinks appends the links of a single element.
func appendElementLinks(links []Link, n *html.Node) []Link {
	if n.Data == "base" {
		return links
	}

	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case linkAttrs[key]:
			if v, ok := linkValue(attr.Val); ok {
				links = append(links, Link{Value: v, Tag: n.Data, Attr: key})
			}
		case key == "srcset":
			for _, candidate := range strings.Split(attr.Val, ",") {
				fields := strings.Fields(candidate)
				if len(fields) == 0 {
					continue
				}
				if v, ok := linkValue(fields[0]); ok {
					links = append(links, Link{Value: v, Tag: n.Data, Attr: key})
				}
			}
		}
	}

	if n.Data == "meta" && strings.EqualFold(getAttr(n, "http-equiv"), "refresh") {
		if v, ok := refreshTarget(getAttr(n, "content")); ok {
			links = append(links, Link{Value: v, Tag: n.Data, Attr: "content"})
		}
	}
	return links
}

// BaseHref returns the href of the first <base> element, or "".
func BaseHref(doc *html.Node) string {
	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "base" {
			if href := strings.TrimSpace(getAttr(n, "href")); href != "" {
				found = href
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if doc != nil {
		walk(doc)
	}
	return found
}

// linkValue trims an attribute value and filters values that are not links.
func linkValue(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasPrefix(v, "#") {
		return "", false
	}
	lower := strings.ToLower(v)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "about:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	return v, true
}

// refreshTarget extracts the URL of a meta refresh ("5; url=/next").
func refreshTarget(content string) (string, bool) {
	_, rest, ok := strings.Cut(content, ";")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 4 || !strings.EqualFold(rest[:4], "url=") {
		return "", false
	}
	return linkValue(strings.Trim(rest[4:], `'"`))
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
