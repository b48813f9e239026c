package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/excavate/internal/model"
	"golang.org/x/net/html"
)

// Technique labels of the parameter extractor.
const (
	TechniqueGetForm    = "GET Form Submodule"
	TechniquePostForm   = "POST Form Submodule"
	TechniqueGetJQuery  = "GET jquery Submodule"
	TechniquePostJQuery = "POST jquery Submodule"
	TechniqueHTMLTags   = "HTML Tags Submodule"
)

var (
	// jqueryCallRe matches $.get("/path", {...}) and $.post("/path", {...})
	// with a literal object argument.
	jqueryCallRe = regexp.MustCompile(`(?i)\$\.(get|post)\s*\(\s*['"]([^'"]*)['"]\s*,\s*\{([^{}]*)\}`)

	// jqueryPairRe matches one key: value pair of the object literal.
	jqueryPairRe = regexp.MustCompile(`['"]?([A-Za-z0-9_$.\-\[\]]+)['"]?\s*:\s*(?:'([^']*)'|"([^"]*)"|([A-Za-z0-9_.\-]+))`)

	// parameterNameRe is the accepted shape of a parameter name.
	parameterNameRe = regexp.MustCompile(`^[A-Za-z0-9_$.:\-\[\]]{1,100}$`)
)

// queryPair is one name/value pair in source order.
type queryPair struct {
	name  string
	value string
}

// Parameters runs the three parameter techniques over a document. body is the
// raw text the document was parsed from; the jQuery technique scans it
// directly so that script blocks and standalone JavaScript are covered alike.
// page is the URL the document was fetched from.
//
// Each technique is independent: a page without forms still yields its jQuery
// and tag parameters. Within a technique findings are in document order.
func Parameters(doc *html.Node, body string, page *url.URL) []model.Parameter {
	params := make([]model.Parameter, 0)
	params = append(params, JQueryParameters(body, page)...)
	if doc != nil {
		d := goquery.NewDocumentFromNode(doc)
		params = append(params, FormParameters(d, page)...)
		params = append(params, TagParameters(doc, page)...)
	}
	return params
}

// JQueryParameters extracts the literal arguments of $.get and $.post calls.
func JQueryParameters(body string, page *url.URL) []model.Parameter {
	params := make([]model.Parameter, 0)
	for _, call := range jqueryCallRe.FindAllStringSubmatch(body, -1) {
		endpoint, ok := endpointURL(call[2], page)
		if !ok {
			continue
		}

		technique, ptype := TechniqueGetJQuery, model.ParameterTypeGet
		if strings.EqualFold(call[1], "post") {
			technique, ptype = TechniquePostJQuery, model.ParameterTypePost
		}

		var pairs []queryPair
		for _, m := range jqueryPairRe.FindAllStringSubmatch(call[3], -1) {
			value := m[2] + m[3] + m[4]
			pairs = append(pairs, queryPair{name: m[1], value: value})
		}
		params = append(params, buildParameters(pairs, endpoint, ptype, technique)...)
	}
	return params
}

// FormParameters extracts the named fields of every form.
func FormParameters(doc *goquery.Document, page *url.URL) []model.Parameter {
	params := make([]model.Parameter, 0)
	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, _ := form.Attr("action")
		endpoint, ok := endpointURL(action, page)
		if !ok {
			return
		}

		technique, ptype := TechniqueGetForm, model.ParameterTypeGet
		if strings.EqualFold(strings.TrimSpace(form.AttrOr("method", "GET")), "post") {
			technique, ptype = TechniquePostForm, model.ParameterTypePost
		}

		var pairs []queryPair
		form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
			name, _ := field.Attr("name")
			pairs = append(pairs, queryPair{name: name, value: fieldValue(field)})
		})
		params = append(params, buildParameters(pairs, endpoint, ptype, technique)...)
	})
	return params
}

// TagParameters extracts the query parameters of URL-bearing attributes.
// Every parameter of a URL becomes one finding whose AdditionalParams hold
// the other parameters of the same URL.
func TagParameters(doc *html.Node, page *url.URL) []model.Parameter {
	params := make([]model.Parameter, 0)
	for _, link := range Links(doc) {
		if !strings.Contains(link.Value, "?") {
			continue
		}
		ref, err := url.Parse(link.Value)
		if err != nil || ref.RawQuery == "" {
			continue
		}
		target := page.ResolveReference(ref)
		if target.Scheme != "http" && target.Scheme != "https" {
			continue
		}
		pairs := orderedQuery(target.RawQuery)
		params = append(params, buildParameters(pairs, stripQuery(target), model.ParameterTypeGet, TechniqueHTMLTags)...)
	}
	return params
}

// buildParameters turns the pairs found on one element into findings. Invalid
// and repeated names are dropped; every finding lists its siblings.
func buildParameters(pairs []queryPair, endpoint *url.URL, ptype, technique string) []model.Parameter {
	valid := make([]queryPair, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if !parameterNameRe.MatchString(p.name) || seen[p.name] {
			continue
		}
		seen[p.name] = true
		valid = append(valid, p)
	}

	params := make([]model.Parameter, 0, len(valid))
	for i, p := range valid {
		var siblings map[string]string
		if len(valid) > 1 {
			siblings = make(map[string]string, len(valid)-1)
			for j, other := range valid {
				if j != i {
					siblings[other.name] = other.value
				}
			}
		}
		params = append(params, model.Parameter{
			Host:             endpoint.Hostname(),
			URL:              endpoint.String(),
			Name:             p.name,
			OriginalValue:    p.value,
			ParameterType:    ptype,
			Technique:        technique,
			Description:      fmt.Sprintf("HTTP Extracted Parameter [%s] (%s)", p.name, technique),
			AdditionalParams: siblings,
		})
	}
	return params
}

// endpointURL resolves a form action or call target against the page.
// An empty target means the page itself.
func endpointURL(target string, page *url.URL) (*url.URL, bool) {
	if page == nil {
		return nil, false
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return stripQuery(page), true
	}
	ref, err := url.Parse(target)
	if err != nil {
		return nil, false
	}
	resolved := page.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	return stripQuery(resolved), true
}

// stripQuery returns a copy of u without query and fragment.
func stripQuery(u *url.URL) *url.URL {
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return &c
}

// orderedQuery splits a raw query string preserving parameter order,
// which url.ParseQuery does not.
func orderedQuery(raw string) []queryPair {
	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		pairs = append(pairs, queryPair{name: name, value: value})
	}
	return pairs
}

// fieldValue returns the default value of a form field.
func fieldValue(field *goquery.Selection) string {
	switch goquery.NodeName(field) {
	case "textarea":
		return strings.TrimSpace(field.Text())
	case "select":
		option := field.Find("option[selected]").First()
		if option.Length() == 0 {
			option = field.Find("option").First()
		}
		if v, ok := option.Attr("value"); ok {
			return v
		}
		return strings.TrimSpace(option.Text())
	default:
		return field.AttrOr("value", "")
	}
}
