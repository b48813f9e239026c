package excavate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/excavate/internal/extract"
	"github.com/nao1215/excavate/internal/model"
	"github.com/nao1215/excavate/internal/signature"
)

// Buffers a rule can match in.
const (
	BufferBody   = "body"
	BufferHeader = "header"
	BufferExif   = "exif"
)

// Rule meta keys understood by the default handler.
const (
	// MetaCategory selects how matches are turned into events:
	// "finding" (default), "url", "protocol" or "parameter".
	MetaCategory = "category"

	// MetaEmitMatch appends the matched text to the finding description when "true".
	MetaEmitMatch = "emit_match"
)

// RuleHit is one rule match together with the context it happened in.
type RuleHit struct {
	// Match is the rule match.
	Match signature.Match

	// Buffer is the scanned buffer: body, header or exif.
	Buffer string

	// Page is the URL of the response.
	Page *url.URL

	// Source is the HTTP_RESPONSE event of the response.
	Source *model.Event

	// InScope reports whether a host name is in scope. Never nil.
	InScope func(host string) bool
}

// Output is an event a rule handler wants emitted. The engine fills in the
// source, distances and module.
type Output struct {
	// Type is the event type.
	Type model.EventType

	// Data is the payload.
	Data model.Payload

	// Host is the host the output belongs to; its scope distance is derived
	// from it. Empty means the page host.
	Host string

	// Tags are extra tags.
	Tags []string
}

// RuleHandler turns a rule match into outputs.
//
// Outputs of type URL_UNVERIFIED are not emitted directly: their text is
// resolved against the page and handed to the spider tracker like any other
// discovered link. Text outputs of type PROTOCOL are handed to the protocol
// classifier.
type RuleHandler func(hit RuleHit) []Output

// builtinRule is a rule set registered by every engine.
type builtinRule struct {
	name    string
	source  string
	handler RuleHandler
}

const emailRuleSource = `
rule EmailAddress {
    meta:
        description = "Email address"
    strings:
        $email = /[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,24}/
    condition:
        $email
}`

const jwtRuleSource = `
rule JWT {
    meta:
        description = "JSON Web Token"
    strings:
        $jwt = /eyJ[A-Za-z0-9_\-]{8,}\.eyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]*/
    condition:
        $jwt
}`

const verboseErrorsRuleSource = `
rule VerboseErrors {
    meta:
        description = "Verbose error message"
    strings:
        $php = /(Fatal error|Parse error|Warning|Notice)(<\/b>)?:\s.{1,300}\.php(<\/b>)? on line/
        $java = /at [A-Za-z0-9_.$]+\([A-Za-z0-9_]+\.java:\d+\)/
        $python = "Traceback (most recent call last):"
        $ruby = /\.rb:\d+:in \x60/
        $perl = /at \S+\.p[lm] line \d+\./
        $aspnet = /Server Error in '[^']*' Application/
        $sql = /(You have an error in your SQL syntax|ORA-\d{5}|SQLSTATE\[|unterminated quoted string at or near|Microsoft OLE DB Provider for SQL Server)/
    condition:
        any of them
}`

const functionalityRuleSource = `
rule Functionality {
    meta:
        description = "Interesting functionality"
    strings:
        $upload = /<input[^>]+type\s*=\s*["']?file/ nocase
        $wsdl = /\?wsdl\b/ nocase
    condition:
        any of them
}`

// verboseErrorIdentifiers maps VerboseErrors string IDs to the platform named
// in the finding.
var verboseErrorIdentifiers = map[string]string{
	"$php":    "PHP",
	"$java":   "Java",
	"$python": "Python",
	"$ruby":   "Ruby",
	"$perl":   "Perl",
	"$aspnet": "ASP.NET",
	"$sql":    "SQL",
}

// functionalityDescriptions maps Functionality string IDs to finding descriptions.
var functionalityDescriptions = map[string]string{
	"$upload": "Found form with file upload",
	"$wsdl":   "Found WSDL URL",
}

// builtinRules returns the rule sets every engine starts with.
func builtinRules() []builtinRule {
	return []builtinRule{
		{name: "EmailAddress", source: emailRuleSource, handler: handleEmail},
		{name: "JWT", source: jwtRuleSource, handler: handleJWT},
		{name: "VerboseErrors", source: verboseErrorsRuleSource, handler: handleVerboseErrors},
		{name: "Functionality", source: functionalityRuleSource, handler: handleFunctionality},
	}
}

// handleEmail emits every distinct address whose domain is a plausible host.
func handleEmail(hit RuleHit) []Output {
	var out []Output
	for _, data := range hit.Match.Data() {
		addr := strings.ToLower(strings.Trim(data, "."))
		_, domain, ok := strings.Cut(addr, "@")
		if !ok || !extract.PlausibleHost(domain, hit.InScope) {
			continue
		}
		out = append(out, Output{
			Type: model.EventTypeEmailAddress,
			Data: model.Text(addr),
			Host: domain,
		})
	}
	return out
}

func handleJWT(hit RuleHit) []Output {
	out := make([]Output, 0, len(hit.Match.Strings))
	for _, token := range hit.Match.Data() {
		out = append(out, findingOutput(hit, "JWT Identified ["+token+"]"))
	}
	return out
}

func handleVerboseErrors(hit RuleHit) []Output {
	var out []Output
	seen := make(map[string]bool)
	for _, s := range hit.Match.Strings {
		identifier, ok := verboseErrorIdentifiers[s.ID]
		if !ok || seen[identifier] {
			continue
		}
		seen[identifier] = true
		out = append(out, findingOutput(hit, fmt.Sprintf("Detected verbose error message (%s)", identifier)))
	}
	return out
}

func handleFunctionality(hit RuleHit) []Output {
	var out []Output
	seen := make(map[string]bool)
	for _, s := range hit.Match.Strings {
		desc, ok := functionalityDescriptions[s.ID]
		if !ok || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, findingOutput(hit, desc))
	}
	return out
}

// defaultHandler handles rules registered without a handler. The rule's
// category meta decides the event type.
func defaultHandler(hit RuleHit) []Output {
	m := hit.Match
	switch strings.ToLower(m.Meta[MetaCategory]) {
	case "url":
		out := make([]Output, 0, len(m.Strings))
		for _, data := range m.Data() {
			out = append(out, Output{Type: model.EventTypeURLUnverified, Data: model.Text(data)})
		}
		return out
	case "protocol":
		out := make([]Output, 0, len(m.Strings))
		for _, data := range m.Data() {
			out = append(out, Output{Type: model.EventTypeProtocol, Data: model.Text(data)})
		}
		return out
	case "parameter":
		return parameterOutputs(hit)
	}

	desc := m.Description
	if desc == "" {
		desc = m.Rule
	}
	desc = fmt.Sprintf("HTTP response (%s) %s", hit.Buffer, desc)
	if strings.EqualFold(m.Meta[MetaEmitMatch], "true") {
		desc += " [" + m.Evidence() + "]"
	}
	return []Output{findingOutput(hit, desc)}
}

// parameterOutputs turns matched "name" or "name=value" texts into GET
// parameters of the page.
func parameterOutputs(hit RuleHit) []Output {
	if hit.Page == nil {
		return nil
	}
	endpoint := *hit.Page
	endpoint.RawQuery = ""
	endpoint.Fragment = ""
	technique := "Custom Rule (" + hit.Match.Rule + ")"

	var out []Output
	for _, data := range hit.Match.Data() {
		name, value, _ := strings.Cut(data, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, Output{
			Type: model.EventTypeWebParameter,
			Data: model.Parameter{
				Host:          endpoint.Hostname(),
				URL:           endpoint.String(),
				Name:          name,
				OriginalValue: value,
				ParameterType: model.ParameterTypeGet,
				Technique:     technique,
				Description:   fmt.Sprintf("HTTP Extracted Parameter [%s] (%s)", name, technique),
			},
		})
	}
	return out
}

func findingOutput(hit RuleHit, description string) Output {
	f := model.Finding{Description: description}
	if hit.Page != nil {
		f.Host = hit.Page.Hostname()
		f.URL = hit.Page.String()
	}
	return Output{Type: model.EventTypeFinding, Data: f}
}
