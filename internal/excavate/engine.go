package excavate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/excavate/internal/extract"
	"github.com/nao1215/excavate/internal/metrics"
	"github.com/nao1215/excavate/internal/model"
	"github.com/nao1215/excavate/internal/protocol"
	"github.com/nao1215/excavate/internal/resolve"
	"github.com/nao1215/excavate/internal/signature"
	"github.com/nao1215/excavate/internal/spider"
	"golang.org/x/net/html"
)

// Technique names. They are the module names recorded on emitted events and
// the names accepted by WithoutTechniques.
const (
	TechniqueRedirect      = "redirect"
	TechniqueSpeculate     = "speculate"
	TechniqueLinks         = "links"
	TechniqueURLs          = "urls"
	TechniqueParameters    = "parameters"
	TechniqueSerialization = "serialization"
	TechniqueCSP           = "csp"
	TechniqueRules         = "rules"
)

// moduleProtocols is the module name of non-HTTP URI events.
const moduleProtocols = "protocols"

// Result summarizes the processing of one transaction.
type Result struct {
	// URL is the event of the fetched page: URL, or URL_UNVERIFIED when the
	// page is beyond the scope report distance.
	URL *model.Event

	// Response is the HTTP_RESPONSE event every extracted event descends from.
	Response *model.Event

	// Promoted holds the URL_UNVERIFIED events the tracker queued for fetching.
	Promoted []*model.Event

	// Emitted is the number of events handed to the sink.
	Emitted int
}

// technique is one extraction step run over a transaction.
type technique struct {
	name string
	run  func(p *pass)
}

// Engine runs the extraction techniques over HTTP transactions.
//
// Design decision: Techniques are registered in a fixed order instead of
// running concurrently because:
//  1. The redirect technique must claim the Location URL before the header
//     text scan offers the same URL as a plain link
//  2. The per-page link cap counts links in document order
//  3. A transaction is small enough that a single pass is not the bottleneck;
//     the pipeline parallelizes across transactions instead
type Engine struct {
	tracker    *spider.Tracker
	sink       Sink
	registry   *signature.Registry
	classifier *protocol.Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	httpxOnly  map[string]bool
	disabled   map[string]bool
	builtins   bool
	techniques []technique

	mu       sync.RWMutex
	handlers map[string]RuleHandler
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records transactions, events and rule hits.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClassifier replaces the default protocol classifier.
func WithClassifier(c *protocol.Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithHTTPXOnlyExtensions sets the extensions of relative links that are
// never emitted. The default is js.
func WithHTTPXOnlyExtensions(extensions []string) EngineOption {
	return func(e *Engine) {
		e.httpxOnly = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				e.httpxOnly[ext] = true
			}
		}
	}
}

// WithoutTechniques disables extraction techniques by name.
func WithoutTechniques(names ...string) EngineOption {
	return func(e *Engine) {
		for _, name := range names {
			e.disabled[name] = true
		}
	}
}

// WithBuiltinRules controls whether the built-in rule sets (e-mail
// addresses, JWTs, verbose errors, functionality) are registered.
// They are registered by default.
func WithBuiltinRules(enabled bool) EngineOption {
	return func(e *Engine) {
		e.builtins = enabled
	}
}

// NewEngine creates an engine that reports to sink and consults tracker for
// every discovered URL.
func NewEngine(tracker *spider.Tracker, sink Sink, opts ...EngineOption) (*Engine, error) {
	if tracker == nil {
		return nil, ErrNilTracker
	}
	if sink == nil {
		return nil, ErrNilSink
	}

	e := &Engine{
		tracker:    tracker,
		sink:       sink,
		registry:   signature.NewRegistry(),
		classifier: protocol.NewClassifier(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpxOnly:  map[string]bool{"js": true},
		disabled:   make(map[string]bool),
		builtins:   true,
		handlers:   make(map[string]RuleHandler),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.register(TechniqueRedirect, (*pass).redirect)
	e.register(TechniqueSpeculate, (*pass).speculate)
	e.register(TechniqueLinks, (*pass).links)
	e.register(TechniqueURLs, (*pass).urls)
	e.register(TechniqueParameters, (*pass).parameters)
	e.register(TechniqueSerialization, (*pass).serialization)
	e.register(TechniqueCSP, (*pass).csp)
	e.register(TechniqueRules, (*pass).rules)

	if e.builtins {
		for _, r := range builtinRules() {
			if err := e.AddRule(r.name, r.source, r.handler); err != nil {
				return nil, fmt.Errorf("failed to register built-in rule %s: %w", r.name, err)
			}
		}
	}

	return e, nil
}

// register appends a technique unless it was disabled.
func (e *Engine) register(name string, run func(p *pass)) {
	if e.disabled[name] {
		return
	}
	e.techniques = append(e.techniques, technique{name: name, run: run})
}

// Techniques returns the names of the enabled techniques in execution order.
func (e *Engine) Techniques() []string {
	names := make([]string, 0, len(e.techniques))
	for _, t := range e.techniques {
		names = append(names, t.name)
	}
	return names
}

// AddRule registers a rule source under name. handler may be nil, in which
// case matches are handled by the rule's category meta. A malformed source
// is rejected with a *signature.RuleCompileError and nothing is registered.
//
// Rules may be added while transactions are being processed; the next scan
// uses the merged rule set.
func (e *Engine) AddRule(name, source string, handler RuleHandler) error {
	if err := e.registry.Add(name, source); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if handler == nil {
		delete(e.handlers, name)
	} else {
		e.handlers[name] = handler
	}
	return nil
}

// RemoveRule unregisters a rule source. It reports whether name was registered.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	delete(e.handlers, name)
	e.mu.Unlock()
	return e.registry.Remove(name)
}

// Rules returns the registered rule source names in registration order.
func (e *Engine) Rules() []string {
	return e.registry.Names()
}

// Tracker returns the spider tracker the engine reports URLs to.
func (e *Engine) Tracker() *spider.Tracker {
	return e.tracker
}

func (e *Engine) handler(name string) RuleHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.handlers[name]; ok {
		return h
	}
	return defaultHandler
}

// Seed registers a target URL with the tracker and emits its URL_UNVERIFIED
// event. The returned decision carries the event to fetch.
func (e *Engine) Seed(ctx context.Context, raw string) (spider.Decision, error) {
	d, err := e.tracker.Seed(raw)
	if err != nil {
		return spider.Decision{}, err
	}
	if e.tracker.FirstSighting(d.Event.Key()) {
		if err := e.sink.Emit(ctx, d.Event); err != nil {
			e.logger.Warn("failed to emit event", "type", d.Event.Type, "event", d.Event.String(), "error", err)
		}
		e.metrics.ObserveEvent(d.Event)
	}
	return d, nil
}

// Process extracts everything from one transaction and emits the resulting
// events to the sink. The fetched page is reported first, then its
// HTTP_RESPONSE, then the events of every technique in order.
//
// A transaction whose URL was already processed is skipped without error.
// Bad candidates inside the transaction never fail the call; they are
// dropped with a debug log line.
func (e *Engine) Process(ctx context.Context, tx *model.Transaction) (Result, error) {
	if tx == nil {
		return Result{}, ErrNilTransaction
	}
	page, err := url.Parse(tx.URL)
	if err != nil || page.Host == "" || !resolve.IsHTTP(page) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTransactionURL, tx.URL)
	}

	e.metrics.ObserveTransaction(tx)

	urlEvent, err := e.tracker.Fetched(page, tx.Source)
	if err != nil {
		if errors.Is(err, spider.ErrAlreadyFetched) {
			e.logger.Debug("skipping already processed page", "url", tx.URL)
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("failed to record fetched page: %w", err)
	}

	p := &pass{
		engine: e,
		ctx:    ctx,
		tx:     tx,
		page:   page,
		result: &Result{URL: urlEvent},
	}
	p.emit(urlEvent)

	response, err := model.NewEvent(model.EventTypeHTTPResponse, tx.ResponsePayload(),
		model.WithSource(urlEvent),
		model.WithTags(inScopeTag(urlEvent.ScopeDistance)...),
		model.WithModule("http"),
	)
	if err != nil {
		return *p.result, fmt.Errorf("failed to create response event: %w", err)
	}
	p.response = response
	p.result.Response = response
	p.emit(response)

	for _, t := range e.techniques {
		if err := ctx.Err(); err != nil {
			return *p.result, err
		}
		t.run(p)
	}

	e.logger.Debug("processed transaction",
		"url", tx.URL,
		"status", tx.StatusCode,
		"emitted", p.result.Emitted,
		"promoted", len(p.result.Promoted),
	)
	return *p.result, nil
}

// pass is the state of one Process call.
type pass struct {
	engine   *Engine
	ctx      context.Context
	tx       *model.Transaction
	page     *url.URL
	response *model.Event
	result   *Result

	parsed bool
	doc    *html.Node
}

// document parses the body once. Non-HTML responses have no document.
func (p *pass) document() *html.Node {
	if p.parsed {
		return p.doc
	}
	p.parsed = true
	if !p.tx.IsHTML() || len(p.tx.Body) == 0 {
		return nil
	}
	doc, err := extract.ParseHTML(p.tx.Body)
	if err != nil {
		p.engine.logger.Debug("failed to parse HTML", "url", p.tx.URL, "error", err)
		return nil
	}
	p.doc = doc
	return doc
}

// bodyText returns the body as text, or "" for images.
func (p *pass) bodyText() string {
	if p.tx.IsImage() {
		return ""
	}
	return string(p.tx.Body)
}

// exifText returns the EXIF strings of an image response.
func (p *pass) exifText() string {
	if !p.tx.IsImage() || len(p.tx.Body) == 0 {
		return ""
	}
	return extract.ExifText(p.tx.Body)
}

func (p *pass) redirect() {
	if !p.tx.IsRedirect() {
		return
	}
	location := p.tx.Location()
	r, err := resolve.ResolveRedirect(location, p.page)
	if err != nil {
		p.engine.logger.Debug("discarding redirect", "location", location, "error", err)
		return
	}
	if !resolve.IsHTTP(r.URL) {
		p.protocol(location, r.URL)
		return
	}
	p.offer(spider.Candidate{
		URL:    r.URL,
		Source: p.response,
		Origin: spider.OriginRedirect,
		Module: TechniqueRedirect,
	})
}

func (p *pass) speculate() {
	for _, root := range resolve.Roots(p.page) {
		p.offer(spider.Candidate{
			URL:    root,
			Source: p.response,
			Origin: spider.OriginSpeculated,
			Module: TechniqueSpeculate,
		})
	}
}

func (p *pass) links() {
	doc := p.document()
	if doc == nil {
		return
	}

	base := p.page
	if href := extract.BaseHref(doc); href != "" {
		if r, err := resolve.Resolve(href, p.page); err == nil && resolve.IsHTTP(r.URL) {
			base = r.URL
		}
	}

	for _, link := range extract.Links(doc) {
		r, err := resolve.Resolve(link.Value, base)
		if err != nil {
			p.engine.logger.Debug("discarding link", "link", link.Value, "error", err)
			continue
		}
		if r.Kind.IsRelative() && p.engine.httpxOnly[resolve.Extension(r.URL)] {
			continue
		}
		if !resolve.IsHTTP(r.URL) {
			p.protocol(link.Value, r.URL)
			continue
		}
		p.offerLink(r.URL, TechniqueLinks)
	}
}

func (p *pass) urls() {
	p.text(p.bodyText(), TechniqueURLs)
	p.text(p.exifText(), TechniqueURLs)
	p.text(p.tx.HeaderText(), TechniqueURLs)
}

// text offers the URLs and host names found in free text.
func (p *pass) text(text, module string) {
	if text == "" {
		return
	}
	for c := range extract.URLs(text) {
		switch {
		case c.Kind == extract.KindHost:
			p.host(c.Value, module)
		case c.IsHTTP():
			u, err := url.Parse(c.Value)
			if err != nil {
				p.engine.logger.Debug("discarding URL", "url", c.Value, "error", err)
				continue
			}
			p.offerLink(u, module)
		default:
			p.protocol(c.Value, nil)
		}
	}
}

func (p *pass) parameters() {
	body := p.bodyText()
	if body == "" {
		return
	}
	for _, param := range extract.Parameters(p.document(), body, p.page) {
		p.derived(model.EventTypeWebParameter, param, param.Host, TechniqueParameters)
	}
}

func (p *pass) serialization() {
	for _, s := range extract.DetectSerialized(p.bodyText()) {
		p.derived(model.EventTypeFinding, model.Finding{
			Host:        p.page.Hostname(),
			URL:         p.page.String(),
			Description: fmt.Sprintf("Identified serialized object (%s)", s.Kind),
		}, "", TechniqueSerialization)
	}
}

func (p *pass) csp() {
	for _, name := range []string{"Content-Security-Policy", "Content-Security-Policy-Report-Only"} {
		for _, raw := range p.tx.GetAllHeaders(name) {
			for _, host := range model.ParseCSP(raw).Hosts() {
				p.derived(model.EventTypeDNSName, model.Text(host), host, TechniqueCSP)
			}
		}
	}
}

func (p *pass) rules() {
	p.scan(BufferBody, p.bodyText())
	p.scan(BufferHeader, p.tx.HeaderText())
	p.scan(BufferExif, p.exifText())
}

// scan runs the rule set over one buffer and routes the handler outputs.
func (p *pass) scan(buffer, text string) {
	if text == "" {
		return
	}
	matches, err := p.engine.registry.Scan(text)
	if err != nil {
		p.engine.logger.Warn("failed to compile rules", "error", err)
		return
	}

	for _, m := range matches {
		p.engine.metrics.ObserveRuleHit(m.Rule, buffer)
		hit := RuleHit{
			Match:   m,
			Buffer:  buffer,
			Page:    p.page,
			Source:  p.response,
			InScope: p.inScope,
		}
		for _, out := range p.engine.handler(m.Source)(hit) {
			p.output(out, m.Source)
		}
	}
}

// output emits a rule handler output. URL and protocol texts are routed
// through the tracker and the classifier.
func (p *pass) output(out Output, module string) {
	text, isText := out.Data.(model.Text)
	switch {
	case out.Type == model.EventTypeURLUnverified && isText:
		r, err := resolve.Resolve(string(text), p.page)
		if err != nil {
			p.engine.logger.Debug("discarding rule URL", "url", string(text), "error", err)
			return
		}
		if !resolve.IsHTTP(r.URL) {
			p.protocol(string(text), r.URL)
			return
		}
		p.offerLink(r.URL, module)
	case out.Type == model.EventTypeProtocol && isText:
		p.protocol(string(text), nil)
	default:
		p.derived(out.Type, out.Data, out.Host, module, out.Tags...)
	}
}

// protocol classifies a non-HTTP URI and emits a FINDING and a PROTOCOL for
// it when its scheme is allowed and its host is in scope. u may be nil.
func (p *pass) protocol(raw string, u *url.URL) {
	var (
		c   protocol.Classification
		err error
	)
	if u != nil {
		c, err = p.engine.classifier.ClassifyURL(raw, u)
	} else {
		c, err = p.engine.classifier.Classify(raw)
	}
	if err != nil {
		p.engine.logger.Debug("discarding URI", "uri", raw, "error", err)
		return
	}
	if c.IsHTTP {
		return
	}
	if !c.Allowed {
		p.engine.logger.Debug("filtered scheme", "uri", raw, "scheme", c.Scheme)
		return
	}
	if p.engine.tracker.HostScopeDistance(c.Host, p.response) != 0 {
		p.engine.logger.Debug("out of scope URI", "uri", raw)
		return
	}

	finding := c.Finding()
	finding.URL = p.page.String()
	p.derived(model.EventTypeFinding, finding, c.Host, moduleProtocols)
	p.derived(model.EventTypeProtocol, c.ProtocolRecord(), c.Host, moduleProtocols)
}

// host emits a DNS_NAME for a plausible bare host name.
func (p *pass) host(host, module string) {
	if !extract.PlausibleHost(host, p.inScope) {
		return
	}
	p.derived(model.EventTypeDNSName, model.Text(host), host, module)
}

func (p *pass) inScope(host string) bool {
	return p.engine.tracker.HostScopeDistance(host, nil) == 0
}

func (p *pass) offerLink(u *url.URL, module string) {
	p.offer(spider.Candidate{
		URL:    u,
		Source: p.response,
		Origin: spider.OriginLink,
		Module: module,
	})
}

// offer hands a URL to the tracker and emits the resulting event.
func (p *pass) offer(c spider.Candidate) {
	d, ok := p.engine.tracker.Evaluate(c)
	if !ok {
		return
	}
	p.emit(d.Event)
	if d.Promote {
		p.result.Promoted = append(p.result.Promoted, d.Event)
	}
}

// derived emits an event extracted from the response. Its scope distance is
// derived from host, or from the page host when host is empty.
func (p *pass) derived(t model.EventType, data model.Payload, host, module string, tags ...string) {
	if host == "" {
		host = p.page.Hostname()
	}
	distance := p.engine.tracker.HostScopeDistance(host, p.response)
	ev, err := model.NewEvent(t, data,
		model.WithSource(p.response),
		model.WithTags(append(slices.Clone(tags), inScopeTag(distance)...)...),
		model.WithScopeDistance(distance),
		model.WithModule(module),
	)
	if err != nil {
		p.engine.logger.Debug("discarding event", "type", t, "error", err)
		return
	}
	p.emit(ev)
}

// emit hands an event to the sink unless an event with the same key was
// already emitted in this scan.
func (p *pass) emit(ev *model.Event) {
	if !p.engine.tracker.FirstSighting(ev.Key()) {
		return
	}
	if err := p.engine.sink.Emit(p.ctx, ev); err != nil {
		p.engine.logger.Warn("failed to emit event", "type", ev.Type, "event", ev.String(), "error", err)
	}
	p.engine.metrics.ObserveEvent(ev)
	p.result.Emitted++
}

func inScopeTag(distance int) []string {
	if distance == 0 {
		return []string{model.TagInScope}
	}
	return nil
}
