package spider

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/nao1215/excavate/internal/model"
	"github.com/nao1215/excavate/internal/resolve"
	"github.com/nao1215/excavate/internal/scope"
)

// Origin tells the tracker how a URL was discovered.
type Origin int

const (
	// OriginLink is a URL found in the content or headers of a page.
	OriginLink Origin = iota

	// OriginRedirect is the resolved Location of a redirect response.
	OriginRedirect

	// OriginSpeculated is an origin root synthesized from a fetched page URL.
	OriginSpeculated
)

// String returns the origin name used in log lines.
func (o Origin) String() string {
	switch o {
	case OriginRedirect:
		return "redirect"
	case OriginSpeculated:
		return "speculated"
	default:
		return "link"
	}
}

// Candidate is a discovered URL offered to the tracker.
type Candidate struct {
	// URL is the absolute URL. Only http and https URLs are accepted.
	URL *url.URL

	// Source is the event the URL was extracted from, usually the
	// HTTP_RESPONSE event of the page.
	Source *model.Event

	// Origin is how the URL was discovered.
	Origin Origin

	// Module names the extraction technique, recorded on the event.
	Module string
}

// Decision is the outcome of evaluating a candidate.
type Decision struct {
	// Event is the fully built URL_UNVERIFIED event.
	Event *model.Event

	// Promote reports whether the URL should be queued for fetching.
	Promote bool
}

// Stats contains tracker counters.
type Stats struct {
	// Seen is the number of distinct URLs evaluated.
	Seen int

	// Promoted is the number of URLs handed to the fetch queue.
	Promoted int

	// SpiderMax is the number of URLs tagged spider-max.
	SpiderMax int

	// Fetched is the number of URL events created for fetched pages.
	Fetched int
}

// Tracker is the spider state of one scan.
type Tracker struct {
	oracle scope.Oracle
	logger *slog.Logger

	// maxDistance is the highest web spider distance that is still fetched.
	maxDistance int

	// maxDepth is the highest path depth that is still fetched.
	maxDepth int

	// linksPerPage caps the links promoted from a single page.
	// A negative value disables the cap.
	linksPerPage int

	// scopeReportDistance is the highest scope distance reported as URL.
	scopeReportDistance int

	// speculatePromote lets speculated roots be fetched.
	speculatePromote bool

	// extensionBlacklist holds lower-case extensions that are never fetched.
	extensionBlacklist map[string]struct{}

	// ignorePatterns are path patterns that are never fetched.
	ignorePatterns []string

	// followPatterns, when set, are the only path patterns fetched.
	followPatterns []string

	// mutex protects everything below.
	mutex sync.Mutex

	// seen holds the normalized URLs already evaluated.
	seen map[string]struct{}

	// fetched holds the normalized URLs a URL event was created for.
	fetched map[string]struct{}

	// pageLinks counts the links taken from each page.
	pageLinks map[string]int

	// emitted holds the keys of events already handed to the sink.
	emitted map[string]struct{}

	stopped bool
	stats   Stats
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxDistance sets the maximum web spider distance.
// 0 = only the seeds are fetched, 1 = seeds plus linked pages, etc.
func WithMaxDistance(distance int) TrackerOption {
	return func(t *Tracker) {
		t.maxDistance = distance
	}
}

// WithMaxDepth sets the maximum number of path segments of a fetched URL.
func WithMaxDepth(depth int) TrackerOption {
	return func(t *Tracker) {
		t.maxDepth = depth
	}
}

// WithLinksPerPage sets how many links of one page may be promoted.
// A negative value disables the cap.
func WithLinksPerPage(n int) TrackerOption {
	return func(t *Tracker) {
		t.linksPerPage = n
	}
}

// WithScopeReportDistance sets the highest scope distance at which a fetched
// page is still reported as URL rather than URL_UNVERIFIED.
func WithScopeReportDistance(distance int) TrackerOption {
	return func(t *Tracker) {
		t.scopeReportDistance = distance
	}
}

// WithSpeculatePromote lets speculated origin roots be promoted.
func WithSpeculatePromote(promote bool) TrackerOption {
	return func(t *Tracker) {
		t.speculatePromote = promote
	}
}

// WithExtensionBlacklist sets extensions (without dot) that are never fetched.
func WithExtensionBlacklist(extensions []string) TrackerOption {
	return func(t *Tracker) {
		t.extensionBlacklist = make(map[string]struct{}, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				t.extensionBlacklist[ext] = struct{}{}
			}
		}
	}
}

// WithIgnorePatterns sets URL path patterns that are never fetched.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) TrackerOption {
	return func(t *Tracker) {
		t.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to fetch.
// If set, only URLs matching at least one pattern are fetched.
func WithFollowPatterns(patterns []string) TrackerOption {
	return func(t *Tracker) {
		t.followPatterns = patterns
	}
}

// WithLogger sets the logger used for per-URL decisions.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a tracker that asks oracle for scope distances.
//
// Defaults: distance 0, depth 1, 25 links per page, scope report distance 0,
// speculated roots not promoted.
func NewTracker(oracle scope.Oracle, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		oracle:             oracle,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxDistance:        0,
		maxDepth:           1,
		linksPerPage:       25,
		extensionBlacklist: make(map[string]struct{}),
		seen:               make(map[string]struct{}),
		fetched:            make(map[string]struct{}),
		pageLinks:          make(map[string]int),
		emitted:            make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Seed registers a user-given target URL. Seeds are tagged "target", are
// exempt from the depth cap and start at distance 0. A target without a
// scheme is treated as http.
func (t *Tracker) Seed(raw string) (Decision, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if !resolve.IsHTTP(u) || u.Host == "" {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
	}

	n := resolve.NormalizeURL(u)
	key := n.String()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, dup := t.seen[key]; dup {
		return Decision{}, fmt.Errorf("%w: %s", ErrDuplicateSeed, key)
	}
	t.seen[key] = struct{}{}
	t.stats.Seen++

	scopeDistance := t.scopeDistanceLocked(n, nil)
	tags := []string{model.TagTarget}
	if scopeDistance == 0 {
		tags = append(tags, model.TagInScope)
	}

	ev, err := model.NewEvent(model.EventTypeURLUnverified, model.Text(key),
		model.WithTags(tags...),
		model.WithScopeDistance(scopeDistance),
		model.WithWebSpiderDistance(0),
		model.WithModule("seed"),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to create seed event: %w", err)
	}

	promote := !t.stopped
	if promote {
		t.stats.Promoted++
	}
	return Decision{Event: ev, Promote: promote}, nil
}

// Evaluate decides the fate of a discovered URL. The second return value is
// false when the candidate is not an http(s) URL or was already seen; the
// first sighting wins and later ones produce nothing.
func (t *Tracker) Evaluate(c Candidate) (Decision, bool) {
	if c.URL == nil || c.URL.Host == "" || !resolve.IsHTTP(c.URL) {
		return Decision{}, false
	}
	n := resolve.NormalizeURL(c.URL)
	key := n.String()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, dup := t.seen[key]; dup {
		return Decision{}, false
	}
	t.seen[key] = struct{}{}
	t.stats.Seen++

	parentDistance := 0
	if c.Source != nil {
		parentDistance = c.Source.WebSpiderDistance
	}
	hop := 1
	if c.Origin == OriginRedirect {
		hop = 0
	}
	spiderDistance := parentDistance + hop
	scopeDistance := t.scopeDistanceLocked(n, c.Source)

	var tags []string
	overCap := false
	reason := ""

	switch c.Origin {
	case OriginRedirect:
		tags = append(tags, model.TagRedirect)
	case OriginSpeculated:
		tags = append(tags, model.TagSpeculated)
		if !t.speculatePromote {
			overCap, reason = true, "speculated"
		}
	}

	if spiderDistance > t.maxDistance {
		overCap, reason = true, "distance"
	}
	if c.Origin == OriginLink {
		if resolve.Depth(n) > t.maxDepth {
			overCap, reason = true, "depth"
		}
		if t.linksPerPage >= 0 {
			page := pageKey(c.Source)
			t.pageLinks[page]++
			if t.pageLinks[page] > t.linksPerPage {
				overCap, reason = true, "links per page"
			}
		}
	}
	if !t.shouldCrawl(n) {
		overCap, reason = true, "pattern"
	}

	if overCap {
		tags = append(tags, model.TagSpiderMax)
		t.stats.SpiderMax++
	}
	blacklisted := t.isBlacklisted(n)
	if blacklisted {
		tags = append(tags, model.TagExtensionBlacklisted)
	}
	if scopeDistance == 0 {
		tags = append(tags, model.TagInScope)
	}

	ev, err := model.NewEvent(model.EventTypeURLUnverified, model.Text(key),
		model.WithSource(c.Source),
		model.WithTags(tags...),
		model.WithScopeDistance(scopeDistance),
		model.WithWebSpiderDistance(spiderDistance),
		model.WithModule(c.Module),
	)
	if err != nil {
		t.logger.Debug("discarding URL", "url", key, "error", err)
		return Decision{}, false
	}

	promote := !overCap && !blacklisted && scopeDistance == 0 && !t.stopped
	if promote {
		t.stats.Promoted++
	}

	t.logger.Debug("evaluated URL",
		"url", key,
		"origin", c.Origin.String(),
		"web_spider_distance", spiderDistance,
		"scope_distance", scopeDistance,
		"promote", promote,
		"spider_max_reason", reason,
	)

	return Decision{Event: ev, Promote: promote}, true
}

// Fetched creates the event for a page that has been fetched. source is the
// URL_UNVERIFIED event that was promoted; it may be nil for transactions that
// did not come from the spider.
//
// The event is a URL unless its scope distance exceeds the scope report
// distance, in which case it is downgraded to URL_UNVERIFIED.
func (t *Tracker) Fetched(u *url.URL, source *model.Event) (*model.Event, error) {
	if u == nil || u.Host == "" || !resolve.IsHTTP(u) {
		return nil, fmt.Errorf("%w: not an http URL", ErrInvalidSeed)
	}
	n := resolve.NormalizeURL(u)
	key := n.String()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, dup := t.fetched[key]; dup {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFetched, key)
	}
	t.fetched[key] = struct{}{}
	t.seen[key] = struct{}{}
	t.stats.Fetched++

	var scopeDistance, spiderDistance int
	var tags []string
	if source != nil {
		scopeDistance = source.ScopeDistance
		spiderDistance = source.WebSpiderDistance
		if source.HasTag(model.TagTarget) {
			tags = append(tags, model.TagTarget)
		}
	} else {
		scopeDistance = t.scopeDistanceLocked(n, nil)
	}
	if scopeDistance == 0 {
		tags = append(tags, model.TagInScope)
	}

	eventType := model.EventTypeURL
	if scopeDistance > t.scopeReportDistance {
		eventType = model.EventTypeURLUnverified
	}

	return model.NewEvent(eventType, model.Text(key),
		model.WithSource(source),
		model.WithTags(tags...),
		model.WithScopeDistance(scopeDistance),
		model.WithWebSpiderDistance(spiderDistance),
		model.WithModule("fetch"),
	)
}

// ScopeDistance returns the scope distance of u discovered from parent:
// 0 when the oracle says u is in scope, otherwise max(oracle, parent+1).
func (t *Tracker) ScopeDistance(u *url.URL, parent *model.Event) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.scopeDistanceLocked(u, parent)
}

// HostScopeDistance is ScopeDistance for a bare host name or IP address.
func (t *Tracker) HostScopeDistance(host string, parent *model.Event) int {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return t.ScopeDistance(&url.URL{Host: host}, parent)
}

// FirstSighting reports whether an event key is seen for the first time and
// records it. The engine uses it to emit every distinct event once.
func (t *Tracker) FirstSighting(key string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, dup := t.emitted[key]; dup {
		return false
	}
	t.emitted[key] = struct{}{}
	return true
}

// Stop makes the tracker refuse further promotions. Events are still
// evaluated and emitted, they are just never queued.
func (t *Tracker) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop was called.
func (t *Tracker) Stopped() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stopped
}

// Stats returns current counters.
func (t *Tracker) Stats() Stats {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stats
}

// Reset clears the tracker's state, allowing it to be reused for a new scan.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.seen = make(map[string]struct{})
	t.fetched = make(map[string]struct{})
	t.pageLinks = make(map[string]int)
	t.emitted = make(map[string]struct{})
	t.stopped = false
	t.stats = Stats{}
}

func (t *Tracker) scopeDistanceLocked(u *url.URL, parent *model.Event) int {
	distance := scope.OutOfScope
	if t.oracle != nil {
		distance = t.oracle.ScopeDistance(u)
	}
	if distance <= 0 {
		return 0
	}
	if parent != nil {
		distance = max(distance, parent.ScopeDistance+1)
	}
	return distance
}

// isBlacklisted reports whether the URL's extension is never fetched.
func (t *Tracker) isBlacklisted(u *url.URL) bool {
	ext := resolve.Extension(u)
	if ext == "" {
		return false
	}
	_, ok := t.extensionBlacklist[ext]
	return ok
}

// pageKey identifies the page a link was found on.
func pageKey(source *model.Event) string {
	if source == nil {
		return ""
	}
	switch data := source.Data.(type) {
	case model.Response:
		if n, err := resolve.Normalize(data.URL); err == nil {
			return n
		}
		return data.URL
	case model.Text:
		return string(data)
	default:
		return source.ID
	}
}
