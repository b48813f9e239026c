package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/excavate/internal/protocol"
)

// Default configuration values.
const (
	// DefaultWebSpiderDistance of 0 fetches only the seeds. Raise it to let
	// the spider follow links.
	DefaultWebSpiderDistance = 0

	// DefaultWebSpiderDepth is the deepest path (in directories) that is fetched.
	DefaultWebSpiderDepth = 1

	// DefaultWebSpiderLinksPerPage caps the links taken from one page.
	DefaultWebSpiderLinksPerPage = 25

	// DefaultScopeReportDistance of 0 reports only in-scope pages as URL.
	DefaultScopeReportDistance = 0

	// DefaultConcurrency is the number of fetch workers.
	DefaultConcurrency = 10

	// DefaultTimeout is the per-request timeout. Onion services behind a
	// proxy need more; raise it with --timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent identifies excavate in HTTP requests.
	DefaultUserAgent = "excavate/1.0 (+https://github.com/nao1215/excavate)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "excavate"
)

// DefaultURLExtensionHTTPXOnly lists extensions of relative links that are
// left to a browser-like fetcher and not emitted.
var DefaultURLExtensionHTTPXOnly = []string{"js"}

// DefaultURLExtensionBlacklist lists extensions that are emitted but never fetched.
var DefaultURLExtensionBlacklist = []string{
	"png", "jpg", "jpeg", "gif", "bmp", "ico", "svg", "webp",
	"woff", "woff2", "ttf", "eot", "otf",
	"mp3", "mp4", "m4a", "wav", "flac", "avi", "mov", "mkv", "webm",
	"css",
}

// Rule is a custom signature rule from the configuration file.
type Rule struct {
	// Name is the registration name. The source must define a rule of that name.
	Name string `yaml:"name"`

	// Source is the rule text.
	Source string `yaml:"source,omitempty"`

	// File is a path to the rule text, used when Source is empty.
	// Relative paths are resolved against the configuration file.
	File string `yaml:"file,omitempty"`
}

// Config holds all configuration options for excavate.
// This struct is populated from the configuration file and CLI flags and
// passed through the application via dependency injection rather than
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The YAML keys mirror the field names so that the file
// can be read without documentation.
type Config struct {
	// WebSpiderDistance is the maximum number of link hops from a seed that
	// is still fetched. Redirects do not count as a hop.
	WebSpiderDistance int `yaml:"web_spider_distance"`

	// WebSpiderDepth is the maximum number of directories in a fetched path.
	WebSpiderDepth int `yaml:"web_spider_depth"`

	// WebSpiderLinksPerPage caps the links taken from a single page.
	WebSpiderLinksPerPage int `yaml:"web_spider_links_per_page"`

	// ScopeReportDistance is the highest scope distance at which a fetched
	// page is reported as URL rather than URL_UNVERIFIED.
	ScopeReportDistance int `yaml:"scope_report_distance"`

	// URLExtensionHTTPXOnly lists extensions of relative links that are not emitted.
	URLExtensionHTTPXOnly []string `yaml:"url_extension_httpx_only"`

	// URLExtensionBlacklist lists extensions that are emitted but never fetched.
	URLExtensionBlacklist []string `yaml:"url_extension_blacklist"`

	// ValidSchemes is the allow-list of non-HTTP schemes reported as findings.
	ValidSchemes []string `yaml:"valid_schemes"`

	// SpeculatePromote lets speculated origin roots be fetched.
	SpeculatePromote bool `yaml:"speculate_promote"`

	// Concurrency is the number of fetch workers.
	Concurrency int `yaml:"concurrency"`

	// MaxPages stops a scan after this many pages. 0 means no limit.
	MaxPages int `yaml:"max_pages"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond limits the request rate. 0 means no limit.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `yaml:"user_agent"`

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use the default (5MB).
	MaxBodySize int64 `yaml:"max_body_size"`

	// InsecureTLS disables certificate verification.
	InsecureTLS bool `yaml:"insecure_tls"`

	// TorProxy is the address of a SOCKS5 proxy in "host:port" format.
	// Empty means direct connections.
	TorProxy string `yaml:"tor_proxy"`

	// EmbeddedTor starts a private Tor daemon and routes every request through it.
	EmbeddedTor bool `yaml:"embedded_tor"`

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration `yaml:"tor_startup_timeout"`

	// DBDir is the directory of the SQLite event store.
	// Defaults to XDG data directory (~/.local/share/excavate on Linux).
	DBDir string `yaml:"db_dir"`

	// SaveToDB stores the events of the scan in the event store.
	SaveToDB bool `yaml:"save_to_db"`

	// Isolate scans every target with its own spider state.
	Isolate bool `yaml:"isolate"`

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool `yaml:"verbose"`

	// JSONLog switches log output to JSON lines.
	JSONLog bool `yaml:"json_log"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`

	// Rules are custom signature rules registered next to the built-in ones.
	Rules []Rule `yaml:"rules"`

	// Sites holds per-host request and crawl settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults is the site configuration applied to every host.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// JSONReport enables JSON report output.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool `yaml:"-"`

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool `yaml:"-"`

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string `yaml:"-"`

	// ConfigFilePath is the file the configuration was loaded from.
	ConfigFilePath string `yaml:"-"`

	// Targets are the scan targets: URLs, host names, IP addresses or CIDR networks.
	Targets []string `yaml:"targets"`
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, depth).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		WebSpiderDistance:     DefaultWebSpiderDistance,
		WebSpiderDepth:        DefaultWebSpiderDepth,
		WebSpiderLinksPerPage: DefaultWebSpiderLinksPerPage,
		ScopeReportDistance:   DefaultScopeReportDistance,
		URLExtensionHTTPXOnly: slices.Clone(DefaultURLExtensionHTTPXOnly),
		URLExtensionBlacklist: slices.Clone(DefaultURLExtensionBlacklist),
		ValidSchemes:          slices.Clone(protocol.DefaultSchemes),
		Concurrency:           DefaultConcurrency,
		Timeout:               DefaultTimeout,
		UserAgent:             DefaultUserAgent,
		MaxBodySize:           DefaultMaxBodySize,
		TorStartupTimeout:     DefaultTorStartupTimeout,
		DBDir:                 XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for excavate.
// On Linux: ~/.local/share/excavate
// On macOS: ~/Library/Application Support/excavate
// On Windows: %LOCALAPPDATA%\excavate
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for excavate.
// On Linux: ~/.config/excavate
// On macOS: ~/Library/Application Support/excavate
// On Windows: %APPDATA%\excavate
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.WebSpiderDistance < 0 {
		return ErrInvalidSpiderDistance
	}
	if c.WebSpiderDepth < 0 {
		return ErrInvalidSpiderDepth
	}
	if c.WebSpiderLinksPerPage < 0 {
		return ErrInvalidLinksPerPage
	}
	if c.ScopeReportDistance < 0 {
		return ErrInvalidScopeReportDistance
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRequestRate
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.TorProxy != "" && c.EmbeddedTor {
		return ErrConflictingProxy
	}
	for i, r := range c.Rules {
		if r.Name == "" || (r.Source == "" && r.File == "") {
			return fmt.Errorf("%w: rule #%d", ErrInvalidRule, i+1)
		}
	}
	return nil
}
