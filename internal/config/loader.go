package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name looked up in the
// current directory.
const DefaultConfigFile = ".excavate.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a configuration from a YAML file.
// Keys missing from the file keep their defaults from NewConfig.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ConfigFilePath = path
	return cfg, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .excavate.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}
	return ""
}

// LoadRules returns the custom rules with every Source filled in. Rule
// files are read relative to the directory of the configuration file.
func (c *Config) LoadRules() ([]Rule, error) {
	baseDir := "."
	if c.ConfigFilePath != "" {
		baseDir = filepath.Dir(c.ConfigFilePath)
	}

	rules := make([]Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Source == "" && r.File != "" {
			path := r.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path) //nolint:gosec // rule paths come from the user's config
			if err != nil {
				return nil, fmt.Errorf("failed to read rule %s: %w", r.Name, err)
			}
			r.Source = string(data)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Template is the commented configuration written by "excavate init".
const Template = `# excavate configuration
#
# Values shown are the defaults. CLI flags override this file.

# Link hops from a seed that are still fetched (redirects are free).
web_spider_distance: 0

# Deepest path, in directories, that is fetched.
web_spider_depth: 1

# Links taken from a single page.
web_spider_links_per_page: 25

# Highest scope distance at which a fetched page is reported as URL.
scope_report_distance: 0

# Relative links with these extensions are not emitted.
url_extension_httpx_only: [js]

# URLs with these extensions are emitted but never fetched.
url_extension_blacklist: [png, jpg, jpeg, gif, bmp, ico, svg, webp, woff, woff2, ttf, eot, otf, mp3, mp4, m4a, wav, flac, avi, mov, mkv, webm, css]

# Let speculated origin roots (http://host/) be fetched.
speculate_promote: false

concurrency: 10
max_pages: 0
timeout: 10s
requests_per_second: 0

# SOCKS5 proxy, e.g. 127.0.0.1:9050 for a local Tor daemon.
# tor_proxy: 127.0.0.1:9050
# embedded_tor: true

save_to_db: false
# db_dir: /path/to/db

# metrics_addr: 127.0.0.1:9090

# Custom signature rules. The source must define a rule named like the entry.
# meta "category" selects the event type: finding (default), url, protocol, parameter.
# rules:
#   - name: SearchForText
#     source: |
#       rule SearchForText {
#           meta:
#               description = "Contains the text AAAABBBBCCCC"
#               emit_match = true
#           strings:
#               $text = "AAAABBBBCCCC"
#           condition:
#               $text
#       }
#   - name: APIPaths
#     file: rules/api.yar

# Per-host request settings.
# defaults:
#   headers:
#     X-Scanner: excavate
# sites:
#   example.com:
#     cookie: "session=abc"
#     ignore_patterns: ["/logout*"]
`

// WriteTemplate writes Template to path. An existing file is not overwritten
// unless force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(Template), 0600)
}
