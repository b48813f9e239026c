package config

import (
	"maps"
	"strings"
)

// SiteConfig holds request and crawl settings for one host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are URL path patterns that are never fetched.
	// Patterns use glob syntax.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// FollowPatterns are URL path patterns to fetch.
	// If specified, only URLs matching these patterns are fetched.
	FollowPatterns []string `yaml:"follow_patterns,omitempty"`
}

// GetSiteConfig returns the configuration for a host.
// It merges the site-specific configuration with Defaults; host names are
// matched case-insensitively.
func (c *Config) GetSiteConfig(host string) SiteConfig {
	result := c.Defaults
	result.Headers = maps.Clone(c.Defaults.Headers)

	siteConfig, ok := c.Sites[strings.ToLower(host)]
	if !ok {
		for name, sc := range c.Sites {
			if strings.EqualFold(name, host) {
				siteConfig, ok = sc, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}
