// Package config provides configuration structures and utilities for excavate.
// It defines the spider limits, extraction policy, transport settings and
// report preferences of a scan, and loads them from a YAML file whose keys
// mirror the field names (web_spider_distance, url_extension_blacklist, ...).
package config
