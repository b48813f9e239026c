package extract

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// PlausibleHost reports whether a host name candidate is worth a DNS_NAME
// event. inScope may be nil.
//
// A host is plausible when it is a dotted name (not an IP literal) and either
// its top-level label is an ICANN-managed suffix or the scope oracle already
// knows it. Names that are themselves public suffixes ("co.uk") are rejected,
// and ".onion" names must carry a valid v3 checksum.
//
// Design decision: Free text yields a lot of dotted tokens that are file names
// or code ("links.html", "e.data", "jquery.min.js"). The ICANN check drops
// most of them without a network lookup, while the scope fallback keeps
// internal or test suffixes ("test.notreal") that the operator declared.
func PlausibleHost(host string, inScope func(string) bool) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if !isHostName(host) || net.ParseIP(host) != nil {
		return false
	}

	if strings.HasSuffix(host, onionSuffix) {
		return IsValidOnion(host)
	}

	if inScope != nil && inScope(host) {
		return true
	}

	tld := host[strings.LastIndexByte(host, '.')+1:]
	if _, icann := publicsuffix.PublicSuffix("x." + tld); !icann {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return false
	}
	return true
}
