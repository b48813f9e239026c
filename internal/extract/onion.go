package extract

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// onionSuffix is the suffix of every onion service host name.
	onionSuffix = ".onion"

	// onionV3Version is the version byte of a v3 onion address.
	onionV3Version = 0x03
)

// onionV3Pattern matches the service label of a v3 onion host.
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}$`)

// onionChecksumPrefix is hashed in front of the key when computing the checksum.
var onionChecksumPrefix = []byte(".onion checksum")

// IsValidOnion reports whether host is a v3 onion host name with a correct
// checksum. Subdomains in front of the service label are allowed
// ("www.<56 chars>.onion").
//
// Design decision: Bare host extraction sees plenty of random base32-looking
// ".onion" text in forum dumps and link lists. Verifying the checksum keeps
// typos and truncated addresses out of the DNS_NAME events, and v2 addresses
// are rejected because they no longer resolve on the Tor network.
func IsValidOnion(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if !strings.HasSuffix(host, onionSuffix) {
		return false
	}

	labels := strings.Split(strings.TrimSuffix(host, onionSuffix), ".")
	service := labels[len(labels)-1]
	if !onionV3Pattern.MatchString(service) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(service))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := onionChecksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// onionChecksum returns the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(onionChecksumPrefix)+len(pubkey)+1)
	data = append(data, onionChecksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}
