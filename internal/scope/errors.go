package scope

import "errors"

var (
	// ErrEmptyTarget is returned when a target string is empty.
	ErrEmptyTarget = errors.New("empty target")

	// ErrInvalidTarget is returned when a target is neither a URL, a host
	// name, an IP address nor a CIDR network.
	ErrInvalidTarget = errors.New("invalid target")
)
