package client

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// URIError reports a destination URI that cannot be used with the requested
// operation. It is returned before any connection is opened.
type URIError struct {
	URI    string
	Reason string
}

func (e *URIError) Error() string {
	return fmt.Sprintf("socks5 client: %s: %q", e.Reason, e.URI)
}

type destination struct {
	scheme string
	host   string
	port   int
}

// parseDestination splits scheme://host:port, accepting only the listed
// schemes.
func parseDestination(uri string, schemes ...string) (destination, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return destination{}, &URIError{URI: uri, Reason: "malformed uri"}
	}

	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(schemes, scheme) {
		return destination{}, &URIError{URI: uri, Reason: fmt.Sprintf("bad scheme, want %s", strings.Join(schemes, " or "))}
	}
	if u.Hostname() == "" {
		return destination{}, &URIError{URI: uri, Reason: "missing host"}
	}
	if u.Port() == "" {
		return destination{}, &URIError{URI: uri, Reason: "missing port"}
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > math.MaxUint16 {
		return destination{}, &URIError{URI: uri, Reason: "invalid port"}
	}

	return destination{scheme: scheme, host: u.Hostname(), port: port}, nil
}
