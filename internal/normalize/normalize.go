// Package normalize implements the Target Normalizer and SSRF guard
// (spec.md §4.1): canonicalize an input URL, resolve its host, and
// fail closed if any resolved address is loopback, link-local, or
// private.
package normalize

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
)

// ErrorKind enumerates the fatal-to-scan failure kinds spec.md §7 names
// for this component.
type ErrorKind string

const (
	InvalidInput ErrorKind = "INVALID_INPUT"
	DNSFailed    ErrorKind = "DNS_FAILED"
	SSRFBlocked  ErrorKind = "SSRF_BLOCKED"
)

// Error is a fatal normalization failure, carrying its taxonomy kind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Resolver resolves a hostname to its IP addresses; satisfied by
// net.DefaultResolver in production and faked in tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Normalizer canonicalizes input URLs and resolves/guards their hosts.
type Normalizer struct {
	resolver Resolver
}

// New builds a Normalizer using the system resolver.
func New() *Normalizer {
	return &Normalizer{resolver: net.DefaultResolver}
}

// NewWithResolver builds a Normalizer against a custom Resolver, for tests.
func NewWithResolver(r Resolver) *Normalizer {
	return &Normalizer{resolver: r}
}

// Normalize implements spec.md §4.1's seven-step algorithm.
func (n *Normalizer) Normalize(ctx context.Context, rawInput string) (*model.Target, error) {
	input := strings.TrimSpace(rawInput)
	if input == "" {
		return nil, &Error{Kind: InvalidInput, Message: "empty input"}
	}

	canonical, host, scheme, port, err := canonicalize(input)
	if err != nil {
		return nil, &Error{Kind: InvalidInput, Message: err.Error()}
	}

	ips, err := n.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(ips) == 0 {
		return nil, &Error{Kind: DNSFailed, Message: fmt.Sprintf("dns resolution failed for %q", host)}
	}

	resolved := make([]string, 0, len(ips))
	for _, ip := range ips {
		if isBlockedIP(ip.IP) {
			return nil, &Error{Kind: SSRFBlocked, Message: fmt.Sprintf("ssrf protection triggered for ip %s", ip.IP.String())}
		}
		resolved = append(resolved, ip.IP.String())
	}
	sort.Strings(resolved)

	return &model.Target{
		TargetID:     idgen.New(),
		Input:        rawInput,
		CanonicalURL: canonical,
		Host:         host,
		Scheme:       scheme,
		Port:         port,
		ResolvedIPs:  resolved,
		Ports:        []int{port},
	}, nil
}

// canonicalize implements step 1-3: trim/default-scheme, parse, reject
// non-http(s) schemes, lowercase host, drop fragment, default path,
// strip default ports.
func canonicalize(input string) (canonical, host, scheme string, port int, err error) {
	candidate := input
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	u, parseErr := url.Parse(candidate)
	if parseErr != nil {
		return "", "", "", 0, fmt.Errorf("unparsable url: %w", parseErr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", "", 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", "", 0, fmt.Errorf("missing host")
	}

	scheme = u.Scheme
	host = strings.ToLower(u.Hostname())

	if p := u.Port(); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}
	if port == 0 {
		if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	hostPort := host
	if !isDefaultPort(scheme, port) {
		hostPort = fmt.Sprintf("%s:%d", host, port)
	}

	canonical = fmt.Sprintf("%s://%s%s", scheme, hostPort, path)
	if u.RawQuery != "" {
		canonical += "?" + u.RawQuery
	}
	return canonical, host, scheme, port, nil
}

func isDefaultPort(scheme string, port int) bool {
	return (scheme == "https" && port == 443) || (scheme == "http" && port == 80)
}

// isBlockedIP implements the SSRF guard: reject loopback, link-local,
// and private addresses, per spec.md §4.1 step 6.
func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() || ip.IsUnspecified()
}
