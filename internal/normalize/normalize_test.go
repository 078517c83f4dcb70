package normalize

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	ips map[string][]net.IPAddr
	err error
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ips[host], nil
}

func TestNormalize_Idempotent(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IPAddr{
		"example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}}
	n := NewWithResolver(r)

	target, err := n.Normalize(context.Background(), "EXAMPLE.com:443/Path/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.CanonicalURL != "https://example.com/Path/" {
		t.Fatalf("unexpected canonical url: %s", target.CanonicalURL)
	}

	again, err := n.Normalize(context.Background(), target.CanonicalURL)
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if again.CanonicalURL != target.CanonicalURL {
		t.Fatalf("normalization not idempotent: %s != %s", again.CanonicalURL, target.CanonicalURL)
	}
}

func TestNormalize_SSRFBlocked(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IPAddr{
		"localhost": {{IP: net.ParseIP("127.0.0.1")}},
	}}
	n := NewWithResolver(r)

	_, err := n.Normalize(context.Background(), "http://localhost/")
	if err == nil {
		t.Fatal("expected ssrf error")
	}
	normErr, ok := err.(*Error)
	if !ok || normErr.Kind != SSRFBlocked {
		t.Fatalf("expected SSRFBlocked, got %v", err)
	}
}

func TestNormalize_SSRFBlockedOnAnyAddress(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IPAddr{
		"mixed.example.com": {
			{IP: net.ParseIP("93.184.216.34")},
			{IP: net.ParseIP("10.0.0.1")},
		},
	}}
	n := NewWithResolver(r)

	_, err := n.Normalize(context.Background(), "https://mixed.example.com/")
	if err == nil {
		t.Fatal("expected ssrf error when any resolved address is private")
	}
}

func TestNormalize_DNSFailed(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IPAddr{}}
	n := NewWithResolver(r)

	_, err := n.Normalize(context.Background(), "https://nowhere.invalid/")
	if err == nil {
		t.Fatal("expected dns failure")
	}
	normErr, ok := err.(*Error)
	if !ok || normErr.Kind != DNSFailed {
		t.Fatalf("expected DNSFailed, got %v", err)
	}
}

func TestNormalize_RejectsUnsupportedScheme(t *testing.T) {
	n := NewWithResolver(&fakeResolver{})
	_, err := n.Normalize(context.Background(), "ftp://example.com/")
	if err == nil {
		t.Fatal("expected invalid input error")
	}
	normErr, ok := err.(*Error)
	if !ok || normErr.Kind != InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestNormalize_DefaultPortStripped(t *testing.T) {
	r := &fakeResolver{ips: map[string][]net.IPAddr{
		"example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}}
	n := NewWithResolver(r)

	target, err := n.Normalize(context.Background(), "https://example.com:443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.CanonicalURL != "https://example.com/" {
		t.Fatalf("expected default port stripped, got %s", target.CanonicalURL)
	}
}
