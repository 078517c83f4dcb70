package tlscollector

import (
	"crypto/x509/pkix"
	"testing"
)

func TestRFC4514_OrdersMostSpecificFirst(t *testing.T) {
	name := pkix.Name{
		CommonName:   "example.com",
		Organization: []string{"Example, Inc."},
		Country:      []string{"US"},
	}
	got := rfc4514(name)
	want := "CN=example.com,O=Example\\, Inc.,C=US"
	if got != want {
		t.Fatalf("rfc4514() = %q, want %q", got, want)
	}
}

func TestRFC4514_EmptyName(t *testing.T) {
	if got := rfc4514(pkix.Name{}); got != "" {
		t.Fatalf("expected empty dn for empty name, got %q", got)
	}
}

func TestFormatSerial(t *testing.T) {
	got := formatSerial([]byte{0x0a, 0xff, 0x01})
	want := "0a:ff:01"
	if got != want {
		t.Fatalf("formatSerial() = %q, want %q", got, want)
	}
}

func TestTLSVersionString(t *testing.T) {
	cases := map[uint16]string{
		0x0304: "1.3",
		0x0303: "1.2",
		0x0302: "1.1",
		0x0301: "1.0",
		0x0300: "unknown",
	}
	for version, want := range cases {
		if got := tlsVersionString(version); got != want {
			t.Errorf("tlsVersionString(%#x) = %q, want %q", version, got, want)
		}
	}
}
