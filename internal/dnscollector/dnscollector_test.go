package dnscollector

import "testing"

func TestRegistrableDomain(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"www.example.com", "example.com"},
		{"a.b.c.example.co.uk", "co.uk"},
		{"example.com", "example.com"},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		if got := registrableDomain(tc.host); got != tc.want {
			t.Errorf("registrableDomain(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func TestHasSPF(t *testing.T) {
	if !hasSPF([]string{"v=spf1 include:_spf.example.com ~all"}) {
		t.Error("expected spf record to be detected")
	}
	if hasSPF([]string{"google-site-verification=abc"}) {
		t.Error("expected no spf record to be detected")
	}
	if hasSPF(nil) {
		t.Error("expected empty txt list to have no spf")
	}
}
