package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reconscan/reconscan/internal/config"
	"github.com/reconscan/reconscan/internal/model"
)

func testScanner(t *testing.T) *Scanner {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = "/nonexistent-data-dir"
	cfg.MaxConcurrentRequests = 2
	cfg.GlobalRateLimit = 0
	cfg.MaxRetries = 0
	s := New(cfg)
	t.Cleanup(s.Close)
	return s
}

// TestScan_RejectsInvalidInput exercises spec.md §7's only fatal-to-scan
// path: normalization failures never reach the DAG.
func TestScan_RejectsInvalidInput(t *testing.T) {
	s := testScanner(t)
	if _, err := s.Scan(context.Background(), ""); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

// TestScan_RejectsLoopbackSSRF confirms the SSRF guard fires before any
// network I/O — resolving a literal loopback address never touches the
// network, so this is deterministic without a live DNS server.
func TestScan_RejectsLoopbackSSRF(t *testing.T) {
	s := testScanner(t)
	if _, err := s.Scan(context.Background(), "http://127.0.0.1:1/"); err == nil {
		t.Fatal("expected SSRF protection to block a loopback target")
	}
}

// TestCollectTLSAndBaseline_SkipsTLSWithoutResolvedIPs exercises the
// concurrent TLS/HTTP-baseline stage entirely against a local
// httptest server, so it needs no DNS or external network.
func TestCollectTLSAndBaseline_SkipsTLSWithoutResolvedIPs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx/1.18.0")
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	s := testScanner(t)
	target := &model.Target{TargetID: "t1", Input: srv.URL, CanonicalURL: srv.URL, Host: "127.0.0.1"}
	scanCtx := model.NewScanContext("run1", target, 50, 262144)

	var tls *model.TLSArtifact
	var baseline *model.HTTPArtifact
	s.collectTLSAndBaseline(context.Background(), scanCtx, &tls, &baseline)

	if tls != nil {
		t.Fatal("expected no TLS artifact when no IPs were resolved")
	}
	if baseline == nil || baseline.StatusCode == nil || *baseline.StatusCode != 200 {
		t.Fatalf("expected a successful baseline fetch, got %+v", baseline)
	}
}

// TestProbePaths_RespectsBudget confirms the scanner clamps the probe
// list to the remaining per-scan request budget before calling
// httpprobe.ProbePaths, per spec.md §4.9/§5.
func TestProbePaths_RespectsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok:"+r.URL.Path)
	}))
	defer srv.Close()

	s := testScanner(t)
	s.probes = []string{"/a", "/b", "/c", "/d"}

	target := &model.Target{TargetID: "t1", Input: srv.URL, CanonicalURL: srv.URL, Host: "127.0.0.1"}
	scanCtx := model.NewScanContext("run1", target, 3, 262144)
	scanCtx.HTTP = append(scanCtx.HTTP, model.NewHTTPArtifact("r0", "t1", srv.URL, "GET", "baseline"))

	s.probePaths(context.Background(), scanCtx)

	if len(scanCtx.HTTP) != 3 {
		t.Fatalf("expected budget to clamp total artifacts to 3 (1 baseline + 2 probes), got %d", len(scanCtx.HTTP))
	}
}

// TestRunPlaybooks_WiresFindingsFromSyntheticContext exercises the
// playbook-evaluation wiring in isolation from any network activity.
func TestRunPlaybooks_WiresFindingsFromSyntheticContext(t *testing.T) {
	s := testScanner(t)

	target := &model.Target{TargetID: "t1", Input: "example.com", CanonicalURL: "https://example.com/"}
	scanCtx := model.NewScanContext("run1", target, 50, 262144)
	baseline := model.NewHTTPArtifact("r1", "t1", "https://example.com/", "GET", "baseline")
	scanCtx.HTTP = []*model.HTTPArtifact{baseline}
	scanCtx.TLS = &model.TLSArtifact{TLSID: "tls1", CN: "staging.example.com"}
	scanCtx.Signals = []model.Signal{
		{SignalID: "tls.subject_mismatch", Value: true, ArtifactRef: "tls1"},
		{SignalID: "http.header.verbose", Value: true, ArtifactRef: "r1"},
	}

	s.runPlaybooks(scanCtx, baseline)

	var sawPB1, sawPB2 bool
	for _, f := range scanCtx.Findings {
		switch f.PlaybookID {
		case "PB1_TLS_WEAKNESS":
			sawPB1 = true
		case "PB2_MISSING_HEADERS":
			sawPB2 = true
		}
	}
	if !sawPB1 {
		t.Error("expected PB1 finding from the synthetic TLS/header signals")
	}
	if !sawPB2 {
		t.Error("expected PB2 finding since the baseline artifact has no security headers")
	}
}

// TestGuard_RecoversPanicIntoScanError confirms a component panic never
// aborts the scan (spec.md §7).
func TestGuard_RecoversPanicIntoScanError(t *testing.T) {
	target := &model.Target{TargetID: "t1"}
	scanCtx := model.NewScanContext("run1", target, 50, 262144)

	func() {
		defer guard(scanCtx, "cms", "DETECTION_FAILED")
		panic("synthetic failure")
	}()

	if len(scanCtx.Errors) != 1 {
		t.Fatalf("expected exactly one recorded error, got %d", len(scanCtx.Errors))
	}
	if scanCtx.Errors[0].Component != "cms" || scanCtx.Errors[0].ErrorType != "DETECTION_FAILED" {
		t.Fatalf("unexpected error recorded: %+v", scanCtx.Errors[0])
	}
}
