package playbooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconscan/reconscan/internal/dataload"
	"github.com/reconscan/reconscan/internal/model"
)

func testTarget() *model.Target {
	return &model.Target{TargetID: "t1", Input: "example.com", CanonicalURL: "https://example.com"}
}

func statusPtr(v int) *int { return &v }

func TestEvaluatePB1_FiresOnBothSignalsTrue(t *testing.T) {
	sigs := []model.Signal{
		{SignalID: "tls.subject_mismatch", Value: true, ArtifactRef: "tls1"},
		{SignalID: "http.header.verbose", Value: true, ArtifactRef: "r1"},
	}
	f := EvaluatePB1(sigs, testTarget())
	require.NotNil(t, f, "expected PB1 finding")
	assert.Equal(t, "medium", f.Severity)
}

func TestEvaluatePB1_NoFireOnSingleSignal(t *testing.T) {
	sigs := []model.Signal{
		{SignalID: "tls.subject_mismatch", Value: true},
		{SignalID: "http.header.verbose", Value: false},
	}
	assert.Nil(t, EvaluatePB1(sigs, testTarget()), "expected no PB1 finding when only one signal is true")
}

func TestEvaluatePB2_ReportsMissingHeaders(t *testing.T) {
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", Tags: []string{"baseline"}, Headers: map[string]string{"strict-transport-security": "max-age=0"}},
	}
	f := EvaluatePB2(testTarget(), artifacts)
	require.NotNil(t, f, "expected PB2 finding")
	assert.Equal(t, 4, f.Score.Total, "expected 4 missing headers")
}

func TestEvaluatePB2_NoFindingWhenAllHeadersPresent(t *testing.T) {
	headers := map[string]string{
		"strict-transport-security": "max-age=31536000",
		"content-security-policy":   "default-src 'self'",
		"x-frame-options":           "DENY",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "no-referrer",
	}
	artifacts := []*model.HTTPArtifact{{RequestID: "r1", Tags: []string{"baseline"}, Headers: headers}}
	assert.Nil(t, EvaluatePB2(testTarget(), artifacts), "expected no PB2 finding when all headers present")
}

func TestEvaluatePB3_BothMissingIsCritical(t *testing.T) {
	dns := &model.DNSArtifact{Domain: "example.com", TXT: nil, DMARC: nil, RegistrableDomainMethod: model.RegistrableDomainPSL}
	f := EvaluatePB3(dns, testTarget())
	require.NotNil(t, f)
	assert.Equal(t, "critical", f.Severity)
}

func TestEvaluatePB3_WellFormedProducesNoFinding(t *testing.T) {
	dns := &model.DNSArtifact{
		Domain:                  "example.com",
		TXT:                     []string{"v=spf1 include:_spf.example.com -all"},
		DMARC:                   []string{"v=DMARC1; p=reject; rua=mailto:dmarc@example.com"},
		RegistrableDomainMethod: model.RegistrableDomainPSL,
	}
	assert.Nil(t, EvaluatePB3(dns, testTarget()), "expected no finding for well-formed SPF/DMARC")
}

func TestEvaluatePB3_NaiveFallbackDegradesSeverity(t *testing.T) {
	dns := &model.DNSArtifact{
		Domain:                    "mail.example.com",
		TXT:                       nil,
		DMARC:                     nil,
		DomainCheckedForEmailAuth: "example.com",
		RegistrableDomainMethod:   model.RegistrableDomainNaive,
	}
	f := EvaluatePB3(dns, testTarget())
	require.NotNil(t, f)
	assert.Equal(t, "high", f.Severity, "expected degraded severity high (from critical)")
}

func TestEvaluatePB4_FiresOnMatchedSignatureAndBody(t *testing.T) {
	dns := &model.DNSArtifact{Domain: "old.example.com", CNAME: "ghost.herokuapp.com"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", Host: "old.example.com", StatusCode: statusPtr(404), ResponseAnalysisSnippet: "no such app"},
	}
	f := EvaluatePB4(dns, testTarget(), artifacts)
	require.NotNil(t, f, "expected PB4 finding")
	assert.Equal(t, "critical", f.Severity)
}

func TestEvaluatePB4_NoFireWithoutBodyMarker(t *testing.T) {
	dns := &model.DNSArtifact{Domain: "old.example.com", CNAME: "ghost.herokuapp.com"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", Host: "old.example.com", StatusCode: statusPtr(404), ResponseAnalysisSnippet: "welcome to our app"},
	}
	assert.Nil(t, EvaluatePB4(dns, testTarget(), artifacts), "expected no PB4 finding without matching body marker")
}

func TestEvaluatePB5_UserEnumAndXMLRPCCorrelate(t *testing.T) {
	cms := &model.CMSArtifact{DetectedCMS: "wordpress", Confidence: "high"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", URL: "https://example.com/wp-json/wp/v2/users", EffectiveURL: "https://example.com/wp-json/wp/v2/users", StatusCode: statusPtr(200), ResponseAnalysisSnippet: `[{"id":1,"slug":"admin"}]`},
		{RequestID: "r2", URL: "https://example.com/xmlrpc.php", EffectiveURL: "https://example.com/xmlrpc.php", StatusCode: statusPtr(200), ResponseAnalysisSnippet: "XML-RPC server accepts POST requests only."},
	}
	findings := EvaluatePB5(cms, testTarget(), artifacts, nil)

	var sawUserEnum, sawXMLRPC, sawCorrelated bool
	for _, f := range findings {
		switch f.PlaybookID {
		case "PB5_WP_USER_ENUM":
			sawUserEnum = true
			assert.Equal(t, "medium", f.Severity)
		case "PB5_WP_XMLRPC_ENABLED":
			sawXMLRPC = true
			assert.Equal(t, "medium", f.Severity)
		case "PB5_WP_BRUTEFORCE_SURFACE":
			sawCorrelated = true
		}
	}
	if !sawUserEnum || !sawXMLRPC || !sawCorrelated {
		t.Fatalf("expected user-enum, xmlrpc, and correlated findings, got %+v", findings)
	}
}

func TestEvaluatePB5_XMLRPCRequiresMarkerNot405(t *testing.T) {
	cms := &model.CMSArtifact{DetectedCMS: "wordpress", Confidence: "high"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", URL: "https://example.com/xmlrpc.php", EffectiveURL: "https://example.com/xmlrpc.php", StatusCode: statusPtr(405), ResponseAnalysisSnippet: "Method Not Allowed"},
	}
	findings := EvaluatePB5(cms, testTarget(), artifacts, nil)
	for _, f := range findings {
		if f.PlaybookID == "PB5_WP_XMLRPC_ENABLED" {
			t.Fatal("expected no XML-RPC finding on a bare 405 without the POST-only marker")
		}
	}
}

func TestEvaluatePB5_SkipsWhenConfidenceLow(t *testing.T) {
	cms := &model.CMSArtifact{DetectedCMS: "wordpress", Confidence: "low"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", URL: "https://example.com/wp-json/wp/v2/users", StatusCode: statusPtr(200), ResponseAnalysisSnippet: `[{"id":1,"slug":"admin"}]`},
	}
	if findings := EvaluatePB5(cms, testTarget(), artifacts, nil); findings != nil {
		t.Fatalf("expected no findings at low confidence, got %+v", findings)
	}
}

func TestEvaluatePB5_CVEMatchOnVersionDisclosure(t *testing.T) {
	cms := &model.CMSArtifact{DetectedCMS: "wordpress", Confidence: "high"}
	artifacts := []*model.HTTPArtifact{
		{RequestID: "r1", URL: "https://example.com/readme.html", EffectiveURL: "https://example.com/readme.html", StatusCode: statusPtr(200), ResponseAnalysisSnippet: "=== WordPress ===\nVersion 5.7.1\n"},
	}
	cves := []dataload.WPCVE{
		{ID: "CVE-2021-1234", Title: "Example RCE", Severity: "critical", Affected: dataload.AffectedVersions{Operator: "<", Version: "5.8"}},
	}
	findings := EvaluatePB5(cms, testTarget(), artifacts, cves)

	var sawVersion, sawCVE bool
	for _, f := range findings {
		if f.PlaybookID == "PB5_WP_VERSION_DISCLOSURE" {
			sawVersion = true
		}
		if f.PlaybookID == "PB5_WP_CVE_CVE_2021_1234" {
			sawCVE = true
		}
	}
	if !sawVersion || !sawCVE {
		t.Fatalf("expected version disclosure and CVE findings, got %+v", findings)
	}
}

func TestMatchTakeoverSignature_ExactSuffixBoundary(t *testing.T) {
	if sig := matchTakeoverSignature("notanherokuapp.com"); sig != nil {
		t.Fatal("expected no match across a non-dot boundary")
	}
	if sig := matchTakeoverSignature("app.herokuapp.com"); sig == nil || sig.Service != "Heroku" {
		t.Fatal("expected a Heroku match on a proper subdomain")
	}
}

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"5.7.1", "5.8", true},
		{"5.8", "5.7.1", false},
		{"5.8.0", "5.8", false},
		{"4.9.9", "5.0", true},
	}
	for _, c := range cases {
		if got := versionLess(c.a, c.b); got != c.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
