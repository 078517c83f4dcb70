// Package model holds the data types shared across every scan component:
// the target, the per-collector artifacts, signals, findings, and the
// mutable per-scan context the orchestrator threads through the DAG.
package model

import "time"

// Target is the canonical scan subject, produced once by the normalizer
// and immutable afterward.
type Target struct {
	TargetID     string   `json:"target_id"`
	Input        string   `json:"input"`
	CanonicalURL string   `json:"canonical_url"`
	Host         string   `json:"host"`
	Scheme       string   `json:"scheme"`
	Port         int      `json:"port"`
	ResolvedIPs  []string `json:"resolved_ips"`
	Ports        []int    `json:"ports"`
}

// TimingsMs captures stage-level durations for a collector call.
type TimingsMs struct {
	Total    int64 `json:"total"`
	DNS      int64 `json:"dns,omitempty"`
	Connect  int64 `json:"connect,omitempty"`
	Handshake int64 `json:"handshake,omitempty"`
}

// RegistrableDomainMethod records how the DNS collector picked the
// fallback scope for SPF/DMARC lookups.
type RegistrableDomainMethod string

const (
	RegistrableDomainNaive RegistrableDomainMethod = "naive"
	RegistrableDomainPSL   RegistrableDomainMethod = "psl"
)

// DNSArtifact carries the DNS facts collected for a target's host.
type DNSArtifact struct {
	DNSID                     string                  `json:"dns_id"`
	TargetID                  string                  `json:"target_id"`
	Domain                    string                  `json:"domain"`
	A                         []string                `json:"a"`
	AAAA                      []string                `json:"aaaa"`
	MX                        []string                `json:"mx"`
	NS                        []string                `json:"ns"`
	TXT                       []string                `json:"txt"`
	DMARC                     []string                `json:"dmarc"`
	CNAME                     string                  `json:"cname,omitempty"`
	DomainCheckedForEmailAuth string                  `json:"domain_checked_for_email_auth"`
	RegistrableDomainMethod   RegistrableDomainMethod `json:"registrable_domain_method"`
	Warnings                  []string                `json:"warnings"`
	Error                     string                  `json:"error,omitempty"`
	TimingsMs                 TimingsMs               `json:"timings_ms"`
}

// TLSArtifact carries the facts extracted from one permissive TLS
// handshake against a target's resolved address.
type TLSArtifact struct {
	TLSID        string    `json:"tls_id"`
	TargetID     string    `json:"target_id"`
	ObservedHost string    `json:"observed_host"`
	IP           string    `json:"ip"`
	Port         int       `json:"port"`
	Protocol     string    `json:"protocol,omitempty"`
	Cipher       string    `json:"cipher,omitempty"`
	ALPN         string    `json:"alpn,omitempty"`
	CN           string    `json:"cn,omitempty"`
	SAN          []string  `json:"san,omitempty"`
	IssuerDN     string    `json:"issuer_dn,omitempty"`
	Serial       string    `json:"serial,omitempty"`
	SelfSigned   bool      `json:"self_signed"`
	NotBefore    string    `json:"not_before,omitempty"`
	NotAfter     string    `json:"not_after,omitempty"`
	Hash         string    `json:"hash,omitempty"`
	Error        string    `json:"error,omitempty"`
	TimingsMs    TimingsMs `json:"timings_ms"`
}

// HTTPArtifact is one request/response pair. An artifact is always
// fully constructible before any I/O happens (NewHTTPArtifact below),
// so a failure mid-flight still leaves a well-formed value with
// Error set.
type HTTPArtifact struct {
	RequestID               string            `json:"request_id"`
	TargetID                string            `json:"target_id"`
	URL                     string            `json:"url"`
	EffectiveURL            string            `json:"effective_url,omitempty"`
	Host                    string            `json:"host,omitempty"`
	IP                      string            `json:"ip,omitempty"`
	Port                    int               `json:"port,omitempty"`
	TLS                     bool              `json:"tls"`
	Method                  string            `json:"method"`
	StatusCode              *int              `json:"status_code,omitempty"`
	Headers                 map[string]string `json:"headers"`
	ResponseAnalysisSnippet string            `json:"response_analysis_snippet,omitempty"`
	ResponseTruncated       bool              `json:"response_truncated"`
	ResponseHash            string            `json:"response_hash,omitempty"`
	Error                   string            `json:"error,omitempty"`
	TimingsMs               TimingsMs         `json:"timings_ms"`
	Tags                    []string          `json:"tags"`
}

// HasTag reports whether the artifact carries the given tag.
func (h *HTTPArtifact) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NewHTTPArtifact builds an artifact pre-filled with everything known
// before the request is sent, per spec.md §9's "always constructible"
// design note.
func NewHTTPArtifact(id, targetID, url, method string, tags ...string) *HTTPArtifact {
	return &HTTPArtifact{
		RequestID: id,
		TargetID:  targetID,
		URL:       url,
		Method:    method,
		Headers:   map[string]string{},
		Tags:      tags,
	}
}

// CMSArtifact is the CMS fingerprint verdict for a target.
type CMSArtifact struct {
	CMSID        string    `json:"cms_id"`
	TargetID     string    `json:"target_id"`
	DetectedCMS  string    `json:"detected_cms"`
	Version      string    `json:"version,omitempty"`
	Confidence   string    `json:"confidence"`
	Evidence     []string  `json:"evidence"`
	TimingsMs    TimingsMs `json:"timings_ms"`
}

// Signal is an atomic, deterministic observation derived from
// artifacts; the indivisible input to playbooks.
type Signal struct {
	SignalID         string      `json:"signal_id"`
	Source           string      `json:"source"`
	TargetID         string      `json:"target_id"`
	Value            interface{} `json:"value"`
	SignalConfidence float64     `json:"signal_confidence"`
	Weight           int         `json:"weight"`
	EvidenceRefs     []string    `json:"evidence_refs,omitempty"`
	ArtifactRef      string      `json:"artifact_ref,omitempty"`
}

// FindingScore carries the scoring model behind a finding's severity.
type FindingScore struct {
	Total     int    `json:"total"`
	Threshold int    `json:"threshold"`
	Model     string `json:"model"`
}

// FindingTargetRef is the denormalized target reference embedded in a
// finding, so a finding is self-describing without following pointers.
type FindingTargetRef struct {
	TargetID     string `json:"target_id"`
	Input        string `json:"input"`
	CanonicalURL string `json:"canonical_url"`
}

// FindingReasoning carries the analyst-facing narrative for a finding.
type FindingReasoning struct {
	WhyItMatters string `json:"why_it_matters"`
	AnalystNotes string `json:"analyst_notes"`
}

// Finding is a human-meaningful issue emitted by a playbook.
type Finding struct {
	FindingID  string            `json:"finding_id"`
	PlaybookID string            `json:"playbook_id"`
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
	Severity   string            `json:"severity"`
	Confidence string            `json:"confidence"`
	Score      FindingScore      `json:"score"`
	Target     FindingTargetRef  `json:"target"`
	Reasoning  FindingReasoning  `json:"reasoning"`
	Signals    []string          `json:"signals,omitempty"`
	Evidence   []string          `json:"evidence,omitempty"`
}

// ScanError is a structured, non-fatal per-component failure appended
// by the orchestrator.
type ScanError struct {
	Component string    `json:"component"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanContext is the per-scan mutable aggregate threaded through the
// orchestrator's DAG. It is never shared across scans.
type ScanContext struct {
	RunID     string
	Target    *Target
	StartedAt time.Time

	DNS      *DNSArtifact
	TLS      *TLSArtifact
	HTTP     []*HTTPArtifact
	CMS      *CMSArtifact
	Signals  []Signal
	Findings []Finding
	Errors   []ScanError

	MaxRequests     int
	MaxResponseBytes int
}

// NewScanContext builds an empty context for a target, ready for the
// orchestrator to populate.
func NewScanContext(runID string, target *Target, maxRequests, maxResponseBytes int) *ScanContext {
	return &ScanContext{
		RunID:            runID,
		Target:           target,
		StartedAt:        time.Now().UTC(),
		MaxRequests:      maxRequests,
		MaxResponseBytes: maxResponseBytes,
	}
}

// AddError appends a ScanError for a non-fatal component failure.
func (c *ScanContext) AddError(component, errorType, message string) {
	c.Errors = append(c.Errors, ScanError{
		Component: component,
		ErrorType: errorType,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// Baseline returns the tagged baseline artifact, or nil if none was
// ever recorded (e.g. the HTTP stage failed outright).
func (c *ScanContext) Baseline() *HTTPArtifact {
	for _, a := range c.HTTP {
		if a.HasTag("baseline") {
			return a
		}
	}
	return nil
}

