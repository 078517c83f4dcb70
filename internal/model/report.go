package model

// FindingCounts is the per-severity tally surfaced in the report summary.
type FindingCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// SNR (signal-to-noise) totals give a quick shape of the scan.
type SNR struct {
	SignalsTotal  int `json:"signals_total"`
	FindingsTotal int `json:"findings_total"`
	RequestsTotal int `json:"requests_total"`
}

// Summary is the report's top-level verdict section.
type Summary struct {
	FindingCounts FindingCounts `json:"finding_counts"`
	TopFindings   []string      `json:"top_findings"`
	SNR           SNR           `json:"snr"`
	Verdict       string        `json:"verdict"`
}

// Engine identifies the scanning engine that produced the report.
type Engine struct {
	Name          string `json:"name"`
	EngineVersion string `json:"engine_version"`
	Build         string `json:"build"`
	Profile       string `json:"profile"`
	Mode          string `json:"mode"`
}

// Time carries the scan's timing window, all ISO-8601 with a Z suffix.
type Time struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMs int64  `json:"duration_ms"`
}

// Operator identifies who/what requested the scan.
type Operator struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
}

// Guardrails documents the safety posture the scan ran under.
type Guardrails struct {
	SSRFProtection bool `json:"ssrf_protection"`
	NonIntrusive   bool `json:"non_intrusive"`
}

// Scope describes what the scan was asked to cover.
type Scope struct {
	Intent     string      `json:"intent"`
	Targets    []Target    `json:"targets"`
	Guardrails Guardrails  `json:"guardrails"`
}

// Normalization documents the exact normalization policy applied, so
// consumers can reason about fingerprint stability across runs.
type Normalization struct {
	Version           string `json:"version"`
	URLNormalization  string `json:"url_normalization"`
	HeaderNormalization string `json:"header_normalization"`
	TLSNormalization  string `json:"tls_normalization"`
}

// FindingFingerprint pairs a finding id with its stable fingerprint.
type FindingFingerprint struct {
	FindingID   string `json:"finding_id"`
	Fingerprint string `json:"fingerprint"`
}

// Delta carries the content fingerprints used to detect drift between
// scans of the same target.
type Delta struct {
	DeltaReady          bool                 `json:"delta_ready"`
	FingerprintAlgo     string               `json:"fingerprint_algo"`
	Normalization       Normalization        `json:"normalization"`
	TargetFingerprint   string               `json:"target_fingerprint"`
	RunFingerprint      string               `json:"run_fingerprint"`
	FindingFingerprints []FindingFingerprint `json:"finding_fingerprints"`
}

// Artifacts is the raw-evidence section of the report.
type Artifacts struct {
	Requests []*HTTPArtifact `json:"requests"`
	TLS      []*TLSArtifact  `json:"tls"`
	DNS      *DNSArtifact    `json:"dns,omitempty"`
	CMS      *CMSArtifact    `json:"cms,omitempty"`
}

// RunReport is the single structured output of a scan.
type RunReport struct {
	SchemaVersion string     `json:"schema_version"`
	RunID         string     `json:"run_id"`
	Engine        Engine     `json:"engine"`
	Time          Time       `json:"time"`
	Operator      Operator   `json:"operator"`
	Scope         Scope      `json:"scope"`
	Summary       Summary    `json:"summary"`
	Errors        []ScanError `json:"errors"`
	Delta         Delta      `json:"delta"`
	Artifacts     Artifacts  `json:"artifacts"`
	Signals       []Signal   `json:"signals"`
	Findings      []Finding  `json:"findings"`
}

// FailedScan is returned in place of a RunReport when normalization
// fails fatally — spec.md §7's "short failure object, no report".
type FailedScan struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}
