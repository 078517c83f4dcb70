// Package signals implements the Signal Extractor (spec.md §4.6): a
// pure, deterministic (TLS?, [HTTP]) -> [Signal] function, no I/O. The
// nine named signals are emitted in the fixed order the table in
// spec.md §4.6 lists them, grounded on
// original_source/app/core/signals.py's general shape but with the
// richer regex-based triggers spec.md specifies taking precedence.
package signals

import (
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/reconscan/reconscan/internal/model"
)

// nonProdPattern mirrors original_source/app/core/normalize.py's
// NONPROD_KEYWORDS tuple, expressed as a word-boundary regex per
// spec.md's trigger for tls.subject_mismatch.
var nonProdPattern = regexp.MustCompile(`(?i)\b(dev|staging|stage|test|qa|uat|preprod|nonprod|internal|local)\b`)

var versionTokenPattern = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// wafCDNValuePattern is grounded on
// secinto-probeHTTP/internal/cdn/detector.go's declarative rule list,
// adapted from CDN-attribution to WAF-suspicion matching (Cloudflare,
// Sucuri, and Incapsula double as WAFs).
var wafCDNHeaderKeys = []string{"cf-ray", "x-sucuri-id", "x-iinfo", "server", "x-waf-status", "x-denied-reason"}
var wafCDNValuePattern = regexp.MustCompile(`(?i)cloudflare|sucuri|incapsula|imperva|akamai|mod_security|barracuda`)

var apiDocsUIPattern = regexp.MustCompile(`(?i)swagger-ui|redoc|graphiql`)

// Extract builds the fixed signal list for a TLS artifact (optional)
// and the ordered HTTP artifacts of one scan. It performs no I/O and
// is deterministic: identical inputs always produce a byte-identical
// signal list (spec.md §8 invariant 10).
func Extract(targetID string, tls *model.TLSArtifact, http []*model.HTTPArtifact) []model.Signal {
	baseline := pickBaseline(http)

	apiSpec := apiSpecExposed(targetID, http)
	apiUI := apiUIExposed(targetID, http)

	return []model.Signal{
		tlsSubjectMismatch(targetID, tls),
		tlsIssuerType(targetID, tls),
		tlsIsExpired(targetID, tls),
		httpHeaderVerbose(targetID, baseline),
		httpResponseLatency(targetID, baseline),
		httpBlockedWAFSuspected(targetID, baseline),
		apiSpec,
		apiUI,
		apiDocsProtected(targetID, http, apiSpec.Value.(bool) || apiUI.Value.(bool)),
	}
}

func pickBaseline(http []*model.HTTPArtifact) *model.HTTPArtifact {
	for _, a := range http {
		if a.HasTag("baseline") {
			return a
		}
	}
	if len(http) > 0 {
		return http[0]
	}
	return nil
}

// newSignal builds a Signal whose signal_id is the fixed dotted name
// spec.md's table assigns (e.g. "tls.subject_mismatch"), per spec.md
// §3's "signal_id (dotted, e.g. tls.subject_mismatch)" field
// definition — signals are named, not minted with a ULID.
func newSignal(signalID, targetID, source string, value bool, weight int, artifactRef string) model.Signal {
	return model.Signal{
		SignalID:         signalID,
		Source:           source,
		TargetID:         targetID,
		Value:            value,
		SignalConfidence: 1.0,
		Weight:           weight,
		ArtifactRef:      artifactRef,
	}
}

func tlsSubjectMismatch(targetID string, tls *model.TLSArtifact) model.Signal {
	matched := false
	ref := ""
	if tls != nil {
		ref = tls.TLSID
		if nonProdPattern.MatchString(tls.CN) {
			matched = true
		}
		for _, san := range tls.SAN {
			if nonProdPattern.MatchString(san) {
				matched = true
				break
			}
		}
	}
	return newSignal("tls.subject_mismatch", targetID, "tls", matched, 2, ref)
}

func tlsIssuerType(targetID string, tls *model.TLSArtifact) model.Signal {
	matched := false
	ref := ""
	if tls != nil {
		ref = tls.TLSID
		lowerIssuer := strings.ToLower(tls.IssuerDN)
		if tls.SelfSigned || strings.Contains(lowerIssuer, "enterprise") || strings.Contains(lowerIssuer, "internal") {
			matched = true
		}
	}
	return newSignal("tls.issuer_type", targetID, "tls", matched, 2, ref)
}

func tlsIsExpired(targetID string, tls *model.TLSArtifact) model.Signal {
	matched := false
	ref := ""
	if tls != nil {
		ref = tls.TLSID
		if strings.Contains(strings.ToLower(tls.Error), "expired") {
			matched = true
		} else if tls.NotAfter != "" {
			if notAfter, err := time.Parse(time.RFC3339, tls.NotAfter); err == nil {
				matched = notAfter.Before(time.Now().UTC())
			}
		}
	}
	return newSignal("tls.is_expired", targetID, "tls", matched, 3, ref)
}

func httpHeaderVerbose(targetID string, baseline *model.HTTPArtifact) model.Signal {
	matched := false
	ref := ""
	if baseline != nil {
		ref = baseline.RequestID
		for _, key := range []string{"server", "x-powered-by", "x-aspnet-version"} {
			if v, ok := baseline.Headers[key]; ok && versionTokenPattern.MatchString(v) {
				matched = true
				break
			}
		}
	}
	return newSignal("http.header.verbose", targetID, "http", matched, 1, ref)
}

func httpResponseLatency(targetID string, baseline *model.HTTPArtifact) model.Signal {
	matched := false
	ref := ""
	if baseline != nil {
		ref = baseline.RequestID
		matched = baseline.TimingsMs.Total > 500
	}
	return newSignal("http.response.latency", targetID, "http", matched, 1, ref)
}

func httpBlockedWAFSuspected(targetID string, baseline *model.HTTPArtifact) model.Signal {
	matched := false
	ref := ""
	if baseline != nil {
		ref = baseline.RequestID
		status := 0
		if baseline.StatusCode != nil {
			status = *baseline.StatusCode
		}
		if statusIn(status, 403, 406, 429, 503) {
			for _, key := range wafCDNHeaderKeys {
				v, ok := baseline.Headers[key]
				if ok && wafCDNValuePattern.MatchString(v) {
					matched = true
					break
				}
			}
			if !matched && wafCDNValuePattern.MatchString(baseline.ResponseAnalysisSnippet) {
				matched = true
			}
		}
	}
	return newSignal("http.blocked.waf_suspected", targetID, "http", matched, 2, ref)
}

func apiSpecExposed(targetID string, http []*model.HTTPArtifact) model.Signal {
	matched, ref := false, ""
	for _, a := range http {
		if a.StatusCode == nil || *a.StatusCode != 200 {
			continue
		}
		ct := strings.ToLower(a.Headers["content-type"])
		if !strings.Contains(ct, "json") && !strings.Contains(ct, "yaml") && !strings.Contains(ct, "text") {
			continue
		}
		body := a.ResponseAnalysisSnippet
		lowerBody := strings.ToLower(body)
		if !strings.Contains(lowerBody, "openapi") && !strings.Contains(lowerBody, "swagger") {
			continue
		}
		parsed := gjson.Parse(body)
		if parsed.Get("paths").Exists() && (parsed.Get("openapi").Exists() || parsed.Get("swagger").Exists()) {
			matched, ref = true, a.RequestID
			break
		}
	}
	return newSignal("surface.api.spec_exposed", targetID, "http", matched, 2, ref)
}

func apiUIExposed(targetID string, http []*model.HTTPArtifact) model.Signal {
	matched, ref := false, ""
	for _, a := range http {
		if apiDocsUIPattern.MatchString(a.ResponseAnalysisSnippet) {
			matched, ref = true, a.RequestID
			break
		}
	}
	return newSignal("surface.api.ui_exposed", targetID, "http", matched, 1, ref)
}

func apiDocsProtected(targetID string, http []*model.HTTPArtifact, apiSignalFired bool) model.Signal {
	matched, ref := false, ""
	if !apiSignalFired {
		for _, a := range http {
			lowerURL := strings.ToLower(a.URL)
			if !strings.Contains(lowerURL, "doc") && !strings.Contains(lowerURL, "swagger") && !strings.Contains(lowerURL, "api") {
				continue
			}
			if a.StatusCode != nil && (*a.StatusCode == 401 || *a.StatusCode == 403) {
				matched, ref = true, a.RequestID
				break
			}
		}
	}
	return newSignal("surface.api.docs_protected", targetID, "http", matched, 1, ref)
}

func statusIn(status int, candidates ...int) bool {
	for _, c := range candidates {
		if status == c {
			return true
		}
	}
	return false
}
