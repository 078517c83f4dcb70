// Package cmsdetect implements the CMS Detector (spec.md §4.5): score
// each loaded rule against every HTTP artifact, tolerating malformed
// rule entries. Scoring loop grounded near-verbatim on
// original_source/app/scanner/cms.py's detect_cms. Supplemented with
// robots.txt-derived evidence (github.com/temoto/robotstxt) and
// wappalyzergo tech fingerprints as auxiliary, non-scoring evidence.
package cmsdetect

import (
	"sort"
	"strings"

	"github.com/temoto/robotstxt"
	wappalyzer "github.com/projectdiscovery/wappalyzergo"

	"github.com/reconscan/reconscan/internal/dataload"
	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
)

// Detector scores CMS rules against a scan's HTTP artifacts.
type Detector struct {
	rules     []dataload.CMSRule
	wappalyze *wappalyzer.Wappalyze
}

// New builds a Detector over the given rule set. Wappalyzergo
// initialization failures degrade to nil (tech fingerprinting is
// supplementary, never fatal to CMS detection).
func New(rules []dataload.CMSRule) *Detector {
	wz, _ := wappalyzer.New()
	return &Detector{rules: rules, wappalyze: wz}
}

// Detect scores every rule against artifacts and returns the winning
// CMS, or "unknown"/"low" if nothing scored.
func (d *Detector) Detect(targetID string, artifacts []*model.HTTPArtifact) *model.CMSArtifact {
	artifact := &model.CMSArtifact{
		CMSID:       idgen.New(),
		TargetID:    targetID,
		DetectedCMS: "unknown",
		Confidence:  "low",
	}

	scores := map[string]int{}
	evidenceSet := map[string]struct{}{}

	for _, req := range artifacts {
		body := strings.ToLower(req.ResponseAnalysisSnippet)
		reqURL := strings.ToLower(req.URL)
		status := 0
		if req.StatusCode != nil {
			status = *req.StatusCode
		}

		for _, rule := range d.rules {
			if rule.Name == "" {
				continue
			}
			if _, ok := scores[rule.Name]; !ok {
				scores[rule.Name] = 0
			}

			for _, ind := range rule.Indicators {
				matched, evidence := matchIndicator(ind, body, reqURL, status, req.Headers)
				if matched {
					scores[rule.Name] += ind.Score
					evidenceSet[evidence] = struct{}{}
				}
			}
		}
	}

	if len(scores) > 0 {
		bestCMS, bestScore := "", -1
		var names []string
		for name := range scores {
			names = append(names, name)
		}
		sort.Strings(names) // deterministic tie-break
		for _, name := range names {
			if scores[name] > bestScore {
				bestCMS, bestScore = name, scores[name]
			}
		}
		if bestScore >= 3 {
			artifact.DetectedCMS, artifact.Confidence = bestCMS, "high"
		} else if bestScore >= 1 {
			artifact.DetectedCMS, artifact.Confidence = bestCMS, "medium"
		}
	}

	d.enrichFromRobots(artifacts, evidenceSet)
	d.enrichFromWappalyzer(artifacts, evidenceSet)

	evidence := make([]string, 0, len(evidenceSet))
	for e := range evidenceSet {
		evidence = append(evidence, e)
	}
	sort.Strings(evidence)
	artifact.Evidence = evidence
	return artifact
}

func matchIndicator(ind dataload.Indicator, body, reqURL string, status int, headers map[string]string) (bool, string) {
	content := strings.ToLower(ind.Content)

	switch ind.Type {
	case dataload.IndicatorEndpoint:
		if ind.Path != "" && strings.Contains(reqURL, strings.ToLower(ind.Path)) && status == 200 {
			return true, "endpoint: " + ind.Path
		}
	case dataload.IndicatorMeta:
		if content != "" && strings.Contains(body, "<meta") && strings.Contains(body, "content=") && strings.Contains(body, content) {
			return true, "meta: " + content
		}
	case dataload.IndicatorBody:
		if content != "" && strings.Contains(body, content) {
			return true, "body: " + content
		}
	case dataload.IndicatorHeader:
		if content != "" {
			for _, v := range headers {
				if strings.Contains(strings.ToLower(v), content) {
					return true, "header: " + content
				}
			}
		}
	}
	return false, ""
}

// enrichFromRobots parses any fetched robots.txt artifact, adding an
// evidence entry when a disallowed path looks like a CMS admin path —
// supplementary, non-scoring (spec.md §2.2).
func (d *Detector) enrichFromRobots(artifacts []*model.HTTPArtifact, evidenceSet map[string]struct{}) {
	for _, a := range artifacts {
		if !strings.Contains(strings.ToLower(a.URL), "/robots.txt") || a.StatusCode == nil || *a.StatusCode != 200 {
			continue
		}
		data, err := robotstxt.FromBytes([]byte(a.ResponseAnalysisSnippet))
		if err != nil {
			continue
		}
		group := data.FindGroup("*")
		if group == nil {
			continue
		}
		for _, rule := range group.Rules {
			path := strings.ToLower(rule.Path)
			if !rule.Allow && (strings.Contains(path, "wp-admin") || strings.Contains(path, "administrator") || strings.Contains(path, "/admin")) {
				evidenceSet["robots: disallow "+rule.Path] = struct{}{}
			}
		}
	}
}

// enrichFromWappalyzer appends fingerprint names as auxiliary evidence,
// never contributing to the scoring model.
func (d *Detector) enrichFromWappalyzer(artifacts []*model.HTTPArtifact, evidenceSet map[string]struct{}) {
	if d.wappalyze == nil {
		return
	}
	for _, a := range artifacts {
		if !a.HasTag("baseline") {
			continue
		}
		headers := make(map[string][]string, len(a.Headers))
		for k, v := range a.Headers {
			headers[k] = []string{v}
		}
		fingerprints := d.wappalyze.Fingerprint(headers, []byte(a.ResponseAnalysisSnippet))
		for tech := range fingerprints {
			evidenceSet["tech: "+tech] = struct{}{}
		}
	}
}
