// Package dataload loads the core's data-driven rule files
// (cms_rules.json, wp_cves.json, probes.json), tolerating malformed
// entries by skipping them rather than failing the whole load —
// spec.md §6/§9's "dynamic-typed rule data → tagged union, parsed
// once at load" design note. Defaults are embedded so a fresh checkout
// has a working CMS rule set and probe list without any data directory.
package dataload

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed defaults/cms_rules.json
var defaultCMSRulesJSON []byte

//go:embed defaults/probes.json
var defaultProbesJSON []byte

// IndicatorType enumerates the CMS rule indicator variants (spec.md §9's
// tagged-union note): body/header/endpoint/meta.
type IndicatorType string

const (
	IndicatorBody     IndicatorType = "body"
	IndicatorHeader   IndicatorType = "header"
	IndicatorEndpoint IndicatorType = "endpoint"
	IndicatorMeta     IndicatorType = "meta"
)

// Indicator is one scoring rule within a CMSRule.
type Indicator struct {
	Type    IndicatorType `json:"type"`
	Content string        `json:"content,omitempty"`
	Path    string        `json:"path,omitempty"`
	Score   int           `json:"score,omitempty"`
}

// CMSRule is one CMS's full set of scoring indicators.
type CMSRule struct {
	Name       string      `json:"name"`
	Indicators []Indicator `json:"indicators"`
}

// AffectedVersions describes a CVE's version-range predicate.
type AffectedVersions struct {
	Operator string `json:"operator"`
	Version  string `json:"version"`
}

// WPCVE is one known WordPress CVE entry.
type WPCVE struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Severity    string           `json:"severity"`
	Affected    AffectedVersions `json:"affected_versions"`
}

// Loader reads rule/probe data files from a data directory. When a file
// is absent or unreadable, cms_rules.json and probes.json fall back to
// embedded defaults and wp_cves.json yields an empty slice.
type Loader struct {
	dataDir string
}

// New builds a Loader rooted at dataDir.
func New(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

// LoadCMSRules loads cms_rules.json, skipping malformed entries.
func (l *Loader) LoadCMSRules() []CMSRule {
	raw, ok := l.read("cms_rules.json")
	if !ok {
		raw = defaultCMSRulesJSON
	}

	var rawRules []json.RawMessage
	if err := json.Unmarshal(raw, &rawRules); err != nil {
		return nil
	}

	var rules []CMSRule
	for _, entry := range rawRules {
		var rule CMSRule
		if err := json.Unmarshal(entry, &rule); err != nil || rule.Name == "" {
			continue
		}
		var validIndicators []Indicator
		for _, ind := range rule.Indicators {
			if ind.Type == "" {
				continue
			}
			if ind.Score == 0 {
				ind.Score = 1
			}
			validIndicators = append(validIndicators, ind)
		}
		rule.Indicators = validIndicators
		rules = append(rules, rule)
	}
	return rules
}

// LoadWPCVEs loads wp_cves.json; missing file degrades to an empty
// slice (spec.md §6: "missing files degrade to empty arrays").
func (l *Loader) LoadWPCVEs() []WPCVE {
	raw, ok := l.read("wp_cves.json")
	if !ok {
		return nil
	}
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(raw, &rawEntries); err != nil {
		return nil
	}
	var cves []WPCVE
	for _, entry := range rawEntries {
		var cve WPCVE
		if err := json.Unmarshal(entry, &cve); err != nil || cve.ID == "" {
			continue
		}
		cves = append(cves, cve)
	}
	return cves
}

// LoadProbes loads probes.json, using the embedded default list when
// the file is missing. If the data is malformed or an empty array, it
// returns the same hardcoded four-path list
// original_source/app/services/scan_engine.py used.
func (l *Loader) LoadProbes() []string {
	raw, ok := l.read("probes.json")
	if !ok {
		raw = defaultProbesJSON
	}
	var probes []string
	if err := json.Unmarshal(raw, &probes); err != nil || len(probes) == 0 {
		return []string{"/robots.txt", "/sitemap.xml", "/wp-login.php", "/xmlrpc.php"}
	}
	return probes
}

func (l *Loader) read(name string) ([]byte, bool) {
	if l.dataDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(l.dataDir, name))
	if err != nil {
		return nil, false
	}
	return data, true
}
