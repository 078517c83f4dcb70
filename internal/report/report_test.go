package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconscan/reconscan/internal/model"
)

func baseCtx() *model.ScanContext {
	target := &model.Target{TargetID: "t1", Input: "example.com", CanonicalURL: "https://example.com/", Host: "Example.com", Ports: []int{443}}
	ctx := model.NewScanContext("run1", target, 50, 262144)
	ctx.StartedAt = time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	return ctx
}

func TestAssemble_CleanVerdictWhenNoFindings(t *testing.T) {
	ctx := baseCtx()
	r := Assemble(ctx, ctx.StartedAt.Add(2*time.Second))
	assert.Equal(t, "Clean", r.Summary.Verdict)
	assert.Equal(t, model.FindingCounts{}, r.Summary.FindingCounts)
}

func TestAssemble_WarningsVerdictOnLowOnlyFindings(t *testing.T) {
	ctx := baseCtx()
	ctx.Findings = []model.Finding{{FindingID: "f1", PlaybookID: "PB2_MISSING_HEADERS", Title: "Missing Headers", Severity: "low", Score: model.FindingScore{Total: 3}}}
	r := Assemble(ctx, ctx.StartedAt.Add(time.Second))
	assert.Equal(t, "Warnings", r.Summary.Verdict)
	assert.Empty(t, r.Summary.TopFindings)
}

func TestAssemble_IssuesFoundVerdictAndSortOrder(t *testing.T) {
	ctx := baseCtx()
	ctx.Findings = []model.Finding{
		{FindingID: "f1", PlaybookID: "PB2", Title: "Low One", Severity: "low", Score: model.FindingScore{Total: 1}},
		{FindingID: "f2", PlaybookID: "PB4", Title: "Critical One", Severity: "critical", Score: model.FindingScore{Total: 9}},
		{FindingID: "f3", PlaybookID: "PB1", Title: "Medium One", Severity: "medium", Score: model.FindingScore{Total: 5}},
		{FindingID: "f4", PlaybookID: "PB5", Title: "High One", Severity: "high", Score: model.FindingScore{Total: 8}},
	}
	r := Assemble(ctx, ctx.StartedAt.Add(time.Second))

	require.Equal(t, "Issues Found", r.Summary.Verdict)
	wantOrder := []string{"Critical One", "High One", "Medium One", "Low One"}
	require.Len(t, r.Findings, len(wantOrder))
	for i, title := range wantOrder {
		assert.Equal(t, title, r.Findings[i].Title, "finding %d", i)
	}
	assert.Equal(t, []string{"Critical One", "High One"}, r.Summary.TopFindings)
	assert.Equal(t, model.FindingCounts{Critical: 1, High: 1, Medium: 1, Low: 1}, r.Summary.FindingCounts)
}

func TestAssemble_FingerprintsAreDeterministic(t *testing.T) {
	ctx := baseCtx()
	ctx.Signals = []model.Signal{{SignalID: "tls.subject_mismatch", Value: true}}
	ctx.Findings = []model.Finding{{FindingID: "f1", PlaybookID: "PB1_TLS_WEAKNESS", Title: "T", Severity: "medium", Score: model.FindingScore{Total: 5}, Signals: []string{"tls.subject_mismatch"}}}

	r1 := Assemble(ctx, ctx.StartedAt.Add(time.Second))
	r2 := Assemble(ctx, ctx.StartedAt.Add(time.Second))

	assert.Equal(t, r1.Delta.TargetFingerprint, r2.Delta.TargetFingerprint, "expected stable target fingerprint across identical runs")
	assert.Equal(t, r1.Delta.RunFingerprint, r2.Delta.RunFingerprint, "expected stable run fingerprint across identical runs")
	require.Len(t, r1.Delta.FindingFingerprints, 1)
	require.Len(t, r2.Delta.FindingFingerprints, 1)
	assert.Equal(t, r1.Delta.FindingFingerprints[0].Fingerprint, r2.Delta.FindingFingerprints[0].Fingerprint)
	assert.True(t, strings.HasPrefix(r1.Delta.TargetFingerprint, "sha256:"))
}

func TestAssemble_TLSArtifactOmittedWhenEmpty(t *testing.T) {
	ctx := baseCtx()
	ctx.TLS = &model.TLSArtifact{}
	r := Assemble(ctx, ctx.StartedAt.Add(time.Second))
	assert.Nil(t, r.Artifacts.TLS)
}
