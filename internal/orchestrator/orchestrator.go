// Package orchestrator implements the Scan Orchestrator (spec.md §4.9):
// the fixed DAG normalize -> DNS -> parallel{TLS, HTTP baseline} ->
// probe_paths -> detect_cms -> extract_signals -> PB1..PB5 ->
// assemble_run_report, wiring together every other internal package.
// Grounded structurally on
// original_source/app/services/scan_engine.py's ScanEngine.run: DNS
// failure is isolated (recorded as a ScanError, never fatal), TLS and
// the HTTP baseline run concurrently via golang.org/x/sync/errgroup
// (the original's asyncio.gather with return_exceptions=True), and
// every downstream component call is recover()-wrapped into a
// ScanError rather than aborting the scan, per spec.md §7.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reconscan/reconscan/internal/cmsdetect"
	"github.com/reconscan/reconscan/internal/config"
	"github.com/reconscan/reconscan/internal/dataload"
	"github.com/reconscan/reconscan/internal/dnscollector"
	"github.com/reconscan/reconscan/internal/httpprobe"
	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
	"github.com/reconscan/reconscan/internal/normalize"
	"github.com/reconscan/reconscan/internal/playbooks"
	"github.com/reconscan/reconscan/internal/report"
	"github.com/reconscan/reconscan/internal/signals"
	"github.com/reconscan/reconscan/internal/tlscollector"
)

// Scanner runs one complete scan end to end.
type Scanner struct {
	cfg         *config.Config
	normalizer  *normalize.Normalizer
	dns         *dnscollector.Collector
	tls         *tlscollector.Collector
	httpClient  *httpprobe.Client
	scheduler   *httpprobe.StealthScheduler
	cms         *cmsdetect.Detector
	probes      []string
	wpCVEs      []dataload.WPCVE
}

// New builds a Scanner with one process-wide stealth scheduler and one
// shared HTTP client/limiter set, loading CMS rules/probe paths/WP CVEs
// once at startup via internal/dataload.
func New(cfg *config.Config) *Scanner {
	loader := dataload.New(cfg.DataDir)

	return &Scanner{
		cfg:        cfg,
		normalizer: normalize.New(),
		dns:        dnscollector.New(cfg.DNSTimeout),
		tls:        tlscollector.New(cfg.TLSTimeout),
		httpClient: httpprobe.NewClient(cfg),
		scheduler:  httpprobe.NewStealthScheduler(cfg.GlobalRateLimit, cfg.EnableJitter, cfg.JitterLowMs, cfg.JitterHighMs),
		cms:        cmsdetect.New(loader.LoadCMSRules()),
		probes:     loader.LoadProbes(),
		wpCVEs:     loader.LoadWPCVEs(),
	}
}

// Close releases the scanner's pooled HTTP transport.
func (s *Scanner) Close() {
	s.httpClient.Close()
}

// Scan runs spec.md §4.9's fixed DAG for a single target URL and
// returns its assembled run report. Normalization failures are the
// only fatal-to-scan errors (spec.md §7); everything downstream is
// isolated into the scan context's Errors and the scan still produces
// a report.
func (s *Scanner) Scan(ctx context.Context, rawInput string) (*model.RunReport, error) {
	target, err := s.normalizer.Normalize(ctx, rawInput)
	if err != nil {
		return nil, err
	}

	runID := idgen.New()
	scanCtx := model.NewScanContext(runID, target, s.cfg.MaxHTTPRequestsPerScan, s.cfg.ResponseRawMaxBytes)

	s.runStages(ctx, scanCtx)

	finishedAt := time.Now().UTC()
	return report.Assemble(scanCtx, finishedAt), nil
}

func (s *Scanner) runStages(ctx context.Context, scanCtx *model.ScanContext) {
	defer guard(scanCtx, "engine", "CRITICAL_FAILURE")

	scanCtx.DNS = s.collectDNS(ctx, scanCtx)

	var tls *model.TLSArtifact
	var baseline *model.HTTPArtifact
	s.collectTLSAndBaseline(ctx, scanCtx, &tls, &baseline)
	scanCtx.TLS = tls
	if baseline != nil {
		scanCtx.HTTP = append(scanCtx.HTTP, baseline)
	}

	if baseline != nil || len(scanCtx.Target.ResolvedIPs) > 0 {
		s.probePaths(ctx, scanCtx)
	}

	scanCtx.CMS = s.detectCMS(scanCtx)
	scanCtx.Signals = signals.Extract(scanCtx.Target.TargetID, scanCtx.TLS, scanCtx.HTTP)
	s.runPlaybooks(scanCtx, baseline)
}

func (s *Scanner) collectDNS(ctx context.Context, scanCtx *model.ScanContext) *model.DNSArtifact {
	var artifact *model.DNSArtifact
	func() {
		defer guard(scanCtx, "dns", "COLLECTION_FAILED")
		artifact = s.dns.Collect(ctx, scanCtx.Target.TargetID, scanCtx.Target.Host)
	}()
	return artifact
}

// collectTLSAndBaseline runs the TLS handshake and the HTTP baseline
// fetch concurrently, isolating either's failure from the other —
// the Go analogue of ScanEngine.run's asyncio.gather(return_exceptions=True).
func (s *Scanner) collectTLSAndBaseline(ctx context.Context, scanCtx *model.ScanContext, tls **model.TLSArtifact, baseline **model.HTTPArtifact) {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer guard(scanCtx, "tls", "COLLECTION_FAILED")
		if len(scanCtx.Target.ResolvedIPs) == 0 {
			return nil
		}
		*tls = s.tls.Collect(gctx, scanCtx.Target.TargetID, scanCtx.Target.Host, scanCtx.Target.ResolvedIPs[0], scanCtx.Target.Port)
		return nil
	})

	group.Go(func() error {
		defer guard(scanCtx, "http", "BASELINE_FAILED")
		prober := httpprobe.New(s.cfg, s.httpClient, s.scheduler)
		*baseline = prober.FetchBaseline(gctx, scanCtx.Target)
		return nil
	})

	_ = group.Wait()
}

func (s *Scanner) probePaths(ctx context.Context, scanCtx *model.ScanContext) {
	defer guard(scanCtx, "http", "PROBING_FAILED")

	budget := scanCtx.MaxRequests - len(scanCtx.HTTP)
	if budget <= 0 {
		return
	}
	safeProbes := s.probes
	if len(safeProbes) > budget {
		safeProbes = safeProbes[:budget]
	}
	if len(safeProbes) == 0 {
		return
	}

	prober := httpprobe.New(s.cfg, s.httpClient, s.scheduler)
	semaphore := make(chan struct{}, s.cfg.MaxConcurrentRequests)
	results := prober.ProbePaths(ctx, scanCtx.Target, safeProbes, semaphore)
	scanCtx.HTTP = append(scanCtx.HTTP, results...)
}

func (s *Scanner) detectCMS(scanCtx *model.ScanContext) *model.CMSArtifact {
	var artifact *model.CMSArtifact
	func() {
		defer guard(scanCtx, "cms", "DETECTION_FAILED")
		artifact = s.cms.Detect(scanCtx.Target.TargetID, scanCtx.HTTP)
	}()
	return artifact
}

func (s *Scanner) runPlaybooks(scanCtx *model.ScanContext, baseline *model.HTTPArtifact) {
	if scanCtx.TLS != nil && baseline != nil {
		func() {
			defer guard(scanCtx, "playbook", "PLAYBOOK_FAILED_1")
			if f := playbooks.EvaluatePB1(scanCtx.Signals, scanCtx.Target); f != nil {
				scanCtx.Findings = append(scanCtx.Findings, *f)
			}
		}()
	}

	func() {
		defer guard(scanCtx, "playbook", "PLAYBOOK_FAILED_2")
		if f := playbooks.EvaluatePB2(scanCtx.Target, scanCtx.HTTP); f != nil {
			scanCtx.Findings = append(scanCtx.Findings, *f)
		}
	}()

	if scanCtx.DNS != nil {
		func() {
			defer guard(scanCtx, "playbook", "PLAYBOOK_FAILED_3")
			if f := playbooks.EvaluatePB3(scanCtx.DNS, scanCtx.Target); f != nil {
				scanCtx.Findings = append(scanCtx.Findings, *f)
			}
		}()
		func() {
			defer guard(scanCtx, "playbook", "PLAYBOOK_FAILED_4")
			if f := playbooks.EvaluatePB4(scanCtx.DNS, scanCtx.Target, scanCtx.HTTP); f != nil {
				scanCtx.Findings = append(scanCtx.Findings, *f)
			}
		}()
	}

	if scanCtx.CMS != nil {
		func() {
			defer guard(scanCtx, "playbook", "PLAYBOOK_FAILED_5")
			findings := playbooks.EvaluatePB5(scanCtx.CMS, scanCtx.Target, scanCtx.HTTP, s.wpCVEs)
			scanCtx.Findings = append(scanCtx.Findings, findings...)
		}()
	}
}

// guard recovers a panicking component call and records it as a
// non-fatal ScanError, per spec.md §7's "a component panic never
// aborts the scan" requirement.
func guard(scanCtx *model.ScanContext, component, errorType string) {
	if r := recover(); r != nil {
		scanCtx.AddError(component, errorType, fmt.Sprintf("%v", r))
	}
}
