// Package httpprobe implements the HTTP Prober (spec.md §4.4): the
// concurrency core of a scan. Request execution, streaming body
// capture, and snippet extraction are grounded on
// secinto-probeHTTP/internal/probe/prober.go; bounded concurrency is
// adapted from that package's worker.go, but switched from an
// unordered channel fan-in to an index-preserving goroutine-per-item
// pattern since probe_paths must return artifacts in input order.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/twmb/murmur3"

	"github.com/reconscan/reconscan/internal/config"
	"github.com/reconscan/reconscan/internal/idgen"
	"github.com/reconscan/reconscan/internal/model"
	"github.com/reconscan/reconscan/pkg/useragent"
)

var retryableStatusCodes = map[int]bool{429: true, 502: true, 503: true, 504: true}

// Prober executes GET requests against a single target, gated by the
// shared StealthScheduler and a scan-scoped semaphore.
type Prober struct {
	client    *Client
	scheduler *StealthScheduler
	cfg       *config.Config
}

// New builds a Prober sharing the given client and scheduler —
// injected handles, per spec.md §9, so multiple Probers in one process
// share one scheduler instance explicitly.
func New(cfg *config.Config, client *Client, scheduler *StealthScheduler) *Prober {
	return &Prober{client: client, scheduler: scheduler, cfg: cfg}
}

// FetchBaseline issues a single GET to the target's canonical root,
// tagged "baseline" and exempt from the scan-scoped semaphore (spec.md
// §4.4.3).
func (p *Prober) FetchBaseline(ctx context.Context, target *model.Target) *model.HTTPArtifact {
	return p.do(ctx, target, target.CanonicalURL, "baseline")
}

// ProbePaths issues one GET per path, bounded by semaphore, returning
// artifacts in the same order as paths. A panicking probe becomes a
// synthetic error artifact rather than propagating (spec.md §4.4.1).
func (p *Prober) ProbePaths(ctx context.Context, target *model.Target, paths []string, semaphore chan struct{}) []*model.HTTPArtifact {
	artifacts := make([]*model.HTTPArtifact, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				artifacts[i] = p.crashArtifact(target, target.CanonicalURL+path, ctx.Err())
				return
			}

			artifacts[i] = p.runGuarded(ctx, target, joinURL(target.CanonicalURL, path))
		}(i, path)
	}

	wg.Wait()
	return artifacts
}

func joinURL(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// runGuarded recovers a panicking do() call into a synthetic error
// artifact, since probe_paths must never let one path crash the scan.
func (p *Prober) runGuarded(ctx context.Context, target *model.Target, requestURL string) (artifact *model.HTTPArtifact) {
	defer func() {
		if r := recover(); r != nil {
			artifact = p.crashArtifact(target, requestURL, fmt.Errorf("panic: %v", r))
		}
	}()
	return p.do(ctx, target, requestURL, "")
}

func (p *Prober) crashArtifact(target *model.Target, requestURL string, err error) *model.HTTPArtifact {
	a := model.NewHTTPArtifact(idgen.New(), target.TargetID, requestURL, http.MethodGet)
	a.Error = err.Error()
	return a
}

// do runs the scheduler-gated, retrying request against requestURL.
func (p *Prober) do(ctx context.Context, target *model.Target, requestURL string, tag string) *model.HTTPArtifact {
	start := time.Now()
	var tags []string
	if tag != "" {
		tags = []string{tag}
	}
	artifact := model.NewHTTPArtifact(idgen.New(), target.TargetID, requestURL, http.MethodGet, tags...)

	host := target.Host

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt == 0 {
			if err := p.scheduler.Reserve(ctx); err != nil {
				artifact.Error = err.Error()
				artifact.TimingsMs.Total = time.Since(start).Milliseconds()
				return artifact
			}
		}

		if err := p.client.GetLimiter(host).Wait(ctx); err != nil {
			artifact.Error = err.Error()
			artifact.TimingsMs.Total = time.Since(start).Milliseconds()
			return artifact
		}

		resp, respErr := p.execute(ctx, artifact, requestURL)
		if respErr == nil {
			artifact.Error = ""
			if !retryableStatusCodes[*artifact.StatusCode] {
				artifact.TimingsMs.Total = time.Since(start).Milliseconds()
				return artifact
			}
			lastErr = fmt.Errorf("retryable status %d", *artifact.StatusCode)
			if attempt == p.cfg.MaxRetries {
				break
			}
			waitForRetry(ctx, retryAfterWait(resp, attempt, p.cfg.BackoffFactor))
			continue
		}

		lastErr = respErr
		artifact.Error = respErr.Error()
		if attempt == p.cfg.MaxRetries {
			break
		}
		waitForRetry(ctx, retryAfterWait(nil, attempt, p.cfg.BackoffFactor))
	}

	if lastErr != nil {
		artifact.Error = lastErr.Error()
	}
	artifact.TimingsMs.Total = time.Since(start).Milliseconds()
	return artifact
}

// retryAfterWait honors a numeric Retry-After header, falling back to
// BACKOFF_FACTOR^(attempt+1) seconds, where attempt is the zero-based
// index of the attempt that just failed (spec.md §4.4.5). The retry wait
// replaces, not adds to, the scheduler wait for that attempt.
func retryAfterWait(resp *http.Response, attempt int, backoffFactor float64) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return time.Duration(math.Pow(backoffFactor, float64(attempt+1)) * float64(time.Second))
}

func waitForRetry(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// execute performs the request/response cycle: random stealth profile,
// redirect following, byte-capped streaming, snippet extraction,
// lowercased header capture (spec.md §4.4.4).
func (p *Prober) execute(ctx context.Context, artifact *model.HTTPArtifact, requestURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	profile := useragent.Random()
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", profile.Accept)
	req.Header.Set("Accept-Language", profile.AcceptLanguage)

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		artifact.EffectiveURL = resp.Request.URL.String()
	} else {
		artifact.EffectiveURL = requestURL
	}
	artifact.Host = resp.Request.URL.Hostname()
	artifact.TLS = resp.TLS != nil
	status := resp.StatusCode
	artifact.StatusCode = &status

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = strings.Join(v, ", ")
		}
	}
	artifact.Headers = headers

	body, truncated, err := readCapped(resp.Body, p.cfg.ResponseRawMaxBytes)
	if err != nil {
		return resp, err
	}
	artifact.ResponseTruncated = truncated
	artifact.ResponseAnalysisSnippet = snippet(body, 2048)
	artifact.ResponseHash = fmt.Sprintf("%d", murmur3.Sum32(body))

	return resp, nil
}

// readCapped streams r, truncating at maxBytes, never buffering more
// than that cap.
func readCapped(r io.Reader, maxBytes int) ([]byte, bool, error) {
	limited := io.LimitReader(r, int64(maxBytes)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return data, false, err
	}
	if len(data) > maxBytes {
		return data[:maxBytes], true, nil
	}
	return data, false, nil
}

// snippet decodes up to n runes from body as UTF-8, lossily replacing
// invalid sequences, per spec.md §4.4.4 step 4.
func snippet(body []byte, n int) string {
	s := string(body)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= n {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
