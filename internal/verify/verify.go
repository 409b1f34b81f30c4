// Package verify checks a reconciled release through configured health
// probes and aggregates a pass/fail verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/dceres/releasectl/internal/infra"
)

var ErrNoEndpoint = errors.New("verify: no endpoint base url in outputs")

const maxSnapshotBytes = 4096

// Outcome is the terminal health state of one probe.
type Outcome string

const (
	OutcomeHealthy   Outcome = "healthy"
	OutcomeUnhealthy Outcome = "unhealthy"
)

// Probe is one health check against the deployed endpoint.
type Probe struct {
	Name         string
	Path         string
	Body         string
	ExpectStatus int
	ExpectField  string
	MaxAttempts  int
	Backoff      []time.Duration
	Timeout      time.Duration
}

// ProbeResult records one probe's terminal state for the release report.
type ProbeResult struct {
	Probe        string  `json:"probe"`
	Outcome      Outcome `json:"outcome"`
	Attempts     int     `json:"attempts"`
	LastStatus   int     `json:"last_status,omitempty"`
	LastSnapshot string  `json:"last_snapshot,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
}

// StaleWarning flags a function still reporting an image older than the one
// just reconciled. Informational only; it never flips the verdict.
type StaleWarning struct {
	Component     string `json:"component"`
	DesiredImage  string `json:"desired_image"`
	ObservedImage string `json:"observed_image"`
}

func (w StaleWarning) String() string {
	return fmt.Sprintf("%s serving %s, expected %s", w.Component, w.ObservedImage, w.DesiredImage)
}

// Verifier runs probes concurrently after the configured settle delay.
type Verifier struct {
	client      *http.Client
	settleDelay time.Duration
}

func NewVerifier(settleDelay time.Duration) *Verifier {
	return &Verifier{
		client:      &http.Client{},
		settleDelay: settleDelay,
	}
}

// VerifyRelease waits the settle delay, runs each probe to a terminal
// outcome, and returns one result per probe in input order. The overall
// verdict is the caller's conjunction over the results.
func (v *Verifier) VerifyRelease(ctx context.Context, outputs infra.Outputs, probes []Probe) ([]ProbeResult, error) {
	base := strings.TrimRight(strings.TrimSpace(outputs.EndpointBaseURL), "/")
	if base == "" {
		return nil, ErrNoEndpoint
	}

	if v.settleDelay > 0 {
		log.Info().Dur("settle_delay", v.settleDelay).Msg("waiting for rollout to settle")
		timer := time.NewTimer(v.settleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	results := make([]ProbeResult, len(probes))
	var eg errgroup.Group
	for i := range probes {
		i := i
		eg.Go(func() error {
			results[i] = v.runProbe(ctx, base, probes[i])
			return nil
		})
	}
	eg.Wait()
	return results, nil
}

// runProbe retries one probe to its attempt budget and resolves Healthy on
// the first success.
func (v *Verifier) runProbe(ctx context.Context, base string, p Probe) ProbeResult {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	result := ProbeResult{Probe: p.Name, Outcome: OutcomeUnhealthy}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if delay := nextDelay(p.Backoff, attempt, 30*time.Second); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				result.LastError = ctx.Err().Error()
				return result
			}
		}
		result.Attempts = attempt

		status, snapshot, err := v.attempt(ctx, base, p)
		result.LastStatus = status
		result.LastSnapshot = snapshot
		if err == nil {
			result.Outcome = OutcomeHealthy
			result.LastError = ""
			log.Info().Str("probe", p.Name).Int("attempts", attempt).Msg("probe healthy")
			return result
		}
		result.LastError = err.Error()
		log.Warn().Str("probe", p.Name).Int("attempt", attempt).Err(err).Msg("probe attempt failed")
	}
	return result
}

// attempt performs one request and checks it against the success predicate.
func (v *Verifier) attempt(ctx context.Context, base string, p Probe) (int, string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+p.Path, strings.NewReader(p.Body))
	if err != nil {
		return 0, "", fmt.Errorf("verify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("verify: %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	snapshot := string(body)

	expect := p.ExpectStatus
	if expect == 0 {
		expect = http.StatusOK
	}
	if resp.StatusCode != expect {
		return resp.StatusCode, snapshot, fmt.Errorf("verify: %s: status %d, want %d", p.Name, resp.StatusCode, expect)
	}
	if field := strings.TrimSpace(p.ExpectField); field != "" {
		if !gjson.Get(snapshot, field).Exists() {
			return resp.StatusCode, snapshot, fmt.Errorf("verify: %s: response missing %q", p.Name, field)
		}
	}
	return resp.StatusCode, snapshot, nil
}

// StaleRollout compares the images reported by apply outputs against the
// desired references and returns one warning per mismatch. Both sides pass
// through the same reference normalization, so a fully qualified URI and its
// familiar form never compare unequal.
func StaleRollout(desired map[string]string, outputs infra.Outputs) []StaleWarning {
	var warnings []StaleWarning
	for component, want := range desired {
		observed, ok := outputs.FunctionImages[component]
		if !ok || observed == "" {
			continue
		}
		if canonicalImage(observed) != canonicalImage(want) {
			warnings = append(warnings, StaleWarning{
				Component:     component,
				DesiredImage:  want,
				ObservedImage: observed,
			})
		}
	}
	return warnings
}

func canonicalImage(image string) string {
	image = strings.TrimSpace(image)
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image
	}
	return reference.FamiliarString(named)
}
