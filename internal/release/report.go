package release

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dceres/releasectl/internal/infra"
	"github.com/dceres/releasectl/internal/registry"
	"github.com/dceres/releasectl/internal/verify"
)

// Verdict is the overall run outcome.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
)

// Report is the terminal artifact of one run and the single source of truth
// for what happened.
type Report struct {
	RunID       string    `json:"run_id"`
	Action      string    `json:"action"`
	Environment string    `json:"environment"`
	Revision    string    `json:"revision"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Affected []string                   `json:"affected,omitempty"`
	Tasks    []BuildTask                `json:"build_tasks,omitempty"`
	Images   []registry.ImageReference  `json:"images,omitempty"`
	Diff     *infra.Diff                `json:"diff,omitempty"`
	Outputs  *infra.Outputs             `json:"outputs,omitempty"`
	Probes   []verify.ProbeResult       `json:"probes,omitempty"`
	Warnings []verify.StaleWarning      `json:"warnings,omitempty"`

	ReconcileError string  `json:"reconcile_error,omitempty"`
	RunError       string  `json:"run_error,omitempty"`
	Verdict        Verdict `json:"verdict"`
}

// Failed reports whether the run verdict is failure.
func (r Report) Failed() bool {
	return r.Verdict != VerdictSuccess
}

func (r Report) shortRevision() string {
	rev := strings.TrimSpace(r.Revision)
	if len(rev) > 8 {
		return rev[:8]
	}
	if rev == "" {
		return "norev"
	}
	return rev
}

// Write emits the report as JSON plus a Markdown summary under dir, keyed by
// the short revision, and logs the verdict.
func (r Report) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("release: report dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("release: encode report: %w", err)
	}
	jsonPath := filepath.Join(dir, fmt.Sprintf("release_%s.json", r.shortRevision()))
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("release: write %s: %w", jsonPath, err)
	}

	mdPath := filepath.Join(dir, fmt.Sprintf("release_%s.md", r.shortRevision()))
	if err := os.WriteFile(mdPath, []byte(r.markdown()), 0o644); err != nil {
		return fmt.Errorf("release: write %s: %w", mdPath, err)
	}

	log.Info().
		Str("run_id", r.RunID).
		Str("verdict", string(r.Verdict)).
		Str("report", jsonPath).
		Msg("release report written")
	return nil
}

func (r Report) markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Release Report\n\n")
	fmt.Fprintf(&b, "- **Run**: %s\n", r.RunID)
	fmt.Fprintf(&b, "- **Action**: %s\n", r.Action)
	fmt.Fprintf(&b, "- **Environment**: %s\n", r.Environment)
	fmt.Fprintf(&b, "- **Revision**: `%s`\n", r.Revision)
	fmt.Fprintf(&b, "- **Started**: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Finished**: %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Verdict**: %s\n", r.Verdict)

	if len(r.Tasks) > 0 {
		fmt.Fprintf(&b, "\n## Builds\n\n| Component | Image | State |\n|---|---|---|\n")
		for _, t := range r.Tasks {
			fmt.Fprintf(&b, "| %s | `%s:%s` | %s |\n", t.Component, t.Repository, t.Tag, t.State)
		}
	}
	if len(r.Images) > 0 {
		fmt.Fprintf(&b, "\n## Deployed Images\n\n")
		for _, img := range r.Images {
			fmt.Fprintf(&b, "- `%s`\n", img.String())
		}
	}
	if r.Outputs != nil && r.Outputs.EndpointBaseURL != "" {
		fmt.Fprintf(&b, "\n## Endpoints\n\n- Base URL: %s\n", r.Outputs.EndpointBaseURL)
		for component, fn := range r.Outputs.FunctionNames {
			fmt.Fprintf(&b, "- %s: `%s`\n", component, fn)
		}
	}
	if len(r.Probes) > 0 {
		fmt.Fprintf(&b, "\n## Probes\n\n| Probe | Outcome | Attempts |\n|---|---|---|\n")
		for _, p := range r.Probes {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", p.Probe, p.Outcome, p.Attempts)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- stale rollout: %s\n", w.String())
		}
	}
	if r.ReconcileError != "" {
		fmt.Fprintf(&b, "\n## Reconciliation Error\n\n```\n%s\n```\n", r.ReconcileError)
	}
	if r.RunError != "" {
		fmt.Fprintf(&b, "\n## Run Error\n\n```\n%s\n```\n", r.RunError)
	}
	return b.String()
}
