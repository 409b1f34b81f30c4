package release

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dceres/releasectl/internal/infra"
	"github.com/dceres/releasectl/internal/testutil/testlog"
	"github.com/dceres/releasectl/internal/verify"
)

func sampleReport() Report {
	return Report{
		RunID:       "11111111-2222-3333-4444-555555555555",
		Action:      "deploy",
		Environment: "staging",
		Revision:    "0123456789abcdef",
		StartedAt:   time.Now().Add(-time.Minute),
		FinishedAt:  time.Now(),
		Tasks: []BuildTask{
			{Component: "generate", Repository: "transformer-model/generate-text", Tag: "01234567", State: TaskPushed},
			{Component: "visualize", Repository: "transformer-model/visualize-attention", Tag: "aaaa1111", State: TaskSkipped},
		},
		Outputs: &infra.Outputs{
			EndpointBaseURL: "https://abc123.execute-api.us-west-2.amazonaws.com/prod",
			FunctionNames:   map[string]string{"generate": "transformer-model-generate-text"},
		},
		Probes:  []verify.ProbeResult{{Probe: "generate", Outcome: verify.OutcomeHealthy, Attempts: 2}},
		Verdict: VerdictSuccess,
	}
}

func TestWriteEmitsJSONAndMarkdown(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	report := sampleReport()
	if err := report.Write(dir); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "release_01234567.json"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.Verdict != VerdictSuccess || decoded.RunID != report.RunID {
		t.Fatalf("decoded report = %+v", decoded)
	}

	md, err := os.ReadFile(filepath.Join(dir, "release_01234567.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	text := string(md)
	for _, want := range []string{
		"# Release Report",
		"transformer-model/generate-text:01234567",
		"| generate | healthy | 2 |",
		"https://abc123.execute-api.us-west-2.amazonaws.com/prod",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("markdown missing %q:\n%s", want, text)
		}
	}
}

func TestWriteWithoutRevisionUsesPlaceholder(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	report := sampleReport()
	report.Revision = ""
	if err := report.Write(dir); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "release_norev.json")); err != nil {
		t.Fatalf("placeholder report missing: %v", err)
	}
}

func TestFailed(t *testing.T) {
	r := Report{Verdict: VerdictFailure}
	if !r.Failed() {
		t.Fatal("failure verdict must fail")
	}
	r.Verdict = VerdictSuccess
	if r.Failed() {
		t.Fatal("success verdict must not fail")
	}
}
