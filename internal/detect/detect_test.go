package detect

import (
	"testing"

	"github.com/dceres/releasectl/internal/config"
	"github.com/dceres/releasectl/internal/testutil/testlog"
)

func transformerComponents() []config.Component {
	return []config.Component{
		{Name: "generate", Paths: []string{"gen/**"}, Repository: "transformer-model-generate-text"},
		{Name: "visualize", Paths: []string{"vis/**"}, DependsOn: "shared", Repository: "transformer-model-visualize-attention"},
		{Name: "shared", Paths: []string{"model/**"}, Repository: "transformer-model-shared"},
	}
}

func TestAffectedBySharedDependency(t *testing.T) {
	testlog.Start(t)

	d, err := NewDetector(transformerComponents())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	affected := d.Affected(ChangeSet{
		Revision: "abc1234def",
		Paths:    []string{"model/attention.py"},
	})

	if got := affected.Names(); len(got) != 2 || got[0] != "shared" || got[1] != "visualize" {
		t.Fatalf("expected {shared, visualize}, got %v", got)
	}
	if affected.Has("generate") {
		t.Fatal("generate must not be affected by model changes")
	}
}

func TestAffectedDirectMatch(t *testing.T) {
	testlog.Start(t)

	d, err := NewDetector(transformerComponents())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	affected := d.Affected(ChangeSet{Paths: []string{"gen/main.py", "README.md"}})
	if got := affected.Names(); len(got) != 1 || got[0] != "generate" {
		t.Fatalf("expected {generate}, got %v", got)
	}
}

func TestAffectedTransitiveChain(t *testing.T) {
	testlog.Start(t)

	d, err := NewDetector([]config.Component{
		{Name: "api", Paths: []string{"api/**"}, DependsOn: "core"},
		{Name: "core", Paths: []string{"core/**"}, DependsOn: "base"},
		{Name: "base", Paths: []string{"base/**"}},
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	affected := d.Affected(ChangeSet{Paths: []string{"base/util.py"}})
	for _, name := range []string{"api", "core", "base"} {
		if !affected.Has(name) {
			t.Fatalf("expected %s affected through dependency chain, got %v", name, affected.Names())
		}
	}
}

func TestEmptyChangeSetYieldsEmptySet(t *testing.T) {
	testlog.Start(t)

	d, err := NewDetector(transformerComponents())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if affected := d.Affected(ChangeSet{Revision: "abc"}); len(affected) != 0 {
		t.Fatalf("expected empty affected set, got %v", affected.Names())
	}
}

func TestGlobMatchesAcrossSegments(t *testing.T) {
	testlog.Start(t)

	d, err := NewDetector([]config.Component{
		{Name: "app", Paths: []string{"src/**/*.py"}},
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if !d.Affected(ChangeSet{Paths: []string{"src/lambda_functions/generate_text/main.py"}}).Has("app") {
		t.Fatal("** must match across path segments")
	}
	if d.Affected(ChangeSet{Paths: []string{"docs/readme.md"}}).Has("app") {
		t.Fatal("unrelated path must not match")
	}
}

func TestShortRevision(t *testing.T) {
	if got := (ChangeSet{Revision: "abcdef0123456789"}).ShortRevision(); got != "abcdef01" {
		t.Fatalf("short revision = %q", got)
	}
	if got := (ChangeSet{Revision: "abc"}).ShortRevision(); got != "abc" {
		t.Fatalf("short revision = %q", got)
	}
}

func TestAffectedTerminatesOnCyclicDependsOn(t *testing.T) {
	testlog.Start(t)

	// Config validation rejects cycles; the walk must still terminate if a
	// detector is built around it.
	d, err := NewDetector([]config.Component{
		{Name: "a", Paths: []string{"a/**"}, DependsOn: "b"},
		{Name: "b", Paths: []string{"b/**"}, DependsOn: "a"},
		{Name: "c", Paths: []string{"c/**"}},
	})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	affected := d.Affected(ChangeSet{Paths: []string{"c/main.tf"}})
	if got := affected.Names(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected {c}, got %v", got)
	}

	affected = d.Affected(ChangeSet{Paths: []string{"a/app.py"}})
	if !affected.Has("a") || !affected.Has("b") {
		t.Fatalf("cycle members reachable from a change must resolve, got %v", affected.Names())
	}
}
