package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dceres/releasectl/internal/testutil/testlog"
)

func TestClientListTags(t *testing.T) {
	testlog.Start(t)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tags":[
			{"name":"abc1234d","pushed_at":"2026-08-30T10:00:00Z"},
			{"name":"latest","pushed_at":"2026-08-30T11:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "transformer-model", 5*time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	tags, err := client.ListTags(context.Background(), "generate-text")
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if gotPath != "/api/repositories/transformer-model/generate-text/tags" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(tags) != 2 || tags[0].Tag != "abc1234d" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
	if tags[0].PushedAt.IsZero() {
		t.Fatal("pushed_at not parsed")
	}
}

func TestClientListTagsBadStatus(t *testing.T) {
	testlog.Start(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListTags(context.Background(), "repo"); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected bad status error, got %v", err)
	}
}

func TestClientListTagsTimeout(t *testing.T) {
	testlog.Start(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListTags(context.Background(), "repo"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  ", "", time.Second); !errors.Is(err, ErrEndpointRequired) {
		t.Fatalf("expected endpoint error, got %v", err)
	}
}
