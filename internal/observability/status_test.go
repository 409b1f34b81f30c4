package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dceres/releasectl/internal/testutil/testlog"
)

func TestStatusRouterHealth(t *testing.T) {
	testlog.Start(t)

	r := NewStatusRouter(func() (any, bool) { return nil, false })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health body = %s", rec.Body.String())
	}
}

func TestStatusRouterReport(t *testing.T) {
	testlog.Start(t)

	r := NewStatusRouter(func() (any, bool) { return nil, false })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty report status = %d", rec.Code)
	}

	r = NewStatusRouter(func() (any, bool) {
		return map[string]string{"verdict": "success"}, true
	})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "success") {
		t.Fatalf("report response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusRouterMetrics(t *testing.T) {
	testlog.Start(t)

	RecordRun("deploy", "success")

	r := NewStatusRouter(func() (any, bool) { return nil, false })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "releasectl_run_total") {
		t.Fatal("expected releasectl metrics in exposition")
	}
}
