package observability

import (
	"testing"
	"time"

	"github.com/dceres/releasectl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordBuild("generate-text", "pushed", 42*time.Second)
	RecordReconcile("staging", "success", 3*time.Minute)
	RecordProbe("generate", "healthy", 2)
	RecordRun("deploy", "success")
}
