package bench_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/bench"
)

// TestMain pins SQLITEGRAPH_BENCH_FILE to a temp path before bench's
// sync.Once-guarded path resolution runs for the first time — path() only
// ever resolves once per process, matching spec.md §9's "only
// process-wide global state" allowance, so every test in this package
// shares one bench file and must clean up after itself with ResetMetrics.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sqlitegraph-bench")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	os.Setenv("SQLITEGRAPH_BENCH_FILE", filepath.Join(dir, "bench.json"))
	os.Exit(m.Run())
}

func float64p(f float64) *float64 { return &f }

func TestRecordAndReadBackMetric(t *testing.T) {
	require.NoError(t, bench.ResetMetrics())

	require.NoError(t, bench.RecordMetric(bench.Metric{Name: "insert_node", OpsPerSec: float64p(5000)}))
	metrics, err := bench.AllMetrics()
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, "insert_node", metrics[0].Name)
	require.Equal(t, 5000.0, *metrics[0].OpsPerSec)
}

func TestRecordMetricOverwritesSameName(t *testing.T) {
	require.NoError(t, bench.ResetMetrics())

	require.NoError(t, bench.RecordMetric(bench.Metric{Name: "bfs", OpsPerSec: float64p(100)}))
	require.NoError(t, bench.RecordMetric(bench.Metric{Name: "bfs", OpsPerSec: float64p(200)}))

	metrics, err := bench.AllMetrics()
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, 200.0, *metrics[0].OpsPerSec)
}

func TestCheckThresholdsReportsMissingAndBelow(t *testing.T) {
	require.NoError(t, bench.ResetMetrics())
	require.NoError(t, bench.RecordMetric(bench.Metric{Name: "insert_node", OpsPerSec: float64p(50)}))

	failures, err := bench.CheckThresholds([]bench.Threshold{
		{Name: "insert_node", MinOpsPerSec: float64p(100)},
		{Name: "bfs", MinOpsPerSec: float64p(10)},
	})
	require.NoError(t, err)
	require.Len(t, failures, 2)
	require.Equal(t, "insert_node", failures[0].Name)
	require.Equal(t, "bfs", failures[1].Name)
}

func TestCheckThresholdsPassesWhenMet(t *testing.T) {
	require.NoError(t, bench.ResetMetrics())
	require.NoError(t, bench.RecordMetric(bench.Metric{Name: "insert_node", OpsPerSec: float64p(500)}))

	failures, err := bench.CheckThresholds([]bench.Threshold{
		{Name: "insert_node", MinOpsPerSec: float64p(100)},
	})
	require.NoError(t, err)
	require.Empty(t, failures)
}

func TestCompareToBaselineFlagsRegression(t *testing.T) {
	baseline := []bench.Metric{{Name: "insert_node", OpsPerSec: float64p(1000)}}
	current := []bench.Metric{{Name: "insert_node", OpsPerSec: float64p(800)}}

	regressions := bench.CompareToBaseline(baseline, current, 0.1)
	require.Len(t, regressions, 1)
	require.Equal(t, "insert_node", regressions[0].Name)
}

func TestCompareToBaselineIgnoresWithinTolerance(t *testing.T) {
	baseline := []bench.Metric{{Name: "insert_node", OpsPerSec: float64p(1000)}}
	current := []bench.Metric{{Name: "insert_node", OpsPerSec: float64p(950)}}

	regressions := bench.CompareToBaseline(baseline, current, 0.1)
	require.Empty(t, regressions)
}
