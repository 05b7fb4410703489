// Package bench implements the bench gates of spec.md §4.K: recording
// throughput metrics to a process-wide JSON file, checking them against a
// fixed threshold set, and comparing a fresh run to a previously recorded
// baseline. Grounded on pkg/config/config.go's env-var-overridable path
// idiom (here SQLITEGRAPH_BENCH_FILE, the spec's BENCH_FILE_OVERRIDE
// equivalent) and formatted for CLI reports with the teacher's
// github.com/dustin/go-humanize dependency.
package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
)

const defaultBenchFile = "sqlitegraph_bench.json"

const benchFileEnvVar = "SQLITEGRAPH_BENCH_FILE"

// Metric is one recorded measurement: a name, one or both of ops/sec and
// bytes/sec, and a free-form note.
type Metric struct {
	Name        string   `json:"name"`
	OpsPerSec   *float64 `json:"ops_per_sec,omitempty"`
	BytesPerSec *float64 `json:"bytes_per_sec,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Humanize renders the metric the way the CLI's metrics subcommand reports
// it.
func (m Metric) Humanize() string {
	s := m.Name
	if m.OpsPerSec != nil {
		s += fmt.Sprintf(" %s ops/sec", humanize.CommafWithDigits(*m.OpsPerSec, 1))
	}
	if m.BytesPerSec != nil {
		s += fmt.Sprintf(" %s/sec", humanize.Bytes(uint64(*m.BytesPerSec)))
	}
	if m.Notes != "" {
		s += " (" + m.Notes + ")"
	}
	return s
}

// file holds every recorded metric, keyed by name, for a single bench file
// on disk.
type file struct {
	Metrics map[string]Metric `json:"metrics"`
}

var (
	pathOnce    sync.Once
	defaultPath string

	mu sync.Mutex
)

// path returns the process-wide bench file path, resolved once from
// SQLITEGRAPH_BENCH_FILE (or a local default) and cached for the life of
// the process, per spec.md §9's "only process-wide global state" allowance.
func path() string {
	pathOnce.Do(func() {
		if v := os.Getenv(benchFileEnvVar); v != "" {
			defaultPath = v
			return
		}
		defaultPath = defaultBenchFile
	})
	return defaultPath
}

func load() (file, error) {
	f := file{Metrics: map[string]Metric{}}
	data, err := os.ReadFile(path())
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return file{}, fmt.Errorf("bench: read %s: %w", path(), err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return file{}, fmt.Errorf("bench: parse %s: %w", path(), err)
	}
	if f.Metrics == nil {
		f.Metrics = map[string]Metric{}
	}
	return f, nil
}

func save(f file) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("bench: marshal: %w", err)
	}
	if dir := filepath.Dir(path()); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("bench: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path(), data, 0o644); err != nil {
		return fmt.Errorf("bench: write %s: %w", path(), err)
	}
	return nil
}

// RecordMetric persists m to the bench file, overwriting any prior metric
// with the same name.
func RecordMetric(m Metric) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := load()
	if err != nil {
		return err
	}
	f.Metrics[m.Name] = m
	return save(f)
}

// AllMetrics returns every recorded metric, sorted by name.
func AllMetrics() ([]Metric, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := load()
	if err != nil {
		return nil, err
	}
	out := make([]Metric, 0, len(f.Metrics))
	for _, m := range f.Metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ResetMetrics clears every recorded metric, backing the CLI's
// --reset-metrics flag.
func ResetMetrics() error {
	mu.Lock()
	defer mu.Unlock()
	return save(file{Metrics: map[string]Metric{}})
}

// Threshold is a minimum acceptable ops/sec or bytes/sec for a named
// metric; a metric missing from the recorded set, or falling under its
// threshold, is a gate failure.
type Threshold struct {
	Name           string
	MinOpsPerSec   *float64
	MinBytesPerSec *float64
}

// GateFailure reports one threshold a recorded metric failed (or was
// absent for).
type GateFailure struct {
	Name   string
	Reason string
}

func (f GateFailure) String() string {
	return fmt.Sprintf("%s: %s", f.Name, f.Reason)
}

// CheckThresholds loads the recorded metrics and reports the failing
// thresholds, in threshold order, with at most one failure per threshold:
// when the ops/sec minimum fails, the bytes/sec minimum is not checked.
func CheckThresholds(thresholds []Threshold) ([]GateFailure, error) {
	metrics, err := loadAsMap()
	if err != nil {
		return nil, err
	}

	var failures []GateFailure
	for _, th := range thresholds {
		m, ok := metrics[th.Name]
		if !ok {
			failures = append(failures, GateFailure{Name: th.Name, Reason: "no recorded metric"})
			continue
		}
		if th.MinOpsPerSec != nil {
			if m.OpsPerSec == nil || *m.OpsPerSec < *th.MinOpsPerSec {
				failures = append(failures, GateFailure{
					Name:   th.Name,
					Reason: fmt.Sprintf("ops/sec below threshold %s", humanize.CommafWithDigits(*th.MinOpsPerSec, 1)),
				})
				continue
			}
		}
		if th.MinBytesPerSec != nil {
			if m.BytesPerSec == nil || *m.BytesPerSec < *th.MinBytesPerSec {
				failures = append(failures, GateFailure{
					Name:   th.Name,
					Reason: fmt.Sprintf("bytes/sec below threshold %s/sec", humanize.Bytes(uint64(*th.MinBytesPerSec))),
				})
			}
		}
	}
	return failures, nil
}

// BaselineRegression reports one metric that regressed relative to a prior
// baseline by more than the allowed tolerance.
type BaselineRegression struct {
	Name          string
	BaselineValue float64
	CurrentValue  float64
	PctChange     float64
}

// CompareToBaseline compares current against baseline metric-by-metric on
// OpsPerSec (when present on both sides), reporting any regression whose
// drop exceeds toleranceFraction (e.g. 0.1 for 10%).
func CompareToBaseline(baseline, current []Metric, toleranceFraction float64) []BaselineRegression {
	baseIdx := make(map[string]Metric, len(baseline))
	for _, m := range baseline {
		baseIdx[m.Name] = m
	}

	var regressions []BaselineRegression
	for _, cur := range current {
		base, ok := baseIdx[cur.Name]
		if !ok || base.OpsPerSec == nil || cur.OpsPerSec == nil {
			continue
		}
		if *base.OpsPerSec == 0 {
			continue
		}
		pctChange := (*cur.OpsPerSec - *base.OpsPerSec) / *base.OpsPerSec
		if pctChange < -toleranceFraction {
			regressions = append(regressions, BaselineRegression{
				Name:          cur.Name,
				BaselineValue: *base.OpsPerSec,
				CurrentValue:  *cur.OpsPerSec,
				PctChange:     pctChange,
			})
		}
	}
	sort.Slice(regressions, func(i, j int) bool { return regressions[i].Name < regressions[j].Name })
	return regressions
}

func loadAsMap() (map[string]Metric, error) {
	mu.Lock()
	defer mu.Unlock()
	f, err := load()
	if err != nil {
		return nil, err
	}
	return f.Metrics, nil
}
