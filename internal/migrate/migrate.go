// Package migrate implements the dual-runtime migration harness of
// spec.md §4.J: a dual writer that mirrors every insert to a shadow
// engine and records per-operation match/mismatch, a shadow reader that
// compares neighbors/bfs output across a batch of (node, depth) jobs, and
// a one-way cutover flag that swaps which engine serves reads.
//
// Grounded on steveyegge-beads's golang.org/x/sync/errgroup dependency for
// the shadow reader's bounded-concurrency comparison sweep, and on the
// migration ledger idiom already used by internal/gstore/sqlengine's
// ordered migration steps (3.B) for how a migration's progress is
// recorded.
package migrate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// WriteResult records one dual-written operation's outcome on both
// engines.
type WriteResult struct {
	Op         string
	PrimaryID  int64
	ShadowID   int64
	PrimaryErr error
	ShadowErr  error
	Match      bool
}

// DualWriter mirrors every InsertNode/InsertEdge call to Shadow after
// applying it to Primary, serializing primary-then-shadow per spec.md
// §4.J's ordering guarantee. A shadow error never rolls back the primary
// write — it is recorded in the operation log instead.
type DualWriter struct {
	Primary gstore.Engine
	Shadow  gstore.Engine

	mu  sync.Mutex
	log []WriteResult

	cutover atomic.Bool
}

// NewDualWriter returns a DualWriter over the given primary/shadow pair,
// pre-cutover.
func NewDualWriter(primary, shadow gstore.Engine) *DualWriter {
	return &DualWriter{Primary: primary, Shadow: shadow}
}

// InsertNode writes to Primary, then Shadow, and returns Primary's
// outcome. The shadow outcome and match status are appended to the log
// regardless of whether either side errored.
func (dw *DualWriter) InsertNode(spec gstore.NodeSpec) (gstore.NodeID, error) {
	pid, perr := dw.Primary.InsertNode(spec)
	sid, serr := dw.Shadow.InsertNode(spec)

	dw.record(WriteResult{
		Op:         "insert_node",
		PrimaryID:  int64(pid),
		ShadowID:   int64(sid),
		PrimaryErr: perr,
		ShadowErr:  serr,
		Match:      outcomesMatch(int64(pid), int64(sid), perr, serr),
	})
	return pid, perr
}

// InsertEdge mirrors InsertNode's dual-write protocol for edges.
func (dw *DualWriter) InsertEdge(spec gstore.EdgeSpec) (gstore.EdgeID, error) {
	pid, perr := dw.Primary.InsertEdge(spec)
	sid, serr := dw.Shadow.InsertEdge(spec)

	dw.record(WriteResult{
		Op:         "insert_edge",
		PrimaryID:  int64(pid),
		ShadowID:   int64(sid),
		PrimaryErr: perr,
		ShadowErr:  serr,
		Match:      outcomesMatch(int64(pid), int64(sid), perr, serr),
	})
	return pid, perr
}

func outcomesMatch(pid, sid int64, perr, serr error) bool {
	if (perr == nil) != (serr == nil) {
		return false
	}
	if perr != nil {
		return true // both errored; treat as matching failure modes
	}
	return pid == sid
}

func (dw *DualWriter) record(r WriteResult) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.log = append(dw.log, r)
}

// Log returns a copy of every recorded write outcome, in call order.
func (dw *DualWriter) Log() []WriteResult {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	out := make([]WriteResult, len(dw.log))
	copy(out, dw.log)
	return out
}

// Cutover performs the one-way transition from primary-served to
// shadow-served reads. A second call reports an error — is_cutover must
// transition from false to true exactly once (spec.md §8 invariant 7).
func (dw *DualWriter) Cutover() error {
	if !dw.cutover.CompareAndSwap(false, true) {
		return fmt.Errorf("migrate: %w: already cut over", gstore.ErrInvalidInput)
	}
	return nil
}

// IsCutover reports whether Cutover has already run.
func (dw *DualWriter) IsCutover() bool {
	return dw.cutover.Load()
}

// ActiveEngine returns Shadow once cut over, else Primary — the "active
// read" pointer spec.md §4.J describes.
func (dw *DualWriter) ActiveEngine() gstore.Engine {
	if dw.IsCutover() {
		return dw.Shadow
	}
	return dw.Primary
}

// Job is one (node, depth) comparison unit for the shadow reader.
type Job struct {
	Node  gstore.NodeID
	Depth int
}

// CompareEntry is one shadow-reader comparison outcome.
type CompareEntry struct {
	Node  gstore.NodeID
	Depth int
	Match bool
	Detail string

	// dedupKey hashes (Node, Depth, Detail) so DedupMismatches can collapse
	// repeat reports of the same mismatch across successive comparison
	// sweeps without re-hashing on every call.
	dedupKey uint64
}

// mismatchKey hashes one mismatch's identity down to a fixed-width key,
// used by DedupMismatches to group repeat reports of the same mismatch
// across successive shadow-comparison sweeps.
func mismatchKey(node gstore.NodeID, depth int, detail string) uint64 {
	d := xxhash.New()
	d.WriteString(strconv.FormatInt(int64(node), 10))
	d.WriteString("|")
	d.WriteString(strconv.Itoa(depth))
	d.WriteString("|")
	d.WriteString(detail)
	return d.Sum64()
}

// DedupMismatches collapses a ShadowReport's mismatch entries down to one
// per distinct (node, depth, detail) triple, preserving the sorted order
// CompareShadow already produced.
func DedupMismatches(report ShadowReport) []CompareEntry {
	seen := make(map[uint64]struct{}, report.MismatchCount)
	out := make([]CompareEntry, 0, report.MismatchCount)
	for _, e := range report.Entries {
		if e.Match {
			continue
		}
		if _, ok := seen[e.dedupKey]; ok {
			continue
		}
		seen[e.dedupKey] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ShadowReport is the shadow reader's sorted comparison log plus summary
// counts.
type ShadowReport struct {
	Entries       []CompareEntry
	MatchCount    int
	MismatchCount int
}

// maxConcurrentCompares bounds the shadow reader's errgroup, the same
// "bounded worker pool over an independent job list" shape
// steveyegge-beads uses golang.org/x/sync/errgroup for.
const maxConcurrentCompares = 8

// CompareShadow runs each job's neighbors/bfs comparison between primary
// and shadow concurrently (bounded by maxConcurrentCompares), returning a
// report whose Entries are sorted by (node, depth) regardless of
// completion order.
func CompareShadow(ctx context.Context, primary, shadow gstore.Engine, jobs []Job) (ShadowReport, error) {
	entries := make([]CompareEntry, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCompares)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			entry, err := compareOne(primary, shadow, job)
			if err != nil {
				return fmt.Errorf("migrate: compare node %d depth %d: %w", job.Node, job.Depth, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ShadowReport{}, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Node != entries[j].Node {
			return entries[i].Node < entries[j].Node
		}
		return entries[i].Depth < entries[j].Depth
	})

	report := ShadowReport{Entries: entries}
	for _, e := range entries {
		if e.Match {
			report.MatchCount++
		} else {
			report.MismatchCount++
		}
	}
	return report, nil
}

func compareOne(primary, shadow gstore.Engine, job Job) (CompareEntry, error) {
	pNeighbors, err := primary.Neighbors(job.Node, gstore.NeighborQuery{Direction: gstore.Outgoing})
	if err != nil {
		return CompareEntry{}, err
	}
	sNeighbors, err := shadow.Neighbors(job.Node, gstore.NeighborQuery{Direction: gstore.Outgoing})
	if err != nil {
		return CompareEntry{}, err
	}
	pBFS, err := primary.BFS(job.Node, job.Depth)
	if err != nil {
		return CompareEntry{}, err
	}
	sBFS, err := shadow.BFS(job.Node, job.Depth)
	if err != nil {
		return CompareEntry{}, err
	}

	if !sameIDSet(pNeighbors, sNeighbors) {
		const detail = "neighbors differ"
		return CompareEntry{Node: job.Node, Depth: job.Depth, Match: false, Detail: detail, dedupKey: mismatchKey(job.Node, job.Depth, detail)}, nil
	}
	if !sameIDSet(pBFS, sBFS) {
		const detail = "bfs differs"
		return CompareEntry{Node: job.Node, Depth: job.Depth, Match: false, Detail: detail, dedupKey: mismatchKey(job.Node, job.Depth, detail)}, nil
	}
	return CompareEntry{Node: job.Node, Depth: job.Depth, Match: true}, nil
}

// sameIDSet reports whether a and b contain the same node ids with the
// same multiplicities, ignoring order. Spec.md invariant 2 gives the two
// backends different (both valid) neighbor orderings — native preserves
// insertion order, SQL sorts by id — so a cross-backend comparison must
// never be positional, only a same-backend comparison happens to also be
// order-sensitive and that's incidental, not required.
func sameIDSet(a, b []gstore.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[gstore.NodeID]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
