// Package safety implements the cross-table integrity validator: orphan and
// duplicate edge detection, dangling label/property reference detection,
// and an optional deeper sweep for malformed payloads and duplicate
// (node, label)/(node, key) pairs.
//
// Grounded on the teacher's pkg/storage/schema.go CheckUniqueConstraint
// idiom — a constraint check that returns a descriptive error rather than
// panicking — generalized here from "one constraint, one value" to "every
// edge and reference row in the graph." The validator works purely through
// the gstore.Engine capability set, so it runs unmodified over either the
// SQL-backed or native backend.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// Options configures a Check call.
type Options struct {
	// Strict causes Check to return a *SafetyError (wrapping Report) when
	// any counter is non-zero, instead of returning the report alone.
	Strict bool
	// Deep additionally runs the deep sweep (out-of-order ids, malformed
	// JSON payloads, duplicated label/property pairs).
	Deep bool
}

// DeepSweepReport holds the counters the deep sweep contributes beyond the
// base orphan/duplicate/reference checks.
type DeepSweepReport struct {
	OutOfOrderNodeIDs    int
	OutOfOrderEdgeIDs    int
	MalformedNodePayload int
	MalformedEdgePayload int
	DuplicateLabelPairs  int
	DuplicatePropertyKeys int
}

func (d DeepSweepReport) empty() bool {
	return d.OutOfOrderNodeIDs == 0 && d.OutOfOrderEdgeIDs == 0 &&
		d.MalformedNodePayload == 0 && d.MalformedEdgePayload == 0 &&
		d.DuplicateLabelPairs == 0 && d.DuplicatePropertyKeys == 0
}

// Report is the outcome of a safety check: counters for each violation
// category, plus the optional deep-sweep detail.
type Report struct {
	OrphanEdges          int
	DuplicateEdges       int
	InvalidLabelRefs     int
	InvalidPropertyRefs  int
	DeepSweep            *DeepSweepReport
}

// Clean reports whether every counter — including any deep-sweep counters
// — is zero.
func (r Report) Clean() bool {
	if r.OrphanEdges != 0 || r.DuplicateEdges != 0 || r.InvalidLabelRefs != 0 || r.InvalidPropertyRefs != 0 {
		return false
	}
	if r.DeepSweep != nil && !r.DeepSweep.empty() {
		return false
	}
	return true
}

// SafetyError wraps a non-clean Report surfaced by a strict-mode Check.
type SafetyError struct {
	Report Report
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("safety: violations found: orphan_edges=%d duplicate_edges=%d invalid_label_refs=%d invalid_property_refs=%d",
		e.Report.OrphanEdges, e.Report.DuplicateEdges, e.Report.InvalidLabelRefs, e.Report.InvalidPropertyRefs)
}

// Check sweeps engine for integrity violations per spec.md §4.H. In strict
// mode, a non-clean report is returned as a *SafetyError; otherwise the
// report is always returned with a nil error (the sweep itself failing —
// e.g. a backend I/O error — is a separate, always-propagated error).
func Check(ctx context.Context, engine gstore.Engine, opts Options) (Report, error) {
	nodeIDs, err := engine.AllNodeIDs()
	if err != nil {
		return Report{}, fmt.Errorf("safety: list nodes: %w", err)
	}
	nodeSet := make(map[gstore.NodeID]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		nodeSet[id] = struct{}{}
	}

	edges, err := engine.AllEdges()
	if err != nil {
		return Report{}, fmt.Errorf("safety: list edges: %w", err)
	}

	var report Report

	seen := make(map[edgeKey]struct{}, len(edges))
	for _, e := range edges {
		if ctx.Err() != nil {
			return Report{}, fmt.Errorf("safety: %w", ctx.Err())
		}
		_, srcOK := nodeSet[e.Source]
		_, dstOK := nodeSet[e.Target]
		if !srcOK || !dstOK {
			report.OrphanEdges++
			continue
		}
		key := edgeKey{from: e.Source, to: e.Target, etype: e.Type}
		if _, dup := seen[key]; dup {
			report.DuplicateEdges++
			continue
		}
		seen[key] = struct{}{}
	}

	labelRefs, err := engine.AllLabelRefs()
	if err != nil {
		return Report{}, fmt.Errorf("safety: list label refs: %w", err)
	}
	for _, lr := range labelRefs {
		if _, ok := nodeSet[lr.NodeID]; !ok {
			report.InvalidLabelRefs++
		}
	}

	propRefs, err := engine.AllPropertyRefs()
	if err != nil {
		return Report{}, fmt.Errorf("safety: list property refs: %w", err)
	}
	for _, pr := range propRefs {
		if _, ok := nodeSet[pr.NodeID]; !ok {
			report.InvalidPropertyRefs++
		}
	}

	if opts.Deep {
		deep, err := deepSweep(ctx, engine, nodeIDs, edges, labelRefs, propRefs)
		if err != nil {
			return Report{}, err
		}
		report.DeepSweep = &deep
	}

	if opts.Strict && !report.Clean() {
		return report, &SafetyError{Report: report}
	}
	return report, nil
}

type edgeKey struct {
	from, to gstore.NodeID
	etype    string
}

// deepSweep looks for out-of-order ids, malformed JSON payloads, and
// duplicated (node, label)/(node, key) pairs — the three checks spec.md
// §4.H reserves for --deep.
func deepSweep(ctx context.Context, engine gstore.Engine, nodeIDs []gstore.NodeID, edges []gstore.Edge, labelRefs []gstore.LabelRef, propRefs []gstore.PropertyRef) (DeepSweepReport, error) {
	var d DeepSweepReport

	if !sort.SliceIsSorted(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] }) {
		d.OutOfOrderNodeIDs++
	}
	edgeIDs := make([]gstore.EdgeID, len(edges))
	for i, e := range edges {
		edgeIDs[i] = e.ID
	}
	if !sort.SliceIsSorted(edgeIDs, func(i, j int) bool { return edgeIDs[i] < edgeIDs[j] }) {
		d.OutOfOrderEdgeIDs++
	}

	for _, id := range nodeIDs {
		if ctx.Err() != nil {
			return DeepSweepReport{}, fmt.Errorf("safety: deep sweep: %w", ctx.Err())
		}
		node, err := engine.GetNode(id)
		if err != nil {
			continue
		}
		if len(node.Data) > 0 && !json.Valid(node.Data) {
			d.MalformedNodePayload++
		}
	}
	for _, e := range edges {
		if len(e.Data) > 0 && !json.Valid(e.Data) {
			d.MalformedEdgePayload++
		}
	}

	labelSeen := make(map[gstore.LabelRef]struct{}, len(labelRefs))
	for _, lr := range labelRefs {
		if _, dup := labelSeen[lr]; dup {
			d.DuplicateLabelPairs++
			continue
		}
		labelSeen[lr] = struct{}{}
	}

	type propKey struct {
		node gstore.NodeID
		key  string
	}
	propSeen := make(map[propKey]struct{}, len(propRefs))
	for _, pr := range propRefs {
		k := propKey{node: pr.NodeID, key: pr.Key}
		if _, dup := propSeen[k]; dup {
			d.DuplicatePropertyKeys++
			continue
		}
		propSeen[k] = struct{}{}
	}

	return d, nil
}
