// Package reason implements the reasoning pipeline and its DSL surface of
// spec.md §4.G: an ordered sequence of steps (Pattern, KHops, Filter,
// Score) that narrows and finally scores a working set of node ids, plus a
// small text DSL that compiles down to one of {PatternQuery, Pipeline,
// SubgraphRequest} or a parse error.
//
// Grounded in *shape* (tokenize → build structured form → validate) on the
// teacher's pkg/cypher/ast_builder.go, despite the unrelated grammar: its
// lexer/parser separation and descriptive parse-error type are what carry
// over, not Cypher's token set.
package reason

import (
	"context"
	"fmt"
	"sort"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/pattern"
	"github.com/orneryd/sqlitegraph/internal/traverse"
)

// StepKind discriminates which fields of a Step are populated.
type StepKind int

const (
	StepPattern StepKind = iota
	StepKHops
	StepFilter
	StepScore
)

// ScoreWeights assigns a deterministic score to a node from weighted
// counts of its neighbours and label/property matches, per spec.md §4.G
// point 4.
type ScoreWeights struct {
	OutgoingDegree float64
	IncomingDegree float64
	Labels         map[string]float64 // weight per present label
	Properties     map[string]float64 // weight per present "key=value" match
}

// Step is one stage of a Pipeline. Only the fields relevant to Kind are
// read; the rest are ignored.
type Step struct {
	Kind StepKind

	Pattern gstore.Pattern // StepPattern

	KHopDepth     int             // StepKHops
	KHopDirection gstore.Direction // StepKHops

	FilterConstraint gstore.Constraint // StepFilter

	ScoreWeights ScoreWeights // StepScore
}

// Pipeline is an ordered sequence of steps.
type Pipeline []Step

// Scored pairs a node with the score Execute computed for it. When a
// Pipeline has no Score step, every node's Score is 0 and the final
// ordering is ascending by node-id — still deterministic, matching
// invariant 6's idempotence requirement.
type Scored struct {
	Node  gstore.NodeID
	Score float64
}

// Validate checks the structural rules spec.md §4.G lists: at most one
// Filter step, at most one Score step which — if present — must be last.
func (p Pipeline) Validate() error {
	filters, scores := 0, 0
	for i, s := range p {
		switch s.Kind {
		case StepFilter:
			filters++
		case StepScore:
			scores++
			if i != len(p)-1 {
				return fmt.Errorf("reason: %w: score step must be last", gstore.ErrInvalidInput)
			}
		}
	}
	if filters > 1 {
		return fmt.Errorf("reason: %w: at most one filter step is allowed", gstore.ErrInvalidInput)
	}
	if scores > 1 {
		return fmt.Errorf("reason: %w: at most one score step is allowed", gstore.ErrInvalidInput)
	}
	return nil
}

// Execute runs the pipeline over engine starting from roots, returning the
// final (possibly scored and reordered) working set. An empty roots slice
// produces empty output per spec.md §4.G point 1.
func Execute(ctx context.Context, engine gstore.Engine, p Pipeline, roots []gstore.NodeID) ([]Scored, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	working := dedupSorted(roots)
	scored := false
	var finalScores map[gstore.NodeID]float64

	for _, step := range p {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reason: %w", ctx.Err())
		}
		if len(working) == 0 {
			break
		}

		switch step.Kind {
		case StepPattern:
			next := map[gstore.NodeID]struct{}{}
			for _, n := range working {
				matches, err := pattern.Search(engine, n, step.Pattern, nil)
				if err != nil {
					return nil, fmt.Errorf("reason: pattern step: %w", err)
				}
				for _, seq := range matches {
					for _, id := range seq {
						next[id] = struct{}{}
					}
				}
			}
			working = setToSorted(next)

		case StepKHops:
			next := map[gstore.NodeID]struct{}{}
			for _, n := range working {
				hops, err := traverse.KHop(engine, n, step.KHopDepth, step.KHopDirection)
				if err != nil {
					return nil, fmt.Errorf("reason: k-hop step: %w", err)
				}
				for _, id := range hops {
					next[id] = struct{}{}
				}
			}
			working = setToSorted(next)

		case StepFilter:
			var kept []gstore.NodeID
			for _, n := range working {
				ok, err := pattern.EvaluateConstraint(engine, n, step.FilterConstraint)
				if err != nil {
					return nil, fmt.Errorf("reason: filter step: %w", err)
				}
				if ok {
					kept = append(kept, n)
				}
			}
			working = kept

		case StepScore:
			finalScores = map[gstore.NodeID]float64{}
			for _, n := range working {
				s, err := score(engine, n, step.ScoreWeights)
				if err != nil {
					return nil, fmt.Errorf("reason: score step: %w", err)
				}
				finalScores[n] = s
			}
			scored = true
		}
	}

	out := make([]Scored, len(working))
	for i, n := range working {
		s := 0.0
		if scored {
			s = finalScores[n]
		}
		out[i] = Scored{Node: n, Score: s}
	}
	if scored {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return out[i].Node < out[j].Node
		})
	}
	return out, nil
}

func score(e gstore.Engine, n gstore.NodeID, w ScoreWeights) (float64, error) {
	out, in, err := e.NodeDegree(n)
	if err != nil {
		return 0, err
	}
	total := w.OutgoingDegree*float64(out) + w.IncomingDegree*float64(in)

	if len(w.Labels) > 0 {
		labels, err := e.Labels(n)
		if err != nil {
			return 0, err
		}
		have := make(map[string]struct{}, len(labels))
		for _, l := range labels {
			have[l] = struct{}{}
		}
		for label, weight := range w.Labels {
			if _, ok := have[label]; ok {
				total += weight
			}
		}
	}

	if len(w.Properties) > 0 {
		props, err := e.Properties(n)
		if err != nil {
			return 0, err
		}
		for kv, weight := range w.Properties {
			key, value := splitKV(kv)
			if props[key] == value {
				total += weight
			}
		}
	}

	return total, nil
}

func splitKV(kv string) (string, string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}

func dedupSorted(ids []gstore.NodeID) []gstore.NodeID {
	set := map[gstore.NodeID]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return setToSorted(set)
}

func setToSorted(set map[gstore.NodeID]struct{}) []gstore.NodeID {
	out := make([]gstore.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
