package reason

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// DslParseError reports a malformed DSL input, with the offending input
// preserved for diagnostics (surfaced by the CLI's dsl-parse/explain-
// pipeline subcommands).
type DslParseError struct {
	Input  string
	Reason string
}

func (e *DslParseError) Error() string {
	return fmt.Sprintf("reason: dsl parse error: %s (input: %q)", e.Reason, e.Input)
}

// SubgraphRequest is the DSL's "k-hop type=KIND" form: a depth-bounded
// neighbourhood filtered by node kind.
type SubgraphRequest struct {
	Depth    int
	NodeKind string
}

// DslResult is the outcome of parsing one DSL input: exactly one of
// PatternQuery, Pipeline, Subgraph is non-nil, unless Err is set.
type DslResult struct {
	PatternQuery *gstore.Pattern
	Pipeline     Pipeline
	Subgraph     *SubgraphRequest
	Err          error
}

var (
	hopPattern    = regexp.MustCompile(`^(\d+)-hop\s+type=(\w+)$`)
	identPattern  = regexp.MustCompile(`^\w+$`)
	filterClause  = regexp.MustCompile(`(?i)\bfilter\s+type=(\w+)\b`)
)

// ParseDSL parses one line of the reasoning DSL described in spec.md §4.G.
// Parsing is whitespace-insensitive outside quoted property values; this
// grammar has no quoted-value productions, so quoting is not special-cased
// here.
func ParseDSL(input string) DslResult {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return errResult(input, "empty input")
	}

	if m := hopPattern.FindStringSubmatch(trimmed); m != nil {
		depth, err := strconv.Atoi(m[1])
		if err != nil {
			return errResult(input, "invalid hop depth")
		}
		return DslResult{Subgraph: &SubgraphRequest{Depth: depth, NodeKind: m[2]}}
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "pattern ") {
		rest := strings.TrimSpace(trimmed[len("pattern "):])

		matches := filterClause.FindAllStringSubmatchIndex(rest, -1)
		if len(matches) > 1 {
			return errResult(input, "more than one filter type= clause")
		}

		chainExpr := rest
		var filterKind string
		if len(matches) == 1 {
			m := matches[0]
			chainExpr = strings.TrimSpace(rest[:m[0]])
			filterKind = rest[m[2]:m[3]]
		}

		legs, err := parseChain(chainExpr)
		if err != nil {
			return errResult(input, err.Error())
		}

		pipeline := Pipeline{{Kind: StepPattern, Pattern: gstore.Pattern{Legs: legs}}}
		if filterKind != "" {
			pipeline = append(pipeline, Step{Kind: StepFilter, FilterConstraint: gstore.Constraint{Kind: filterKind}})
		}
		return DslResult{Pipeline: pipeline}
	}

	if filterClause.MatchString(trimmed) {
		return errResult(input, "filter type= clause is only valid after 'pattern '")
	}

	legs, err := parseChain(trimmed)
	if err != nil {
		return errResult(input, err.Error())
	}
	p := gstore.Pattern{Legs: legs}
	return DslResult{PatternQuery: &p}
}

// parseChain parses either a "TYPE->TYPE->..." chain or a "TYPE*N" repeat
// shorthand into a leg list, each leg Outgoing-direction with the named
// edge type. Mixing the two forms in one expression is rejected.
func parseChain(expr string) ([]gstore.Leg, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty pattern expression")
	}

	switch {
	case strings.Contains(expr, "->"):
		parts := strings.Split(expr, "->")
		legs := make([]gstore.Leg, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if strings.Contains(part, "*") {
				return nil, fmt.Errorf("unexpected '*' within a chain expression")
			}
			if !identPattern.MatchString(part) {
				return nil, fmt.Errorf("unknown token %q", part)
			}
			legs = append(legs, gstore.Leg{Direction: gstore.Outgoing, EdgeType: part})
		}
		return legs, nil

	case strings.Contains(expr, "*"):
		parts := strings.SplitN(expr, "*", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed repeat expression %q", expr)
		}
		edgeType := strings.TrimSpace(parts[0])
		countStr := strings.TrimSpace(parts[1])
		if !identPattern.MatchString(edgeType) {
			return nil, fmt.Errorf("unknown token %q", edgeType)
		}
		count, err := strconv.Atoi(countStr)
		if err != nil {
			return nil, fmt.Errorf("invalid repeat count %q", countStr)
		}
		if count <= 0 {
			return nil, fmt.Errorf("repeat count must be positive, got %d", count)
		}
		legs := make([]gstore.Leg, count)
		for i := range legs {
			legs[i] = gstore.Leg{Direction: gstore.Outgoing, EdgeType: edgeType}
		}
		return legs, nil

	default:
		if !identPattern.MatchString(expr) {
			return nil, fmt.Errorf("unknown token %q", expr)
		}
		return []gstore.Leg{{Direction: gstore.Outgoing, EdgeType: expr}}, nil
	}
}

func errResult(input, reason string) DslResult {
	return DslResult{Err: &DslParseError{Input: input, Reason: reason}}
}
