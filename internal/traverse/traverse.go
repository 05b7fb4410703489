// Package traverse implements the traversal primitives of spec.md §4.E —
// BFS, shortest path, k-hop (filtered and unfiltered), and chain queries —
// once, generically, over the gstore.Engine capability set.
//
// Every primitive here is built exclusively on Engine.Neighbors, so each
// backend's own ordering contract (SQL: "ORDER BY target_id, id" / "ORDER BY
// source_id, id"; native: physical CSR slot order) is inherited for free —
// the determinism spec.md requires comes from the backend's Neighbors
// implementation, not from anything in this package. This mirrors the
// teacher's own "reduce to repeated neighbour iteration" framing in
// pkg/storage/badger.go's adjacency-iterator doc comments, generalized from
// a single adjacency walk to the full traversal family.
package traverse

import (
	"sort"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// Neighbors is a thin pass-through kept here so callers that only have a
// traverse import (not gstore directly) can reach the primitive; most
// callers use engine.Neighbors directly.
func Neighbors(e gstore.Engine, node gstore.NodeID, q gstore.NeighborQuery) ([]gstore.NodeID, error) {
	return e.Neighbors(node, q)
}

// BFS performs a breadth-first walk over outgoing adjacency, yielding nodes
// in discovery order starting with start. Depth 0 yields [start] when start
// exists (the deliberate divergence from k-hop's depth-0 empty result,
// spec.md §4.E/§9(c)). Returns an empty slice, not an error, if start does
// not exist (spec.md: "empty when absent").
func BFS(e gstore.Engine, start gstore.NodeID, depth int) ([]gstore.NodeID, error) {
	if _, err := e.GetNode(start); err != nil {
		return []gstore.NodeID{}, nil
	}

	order := []gstore.NodeID{start}
	visited := map[gstore.NodeID]struct{}{start: {}}
	frontier := []gstore.NodeID{start}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []gstore.NodeID
		for _, n := range frontier {
			neighbors, err := e.Neighbors(n, gstore.NeighborQuery{Direction: gstore.Outgoing})
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}
				order = append(order, nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}

	return order, nil
}

// ShortestPath returns the inclusive path [start, ..., end] discovered by a
// BFS with parent tracking, or (nil, false, nil) when end is unreachable.
// start == end yields ([start], true, nil) per spec.md §9(a)'s resolved
// open question. When two equally short paths exist, the one reached via
// the neighbour that comes first in Neighbors order at each branching step
// wins, since BFS visits the first arrival: the smaller neighbour id on the
// SQL engine (ascending order), the earlier-inserted edge on the native
// engine (physical slot order).
func ShortestPath(e gstore.Engine, start, end gstore.NodeID) ([]gstore.NodeID, bool, error) {
	if start == end {
		if _, err := e.GetNode(start); err != nil {
			return nil, false, nil
		}
		return []gstore.NodeID{start}, true, nil
	}

	if _, err := e.GetNode(start); err != nil {
		return nil, false, nil
	}

	parent := map[gstore.NodeID]gstore.NodeID{start: start}
	frontier := []gstore.NodeID{start}

	for len(frontier) > 0 {
		var next []gstore.NodeID
		for _, n := range frontier {
			neighbors, err := e.Neighbors(n, gstore.NeighborQuery{Direction: gstore.Outgoing})
			if err != nil {
				return nil, false, err
			}
			for _, nb := range neighbors {
				if _, seen := parent[nb]; seen {
					continue
				}
				parent[nb] = n
				if nb == end {
					return reconstruct(parent, start, end), true, nil
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}

	return nil, false, nil
}

func reconstruct(parent map[gstore.NodeID]gstore.NodeID, start, end gstore.NodeID) []gstore.NodeID {
	path := []gstore.NodeID{end}
	cur := end
	for cur != start {
		cur = parent[cur]
		path = append(path, cur)
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// KHop returns the deduplicated union of nodes reached within depth hops,
// ascending by id. depth == 0 returns [] (diverges from BFS's depth-0 [start]
// by spec.md design, §9(c)).
func KHop(e gstore.Engine, start gstore.NodeID, depth int, dir gstore.Direction) ([]gstore.NodeID, error) {
	return khop(e, start, depth, dir, nil)
}

// KHopFiltered restricts KHop to edges whose type is in allowed. An empty
// allowed slice returns an empty result (spec.md §9(b): callers wanting "no
// filter" must call KHop instead).
func KHopFiltered(e gstore.Engine, start gstore.NodeID, depth int, dir gstore.Direction, allowed []string) ([]gstore.NodeID, error) {
	if len(allowed) == 0 {
		return []gstore.NodeID{}, nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, t := range allowed {
		set[t] = struct{}{}
	}
	return khop(e, start, depth, dir, set)
}

func khop(e gstore.Engine, start gstore.NodeID, depth int, dir gstore.Direction, allowed map[string]struct{}) ([]gstore.NodeID, error) {
	if depth <= 0 {
		return []gstore.NodeID{}, nil
	}
	if _, err := e.GetNode(start); err != nil {
		return []gstore.NodeID{}, nil
	}

	visited := map[gstore.NodeID]struct{}{start: {}}
	frontier := []gstore.NodeID{start}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []gstore.NodeID
		for _, n := range frontier {
			ids, err := neighborsFiltered(e, n, dir, allowed)
			if err != nil {
				return nil, err
			}
			for _, nb := range ids {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}
				next = append(next, nb)
			}
		}
		frontier = next
	}

	result := make([]gstore.NodeID, 0, len(visited))
	for id := range visited {
		if id == start {
			continue
		}
		result = append(result, id)
	}
	sortNodeIDs(result)
	return result, nil
}

// neighborsFiltered fetches a node's neighbors in one direction, optionally
// restricted to a set of allowed edge types. When allowed is nil, every
// edge type passes (KHop's unfiltered case); when allowed is the empty-set
// sentinel produced by KHopFiltered with no allowed types, the caller
// already short-circuited before reaching here.
func neighborsFiltered(e gstore.Engine, n gstore.NodeID, dir gstore.Direction, allowed map[string]struct{}) ([]gstore.NodeID, error) {
	if allowed == nil {
		return e.Neighbors(n, gstore.NeighborQuery{Direction: dir})
	}
	var out []gstore.NodeID
	for t := range allowed {
		ids, err := e.Neighbors(n, gstore.NeighborQuery{Direction: dir, EdgeType: t})
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	sortNodeIDs(out)
	return dedupe(out), nil
}

// ChainQuery iteratively applies each step's (direction, edge-type) filter
// to a frontier set, starting from {start}, and returns the terminal
// frontier sorted ascending. An empty steps slice returns {start} (even if
// start doesn't exist, matching spec.md's "chain query with empty steps
// yields {start}"). An invalid start with non-empty steps yields [].
func ChainQuery(e gstore.Engine, start gstore.NodeID, steps []gstore.ChainStep) ([]gstore.NodeID, error) {
	if len(steps) == 0 {
		return []gstore.NodeID{start}, nil
	}

	if _, err := e.GetNode(start); err != nil {
		return []gstore.NodeID{}, nil
	}

	frontier := map[gstore.NodeID]struct{}{start: {}}
	for _, step := range steps {
		next := map[gstore.NodeID]struct{}{}
		for n := range frontier {
			ids, err := e.Neighbors(n, gstore.NeighborQuery{Direction: step.Direction, EdgeType: step.EdgeType})
			if err != nil {
				return nil, err
			}
			for _, nb := range ids {
				next[nb] = struct{}{}
			}
		}
		frontier = next
	}

	result := make([]gstore.NodeID, 0, len(frontier))
	for id := range frontier {
		result = append(result, id)
	}
	sortNodeIDs(result)
	return result, nil
}

func sortNodeIDs(ids []gstore.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func dedupe(ids []gstore.NodeID) []gstore.NodeID {
	if len(ids) == 0 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
