// Package pattern implements pattern_search (spec.md §4.F) once, generically,
// over gstore.Engine — the same "build every traversal primitive on top of
// Neighbors" discipline internal/traverse uses for BFS/k-hop/chain, so both
// backends inherit a single, ordering-consistent implementation.
//
// Grounded on the teacher's query-planning layer (pkg/storage's constraint
// evaluation) generalized to the triple/leg pattern vocabulary spec.md
// defines; the depth-first, ascending-neighbour enumeration order matches
// internal/traverse's own tie-break policy. The fast-path cache's use of a
// roaring.Bitmap per (start, direction, edge-type) key to prune candidates
// before the full per-field match follows the "fast path" framing the
// teacher's pkg/index/index.go HNSW doc block uses for approximate-vs-exact
// tradeoffs, applied here to kind-membership pruning instead of vector search.
package pattern

import (
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// fastPathKey identifies one Constraint (see constraintKey), so that a
// node's match result for that constraint is cacheable across repeated
// searches — spec.md's "fast path caching" for pattern queries.
// Stored as an xxhash digest rather than the raw constraint string so the
// per-node match cache stays a fixed-width key regardless of label/property
// list length.
type fastPathKey uint64

// neighborKey identifies one (node, direction, edge-type) neighbor lookup
// whose result is cacheable as a bitmap for cheap repeated intersection.
type neighborKey struct {
	node      gstore.NodeID
	dir       gstore.Direction
	edgeType  string
}

// Cache memoizes per-node constraint evaluation and per-lookup neighbor
// bitmaps within a single engine's lifetime, since the same (node,
// constraint) pair and the same (node, direction, edge-type) neighbor set
// are frequently re-evaluated across sibling branches of a pattern search.
// Wholesale invalidation (discarding the Cache and starting a fresh one) is
// the only invalidation mode either engine performs on mutation — there is
// no incremental eviction. Not safe for concurrent use across goroutines
// without external synchronization, matching the rest of this package's
// single-caller assumption.
type Cache struct {
	matches   map[cacheKey]bool
	neighbors map[neighborKey]*roaring.Bitmap
	kinds     map[string]*roaring.Bitmap
	kindsBuilt bool
}

type cacheKey struct {
	node gstore.NodeID
	key  fastPathKey
}

// NewCache returns an empty constraint-match cache.
func NewCache() *Cache {
	return &Cache{
		matches:   make(map[cacheKey]bool),
		neighbors: make(map[neighborKey]*roaring.Bitmap),
		kinds:     make(map[string]*roaring.Bitmap),
	}
}

func constraintKey(c gstore.Constraint) fastPathKey {
	var b strings.Builder
	b.WriteString(c.Kind)
	b.WriteByte('|')
	b.WriteString(c.NamePrefix)
	b.WriteByte('|')
	for _, l := range c.Labels {
		b.WriteString(l)
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(c.PropertyKey)
	b.WriteByte('=')
	b.WriteString(c.PropertyValue)
	return fastPathKey(xxhash.Sum64String(b.String()))
}

// Search enumerates every node sequence [start, n1, ..., nk] consistent
// with p's root constraint and legs, depth-first, each leg's candidates
// visited in ascending node-id order (the iteration order of the leg's
// neighbor bitmap, whatever order Engine.Neighbors returned them in).
func Search(e gstore.Engine, start gstore.NodeID, p gstore.Pattern, cache *Cache) ([][]gstore.NodeID, error) {
	if cache == nil {
		cache = NewCache()
	}

	ok, err := matches(e, start, p.Root, cache)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if len(p.Legs) == 0 {
		return [][]gstore.NodeID{{start}}, nil
	}

	var results [][]gstore.NodeID
	if err := walk(e, []gstore.NodeID{start}, p.Legs, cache, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func walk(e gstore.Engine, prefix []gstore.NodeID, legs []gstore.Leg, cache *Cache, results *[][]gstore.NodeID) error {
	leg := legs[0]
	cur := prefix[len(prefix)-1]

	bitmap, err := neighborBitmap(e, cur, leg.Direction, leg.EdgeType, cache)
	if err != nil {
		return err
	}

	// Fast path: when the leg's constraint pins a kind, intersect with the
	// cached kind bitmap before doing any per-candidate work, so branches
	// whose whole neighbor set is the wrong kind are pruned in one pass
	// instead of N GetNode calls.
	if leg.Next.Kind != "" {
		kindBitmap, err := kindBitmapFor(e, leg.Next.Kind, cache)
		if err != nil {
			return err
		}
		bitmap = roaring.And(bitmap, kindBitmap)
	}

	sorted := make([]gstore.NodeID, 0, bitmap.GetCardinality())
	it := bitmap.Iterator()
	for it.HasNext() {
		sorted = append(sorted, gstore.NodeID(it.Next()))
	}

	for _, cand := range sorted {
		ok, err := matches(e, cand, leg.Next, cache)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		next := append(append([]gstore.NodeID(nil), prefix...), cand)
		if len(legs) == 1 {
			*results = append(*results, next)
			continue
		}
		if err := walk(e, next, legs[1:], cache, results); err != nil {
			return err
		}
	}
	return nil
}

// neighborBitmap returns (building and caching on first use) the bitmap of
// node's neighbors for one (direction, edge-type) pair.
func neighborBitmap(e gstore.Engine, node gstore.NodeID, dir gstore.Direction, edgeType string, cache *Cache) (*roaring.Bitmap, error) {
	key := neighborKey{node: node, dir: dir, edgeType: edgeType}
	if bm, ok := cache.neighbors[key]; ok {
		return bm, nil
	}
	candidates, err := e.Neighbors(node, gstore.NeighborQuery{Direction: dir, EdgeType: edgeType})
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	for _, c := range candidates {
		bm.Add(uint32(c))
	}
	cache.neighbors[key] = bm
	return bm, nil
}

// kindBitmapFor returns (building the whole-graph kind index on first use)
// the bitmap of every node whose Kind equals kind.
func kindBitmapFor(e gstore.Engine, kind string, cache *Cache) (*roaring.Bitmap, error) {
	if bm, ok := cache.kinds[kind]; ok {
		return bm, nil
	}
	if !cache.kindsBuilt {
		ids, err := e.AllNodeIDs()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			n, err := e.GetNode(id)
			if err != nil {
				continue
			}
			bm, ok := cache.kinds[n.Kind]
			if !ok {
				bm = roaring.New()
				cache.kinds[n.Kind] = bm
			}
			bm.Add(uint32(id))
		}
		cache.kindsBuilt = true
	}
	bm, ok := cache.kinds[kind]
	if !ok {
		bm = roaring.New()
		cache.kinds[kind] = bm
	}
	return bm, nil
}

// EvaluateConstraint reports whether node id satisfies constraint c,
// without needing a Pattern or a Cache — used directly by the reasoning
// pipeline's Filter step (package reason), which filters an arbitrary
// working set rather than walking pattern legs.
func EvaluateConstraint(e gstore.Engine, id gstore.NodeID, c gstore.Constraint) (bool, error) {
	if c.Empty() {
		if _, err := e.GetNode(id); err != nil {
			return false, nil
		}
		return true, nil
	}
	return evaluate(e, id, c)
}

func matches(e gstore.Engine, id gstore.NodeID, c gstore.Constraint, cache *Cache) (bool, error) {
	if c.Empty() {
		if _, err := e.GetNode(id); err != nil {
			return false, nil
		}
		return true, nil
	}

	key := cacheKey{node: id, key: constraintKey(c)}
	if v, ok := cache.matches[key]; ok {
		return v, nil
	}

	ok, err := evaluate(e, id, c)
	if err != nil {
		return false, err
	}
	cache.matches[key] = ok
	return ok, nil
}

func evaluate(e gstore.Engine, id gstore.NodeID, c gstore.Constraint) (bool, error) {
	node, err := e.GetNode(id)
	if err != nil {
		return false, nil
	}
	if c.Kind != "" && node.Kind != c.Kind {
		return false, nil
	}
	if c.NamePrefix != "" && !strings.HasPrefix(node.Name, c.NamePrefix) {
		return false, nil
	}
	if len(c.Labels) > 0 {
		labels, err := e.Labels(id)
		if err != nil {
			return false, err
		}
		have := make(map[string]struct{}, len(labels))
		for _, l := range labels {
			have[l] = struct{}{}
		}
		for _, want := range c.Labels {
			if _, ok := have[want]; !ok {
				return false, nil
			}
		}
	}
	if c.PropertyKey != "" {
		props, err := e.Properties(id)
		if err != nil {
			return false, err
		}
		if props[c.PropertyKey] != c.PropertyValue {
			return false, nil
		}
	}
	return true, nil
}
