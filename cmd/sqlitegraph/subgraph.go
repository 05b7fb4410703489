package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

func newSubgraphCmd() *cobra.Command {
	var root int64
	var depth int
	var types []string

	cmd := &cobra.Command{
		Use:   "subgraph",
		Short: "Print the depth-bounded neighbourhood around a root node",
		Long: `subgraph expands outgoing edges from --root to --depth hops, optionally
restricted by repeated --types edge=TYPE and --types node=KIND filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return failJSON(err)
			}
			defer e.Close()

			var edgeTypes []string
			var nodeKind string
			for _, t := range types {
				k, v, ok := strings.Cut(t, "=")
				if !ok {
					return failJSON(fmt.Errorf("malformed --types value %q (want edge=T or node=K): %w", t, gstore.ErrInvalidInput))
				}
				switch k {
				case "edge":
					edgeTypes = append(edgeTypes, v)
				case "node":
					nodeKind = v
				default:
					return failJSON(fmt.Errorf("unknown --types prefix %q: %w", k, gstore.ErrInvalidInput))
				}
			}

			var ids []gstore.NodeID
			if len(edgeTypes) > 0 {
				ids, err = e.KHopFiltered(gstore.NodeID(root), depth, gstore.Outgoing, edgeTypes)
			} else {
				ids, err = e.KHop(gstore.NodeID(root), depth, gstore.Outgoing)
			}
			if err != nil {
				return failJSON(err)
			}

			if nodeKind != "" {
				var filtered []gstore.NodeID
				for _, id := range ids {
					node, err := e.GetNode(id)
					if err != nil {
						continue
					}
					if node.Kind == nodeKind {
						filtered = append(filtered, id)
					}
				}
				ids = filtered
			}

			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			for _, id := range ids {
				node, err := e.GetNode(id)
				if err != nil {
					return failJSON(err)
				}
				fmt.Printf("%d\t%s\t%s\n", node.ID, node.Kind, node.Name)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&root, "root", 0, "root node id")
	cmd.Flags().IntVar(&depth, "depth", 1, "traversal depth")
	cmd.Flags().StringArrayVar(&types, "types", nil, "repeatable edge=TYPE or node=KIND filter")
	cmd.MarkFlagRequired("root")
	return cmd
}
