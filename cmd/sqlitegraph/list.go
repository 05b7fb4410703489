package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entity ids and names, ascending by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return failJSON(err)
			}
			defer e.Close()

			ids, err := e.AllNodeIDs()
			if err != nil {
				return failJSON(err)
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
}
