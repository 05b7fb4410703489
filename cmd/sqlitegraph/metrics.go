package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/sqlitegraph/internal/bench"
)

func newMetricsCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print recorded bench-gate metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := bench.ResetMetrics(); err != nil {
					return failJSON(err)
				}
				fmt.Println("✅ metrics reset")
				return nil
			}

			metrics, err := bench.AllMetrics()
			if err != nil {
				return failJSON(err)
			}
			if len(metrics) == 0 {
				fmt.Println("(no metrics recorded)")
				return nil
			}
			for _, m := range metrics {
				fmt.Println(m.Humanize())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset-metrics", false, "clear every recorded metric instead of printing them")
	return cmd
}
