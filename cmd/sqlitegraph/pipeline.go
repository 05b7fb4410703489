package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/reason"
)

func newPipelineCmd() *cobra.Command {
	var dsl string
	var file string
	var root int64

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Parse a DSL expression and execute it as a reasoning pipeline from --root",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := resolveDSLInput(dsl, file)
			if err != nil {
				return failJSON(err)
			}

			result := reason.ParseDSL(input)
			if result.Err != nil {
				return failJSON(result.Err)
			}

			pipeline, err := pipelineFromResult(result)
			if err != nil {
				return failJSON(err)
			}

			e, err := openEngine()
			if err != nil {
				return failJSON(err)
			}
			defer e.Close()

			scored, err := reason.Execute(context.Background(), e, pipeline, []gstore.NodeID{gstore.NodeID(root)})
			if err != nil {
				return failJSON(err)
			}

			for _, s := range scored {
				fmt.Printf("%d\t%.4f\n", s.Node, s.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsl, "dsl", "", "inline DSL expression")
	cmd.Flags().StringVar(&file, "file", "", "path to a file containing one DSL expression")
	cmd.Flags().Int64Var(&root, "root", 0, "starting node id")
	return cmd
}

func newExplainPipelineCmd() *cobra.Command {
	var dsl string

	cmd := &cobra.Command{
		Use:   "explain-pipeline",
		Short: "Parse --dsl and print the resulting pipeline without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := reason.ParseDSL(dsl)
			if result.Err != nil {
				return failJSON(result.Err)
			}
			pipeline, err := pipelineFromResult(result)
			if err != nil {
				return failJSON(err)
			}
			for i, step := range pipeline {
				fmt.Printf("step %d: %s\n", i, describeStep(step))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsl, "dsl", "", "inline DSL expression")
	return cmd
}

func newDslParseCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "dsl-parse",
		Short: "Parse --input and print its structured form",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := reason.ParseDSL(input)
			if result.Err != nil {
				return failJSON(result.Err)
			}
			switch {
			case result.PatternQuery != nil:
				fmt.Printf("pattern: %d leg(s)\n", len(result.PatternQuery.Legs))
				for i, leg := range result.PatternQuery.Legs {
					fmt.Printf("  leg %d: %s %s\n", i, leg.Direction, leg.EdgeType)
				}
			case result.Subgraph != nil:
				fmt.Printf("subgraph: depth=%d kind=%s\n", result.Subgraph.Depth, result.Subgraph.NodeKind)
			case len(result.Pipeline) > 0:
				for i, step := range result.Pipeline {
					fmt.Printf("step %d: %s\n", i, describeStep(step))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "DSL input to parse")
	return cmd
}

func resolveDSLInput(dsl, file string) (string, error) {
	if dsl != "" {
		return dsl, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading --file %s: %w: %v", file, gstore.ErrIOFailure, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("one of --dsl or --file is required: %w", gstore.ErrInvalidInput)
}

// pipelineFromResult lifts any ParseDSL outcome into an executable
// Pipeline: a bare pattern becomes a one-step pipeline, a k-hop subgraph
// request becomes a one-step KHops pipeline, and an already-built Pipeline
// passes through unchanged.
func pipelineFromResult(r reason.DslResult) (reason.Pipeline, error) {
	switch {
	case r.PatternQuery != nil:
		return reason.Pipeline{{Kind: reason.StepPattern, Pattern: *r.PatternQuery}}, nil
	case r.Subgraph != nil:
		return reason.Pipeline{{Kind: reason.StepKHops, KHopDepth: r.Subgraph.Depth, KHopDirection: gstore.Outgoing}}, nil
	case len(r.Pipeline) > 0:
		return r.Pipeline, nil
	default:
		return nil, fmt.Errorf("empty parse result: %w", gstore.ErrInvalidInput)
	}
}

func describeStep(s reason.Step) string {
	switch s.Kind {
	case reason.StepPattern:
		return fmt.Sprintf("pattern (%d legs)", len(s.Pattern.Legs))
	case reason.StepKHops:
		return fmt.Sprintf("k-hop depth=%d direction=%s", s.KHopDepth, s.KHopDirection)
	case reason.StepFilter:
		return fmt.Sprintf("filter kind=%s", s.FilterConstraint.Kind)
	case reason.StepScore:
		return "score"
	default:
		return "unknown"
	}
}
