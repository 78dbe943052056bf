// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/graph"
	"github.com/tombee/cascade/pkg/state"
	"github.com/tombee/cascade/pkg/tools"
	"github.com/tombee/cascade/pkg/tools/builtin"
)

func newValidateCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow document without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := flow.Parse(data)
			if err != nil {
				return err
			}

			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			if err := flow.ValidateGraph(cfg, flow.ValidateOptions{ToolNames: registry.Names()}); err != nil {
				return err
			}

			fmt.Printf("%s is valid (%d nodes, %d edges)\n", args[0], len(cfg.Nodes), len(cfg.Edges))

			if explain {
				schema, err := state.BuildSchema(cfg.State)
				if err != nil {
					return err
				}
				plan, err := graph.Compile(cfg, schema)
				if err != nil {
					return err
				}
				fmt.Println("\nCompiled plan:")
				for _, line := range plan.Describe() {
					fmt.Println(" ", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "print the compiled control-flow plan")
	return cmd
}

// builtinRegistry assembles the tools shipped with the engine.
func builtinRegistry() (*tools.Registry, error) {
	return tools.NewRegistry(
		builtin.NewTransformTool(),
		builtin.NewClockTool(),
	)
}
