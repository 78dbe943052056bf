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
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/cascade/internal/log"
	"github.com/tombee/cascade/internal/observe"
	"github.com/tombee/cascade/internal/store"
	"github.com/tombee/cascade/pkg/engine"
	"github.com/tombee/cascade/pkg/flow"
	"github.com/tombee/cascade/pkg/llm"
)

func newRunCmd() *cobra.Command {
	var inputs []string
	var scriptPath string
	var storePath string

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow document",
		Long: `Execute a workflow document and print the run outcome as JSON.

Inputs are passed as repeated --input key=value flags and coerced to the
declared state field types. Until a provider client is configured, model
responses come from a script file (--script) so workflows can be exercised
offline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := flow.Parse(data)
			if err != nil {
				return err
			}

			inputValues, err := parseInputs(cfg, inputs)
			if err != nil {
				return err
			}

			client, err := loadScriptClient(scriptPath)
			if err != nil {
				return err
			}

			registry, err := builtinRegistry()
			if err != nil {
				return err
			}

			logger := log.New(log.FromEnv())
			orch := engine.New(client, registry).
				WithLogger(logger).
				WithTracker(observe.NewLogTracker(logger))

			if storePath != "" {
				repo, err := store.NewSQLiteStore(storePath)
				if err != nil {
					return err
				}
				defer repo.Close()
				orch.WithRepository(repo)
			}

			outcome, runErr := orch.Run(cmd.Context(), cfg, inputValues)
			printOutcome(outcome)
			return runErr
		},
	}

	cmd.Flags().StringArrayVar(&inputs, "input", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().StringVar(&scriptPath, "script", "", "YAML file of scripted model responses")
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database path for run records")
	return cmd
}

// parseInputs coerces --input flags to the declared state field types.
func parseInputs(cfg *flow.Config, pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid --input %q: expected key=value", pair)
		}

		field := cfg.Field(key)
		if field == nil {
			return nil, fmt.Errorf("unknown input field %q", key)
		}

		switch field.Type {
		case "string":
			values[key] = raw
		case "number":
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", key, err)
			}
			values[key] = n
		case "bool":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", key, err)
			}
			values[key] = b
		case "list":
			var list []interface{}
			if err := json.Unmarshal([]byte(raw), &list); err != nil {
				return nil, fmt.Errorf("input %q: expected a JSON array: %w", key, err)
			}
			values[key] = list
		}
	}
	return values, nil
}

// loadScriptClient reads a script file of model responses.
func loadScriptClient(path string) (llm.Client, error) {
	if path == "" {
		return nil, fmt.Errorf("no model provider configured: pass --script for offline execution")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rules []llm.ScriptRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("invalid script file: %w", err)
	}
	return llm.NewScript(rules), nil
}

// printOutcome renders the outcome as JSON, with the structured error
// flattened to a string.
func printOutcome(outcome *engine.RunOutcome) {
	view := struct {
		*engine.RunOutcome
		Error string `json:"error,omitempty"`
	}{RunOutcome: outcome}
	if outcome.Err != nil {
		view.Error = outcome.Err.Error()
	}

	encoded, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to encode outcome:", err)
		return
	}
	fmt.Println(string(encoded))
}
