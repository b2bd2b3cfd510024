// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scottgl9/marktoflow-sub001/internal/engine"
	"github.com/scottgl9/marktoflow-sub001/internal/events"
	"github.com/scottgl9/marktoflow-sub001/internal/obslog"
	"github.com/scottgl9/marktoflow-sub001/internal/parser"
	"github.com/scottgl9/marktoflow-sub001/internal/rollback"
	"github.com/scottgl9/marktoflow-sub001/internal/state"
	"github.com/scottgl9/marktoflow-sub001/internal/toolexec"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/ai"
)

// runCmd returns the "run" subcommand: parse and execute one workflow file.
func runCmd() *cobra.Command {
	var inputFlags []string
	var agentAPIKey string
	var defaultAgentModel string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <workflow.md>",
		Short: "Parse and execute a workflow markdown file",
		Long: `Parse a workflow markdown file and drive it to completion against the
tool registry built from its own "tools" front-matter section.

Examples:
  marktoflow run deploy.md --input serviceName=checkout
  marktoflow run deploy.md --input serviceName=checkout --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			inputs, err := parseInputFlags(inputFlags)
			if err != nil {
				return err
			}

			p := parser.New()
			workflow, warnings, err := p.ParseFile(path)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}

			reg := buildRegistry(workflow, agentAPIKey)

			log := obslog.New("marktoflow")
			var sink events.Sink = events.NoopSink{}
			if verbose {
				sink = events.NewLoggingSink(log, "")
			}

			agentClient := ai.New(agentAPIKey, defaultAgentModel)
			cfg := engine.Config{
				RollbackRegistry: rollback.NewInMemoryRegistry(),
				DefaultAgent:     workflow.DefaultAgent,
				DefaultModel:     defaultAgentModel,
				Parser:           p,
				AgentClient:      agentClient,
			}
			eng := engine.New(cfg, sink, state.NewInMemoryStore())

			result := eng.Execute(context.Background(), workflow, inputs, reg, toolexec.Execute)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if result.Status == "failed" {
				return fmt.Errorf("workflow %s failed: %s", result.WorkflowID, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().StringVar(&agentAPIKey, "agent-api-key", "", "API key for the configured AI agent provider")
	cmd.Flags().StringVar(&defaultAgentModel, "agent-model", "", "default model name for agent/AI steps")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "emit structured step/workflow lifecycle logs")

	return cmd
}

func parseInputFlags(flags []string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", f)
		}
		inputs[k] = v
	}
	return inputs, nil
}
