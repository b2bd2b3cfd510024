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

// Package toolexec implements the concrete pipeline.StepExecutor: it splits
// a step's action ("tool.method[.submethod]", spec §6) into a tool alias
// and a method, resolves the alias through the ToolRegistry, and dispatches
// to the resolved tools.Tool -- Query for the "query" method, Execute for
// everything else. This is the seam connectors/registry.Get feeds into in
// the teacher (resolve an alias, then call the connector), generalized from
// one Connector interface to the engine's smaller Query/Execute Tool.
package toolexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Execute is a pipeline.StepExecutor that resolves step.Action against
// registry and invokes the matching tools.Tool method.
func Execute(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
	alias, method, err := splitAction(step.Action)
	if err != nil {
		return nil, err
	}

	handle, err := registry.Load(alias)
	if err != nil {
		return nil, fmt.Errorf("toolexec: %w", err)
	}
	tool, ok := handle.(tools.Tool)
	if !ok {
		return nil, fmt.Errorf("toolexec: tool %q does not implement the Tool contract", alias)
	}

	if method == "query" {
		statement, _ := step.Inputs["statement"].(string)
		limit, _ := step.Inputs["limit"].(int)
		result, err := tool.Query(ctx, &tools.Query{Statement: statement, Parameters: step.Inputs, Limit: limit})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"rows": result.Rows, "rowCount": result.RowCount}, nil
	}

	result, err := tool.Execute(ctx, &tools.Command{Action: method, Parameters: step.Inputs})
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

// splitAction splits "tool.method[.submethod]" into the tool alias (first
// segment, the circuit-breaker service bucket per spec §4.4) and the
// method (everything after the first dot, passed through to the tool
// verbatim so "chat.postMessage"-shaped methods survive intact).
func splitAction(action string) (alias, method string, err error) {
	idx := strings.Index(action, ".")
	if idx < 0 {
		return "", "", fmt.Errorf("toolexec: action %q is not of the form tool.method", action)
	}
	return action[:idx], action[idx+1:], nil
}
