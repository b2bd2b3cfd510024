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

// Package tools defines the small Tool contract each concrete adapter
// (postgres, mysql, redis, mongodb, s3, slack, ai) satisfies, grounded on
// connectors/base/connector.go's Query/Execute split -- trimmed to the two
// data-plane operations a workflow action actually needs, since connection
// lifecycle here is owned by each adapter's constructor rather than a
// separate Connect/Disconnect pair.
package tools

import "context"

// Query is a read-only operation (spec's "action" steps whose method reads
// data, e.g. postgres.query).
type Query struct {
	Statement  string
	Parameters map[string]interface{}
	Limit      int
}

// QueryResult is the outcome of a Query.
type QueryResult struct {
	Rows     []map[string]interface{}
	RowCount int
}

// Command is a write/side-effecting operation (e.g. slack.chat.postMessage).
type Command struct {
	Action     string
	Parameters map[string]interface{}
}

// CommandResult is the outcome of a Command.
type CommandResult struct {
	Success bool
	Output  map[string]interface{}
}

// Tool is the contract every adapter in internal/tools/* satisfies. A
// StepExecutor resolves an action string's service segment to a Tool via
// the ToolRegistry, then calls Query when the method segment is "query" and
// Execute for every other method (see internal/toolexec).
type Tool interface {
	Name() string
	Query(ctx context.Context, q *Query) (*QueryResult, error)
	Execute(ctx context.Context, cmd *Command) (*CommandResult, error)
}

// ErrUnsupported is returned by adapters from whichever of Query/Execute
// doesn't apply to their domain (e.g. slack.Query).
type ErrUnsupported struct {
	Tool string
	Op   string
}

func (e *ErrUnsupported) Error() string {
	return e.Tool + " does not support " + e.Op
}
