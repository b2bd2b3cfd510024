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

// Package slack implements the slack Tool adapter on top of
// github.com/slack-go/slack, upgrading connectors/slack's hand-rolled
// net/http REST client to the maintained SDK (SPEC_FULL.md §2) -- this is
// the concrete collaborator behind the spec's running example action name,
// slack.chat.postMessage.
package slack

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool wraps a *goslack.Client bound to one bot token.
type Tool struct {
	client *goslack.Client
}

// New returns a Tool authenticated with botToken.
func New(botToken string) *Tool {
	return &Tool{client: goslack.New(botToken)}
}

func (t *Tool) Name() string { return "slack" }

// Query is unsupported -- Slack is a messaging tool, not a data source.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	return nil, &tools.ErrUnsupported{Tool: "slack", Op: "Query"}
}

// Execute dispatches on cmd.Action: "chat.postMessage"
// (parameters.channel/text) today; other Slack Web API methods can be
// added the same way as the need arises.
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	switch cmd.Action {
	case "chat.postMessage":
		channel, _ := cmd.Parameters["channel"].(string)
		text, _ := cmd.Parameters["text"].(string)
		_, timestamp, err := t.client.PostMessageContext(ctx, channel, goslack.MsgOptionText(text, false))
		if err != nil {
			return nil, fmt.Errorf("slack: chat.postMessage: %w", err)
		}
		return &tools.CommandResult{Success: true, Output: map[string]interface{}{"ts": timestamp}}, nil
	default:
		return nil, fmt.Errorf("slack: unsupported action %q", cmd.Action)
	}
}
