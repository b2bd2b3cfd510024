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

// Package ai implements the ai Tool adapter and the engine's AgentClient
// collaborator (spec §4.6's agent sub-workflow mode), both backed by
// github.com/anthropics/anthropic-sdk-go. The teacher's own
// orchestrator/llm/anthropic/provider.go hand-rolls its Anthropic HTTP
// client rather than using the SDK, so this adapter is authored fresh
// against the SDK's documented client/option surface, upgrading that
// hand-rolled path the way the slack adapter upgrades connectors/slack.
package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/scottgl9/marktoflow-sub001/internal/engine"
	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool wraps an anthropic.Client bound to one API key and default model.
type Tool struct {
	client       anthropic.Client
	defaultModel string
}

// New returns a Tool authenticated with apiKey; defaultModel is used when a
// call site doesn't override it.
func New(apiKey, defaultModel string) *Tool {
	if defaultModel == "" {
		defaultModel = string(anthropic.ModelClaude3_5SonnetLatest)
	}
	return &Tool{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (t *Tool) Name() string { return "ai" }

// Query is unsupported -- chat completion is a write-style action, not a
// read query.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	return nil, &tools.ErrUnsupported{Tool: "ai", Op: "Query"}
}

// Execute dispatches "chat.completions" (parameters.prompt, optional
// parameters.systemPrompt/model) for ordinary action steps. The Runner's
// agent sub-workflow mode does not go through Execute or the tool registry;
// it calls Chat directly.
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	switch cmd.Action {
	case "chat.completions":
		prompt, _ := cmd.Parameters["prompt"].(string)
		system, _ := cmd.Parameters["systemPrompt"].(string)
		model, _ := cmd.Parameters["model"].(string)
		text, err := t.complete(ctx, model, system, prompt)
		if err != nil {
			return nil, err
		}
		return &tools.CommandResult{Success: true, Output: map[string]interface{}{"text": text}}, nil
	default:
		return nil, fmt.Errorf("ai: unsupported action %q", cmd.Action)
	}
}

// Chat implements engine.AgentClient, letting the same client back agent
// sub-workflows.
func (t *Tool) Chat(req engine.ChatContext) (string, error) {
	return t.complete(context.Background(), req.Model, req.SystemPrompt, req.UserPrompt)
}

func (t *Tool) complete(ctx context.Context, model, systemPrompt, prompt string) (string, error) {
	if model == "" {
		model = t.defaultModel
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("ai: chat.completions: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
