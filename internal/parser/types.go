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

// Package parser implements the external Parser collaborator (spec §1, §6):
// it reads a workflow markdown file -- YAML front matter header plus a body
// whose "## Steps" section holds fenced ```yaml step blocks -- and produces
// a validated *model.Workflow. Grounded on gopkg.in/yaml.v3 (the library the
// teacher itself uses for structured document decoding) for the header and
// each step block, and on github.com/yuin/goldmark's AST (as used by the
// pack's nevindra-oasis) to walk the body and locate the Steps section.
package parser

import "github.com/scottgl9/marktoflow-sub001/internal/model"

// rawHeader is the YAML front-matter shape. Field names match the
// lowerCamelCase a workflow author writes in the header block.
type rawHeader struct {
	ID           string                            `yaml:"id"`
	Name         string                            `yaml:"name"`
	Version      string                            `yaml:"version"`
	Description  string                            `yaml:"description"`
	Author       string                            `yaml:"author"`
	Tags         []string                          `yaml:"tags"`
	DefaultAgent string                            `yaml:"defaultAgent"`
	DefaultModel string                            `yaml:"defaultModel"`
	Tools        map[string]map[string]interface{} `yaml:"tools"`
	Inputs       map[string]rawInputDecl           `yaml:"inputs"`
	Triggers     interface{}                       `yaml:"triggers"`
	Permissions  *rawPermissions                   `yaml:"permissions"`
}

type rawInputDecl struct {
	Type        string      `yaml:"type"`
	Required    bool        `yaml:"required"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description"`
}

type rawPermissions struct {
	Read               bool     `yaml:"read"`
	Write              bool     `yaml:"write"`
	Execute            bool     `yaml:"execute"`
	AllowedCommands    []string `yaml:"allowedCommands"`
	BlockedCommands    []string `yaml:"blockedCommands"`
	AllowedDirectories []string `yaml:"allowedDirectories"`
	BlockedPaths       []string `yaml:"blockedPaths"`
	Network            bool     `yaml:"network"`
	AllowedHosts       []string `yaml:"allowedHosts"`
	MaxFileSize        int64    `yaml:"maxFileSize"`
}

// rawErrorHandling mirrors model.ErrorHandling for YAML decoding.
type rawErrorHandling struct {
	Action            string   `yaml:"action"`
	MaxRetries        *int     `yaml:"maxRetries"`
	RetryDelaySeconds *float64 `yaml:"retryDelaySeconds"`
	FallbackAction    string   `yaml:"fallbackAction"`
}

// rawSwitchCase mirrors model.SwitchCase for YAML decoding.
type rawSwitchCase struct {
	Value string    `yaml:"value"`
	Steps []rawStep `yaml:"steps"`
}

// rawBranch mirrors model.Branch for YAML decoding.
type rawBranch struct {
	ID    string    `yaml:"id"`
	Steps []rawStep `yaml:"steps"`
}

// rawStep is the YAML shape of one fenced step block; it carries every
// variant's fields flatly, same as model.Step, and is recursively decoded
// for nested step lists (if/switch/foreach/while/parallel/try bodies).
type rawStep struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	Kind        string                 `yaml:"kind"`
	Conditions  []string               `yaml:"conditions"`
	Timeout     *float64               `yaml:"timeout"`
	OutputVar   string                 `yaml:"outputVariable"`
	Model       string                 `yaml:"model"`
	Agent       string                 `yaml:"agent"`
	Permissions map[string]interface{} `yaml:"permissions"`

	Action        string                 `yaml:"action"`
	Inputs        map[string]interface{} `yaml:"inputs"`
	ErrorHandling *rawErrorHandling      `yaml:"errorHandling"`
	Prompt        string                 `yaml:"prompt"`
	PromptInputs  map[string]interface{} `yaml:"promptInputs"`

	WorkflowPath   string                 `yaml:"workflowPath"`
	UseSubagent    bool                   `yaml:"useSubagent"`
	SubagentConfig map[string]interface{} `yaml:"subagentConfig"`

	Condition string    `yaml:"condition"`
	Then      []rawStep `yaml:"then"`
	Else      []rawStep `yaml:"else"`

	Expression string          `yaml:"expression"`
	Cases      []rawSwitchCase `yaml:"cases"`
	Default    []rawStep       `yaml:"default"`

	Items               string      `yaml:"items"`
	ItemVariable        string      `yaml:"itemVariable"`
	IndexVariable       string      `yaml:"indexVariable"`
	AccumulatorVariable string      `yaml:"accumulatorVariable"`
	InitialValue        interface{} `yaml:"initialValue"`

	MaxIterations int `yaml:"maxIterations"`

	Steps []rawStep `yaml:"steps"`

	Branches      []rawBranch `yaml:"branches"`
	MaxConcurrent int         `yaml:"maxConcurrent"`
	OnError       string      `yaml:"onError"`

	Try     []rawStep `yaml:"try"`
	Catch   []rawStep `yaml:"catch"`
	Finally []rawStep `yaml:"finally"`
}

func toErrorHandling(r *rawErrorHandling) *model.ErrorHandling {
	if r == nil {
		return nil
	}
	return &model.ErrorHandling{
		Action:           model.ErrorHandlingAction(r.Action),
		MaxRetries:       r.MaxRetries,
		RetryDelaySecond: r.RetryDelaySeconds,
		FallbackAction:   r.FallbackAction,
	}
}

func toSteps(raw []rawStep) []*model.Step {
	if raw == nil {
		return nil
	}
	out := make([]*model.Step, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toModel())
	}
	return out
}

func toCases(raw []rawSwitchCase) []model.SwitchCase {
	if raw == nil {
		return nil
	}
	out := make([]model.SwitchCase, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.SwitchCase{Value: r.Value, Steps: toSteps(r.Steps)})
	}
	return out
}

func toBranches(raw []rawBranch) []model.Branch {
	if raw == nil {
		return nil
	}
	out := make([]model.Branch, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Branch{ID: r.ID, Steps: toSteps(r.Steps)})
	}
	return out
}

// toModel converts one decoded YAML step block into the engine's model.Step.
func (r rawStep) toModel() *model.Step {
	return &model.Step{
		ID:                  r.ID,
		Name:                r.Name,
		Kind:                model.Kind(r.Kind),
		Conditions:          r.Conditions,
		Timeout:             r.Timeout,
		OutputVar:           r.OutputVar,
		Model:               r.Model,
		Agent:               r.Agent,
		Permissions:         r.Permissions,
		Action:              r.Action,
		Inputs:              r.Inputs,
		ErrorHandling:       toErrorHandling(r.ErrorHandling),
		Prompt:              r.Prompt,
		PromptInputs:        r.PromptInputs,
		WorkflowPath:        r.WorkflowPath,
		UseSubagent:         r.UseSubagent,
		SubagentConfig:      r.SubagentConfig,
		Condition:           r.Condition,
		Then:                toSteps(r.Then),
		Else:                toSteps(r.Else),
		Expression:          r.Expression,
		Cases:               toCases(r.Cases),
		Default:             toSteps(r.Default),
		Items:               r.Items,
		ItemVariable:        r.ItemVariable,
		IndexVariable:       r.IndexVariable,
		AccumulatorVariable: r.AccumulatorVariable,
		InitialValue:        r.InitialValue,
		HasInitialValue:     r.InitialValue != nil,
		MaxIterations:       r.MaxIterations,
		Steps:               toSteps(r.Steps),
		Branches:            toBranches(r.Branches),
		MaxConcurrent:       r.MaxConcurrent,
		OnError:             r.OnError,
		Try:                 toSteps(r.Try),
		Catch:               toSteps(r.Catch),
		Finally:             toSteps(r.Finally),
	}
}
