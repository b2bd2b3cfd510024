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

package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

const stepsHeading = "steps"

// Parser reads a workflow markdown file -- a YAML front-matter header plus
// a body whose "## Steps" section holds fenced ```yaml step blocks -- and
// builds a *model.Workflow. It satisfies engine.Parser.
type Parser struct{}

// New returns a ready-to-use Parser; it carries no state.
func New() *Parser {
	return &Parser{}
}

// ParseFile reads path and parses it. The returned warnings are advisory
// (e.g. a step block that didn't decode into a recognized field) and never
// prevent a successful parse by themselves.
func (p *Parser) ParseFile(path string) (*model.Workflow, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parser: reading %s: %w", path, err)
	}
	wf, warnings, err := p.Parse(raw)
	if err != nil {
		return nil, warnings, fmt.Errorf("parser: %s: %w", path, err)
	}
	wf.SourcePath = path
	return wf, warnings, nil
}

// Parse decodes front matter plus markdown steps from raw source bytes.
func (p *Parser) Parse(raw []byte) (*model.Workflow, []string, error) {
	var warnings []string

	headerYAML, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, warnings, err
	}

	var header rawHeader
	if strings.TrimSpace(headerYAML) != "" {
		if err := yaml.Unmarshal([]byte(headerYAML), &header); err != nil {
			return nil, warnings, fmt.Errorf("decoding front matter: %w", err)
		}
	}

	blocks, err := fencedYAMLBlocksUnderHeading(body, stepsHeading)
	if err != nil {
		return nil, warnings, err
	}

	steps := make([]*model.Step, 0, len(blocks))
	for i, block := range blocks {
		var rs rawStep
		if err := yaml.Unmarshal([]byte(block), &rs); err != nil {
			warnings = append(warnings, fmt.Sprintf("step block %d: %v", i, err))
			continue
		}
		steps = append(steps, rs.toModel())
	}

	wf := &model.Workflow{
		Metadata: model.Metadata{
			ID:          header.ID,
			Name:        header.Name,
			Version:     header.Version,
			Description: header.Description,
			Author:      header.Author,
			Tags:        header.Tags,
		},
		Tools:        toToolConfigs(header.Tools),
		Inputs:       toInputDecls(header.Inputs),
		Triggers:     header.Triggers,
		Steps:        steps,
		Permissions:  toPermissions(header.Permissions),
		DefaultAgent: header.DefaultAgent,
		DefaultModel: header.DefaultModel,
	}

	if len(steps) == 0 {
		warnings = append(warnings, "workflow declares no steps")
	}

	return wf, warnings, nil
}

func toToolConfigs(raw map[string]map[string]interface{}) map[string]model.ToolConfig {
	if raw == nil {
		return nil
	}
	out := make(map[string]model.ToolConfig, len(raw))
	for alias, cfg := range raw {
		out[alias] = model.ToolConfig(cfg)
	}
	return out
}

func toInputDecls(raw map[string]rawInputDecl) map[string]model.InputDecl {
	if raw == nil {
		return nil
	}
	out := make(map[string]model.InputDecl, len(raw))
	for name, decl := range raw {
		out[name] = model.InputDecl{
			Type:        decl.Type,
			Required:    decl.Required,
			Default:     decl.Default,
			HasDefault:  decl.Default != nil,
			Description: decl.Description,
		}
	}
	return out
}

func toPermissions(raw *rawPermissions) *model.Permissions {
	if raw == nil {
		return nil
	}
	return &model.Permissions{
		Read:               raw.Read,
		Write:              raw.Write,
		Execute:            raw.Execute,
		AllowedCommands:    raw.AllowedCommands,
		BlockedCommands:    raw.BlockedCommands,
		AllowedDirectories: raw.AllowedDirectories,
		BlockedPaths:       raw.BlockedPaths,
		Network:            raw.Network,
		AllowedHosts:       raw.AllowedHosts,
		MaxFileSize:        raw.MaxFileSize,
	}
}

// splitFrontMatter splits a document of the form:
//
//	---
//	<yaml header>
//	---
//	<markdown body>
//
// into the header YAML and the body. A document without a leading "---"
// line has no front matter; the whole document is treated as the body.
func splitFrontMatter(raw []byte) (header, body string, err error) {
	src := string(raw)
	trimmed := strings.TrimLeft(src, "\n")
	if !strings.HasPrefix(trimmed, "---") {
		return "", src, nil
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", src, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			header = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			return header, body, nil
		}
	}
	return "", "", fmt.Errorf("front matter opened with --- but never closed")
}

// fencedYAMLBlocksUnderHeading walks the markdown body's AST and collects
// the source of every fenced ```yaml code block found anywhere at or below
// a heading whose text matches headingText (case-insensitive), up to (but
// not including) the next heading of equal or lesser depth.
func fencedYAMLBlocksUnderHeading(body, headingText string) ([]string, error) {
	src := []byte(body)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []string
	inSection := false
	sectionDepth := 0

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			text := headingPlainText(node, src)
			if inSection && node.Level <= sectionDepth {
				inSection = false
			}
			if strings.EqualFold(strings.TrimSpace(text), headingText) {
				inSection = true
				sectionDepth = node.Level
			}
		case *ast.FencedCodeBlock:
			if !inSection {
				return ast.WalkContinue, nil
			}
			lang := string(node.Language(src))
			if !strings.EqualFold(lang, "yaml") && !strings.EqualFold(lang, "yml") {
				return ast.WalkContinue, nil
			}
			blocks = append(blocks, fencedBlockSource(node, src))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown body: %w", err)
	}
	return blocks, nil
}

func headingPlainText(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
	}
	return sb.String()
}

func fencedBlockSource(node *ast.FencedCodeBlock, src []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}
