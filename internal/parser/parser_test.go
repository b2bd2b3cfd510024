// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

const sampleWorkflow = `---
id: deploy-notify
name: Deploy and Notify
version: "1.0"
description: Deploys a service and posts a Slack notification.
defaultAgent: ops-bot
defaultModel: claude-3-5-sonnet
tools:
  slack:
    botToken: xoxb-fake
inputs:
  serviceName:
    type: string
    required: true
permissions:
  read: true
  network: true
  allowedHosts:
    - slack.com
---

# Deploy and Notify

Some prose describing the workflow that the parser should ignore.

## Steps

` + "```yaml" + `
id: deploy
kind: action
action: ci.deploy
inputs:
  service: "{{ inputs.serviceName }}"
outputVariable: deployResult
` + "```" + `

` + "```yaml" + `
id: notify
kind: action
action: slack.chat.postMessage
inputs:
  channel: "#deploys"
  text: "deployed {{ inputs.serviceName }}"
` + "```" + `

## Notes

` + "```yaml" + `
id: should-be-ignored
kind: action
action: nope.nope
` + "```" + `
`

func TestParser_ParsesHeaderAndSteps(t *testing.T) {
	p := New()
	wf, warnings, err := p.Parse([]byte(sampleWorkflow))
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "deploy-notify", wf.Metadata.ID)
	require.Equal(t, "Deploy and Notify", wf.Metadata.Name)
	require.Equal(t, "ops-bot", wf.DefaultAgent)
	require.Equal(t, "claude-3-5-sonnet", wf.DefaultModel)

	require.Contains(t, wf.Tools, "slack")
	require.Equal(t, "xoxb-fake", wf.Tools["slack"]["botToken"])

	require.Contains(t, wf.Inputs, "serviceName")
	require.True(t, wf.Inputs["serviceName"].Required)

	require.NotNil(t, wf.Permissions)
	require.True(t, wf.Permissions.Network)
	require.Equal(t, []string{"slack.com"}, wf.Permissions.AllowedHosts)

	require.Len(t, wf.Steps, 2, "blocks outside the Steps section must not be collected")
	require.Equal(t, "deploy", wf.Steps[0].ID)
	require.Equal(t, model.KindAction, wf.Steps[0].Kind)
	require.Equal(t, "ci.deploy", wf.Steps[0].Action)
	require.Equal(t, "deployResult", wf.Steps[0].OutputVar)

	require.Equal(t, "notify", wf.Steps[1].ID)
	require.Equal(t, "slack.chat.postMessage", wf.Steps[1].Action)
}

func TestParser_NoFrontMatterTreatsWholeDocAsBody(t *testing.T) {
	p := New()
	src := "# Untitled\n\n## Steps\n\n```yaml\nid: only\nkind: action\naction: noop\n```\n"
	wf, _, err := p.Parse([]byte(src))
	require.NoError(t, err)
	require.Empty(t, wf.Metadata.ID)
	require.Len(t, wf.Steps, 1)
	require.Equal(t, "only", wf.Steps[0].ID)
}

func TestParser_UnclosedFrontMatterErrors(t *testing.T) {
	p := New()
	_, _, err := p.Parse([]byte("---\nid: x\n"))
	require.Error(t, err)
}

func TestParser_MalformedStepBlockProducesWarningNotError(t *testing.T) {
	p := New()
	src := "---\nid: w\n---\n## Steps\n\n```yaml\nid: [this is not a map\n```\n"
	wf, warnings, err := p.Parse([]byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Empty(t, wf.Steps)
}

func TestParser_NestedIfStepDecodesThenElse(t *testing.T) {
	src := "---\nid: w\n---\n## Steps\n\n```yaml\n" +
		"id: gate\n" +
		"kind: if\n" +
		"condition: \"{{ inputs.flag }}\"\n" +
		"then:\n" +
		"  - id: a\n" +
		"    kind: action\n" +
		"    action: svc.a\n" +
		"else:\n" +
		"  - id: b\n" +
		"    kind: action\n" +
		"    action: svc.b\n" +
		"```\n"
	p := New()
	wf, warnings, err := p.Parse([]byte(src))
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, wf.Steps, 1)
	require.Equal(t, model.KindIf, wf.Steps[0].Kind)
	require.Len(t, wf.Steps[0].Then, 1)
	require.Equal(t, "svc.a", wf.Steps[0].Then[0].Action)
	require.Len(t, wf.Steps[0].Else, 1)
	require.Equal(t, "svc.b", wf.Steps[0].Else[0].Action)
}

func TestParser_NoStepsSectionWarns(t *testing.T) {
	p := New()
	wf, warnings, err := p.Parse([]byte("---\nid: w\n---\n# just prose\n"))
	require.NoError(t, err)
	require.Empty(t, wf.Steps)
	require.Contains(t, warnings, "workflow declares no steps")
}
