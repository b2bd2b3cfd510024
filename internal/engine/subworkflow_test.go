// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgl9/marktoflow-sub001/internal/breaker"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

type fakeParser struct {
	byPath map[string]*model.Workflow
}

func (p *fakeParser) ParseFile(path string) (*model.Workflow, []string, error) {
	wf, ok := p.byPath[path]
	if !ok {
		return nil, nil, fmt.Errorf("no such workflow: %s", path)
	}
	return wf, nil, nil
}

func TestEngine_SubWorkflowRecursesIntoChildEngine(t *testing.T) {
	child := &model.Workflow{
		Metadata: model.Metadata{ID: "child"},
		Steps: []*model.Step{
			{ID: "c1", Kind: model.KindAction, Action: "svc.do", OutputVar: "childOut"},
		},
	}
	parser := &fakeParser{byPath: map[string]*model.Workflow{"child.md": child}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{ID: "p1", Kind: model.KindSubWorkflow, WorkflowPath: "child.md", OutputVar: "sub"},
		},
	}

	e := New(Config{Parser: parser}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Len(t, result.StepResults, 1)
	assert.Equal(t, model.StatusCompleted, result.StepResults[0].Status)
}

func TestEngine_SubWorkflowPropagatesChildFailure(t *testing.T) {
	child := &model.Workflow{
		Metadata: model.Metadata{ID: "child"},
		Steps: []*model.Step{
			{ID: "c1", Kind: model.KindAction, Action: "always.fail"},
		},
	}
	parser := &fakeParser{byPath: map[string]*model.Workflow{"child.md": child}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{ID: "p1", Kind: model.KindSubWorkflow, WorkflowPath: "child.md"},
		},
	}

	e := New(Config{Parser: parser}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

type fakeAgentClient struct {
	replies []string
	calls   int
}

func (c *fakeAgentClient) Chat(req ChatContext) (string, error) {
	if c.calls >= len(c.replies) {
		return "", fmt.Errorf("no more scripted replies")
	}
	r := c.replies[c.calls]
	c.calls++
	return r, nil
}

func TestEngine_ChildEngineGetsOwnBreakerManagerButSharesHealth(t *testing.T) {
	e := New(Config{}, nil, nil)
	child := e.childEngine()

	assert.NotSame(t, e.breakers, child.breakers, "sub-workflow engines must not share the parent's breaker map (spec §4.6, §9)")
	assert.Same(t, e.health, child.health)
	assert.NotSame(t, e.pipe, child.pipe)
}

func TestEngine_SubWorkflowBreakerTripDoesNotGateParentService(t *testing.T) {
	child := &model.Workflow{
		Metadata: model.Metadata{ID: "child"},
		Steps: []*model.Step{
			{ID: "c1", Kind: model.KindAction, Action: "always.fail", ErrorHandling: &model.ErrorHandling{Action: model.ErrorActionContinue}},
		},
	}
	parser := &fakeParser{byPath: map[string]*model.Workflow{"child.md": child}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{ID: "p1", Kind: model.KindSubWorkflow, WorkflowPath: "child.md"},
			{ID: "p2", Kind: model.KindAction, Action: "always.ok"},
		},
	}

	e := New(Config{Parser: parser, Breaker: breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, model.StatusCompleted, result.StepResults[1].Status, "a breaker trip for 'always' inside the sub-workflow must not reject the parent's own 'always.ok' call")
}

func TestEngine_AgentSubWorkflowParsesFencedJSONEnvelope(t *testing.T) {
	agent := &fakeAgentClient{replies: []string{
		"Sure, here's the result:\n```json\n{\"completed\": true, \"output\": {\"greeting\": \"hi\"}}\n```\n",
	}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{
				ID:           "p1",
				Kind:         model.KindSubWorkflow,
				WorkflowPath: "child.md",
				UseSubagent:  true,
				Agent:        "claude",
				OutputVar:    "sub",
			},
		},
	}

	reader := func(path string) ([]byte, error) { return []byte("## Steps\n- do the thing"), nil }
	e := New(Config{AgentClient: agent, FileReader: reader, DefaultAgent: "claude"}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 1, agent.calls)
}

func TestEngine_AgentSubWorkflowRetriesOnMalformedReplyThenSucceeds(t *testing.T) {
	agent := &fakeAgentClient{replies: []string{
		"not json at all",
		"```json\n{\"completed\": true, \"output\": {}}\n```",
	}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{ID: "p1", Kind: model.KindSubWorkflow, WorkflowPath: "child.md", UseSubagent: true, Agent: "claude"},
		},
	}

	reader := func(path string) ([]byte, error) { return []byte("body"), nil }
	e := New(Config{AgentClient: agent, FileReader: reader}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 2, agent.calls)
}

func TestEngine_AgentSubWorkflowExceedsMaxTurns(t *testing.T) {
	agent := &fakeAgentClient{replies: []string{"nope", "nope", "nope"}}

	parent := &model.Workflow{
		Metadata:   model.Metadata{ID: "parent"},
		SourcePath: "parent.md",
		Steps: []*model.Step{
			{ID: "p1", Kind: model.KindSubWorkflow, WorkflowPath: "child.md", UseSubagent: true, Agent: "claude"},
		},
	}

	reader := func(path string) ([]byte, error) { return []byte("body"), nil }
	e := New(Config{AgentClient: agent, FileReader: reader, MaxSubagentTurns: 3}, nil, nil)
	result := e.Execute(context.Background(), parent, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "maximum turns")
}
