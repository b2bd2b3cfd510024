// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/rollback"
	"github.com/scottgl9/marktoflow-sub001/internal/state"
)

type fakeRegistry struct{ tools map[string]interface{} }

func (r *fakeRegistry) Load(name string) (interface{}, error) {
	if t, ok := r.tools[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("tool %q not registered", name)
}
func (r *fakeRegistry) Has(name string) bool { _, ok := r.tools[name]; return ok }

func completingExecutor(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
	if step.Action == "always.fail" {
		return nil, fmt.Errorf("boom")
	}
	return map[string]interface{}{"action": step.Action}, nil
}

func simpleWorkflow(steps ...*model.Step) *model.Workflow {
	return &model.Workflow{
		Metadata: model.Metadata{ID: "wf-engine-test"},
		Steps:    steps,
	}
}

func TestEngine_HappyPathTwoSteps(t *testing.T) {
	wf := simpleWorkflow(
		&model.Step{ID: "s1", Kind: model.KindAction, Action: "svc.do", OutputVar: "r1"},
		&model.Step{ID: "s2", Kind: model.KindAction, Action: "svc.do", OutputVar: "r2"},
	)

	e := New(Config{}, nil, nil)
	result := e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, model.StatusCompleted, result.StepResults[0].Status)
	assert.Equal(t, model.StatusCompleted, result.StepResults[1].Status)
	assert.NotEmpty(t, result.RunID)
}

func TestEngine_StopOnFailureByDefault(t *testing.T) {
	wf := simpleWorkflow(
		&model.Step{ID: "s1", Kind: model.KindAction, Action: "always.fail"},
		&model.Step{ID: "s2", Kind: model.KindAction, Action: "svc.do"},
	)

	e := New(Config{}, nil, nil)
	result := e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusFailed, result.Status)
	require.Len(t, result.StepResults, 1, "second step must not run once the first stops the workflow")
	assert.NotEmpty(t, result.Error)
}

func TestEngine_ContinueOnFailureRunsRemainingSteps(t *testing.T) {
	wf := simpleWorkflow(
		&model.Step{ID: "s1", Kind: model.KindAction, Action: "always.fail", ErrorHandling: &model.ErrorHandling{Action: model.ErrorActionContinue}},
		&model.Step{ID: "s2", Kind: model.KindAction, Action: "svc.do", OutputVar: "r2"},
	)

	e := New(Config{}, nil, nil)
	result := e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Len(t, result.StepResults, 2)
	assert.Equal(t, model.StatusFailed, result.StepResults[0].Status)
	assert.Equal(t, model.StatusCompleted, result.StepResults[1].Status)
}

func TestEngine_RollbackInvokesRegistryAndMarksFailed(t *testing.T) {
	var rolledBack bool
	registry := newRollbackRegistryStub(func() { rolledBack = true })

	wf := simpleWorkflow(
		&model.Step{ID: "s1", Kind: model.KindAction, Action: "always.fail", ErrorHandling: &model.ErrorHandling{Action: model.ErrorActionRollback}},
	)

	e := New(Config{RollbackRegistry: registry}, nil, nil)
	result := e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	require.Equal(t, model.StatusFailed, result.Status)
	assert.True(t, rolledBack)
}

func TestEngine_StateStorePersistsStartAndTerminalRecord(t *testing.T) {
	store := state.NewInMemoryStore()
	wf := simpleWorkflow(&model.Step{ID: "s1", Kind: model.KindAction, Action: "svc.do"})

	e := New(Config{}, nil, store)
	result := e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	rec, err := store.GetExecution(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
}

func TestEngine_ResetCircuitBreakersAndHealthSnapshot(t *testing.T) {
	wf := simpleWorkflow(&model.Step{ID: "s1", Kind: model.KindAction, Action: "svc.do"})
	e := New(Config{}, nil, nil)
	e.Execute(context.Background(), wf, nil, &fakeRegistry{}, completingExecutor)

	snap := e.ToolHealthSnapshot()
	require.Contains(t, snap, "svc")
	assert.True(t, snap["svc"].Healthy)

	e.ResetCircuitBreakers()
	e.ResetCircuitBreaker("svc")
	assert.Empty(t, e.GetFailoverHistory())
}

// rollbackRegistryStub lets the test observe whether RollbackAll ran without
// depending on internal/rollback's InMemoryRegistry.
type rollbackRegistryStub struct{ fn func() }

func newRollbackRegistryStub(fn func()) *rollbackRegistryStub { return &rollbackRegistryStub{fn: fn} }

func (r *rollbackRegistryStub) RollbackAll(ctx context.Context, snap rollback.Snapshot) error {
	r.fn()
	return nil
}
