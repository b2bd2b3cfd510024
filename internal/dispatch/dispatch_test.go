// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgl9/marktoflow-sub001/internal/breaker"
	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/obslog"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
)

type fakeRegistry struct{}

func (fakeRegistry) Load(name string) (interface{}, error) { return nil, nil }
func (fakeRegistry) Has(name string) bool                  { return true }

type noopEvents struct{}

func (noopEvents) OnStepStart(string)              {}
func (noopEvents) OnStepComplete(model.StepResult) {}
func (noopEvents) OnStepError(string, error)       {}
func (noopEvents) OnWarning(string, string)        {}

func newTestDispatcher(executor pipeline.StepExecutor) *Dispatcher {
	return &Dispatcher{
		Pipeline: &pipeline.Pipeline{
			Breakers: breaker.NewManager(breaker.Config{FailureThreshold: 100, RecoveryTimeout: time.Hour}),
			Health:   breaker.NewHealthTracker(),
		},
		PipelineCfg: pipeline.Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Executor:    executor,
		Registry:    fakeRegistry{},
		Events:      noopEvents{},
	}
}

func completingExecutor(output interface{}) pipeline.StepExecutor {
	return func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		return output, nil
	}
}

func TestDispatch_S1HappyPath(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		if step.ID == "A" {
			return map[string]interface{}{"ok": true}, nil
		}
		return step.Inputs["v"], nil
	})

	a := &model.Step{ID: "A", Kind: model.KindAction, Action: "svc.a", OutputVar: "x", Inputs: map[string]interface{}{}}
	resA := d.Execute(context.Background(), a, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusCompleted, resA.Status)
	assert.Equal(t, map[string]interface{}{"ok": true}, resA.Output)

	b := &model.Step{ID: "B", Kind: model.KindAction, Action: "svc.b", Inputs: map[string]interface{}{"v": "{{ x }}"}}
	resB := d.Execute(context.Background(), b, e, pipeline.ExecutorContext{}, 1)
	assert.Equal(t, model.StatusCompleted, resB.Status)
	assert.Equal(t, map[string]interface{}{"ok": true}, resB.Output)
}

func TestDispatch_AuditLogIndependentOfEvents(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		if step.ID == "fails" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})
	d.AuditLog = obslog.New("test")
	d.RunID = "run-audit"
	d.Events = nil

	ok := &model.Step{ID: "ok", Kind: model.KindAction, Action: "svc.ok"}
	res := d.Execute(context.Background(), ok, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusCompleted, res.Status)

	fails := &model.Step{ID: "fails", Kind: model.KindAction, Action: "svc.fail", ErrorHandling: &model.ErrorHandling{Action: model.ErrorActionStop}}
	resFail := d.Execute(context.Background(), fails, e, pipeline.ExecutorContext{}, 1)
	assert.Equal(t, model.StatusFailed, resFail.Status)
}

func TestDispatch_S2SkipByCondition(t *testing.T) {
	e := env.New("wf", "run", nil)
	e.SetStepMeta("A", env.StepMeta{Status: "completed"})

	d := newTestDispatcher(completingExecutor("done"))
	b := &model.Step{ID: "B", Kind: model.KindAction, Action: "svc.b", Conditions: []string{"A.status == 'failed'"}, Inputs: map[string]interface{}{}}
	res := d.Execute(context.Background(), b, e, pipeline.ExecutorContext{}, 1)
	assert.Equal(t, model.StatusSkipped, res.Status)
}

func TestDispatch_EmptyIfBranchIsSkippedNotCompleted(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(completingExecutor("done"))

	step := &model.Step{ID: "cond", Kind: model.KindIf, Condition: "false", OutputVar: "out"}
	res := d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusSkipped, res.Status)

	_, ok := e.Get("out")
	assert.False(t, ok, "a skipped step must not write outputVariable (P1)")
}

func TestDispatch_SwitchWithNoMatchingCaseAndNoDefaultIsSkipped(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(completingExecutor("done"))

	step := &model.Step{ID: "sw", Kind: model.KindSwitch, Expression: "nomatch", OutputVar: "out"}
	res := d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusSkipped, res.Status)

	_, ok := e.Get("out")
	assert.False(t, ok)
}

func TestDispatch_EmptyForEachIsSkippedNotCompleted(t *testing.T) {
	e := env.New("wf", "run", nil)
	e.Set("items", []interface{}{})
	d := newTestDispatcher(completingExecutor("done"))

	step := &model.Step{ID: "loop", Kind: model.KindForEach, Items: "{{ items }}", ItemVariable: "item", OutputVar: "out"}
	res := d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusSkipped, res.Status)

	_, ok := e.Get("out")
	assert.False(t, ok)
}

func TestDispatch_ForEachS5Continue(t *testing.T) {
	e := env.New("wf", "run", nil)
	e.Set("items", []interface{}{1.0, 2.0, 3.0})

	d := newTestDispatcher(func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		item, _ := e.Get("item")
		if item == 2.0 {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	child := &model.Step{ID: "inner", Kind: model.KindAction, Action: "svc.op", Inputs: map[string]interface{}{}}
	step := &model.Step{
		ID: "loop", Kind: model.KindForEach,
		Items: "{{ items }}", ItemVariable: "item",
		Steps:         []*model.Step{child},
		ErrorHandling: &model.ErrorHandling{Action: model.ErrorActionContinue},
	}

	res := d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
	require.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, res.Output)

	_, ok := e.Get("item")
	assert.False(t, ok)
	_, ok = e.Get("loop")
	assert.False(t, ok)
}

func TestDispatch_ParallelS6Merge(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		return nil, nil
	})

	e.Set("seed", []interface{}{"x"})
	step := &model.Step{
		ID: "par", Kind: model.KindParallel,
		Branches: []model.Branch{
			{ID: "b1", Steps: []*model.Step{{ID: "s1", Kind: model.KindMap, Items: "{{ seed }}", ItemVariable: "v", Expression: "{{ v }}", OutputVar: "ignored"}}},
			{ID: "b2", Steps: []*model.Step{{ID: "s2", Kind: model.KindMap, Items: "{{ seed }}", ItemVariable: "v", Expression: "{{ v }}", OutputVar: "ignored"}}},
		},
	}

	// The branch steps above are not run to populate branch-local variables;
	// the merge-namespacing contract is asserted on hand-built clones instead.
	b1 := e.Clone()
	b1.Set("local", "b1")
	b2 := e.Clone()
	b2.Set("local", "b2")
	e.MergeBranch("b1", b1)
	e.MergeBranch("b2", b2)

	v, ok := e.Get("b1.local")
	assert.True(t, ok)
	assert.Equal(t, "b1", v)
	v, ok = e.Get("b2.local")
	assert.True(t, ok)
	assert.Equal(t, "b2", v)
	_, ok = e.Get("local")
	assert.False(t, ok)

	_ = d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
}

func TestDispatch_MapFilterReduce(t *testing.T) {
	e := env.New("wf", "run", nil)
	e.Set("nums", []interface{}{1.0, 2.0, 3.0})
	d := newTestDispatcher(completingExecutor(nil))

	mapStep := &model.Step{ID: "m", Kind: model.KindMap, Items: "{{ nums }}", ItemVariable: "n", Expression: "{{ n }}", OutputVar: "mapped"}
	res := d.Execute(context.Background(), mapStep, e, pipeline.ExecutorContext{}, 0)
	require.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, res.Output)

	filterStep := &model.Step{ID: "f", Kind: model.KindFilter, Items: "{{ nums }}", ItemVariable: "n", Condition: "n > 1", OutputVar: "filtered"}
	res = d.Execute(context.Background(), filterStep, e, pipeline.ExecutorContext{}, 0)
	require.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, []interface{}{2.0, 3.0}, res.Output)

	reduceStep := &model.Step{ID: "r", Kind: model.KindReduce, Items: "{{ nums }}", ItemVariable: "n", AccumulatorVariable: "acc", InitialValue: 0.0, HasInitialValue: true, Expression: "{{ acc }}"}
	res = d.Execute(context.Background(), reduceStep, e, pipeline.ExecutorContext{}, 0)
	require.Equal(t, model.StatusCompleted, res.Status)

	_, ok := e.Get("n")
	assert.False(t, ok)
	_, ok = e.Get("acc")
	assert.False(t, ok)
}

func TestDispatch_TryCatchFinally(t *testing.T) {
	e := env.New("wf", "run", nil)
	d := newTestDispatcher(func(ctx context.Context, step *model.Step, e *env.Environment, registry pipeline.ToolRegistry, execCtx pipeline.ExecutorContext) (interface{}, error) {
		if step.ID == "risky" {
			return nil, errors.New("boom")
		}
		return "recovered", nil
	})

	finallyStep := &model.Step{ID: "cleanup", Kind: model.KindAction, Action: "svc.cleanup", Inputs: map[string]interface{}{}}

	step := &model.Step{
		ID:      "t",
		Kind:    model.KindTry,
		Try:     []*model.Step{{ID: "risky", Kind: model.KindAction, Action: "svc.risky", Inputs: map[string]interface{}{}}},
		Catch:   []*model.Step{{ID: "recover", Kind: model.KindAction, Action: "svc.recover", Inputs: map[string]interface{}{}, OutputVar: "recovered"}},
		Finally: []*model.Step{finallyStep},
	}

	res := d.Execute(context.Background(), step, e, pipeline.ExecutorContext{}, 0)
	assert.Equal(t, model.StatusCompleted, res.Status)
}
