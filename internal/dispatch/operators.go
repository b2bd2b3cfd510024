// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/scottgl9/marktoflow-sub001/internal/cond"
	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/tmpl"
)

// runIf implements §4.5 If: pick then/else by condition, execute it
// sequentially, abort-on-first-failure.
func (d *Dispatcher) runIf(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	res := cond.Evaluate(step.Condition, e)
	if res.Warning != "" {
		d.emitWarning(step.ID, res.Warning)
	}

	branch := step.Else
	if res.Value {
		branch = step.Then
	}
	if len(branch) == 0 {
		return nil, ErrSkipped
	}
	outputs, err := d.runSequentialAbortOnFailure(ctx, branch, e, execCtx, stepIndex)
	return toInterfaceSlice(outputs), err
}

// runSwitch implements §4.5 Switch.
func (d *Dispatcher) runSwitch(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	val := tmpl.Render(step.Expression, e)
	key := tmpl.Stringify(val)

	var branch []*model.Step
	found := false
	for _, c := range step.Cases {
		if c.Value == key {
			branch = c.Steps
			found = true
			break
		}
	}
	if !found {
		branch = step.Default
	}
	if len(branch) == 0 {
		return nil, ErrSkipped
	}
	outputs, err := d.runSequentialAbortOnFailure(ctx, branch, e, execCtx, stepIndex)
	return toInterfaceSlice(outputs), err
}

func toInterfaceSlice(outputs []interface{}) interface{} {
	if outputs == nil {
		return []interface{}{}
	}
	return outputs
}

func loopRecord(index, length int) map[string]interface{} {
	return map[string]interface{}{
		"index":  index,
		"first":  index == 0,
		"last":   index == length-1,
		"length": length,
	}
}

func asSequence(v interface{}) ([]interface{}, bool) {
	seq, ok := v.([]interface{})
	return seq, ok
}

// runForEach implements §4.5 ForEach, including P7 loop-variable hygiene via
// env.Scope and the S5 continue semantics.
func (d *Dispatcher) runForEach(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	rendered := tmpl.Render(step.Items, e)
	items, ok := asSequence(rendered)
	if !ok {
		return nil, pipeline.ErrNotSequence
	}
	if len(items) == 0 {
		return nil, ErrSkipped
	}

	action := step.ErrorHandling.ActionOrDefault()

	for idx, item := range items {
		err := d.runLoopIteration(ctx, step.Steps, e, execCtx, stepIndex, step.ItemVariable, step.IndexVariable, item, idx, len(items))
		if err != nil {
			if action == model.ErrorActionContinue {
				continue
			}
			return nil, err
		}
	}
	return items, nil
}

// runLoopIteration binds itemVariable/indexVariable/loop for exactly one
// iteration body, guaranteeing their removal via defer regardless of the
// body's outcome (spec §9 "scoped acquisition").
func (d *Dispatcher) runLoopIteration(ctx context.Context, steps []*model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int, itemVar, indexVar string, item interface{}, index, length int) (err error) {
	itemScope := env.Bind(e, itemVar, item)
	defer itemScope.End()

	loopScope := env.Bind(e, "loop", loopRecord(index, length))
	defer loopScope.End()

	if indexVar != "" {
		idxScope := env.Bind(e, indexVar, index)
		defer idxScope.End()
	}

	_, err = d.runSequentialAbortOnFailure(ctx, steps, e, execCtx, stepIndex)
	return err
}

// runWhile implements §4.5 While.
func (d *Dispatcher) runWhile(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	action := step.ErrorHandling.ActionOrDefault()
	iterations := 0

	for {
		res := cond.Evaluate(step.Condition, e)
		if res.Warning != "" {
			d.emitWarning(step.ID, res.Warning)
		}
		if !res.Value {
			break
		}
		if iterations >= step.MaxIterations {
			return nil, fmt.Errorf("Max iterations (%d) exceeded", step.MaxIterations)
		}

		err := d.runLoopIteration(ctx, step.Steps, e, execCtx, stepIndex, "", "", nil, iterations, -1)
		iterations++
		if err != nil {
			if action == model.ErrorActionContinue {
				continue
			}
			return nil, err
		}
	}
	return map[string]interface{}{"iterations": iterations}, nil
}

// runMap implements §4.5 Map.
func (d *Dispatcher) runMap(step *model.Step, e *env.Environment) (interface{}, error) {
	rendered := tmpl.Render(step.Items, e)
	items, ok := asSequence(rendered)
	if !ok {
		return nil, pipeline.ErrNotSequence
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		scope := env.Bind(e, step.ItemVariable, item)
		val := tmpl.Render(step.Expression, e)
		scope.End()
		out = append(out, val)
	}
	return out, nil
}

// runFilter implements §4.5 Filter.
func (d *Dispatcher) runFilter(step *model.Step, e *env.Environment) (interface{}, error) {
	rendered := tmpl.Render(step.Items, e)
	items, ok := asSequence(rendered)
	if !ok {
		return nil, pipeline.ErrNotSequence
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		scope := env.Bind(e, step.ItemVariable, item)
		res := cond.Evaluate(step.Condition, e)
		scope.End()
		if res.Value {
			out = append(out, item)
		}
	}
	return out, nil
}

// runReduce implements §4.5 Reduce.
func (d *Dispatcher) runReduce(step *model.Step, e *env.Environment) (interface{}, error) {
	rendered := tmpl.Render(step.Items, e)
	items, ok := asSequence(rendered)
	if !ok {
		return nil, pipeline.ErrNotSequence
	}

	var acc interface{}
	if step.HasInitialValue {
		acc = step.InitialValue
	}

	for _, item := range items {
		itemScope := env.Bind(e, step.ItemVariable, item)
		accScope := env.Bind(e, step.AccumulatorVariable, acc)
		acc = tmpl.Render(step.Expression, e)
		accScope.End()
		itemScope.End()
	}
	return acc, nil
}

// runParallel implements §4.5 Parallel: clone the env once per branch, run
// branches concurrently, merge back namespaced by branch id (P8).
func (d *Dispatcher) runParallel(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	maxConcurrent := step.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = len(step.Branches)
	}

	type branchResult struct {
		id      string
		outputs []interface{}
		clone   *env.Environment
		err     error
	}

	results := make([]branchResult, len(step.Branches))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, br := range step.Branches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, br model.Branch) {
			defer wg.Done()
			defer func() { <-sem }()

			clone := e.Clone()
			outputs, err := d.runSequentialAbortOnFailure(ctx, br.Steps, clone, execCtx, stepIndex)
			if err != nil {
				err = fmt.Errorf("Branch %s failed: %s", br.ID, err.Error())
			}
			results[i] = branchResult{id: br.ID, outputs: outputs, clone: clone, err: err}
		}(i, br)
	}
	wg.Wait()

	var firstErr error
	branchOutputs := make([]interface{}, len(results))
	for i, r := range results {
		e.MergeBranch(r.id, r.clone)
		branchOutputs[i] = toInterfaceSlice(r.outputs)
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}

	if firstErr != nil {
		if step.OnError == "continue" {
			return nil, nil
		}
		return nil, firstErr
	}
	return branchOutputs, nil
}

// runTry implements §4.5 Try/Catch/Finally.
func (d *Dispatcher) runTry(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, error) {
	outputs, tryErr := d.runSequentialAbortOnFailure(ctx, step.Try, e, execCtx, stepIndex)
	result := toInterfaceSlice(outputs)
	opErr := tryErr

	if tryErr != nil && len(step.Catch) > 0 {
		errScope := env.Bind(e, "error", map[string]interface{}{
			"message": tryErr.Error(),
			"step":    step.ID,
		})
		catchOutputs, catchErr := d.runSequentialAbortOnFailure(ctx, step.Catch, e, execCtx, stepIndex)
		errScope.End()

		if catchErr != nil {
			opErr = catchErr
		} else {
			opErr = nil
			result = toInterfaceSlice(catchOutputs)
		}
	}

	if len(step.Finally) > 0 {
		_, finallyErr := d.runSequentialAbortOnFailure(ctx, step.Finally, e, execCtx, stepIndex)
		if finallyErr != nil {
			opErr = finallyErr
		}
	}

	return result, opErr
}
