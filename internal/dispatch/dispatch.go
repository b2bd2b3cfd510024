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

// Package dispatch implements C5: per-step condition gating, the switch
// over step kind, and the nine control-flow operators. There is no direct
// teacher precedent for a step-kind interpreter (AxonFlow routes LLM calls,
// not workflow steps), so this package is authored fresh in the teacher's
// idiom -- %w-wrapped errors, one receiver method per concern -- on top of
// the grounded C1-C4 packages it composes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/cond"
	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/obslog"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/tmpl"
)

// ErrSkipped is returned by a control-flow operator (If, Switch, ForEach) to
// signal that it had nothing to run -- an absent/empty branch, or an empty
// ForEach sequence (spec §4.5). Execute maps it to StatusSkipped rather than
// StatusCompleted, since only a completed step may write outputVariable (P1).
var ErrSkipped = errors.New("dispatch: step has no branch/items to run")

// ScriptSandbox is the consumed collaborator for Script steps.
type ScriptSandbox interface {
	Execute(ctx context.Context, code string, scope map[string]interface{}, timeout time.Duration) (interface{}, error)
}

// SubWorkflowFunc is how the Dispatcher recurses into a child workflow
// without importing the engine package (which imports dispatch); the engine
// supplies this closure when constructing a Dispatcher.
type SubWorkflowFunc func(ctx context.Context, workflowPath string, inputs map[string]interface{}, useSubagent bool, step *model.Step, stepIndex int) (interface{}, error)

// EventSink receives dispatcher-level notices. A nil Events disables them;
// events.NoopSink also satisfies this interface for callers with no telemetry.
type EventSink interface {
	OnStepStart(stepID string)
	OnStepComplete(result model.StepResult)
	OnStepError(stepID string, err error)
	OnWarning(stepID string, message string)
}

// Dispatcher executes one Step at a time, recursing into itself for nested
// control-flow children.
type Dispatcher struct {
	Pipeline    *pipeline.Pipeline
	PipelineCfg pipeline.Config
	Executor    pipeline.StepExecutor
	Registry    pipeline.ToolRegistry
	Sandbox     ScriptSandbox
	SubWorkflow SubWorkflowFunc
	Events      EventSink

	// AuditLog, when set, receives one structured log line per step
	// transition independent of Events -- the engine stays debuggable even
	// with no EventSink attached (SPEC_FULL.md §4's audit-logging
	// supplement, generalized from the teacher's audit_logger.go).
	AuditLog *obslog.Logger
	RunID    string
}

func (d *Dispatcher) emitWarning(stepID, msg string) {
	if d.Events != nil {
		d.Events.OnWarning(stepID, msg)
	}
}

// Execute runs one step to a terminal StepResult and applies the §4.5
// post-conditions (outputVariable write, stepMetadata write, workflow
// outputs sentinel) before returning.
func (d *Dispatcher) Execute(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) model.StepResult {
	started := time.Now()
	if d.Events != nil {
		d.Events.OnStepStart(step.ID)
	}
	if d.AuditLog != nil {
		d.AuditLog.Debug(d.RunID, step.ID, "step started", map[string]interface{}{"kind": string(step.Kind)})
	}

	var output interface{}
	var retries int
	var err error
	if len(step.Conditions) > 0 {
		res := cond.EvaluateAll(step.Conditions, e)
		if res.Warning != "" {
			d.emitWarning(step.ID, res.Warning)
		}
		if !res.Value {
			err = ErrSkipped
		}
	}
	if err == nil {
		output, retries, err = d.runByKind(ctx, step, e, execCtx, stepIndex)
	}

	status := model.StatusCompleted
	errMsg := ""
	switch {
	case errors.Is(err, ErrSkipped):
		status = model.StatusSkipped
		output = nil
	case err != nil:
		status = model.StatusFailed
		errMsg = err.Error()
		if d.Events != nil {
			d.Events.OnStepError(step.ID, err)
		}
		if d.AuditLog != nil {
			d.AuditLog.Error(d.RunID, step.ID, "step failed", map[string]interface{}{"error": errMsg, "retryCount": retries})
		}
	}

	result := d.finalize(step, e, status, output, errMsg, started, retries)
	if d.Events != nil {
		d.Events.OnStepComplete(result)
	}
	if d.AuditLog != nil && status != model.StatusFailed {
		d.AuditLog.Info(d.RunID, step.ID, "step completed", map[string]interface{}{
			"status":     string(result.Status),
			"retryCount": result.RetryCount,
			"durationMs": result.Duration.Milliseconds(),
		})
	}
	return result
}

func (d *Dispatcher) runByKind(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, int, error) {
	switch step.Kind {
	case model.KindAction:
		return d.Pipeline.RunAction(ctx, d.PipelineCfg, step, e, d.Registry, d.Executor, execCtx, stepIndex)
	case model.KindSubWorkflow:
		return d.runSubWorkflow(ctx, step, e, execCtx, stepIndex)
	case model.KindScript:
		return d.runScript(ctx, step, e, stepIndex)
	case model.KindIf:
		out, err := d.runIf(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	case model.KindSwitch:
		out, err := d.runSwitch(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	case model.KindForEach:
		out, err := d.runForEach(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	case model.KindWhile:
		out, err := d.runWhile(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	case model.KindMap:
		out, err := d.runMap(step, e)
		return out, 0, err
	case model.KindFilter:
		out, err := d.runFilter(step, e)
		return out, 0, err
	case model.KindReduce:
		out, err := d.runReduce(step, e)
		return out, 0, err
	case model.KindParallel:
		out, err := d.runParallel(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	case model.KindTry:
		out, err := d.runTry(ctx, step, e, execCtx, stepIndex)
		return out, 0, err
	default:
		return nil, 0, fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}

func (d *Dispatcher) runSubWorkflow(ctx context.Context, step *model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) (interface{}, int, error) {
	attempt := func(attemptCtx context.Context) (interface{}, error) {
		rendered, _ := tmpl.Render(step.Inputs, e).(map[string]interface{})
		return d.SubWorkflow(attemptCtx, step.WorkflowPath, rendered, step.UseSubagent, step, stepIndex)
	}
	return d.Pipeline.RunGeneric(ctx, d.PipelineCfg, "subworkflow:"+step.WorkflowPath, attempt)
}

func (d *Dispatcher) runScript(ctx context.Context, step *model.Step, e *env.Environment, stepIndex int) (interface{}, int, error) {
	timeout := time.Duration(0)
	if step.Timeout != nil {
		timeout = time.Duration(*step.Timeout * float64(time.Second))
	}
	attempt := func(attemptCtx context.Context) (interface{}, error) {
		rendered, _ := tmpl.Render(step.Inputs, e).(map[string]interface{})
		code, _ := rendered["code"].(string)
		scope := map[string]interface{}{
			"variables": e.SnapshotVariables(),
			"inputs":    e.Inputs,
			"steps":     e.StepMetadata,
		}
		t := timeout
		if t <= 0 {
			t = d.effectiveDefaultTimeout()
		}
		return d.Sandbox.Execute(attemptCtx, code, scope, t)
	}
	return d.Pipeline.RunGeneric(ctx, d.PipelineCfg, "script", attempt)
}

func (d *Dispatcher) effectiveDefaultTimeout() time.Duration {
	if d.PipelineCfg.DefaultTimeout > 0 {
		return d.PipelineCfg.DefaultTimeout
	}
	return 30 * time.Second
}

// finalize applies spec §4.5's uniform per-step post-conditions.
func (d *Dispatcher) finalize(step *model.Step, e *env.Environment, status model.Status, output interface{}, errMsg string, started time.Time, retries int) model.StepResult {
	completedAt := time.Now()

	if status == model.StatusCompleted && step.OutputVar != "" {
		e.Set(step.OutputVar, output)
	}

	e.SetStepMeta(step.ID, env.StepMeta{
		Status:     strings.ToLower(string(status)),
		RetryCount: retries,
		Error:      errMsg,
	})

	if status == model.StatusCompleted {
		if m, ok := output.(map[string]interface{}); ok {
			if wo, ok := m["__workflow_outputs__"]; ok {
				if woMap, ok := wo.(map[string]interface{}); ok {
					e.SetWorkflowOutputs(woMap)
				}
			}
		}
	}

	return model.StepResult{
		StepID:      step.ID,
		Status:      status,
		Output:      output,
		Error:       errMsg,
		StartedAt:   started,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(started),
		RetryCount:  retries,
	}
}

// runSequentialAbortOnFailure executes steps in order; the first failing
// child aborts the scan and its error becomes the caller's error. It
// returns the outputs of children that declared an OutputVariable, in
// order -- the "list of child outputs" spec §4.5 describes for If/Switch.
func (d *Dispatcher) runSequentialAbortOnFailure(ctx context.Context, steps []*model.Step, e *env.Environment, execCtx pipeline.ExecutorContext, stepIndex int) ([]interface{}, error) {
	var outputs []interface{}
	for _, child := range steps {
		result := d.Execute(ctx, child, e, execCtx, stepIndex)
		if result.Status == model.StatusFailed {
			return outputs, fmt.Errorf("%s", result.Error)
		}
		if child.OutputVar != "" && result.Status == model.StatusCompleted {
			outputs = append(outputs, result.Output)
		}
	}
	return outputs, nil
}
