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

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scottgl9/marktoflow-sub001/internal/breaker"
	"github.com/scottgl9/marktoflow-sub001/internal/dispatch"
	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/rollback"
	"github.com/scottgl9/marktoflow-sub001/internal/sandbox"
	"github.com/scottgl9/marktoflow-sub001/internal/state"
)

// runID mints a unique, time-prefixed identifier (spec §6: "unique,
// time-based"), without relying on a monotonic counter shared across
// engines.
func runID() string {
	return fmt.Sprintf("run-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// Execute runs workflow to completion against inputs, using registry and
// executor as the leaf-step collaborators (spec §6's ToolRegistry and
// StepExecutor). It is the non-recursive entry point; Execute never resolves
// SubWorkflow paths relative to anything but workflow.SourcePath.
func (e *Engine) Execute(ctx context.Context, workflow *model.Workflow, inputs map[string]interface{}, registry pipeline.ToolRegistry, executor pipeline.StepExecutor) model.WorkflowResult {
	environ := env.New(workflow.Metadata.ID, runID(), inputs)
	started := time.Now()

	if e.stateStore != nil {
		_ = e.stateStore.CreateExecution(state.ExecutionRecord{
			RunID:      environ.RunID,
			WorkflowID: workflow.Metadata.ID,
			Status:     model.StatusRunning,
			StartedAt:  started,
		})
	}
	e.events.OnWorkflowStart(workflow.Metadata.ID, environ.RunID)

	basePath := filepath.Dir(workflow.SourcePath)
	d := e.newDispatcher(workflow, registry, executor, basePath, environ.RunID)

	execCtx := pipeline.ExecutorContext{
		Model:    workflow.DefaultModel,
		Agent:    e.cfg.DefaultAgent,
		BasePath: basePath,
	}
	if workflow.Permissions != nil {
		execCtx.Permissions = map[string]interface{}{
			"read":               workflow.Permissions.Read,
			"write":              workflow.Permissions.Write,
			"execute":            workflow.Permissions.Execute,
			"allowedCommands":    workflow.Permissions.AllowedCommands,
			"blockedCommands":    workflow.Permissions.BlockedCommands,
			"allowedDirectories": workflow.Permissions.AllowedDirectories,
			"blockedPaths":       workflow.Permissions.BlockedPaths,
			"network":            workflow.Permissions.Network,
			"allowedHosts":       workflow.Permissions.AllowedHosts,
			"maxFileSize":        workflow.Permissions.MaxFileSize,
		}
	}

	var stepResults []model.StepResult
	finalStatus := model.StatusCompleted
	finalErr := ""

stepLoop:
	for i, step := range workflow.Steps {
		environ.CurrentStepIndex = i
		result := d.Execute(ctx, step, environ, execCtx, i)
		stepResults = append(stepResults, result)

		if result.Status != model.StatusFailed {
			continue
		}

		switch step.ErrorHandling.ActionOrDefault() {
		case model.ErrorActionContinue:
			continue
		case model.ErrorActionRollback:
			finalStatus = model.StatusFailed
			finalErr = result.Error
			if e.cfg.RollbackRegistry != nil {
				snap := rollback.Snapshot{
					WorkflowID: workflow.Metadata.ID,
					RunID:      environ.RunID,
					Inputs:     environ.Inputs,
					Variables:  environ.SnapshotVariables(),
				}
				if rbErr := e.cfg.RollbackRegistry.RollbackAll(ctx, snap); rbErr != nil {
					finalErr = fmt.Sprintf("%s (rollback also failed: %s)", finalErr, rbErr.Error())
				}
			}
			break stepLoop
		default: // stop
			finalStatus = model.StatusFailed
			finalErr = result.Error
			break stepLoop
		}
	}

	completed := time.Now()
	output := environ.WorkflowOutputs
	if output == nil {
		output = environ.SnapshotVariables()
	}

	wfResult := model.WorkflowResult{
		WorkflowID:  workflow.Metadata.ID,
		RunID:       environ.RunID,
		Status:      finalStatus,
		StepResults: stepResults,
		Output:      output,
		Error:       finalErr,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
	}

	if e.stateStore != nil {
		_ = e.stateStore.UpdateExecution(environ.RunID, state.ExecutionRecord{
			RunID:       environ.RunID,
			WorkflowID:  workflow.Metadata.ID,
			Status:      finalStatus,
			StartedAt:   started,
			CompletedAt: &completed,
			Output:      output,
			Error:       finalErr,
		})
	}
	e.events.OnWorkflowComplete(wfResult)

	return wfResult
}

// ExecuteFile parses the workflow at path via the engine's configured
// Parser, then runs it exactly as Execute would.
func (e *Engine) ExecuteFile(ctx context.Context, path string, inputs map[string]interface{}, registry pipeline.ToolRegistry, executor pipeline.StepExecutor) (model.WorkflowResult, error) {
	if e.cfg.Parser == nil {
		return model.WorkflowResult{}, fmt.Errorf("engine: no Parser configured, cannot ExecuteFile")
	}
	workflow, warnings, err := e.cfg.Parser.ParseFile(path)
	if err != nil {
		return model.WorkflowResult{}, fmt.Errorf("engine: parsing %s: %w", path, err)
	}
	for _, w := range warnings {
		e.events.OnWarning(workflow.Metadata.ID, w)
	}
	return e.Execute(ctx, workflow, inputs, registry, executor), nil
}

// newDispatcher builds a Dispatcher bound to one Execute call's registry and
// executor, wiring the SubWorkflow closure back into this engine (agent
// sub-workflows run here; plain sub-workflows run on a fresh child engine)
// so recursion never imports the engine package from dispatch.
func (e *Engine) newDispatcher(workflow *model.Workflow, registry pipeline.ToolRegistry, executor pipeline.StepExecutor, basePath, runID string) *dispatch.Dispatcher {
	d := &dispatch.Dispatcher{
		Pipeline:    e.pipe,
		PipelineCfg: e.cfg.pipelineConfig(),
		Executor:    executor,
		Registry:    registry,
		Sandbox:     sandbox.New(),
		Events:      e.events,
		AuditLog:    e.cfg.AuditLog,
		RunID:       runID,
	}
	d.SubWorkflow = func(ctx context.Context, workflowPath string, inputs map[string]interface{}, useSubagent bool, step *model.Step, stepIndex int) (interface{}, error) {
		if useSubagent {
			return e.runAgentSubWorkflow(ctx, step, workflowPath, inputs, basePath)
		}
		return e.runChildWorkflow(ctx, workflowPath, basePath, inputs, registry, executor)
	}
	return d
}

// runChildWorkflow resolves workflowPath relative to the parent's directory
// and runs it in a fresh child Engine (see childEngine) that shares this
// one's config and health tracker but has its own circuit breakers (spec
// §4.6: sub-workflow steps execute in a new engine instance with the same
// configuration).
func (e *Engine) runChildWorkflow(ctx context.Context, workflowPath, basePath string, inputs map[string]interface{}, registry pipeline.ToolRegistry, executor pipeline.StepExecutor) (interface{}, error) {
	if e.cfg.Parser == nil {
		return nil, fmt.Errorf("engine: sub-workflow %q requires a configured Parser", workflowPath)
	}
	resolved := workflowPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(basePath, workflowPath)
	}
	child, _, err := e.cfg.Parser.ParseFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("engine: parsing sub-workflow %s: %w", resolved, err)
	}

	childEngine := e.childEngine()
	result := childEngine.Execute(ctx, child, inputs, registry, executor)
	if result.Status == model.StatusFailed {
		return nil, fmt.Errorf("%s", result.Error)
	}
	return result.Output, nil
}

// childEngine returns a new Engine that shares this engine's config, health
// tracker, rollback registry and event sink, but gets its own circuit-breaker
// map and Pipeline (spec §4.6, §9: each engine instance owns its breakers; a
// trip inside a sub-workflow must never gate the parent's services).
func (e *Engine) childEngine() *Engine {
	breakers := breaker.NewManager(e.cfg.Breaker)
	return &Engine{
		cfg:        e.cfg,
		events:     e.events,
		stateStore: e.stateStore,
		breakers:   breakers,
		health:     e.health,
		pipe: &pipeline.Pipeline{
			Breakers: breakers,
			Health:   e.health,
			Failover: e.cfg.Failover,
		},
	}
}
