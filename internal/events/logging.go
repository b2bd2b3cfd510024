// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package events

import (
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/obslog"
)

// LoggingSink implements Sink by writing each lifecycle event through an
// obslog.Logger, the "real" EventSink a CLI/service wires in place of
// NoopSink or RecordingSink.
type LoggingSink struct {
	log   *obslog.Logger
	runID string
}

// NewLoggingSink returns a LoggingSink bound to the given run id; runID is
// attached to the step-level lines it emits, while the workflow start and
// complete lines carry the run id handed to those hooks.
func NewLoggingSink(log *obslog.Logger, runID string) *LoggingSink {
	return &LoggingSink{log: log, runID: runID}
}

func (s *LoggingSink) OnStepStart(stepID string) {
	s.log.Debug(s.runID, stepID, "step started", nil)
}

func (s *LoggingSink) OnStepComplete(result model.StepResult) {
	s.log.Info(s.runID, result.StepID, "step completed", map[string]interface{}{
		"status":     string(result.Status),
		"retryCount": result.RetryCount,
		"durationMs": result.Duration.Milliseconds(),
	})
}

func (s *LoggingSink) OnStepError(stepID string, err error) {
	s.log.Error(s.runID, stepID, "step failed", map[string]interface{}{"error": err.Error()})
}

func (s *LoggingSink) OnWarning(stepID string, message string) {
	s.log.Warn(s.runID, stepID, message, nil)
}

func (s *LoggingSink) OnWorkflowStart(workflowID, runID string) {
	s.log.Info(runID, "", "workflow started", map[string]interface{}{"workflowId": workflowID})
}

func (s *LoggingSink) OnWorkflowComplete(result model.WorkflowResult) {
	s.log.Info(result.RunID, "", "workflow completed", map[string]interface{}{
		"workflowId": result.WorkflowID,
		"status":     string(result.Status),
		"durationMs": result.Duration.Milliseconds(),
	})
}
