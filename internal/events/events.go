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

// Package events implements the optional EventSink collaborator (spec §6).
package events

import (
	"sync"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

// Sink is the full EventSink contract: the five step/workflow lifecycle
// hooks plus the condition/template parse-warning channel the engine uses
// for tolerant-but-observable degradation (spec §7.2).
type Sink interface {
	OnStepStart(stepID string)
	OnStepComplete(result model.StepResult)
	OnStepError(stepID string, err error)
	OnWarning(stepID string, message string)
	OnWorkflowStart(workflowID, runID string)
	OnWorkflowComplete(result model.WorkflowResult)
}

// NoopSink implements Sink with no-ops, for callers that don't need
// telemetry.
type NoopSink struct{}

func (NoopSink) OnStepStart(string)                      {}
func (NoopSink) OnStepComplete(model.StepResult)         {}
func (NoopSink) OnStepError(string, error)               {}
func (NoopSink) OnWarning(string, string)                {}
func (NoopSink) OnWorkflowStart(string, string)          {}
func (NoopSink) OnWorkflowComplete(model.WorkflowResult) {}

// RecordingSink buffers every event in memory, grounded on the teacher's
// logging-style "record what happened, inspect later" test doubles. Useful
// in tests and as a CLI --verbose backend.
type RecordingSink struct {
	mu     sync.Mutex
	Events []string
}

func (r *RecordingSink) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, s)
}

func (r *RecordingSink) OnStepStart(stepID string) {
	r.record("step_start:" + stepID)
}

func (r *RecordingSink) OnStepComplete(result model.StepResult) {
	r.record("step_complete:" + result.StepID + ":" + string(result.Status))
}

func (r *RecordingSink) OnStepError(stepID string, err error) {
	r.record("step_error:" + stepID + ":" + err.Error())
}

func (r *RecordingSink) OnWarning(stepID string, message string) {
	r.record("warning:" + stepID + ":" + message)
}

func (r *RecordingSink) OnWorkflowStart(workflowID, runID string) {
	r.record("workflow_start:" + workflowID + ":" + runID)
}

func (r *RecordingSink) OnWorkflowComplete(result model.WorkflowResult) {
	r.record("workflow_complete:" + result.WorkflowID + ":" + string(result.Status))
}

// Snapshot returns a copy of the recorded events so far.
func (r *RecordingSink) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	copy(out, r.Events)
	return out
}
