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

// Package obslog implements the engine's structured logger, adapted from
// shared/logger's component/instance/container-tagged JSON line format:
// runID/stepID/service replace the teacher's multi-tenant clientID/
// requestID as the dimensions a workflow run's log lines are keyed by.
package obslog

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Logger writes structured JSON log lines for one engine component.
type Logger struct {
	Component  string
	InstanceID string
}

// Entry is one structured log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance_id"`
	RunID     string                 `json:"run_id,omitempty"`
	StepID    string                 `json:"step_id,omitempty"`
	Service   string                 `json:"service,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New returns a Logger for component, tagging entries with INSTANCE_ID from
// the environment when set.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "local"
	}
	return &Logger{Component: component, InstanceID: instanceID}
}

// Log writes one structured entry as a JSON line through the standard
// library logger (stderr unless redirected with log.SetOutput).
func (l *Logger) Log(level Level, runID, stepID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.InstanceID,
		RunID:     runID,
		StepID:    stepID,
		Message:   message,
		Fields:    fields,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: obslog: failed to marshal entry: %v", err)
		return
	}
	log.Println(string(b))
}

func (l *Logger) Info(runID, stepID, message string, fields map[string]interface{}) {
	l.Log(Info, runID, stepID, message, fields)
}

func (l *Logger) Warn(runID, stepID, message string, fields map[string]interface{}) {
	l.Log(Warn, runID, stepID, message, fields)
}

func (l *Logger) Error(runID, stepID, message string, fields map[string]interface{}) {
	l.Log(Error, runID, stepID, message, fields)
}

func (l *Logger) Debug(runID, stepID, message string, fields map[string]interface{}) {
	l.Log(Debug, runID, stepID, message, fields)
}

// WithService returns fields with "service" merged in, for call sites that
// want the service dimension without threading it through every call.
func WithService(service string, fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = service
	return fields
}
