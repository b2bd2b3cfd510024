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

// Package state implements the optional StateStore collaborator (spec §6),
// grounded directly on orchestrator.InMemoryWorkflowStorage: the same
// mutex-guarded map-of-executions shape, adapted to createExecution/
// updateExecution and the engine's ExecutionRecord rather than the
// teacher's LLM-call WorkflowExecution.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

// ExecutionRecord is the persisted shape of one run, written on start and
// again on terminal completion.
type ExecutionRecord struct {
	RunID       string
	WorkflowID  string
	Status      model.Status
	StartedAt   time.Time
	CompletedAt *time.Time
	Output      map[string]interface{}
	Error       string
}

// Store is the consumed StateStore contract.
type Store interface {
	CreateExecution(record ExecutionRecord) error
	UpdateExecution(runID string, patch ExecutionRecord) error
	GetExecution(runID string) (ExecutionRecord, error)
}

// InMemoryStore is a thread-safe map-backed Store, durable only for the
// lifetime of the process (spec §1 Non-goals: no crash-durable resumption).
type InMemoryStore struct {
	mu         sync.RWMutex
	executions map[string]ExecutionRecord
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{executions: make(map[string]ExecutionRecord)}
}

func (s *InMemoryStore) CreateExecution(record ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[record.RunID] = record
	return nil
}

func (s *InMemoryStore) UpdateExecution(runID string, patch ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[runID] = patch
	return nil
}

func (s *InMemoryStore) GetExecution(runID string) (ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[runID]
	if !ok {
		return ExecutionRecord{}, fmt.Errorf("execution not found: %s", runID)
	}
	return rec, nil
}
