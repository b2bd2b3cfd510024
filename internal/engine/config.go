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

// Package engine implements C6, the Workflow Runner: the top-level loop
// over a workflow's steps, final status determination, workflow-level
// output extraction, optional StateStore/EventSink wiring, and sub-workflow
// recursion (including agent sub-workflows). It is grounded on
// orchestrator.LLMRouter's constructor-with-config-struct shape and
// workflow_engine.go's execution-record lifecycle, generalized from LLM
// call routing to the full step-kind sum type.
package engine

import (
	"os"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/breaker"
	"github.com/scottgl9/marktoflow-sub001/internal/events"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/obslog"
	"github.com/scottgl9/marktoflow-sub001/internal/pipeline"
	"github.com/scottgl9/marktoflow-sub001/internal/rollback"
	"github.com/scottgl9/marktoflow-sub001/internal/state"
)

// Parser is the consumed collaborator used to resolve SubWorkflow steps.
type Parser interface {
	ParseFile(path string) (*model.Workflow, []string, error)
}

// AgentClient is called directly, once per turn, by agent sub-workflows
// (spec §4.6); agent turns are not action steps and do not pass through the
// tool registry, StepExecutor or retry pipeline.
type AgentClient interface {
	Chat(ctx ChatContext) (string, error)
}

// ChatContext is the request shape handed to an AgentClient.
type ChatContext struct {
	Agent        string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Config is the Engine's fixed, constructor-time configuration (spec §6's
// `Engine(config, events?, stateStore?)`).
type Config struct {
	DefaultTimeout   time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ExponentialBase  float64
	Jitter           float64
	Breaker          breaker.Config
	Failover         pipeline.FailoverConfig
	RollbackRegistry rollback.Registry
	HealthTracker    *breaker.HealthTracker
	DefaultAgent     string
	DefaultModel     string
	MaxSubagentTurns int

	Parser      Parser
	AgentClient AgentClient

	// FileReader reads a workflow/agent file's raw text; defaults to
	// os.ReadFile. Overridable for tests.
	FileReader func(path string) ([]byte, error)

	// AuditLog, when set, receives one structured log line per step
	// transition independent of whatever events.Sink is attached
	// (SPEC_FULL.md §4's audit-logging supplement). Defaults to an
	// obslog.Logger tagged "engine" so the engine is debuggable with zero
	// configuration; pass a no-op-friendly logger or leave the default --
	// there is no off switch, matching the teacher's own
	// always-on audit_logger.go.
	AuditLog *obslog.Logger
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.ExponentialBase <= 0 {
		c.ExponentialBase = 2
	}
	if c.Jitter == 0 {
		c.Jitter = 0.1
	}
	if c.MaxSubagentTurns <= 0 {
		c.MaxSubagentTurns = 5
	}
	if c.FileReader == nil {
		c.FileReader = os.ReadFile
	}
	if c.AuditLog == nil {
		c.AuditLog = obslog.New("engine")
	}
	return c
}

func (c Config) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxRetries:      c.MaxRetries,
		BaseDelay:       c.RetryBaseDelay,
		MaxDelay:        c.RetryMaxDelay,
		ExponentialBase: c.ExponentialBase,
		Jitter:          c.Jitter,
		DefaultTimeout:  c.DefaultTimeout,
	}
}

// Engine is the top-level, instance-scoped runner. Circuit breakers, the
// health tracker, and the failover log live here for the engine's lifetime
// (spec §9: never process-global); sub-workflow child engines share the
// health tracker by reference but get their own circuit breakers.
type Engine struct {
	cfg        Config
	events     events.Sink
	stateStore state.Store
	breakers   *breaker.Manager
	health     *breaker.HealthTracker
	pipe       *pipeline.Pipeline
}

// New constructs an Engine. events and stateStore may be nil.
func New(cfg Config, sink events.Sink, store state.Store) *Engine {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = events.NoopSink{}
	}

	health := cfg.HealthTracker
	if health == nil {
		health = breaker.NewHealthTracker()
	}

	breakers := breaker.NewManager(cfg.Breaker)

	return &Engine{
		cfg:        cfg,
		events:     sink,
		stateStore: store,
		breakers:   breakers,
		health:     health,
		pipe: &pipeline.Pipeline{
			Breakers: breakers,
			Health:   health,
			Failover: cfg.Failover,
		},
	}
}

// GetFailoverHistory returns the engine's failover log.
func (e *Engine) GetFailoverHistory() []model.FailoverEvent {
	return e.health.FailoverHistory()
}

// ResetCircuitBreakers resets every breaker this engine has created.
func (e *Engine) ResetCircuitBreakers() {
	e.breakers.ResetAll()
}

// ResetCircuitBreaker resets only the named service's breaker. This is a
// supplement beyond the literal spec surface (SPEC_FULL.md §4), parallel to
// the teacher's per-provider granularity elsewhere in the router.
func (e *Engine) ResetCircuitBreaker(service string) {
	e.breakers.For(service).Reset()
}

// ToolHealthSnapshot returns the current per-tool-alias health, the
// supplemented parallel to orchestrator.LLMRouter.GetProviderStatus.
func (e *Engine) ToolHealthSnapshot() map[string]breaker.ToolHealth {
	return e.health.Snapshot()
}
