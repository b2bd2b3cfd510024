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

// Package breaker implements the per-service circuit breaker half of C4,
// grounded on connectors/sdk's CircuitBreaker: the same closed/open/half-open
// state machine, generalized into a Manager keyed by service name so the
// pipeline can look one up lazily per action.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is one of the three circuit phases.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config tunes a single breaker. Zero values are replaced with the spec §4.4
// defaults by NewManager.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig returns the spec-mandated defaults: threshold 5, 30s
// recovery, 3 half-open admissions.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// OpenError is returned synchronously when a breaker rejects a call.
type OpenError struct {
	Service string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("Circuit breaker open for service: %s", e.Service)
}

// Breaker is one service's state machine. Exported fields are read-only
// snapshots via Snapshot(); all mutation happens through Admit/RecordSuccess/
// RecordFailure under the internal mutex, so breaker transitions stay atomic
// across the parallel branches that may share an engine instance (spec §5).
type Breaker struct {
	mu              sync.Mutex
	cfg             Config
	name            string
	state           State
	failures        int
	lastFailureTime time.Time
	halfOpenCalls   int
}

// Snapshot is a point-in-time copy of breaker state for inspection/telemetry.
type Snapshot struct {
	State           State
	Failures        int
	LastFailureTime time.Time
	HalfOpenCalls   int
}

func newBreaker(name string, cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), name: name, state: Closed}
}

// Admit decides whether a call may proceed, performing the open->half-open
// transition if the recovery timeout has elapsed. It returns an *OpenError
// when the call must be rejected synchronously.
func (b *Breaker) Admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.lastFailureTime) > b.cfg.RecoveryTimeout {
			b.state = HalfOpen
			b.halfOpenCalls = 1
			return nil
		}
		return &OpenError{Service: b.name}
	case HalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return &OpenError{Service: b.name}
		}
		b.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker (from half-open) or simply zeroes the
// failure streak (from closed).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.halfOpenCalls = 0
}

// RecordFailure increments the failure streak, tripping the breaker open
// when it reaches the threshold, or immediately on any half-open failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailureTime = time.Now()

	if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = Open
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.halfOpenCalls = 0
}

// Snapshot copies the breaker's current state out for inspection.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:           b.state,
		Failures:        b.failures,
		LastFailureTime: b.lastFailureTime,
		HalfOpenCalls:   b.halfOpenCalls,
	}
}

// Manager lazily creates and owns one Breaker per service name (the segment
// of an action string up to the first '.'). It lives for the lifetime of a
// single engine instance (spec §9: instance-scoped, never process-global).
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewManager constructs a Manager; a zero-value Config takes spec defaults.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults(), breakers: make(map[string]*Breaker)}
}

// For returns (lazily creating) the breaker for the given service.
func (m *Manager) For(service string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[service]
	if !ok {
		b = newBreaker(service, m.cfg)
		m.breakers[service] = b
	}
	return b
}

// ResetAll resets every breaker the manager has ever created, implementing
// engine.resetCircuitBreakers().
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}

// Service extracts the circuit-breaker bucket key from an action string:
// the substring up to (not including) the first '.'.
func Service(action string) string {
	for i := 0; i < len(action); i++ {
		if action[i] == '.' {
			return action[:i]
		}
	}
	return action
}
