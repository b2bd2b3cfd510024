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

// Package pipeline implements C4: the retry + circuit-breaker + failover
// pipeline that wraps every leaf (action/sub-workflow/script) step
// invocation. It is grounded on connectors/sdk's RetryWithBackoff and
// CircuitBreaker, generalized from a single HTTP-ish call into the engine's
// step model and extended with the fallback-tool substitution described in
// spec §4.4.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/breaker"
	"github.com/scottgl9/marktoflow-sub001/internal/env"
	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/tmpl"
)

// ToolRegistry is the consumed collaborator from spec §6.
type ToolRegistry interface {
	Load(name string) (interface{}, error)
	Has(name string) bool
}

// ExecutorContext carries the effective model/agent/permissions/security
// policy/base path through to a StepExecutor invocation.
type ExecutorContext struct {
	Model          string
	Agent          string
	Permissions    map[string]interface{}
	SecurityPolicy interface{}
	BasePath       string
}

// StepExecutor is the single hook through which external effects happen.
// The step it receives carries already-rendered Inputs for this attempt.
type StepExecutor func(ctx context.Context, step *model.Step, e *env.Environment, registry ToolRegistry, execCtx ExecutorContext) (interface{}, error)

// Config holds the step-then-engine-then-default tunables for one pipeline
// invocation (spec §4.4).
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          float64
	DefaultTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExponentialBase <= 0 {
		c.ExponentialBase = 2
	}
	if c.Jitter == 0 {
		c.Jitter = 0.1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	return c
}

// FailoverConfig configures the fallback-tool substitution stage.
type FailoverConfig struct {
	FailoverOnTimeout     bool
	FailoverOnStepFailure bool
	FallbackAgents        []string
	MaxFailoverAttempts   int
}

// Pipeline executes leaf steps with retry, a shared circuit-breaker Manager,
// and failover, recording outcomes on a shared HealthTracker. Breakers and
// health are intentionally *not* owned by Pipeline: they are engine-instance
// scoped (spec §9). Health is shared with sub-workflow child engines; each
// child engine gets its own breaker Manager.
type Pipeline struct {
	Breakers *breaker.Manager
	Health   *breaker.HealthTracker
	Failover FailoverConfig
}

// timedOutErr is returned on attempt-deadline expiry; its message must
// contain the literal substring "timed out" (spec §4.4, §7.3).
func timedOutErr(d time.Duration) error {
	return fmt.Errorf("step execution timed out after %s", d)
}

func effectiveTimeout(step *model.Step, cfg Config) time.Duration {
	if step.Timeout != nil && *step.Timeout > 0 {
		return time.Duration(*step.Timeout * float64(time.Second))
	}
	return cfg.DefaultTimeout
}

func effectiveMaxRetries(step *model.Step, cfg Config) int {
	if step.ErrorHandling != nil && step.ErrorHandling.MaxRetries != nil {
		return *step.ErrorHandling.MaxRetries
	}
	return cfg.MaxRetries
}

// computeDelay implements spec §4.4's backoff formula exactly: clamp the
// exponential delay to maxDelay, then perturb by uniform jitter in
// [-jitter, +jitter] of that clamped delay, clamped again to non-negative.
func computeDelay(cfg Config, attempt int) time.Duration {
	raw := float64(cfg.BaseDelay) * pow(cfg.ExponentialBase, float64(attempt))
	clamped := raw
	if clamped > float64(cfg.MaxDelay) {
		clamped = float64(cfg.MaxDelay)
	}
	if clamped < 0 {
		clamped = 0
	}
	jitterRange := clamped * cfg.Jitter
	perturbed := clamped + jitterRange*(rand.Float64()*2-1)
	if perturbed < 0 {
		perturbed = 0
	}
	return time.Duration(perturbed)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// runAttempt races fn against the per-attempt timeout.
func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type res struct {
		val interface{}
		err error
	}
	done := make(chan res, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- res{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
			return nil, timedOutErr(timeout)
		}
		return r.val, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timedOutErr(timeout)
	}
}

// retryLoop runs attempt 0..maxRetries inclusive through the breaker for
// service, sleeping on backoff between attempts, and returns the observed
// retry count alongside the final result.
func (p *Pipeline) retryLoop(ctx context.Context, service string, cfg Config, attempt func(ctx context.Context) (interface{}, error)) (interface{}, int, error) {
	brk := p.Breakers.For(service)

	var lastErr error
	for n := 0; n <= cfg.MaxRetries; n++ {
		if err := brk.Admit(); err != nil {
			return nil, n, err
		}

		timeout := cfg.DefaultTimeout
		val, err := runAttempt(ctx, timeout, attempt)
		if err == nil {
			brk.RecordSuccess()
			return val, n, nil
		}

		brk.RecordFailure()
		lastErr = err

		if n >= cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, n, ctx.Err()
		}

		delay := computeDelay(cfg, n)
		select {
		case <-ctx.Done():
			return nil, n, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, cfg.MaxRetries, lastErr
}

// methodSuffix returns everything after the first '.' in an action string.
func methodSuffix(action string) string {
	for i := 0; i < len(action); i++ {
		if action[i] == '.' {
			return action[i+1:]
		}
	}
	return ""
}

// RunAction executes step through the full retry+breaker loop, then -- for
// Action steps only -- the failover stage on terminal failure. Each attempt
// renders step.Inputs and invokes executor. The dispatcher sends Action
// steps here; SubWorkflow/Script steps go through RunGeneric with their own
// attempt closures. A step-level errorHandling.retryDelaySeconds replaces
// cfg.BaseDelay.
func (p *Pipeline) RunAction(ctx context.Context, cfg Config, step *model.Step, e *env.Environment, registry ToolRegistry, executor StepExecutor, execCtx ExecutorContext, stepIndex int) (interface{}, int, error) {
	cfg = cfg.withDefaults()
	cfg.MaxRetries = effectiveMaxRetries(step, cfg)
	cfg.DefaultTimeout = effectiveTimeout(step, cfg)
	if step.ErrorHandling != nil && step.ErrorHandling.RetryDelaySecond != nil {
		cfg.BaseDelay = time.Duration(*step.ErrorHandling.RetryDelaySecond * float64(time.Second))
	}

	service := breaker.Service(step.Action)

	attempt := func(attemptCtx context.Context) (interface{}, error) {
		rendered, _ := tmpl.Render(step.Inputs, e).(map[string]interface{})
		renderedStep := *step
		renderedStep.Inputs = rendered
		return executor(attemptCtx, &renderedStep, e, registry, execCtx)
	}

	val, retries, err := p.retryLoop(ctx, service, cfg, attempt)
	if err == nil {
		if p.Health != nil {
			p.Health.MarkHealthy(service)
		}
		return val, retries, nil
	}

	if step.Kind != model.KindAction {
		return nil, retries, err
	}

	fv, handled, ferr := p.failover(ctx, cfg, step, e, registry, executor, execCtx, stepIndex, service, err)
	if handled {
		return fv, retries, nil
	}
	return nil, retries, ferr
}

// failover implements spec §4.4's fallback-tool substitution.
func (p *Pipeline) failover(ctx context.Context, cfg Config, step *model.Step, e *env.Environment, registry ToolRegistry, executor StepExecutor, execCtx ExecutorContext, stepIndex int, primaryAlias string, primaryErr error) (interface{}, bool, error) {
	msg := primaryErr.Error()
	timedOut := strings.Contains(msg, "timed out")

	if timedOut && !p.Failover.FailoverOnTimeout {
		if p.Health != nil {
			p.Health.MarkUnhealthy(primaryAlias)
		}
		return nil, false, primaryErr
	}
	if !timedOut && !p.Failover.FailoverOnStepFailure {
		if p.Health != nil {
			p.Health.MarkUnhealthy(primaryAlias)
		}
		return nil, false, primaryErr
	}
	if p.Health != nil {
		p.Health.MarkUnhealthy(primaryAlias)
	}

	reason := model.FailoverReasonStepFailure
	if timedOut {
		reason = model.FailoverReasonTimeout
	}

	method := methodSuffix(step.Action)
	attempts := 0
	maxAttempts := p.Failover.MaxFailoverAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(p.Failover.FallbackAgents)
	}

	for _, fallbackTool := range p.Failover.FallbackAgents {
		if fallbackTool == primaryAlias {
			continue
		}
		if attempts >= maxAttempts {
			break
		}
		attempts++

		fallbackStep := *step
		fallbackStep.Action = fallbackTool + "." + method

		attempt := func(attemptCtx context.Context) (interface{}, error) {
			rendered, _ := tmpl.Render(fallbackStep.Inputs, e).(map[string]interface{})
			renderedStep := fallbackStep
			renderedStep.Inputs = rendered
			return executor(attemptCtx, &renderedStep, e, registry, execCtx)
		}

		val, _, err := p.retryLoop(ctx, fallbackTool, cfg, attempt)
		if err == nil {
			if p.Health != nil {
				p.Health.MarkHealthy(fallbackTool)
				p.Health.RecordFailover(model.FailoverEvent{
					Timestamp: time.Now(),
					FromAgent: primaryAlias,
					ToAgent:   fallbackTool,
					Reason:    reason,
					StepIndex: stepIndex,
					Error:     msg,
				})
			}
			return val, true, nil
		}
		if p.Health != nil {
			p.Health.MarkUnhealthy(fallbackTool)
		}
	}

	return nil, false, primaryErr
}

// RunGeneric runs attempt through the retry+breaker loop under the given
// service bucket, without the failover stage (which applies only to Action
// steps). SubWorkflow and Script steps use this.
func (p *Pipeline) RunGeneric(ctx context.Context, cfg Config, service string, attempt func(ctx context.Context) (interface{}, error)) (interface{}, int, error) {
	cfg = cfg.withDefaults()
	val, retries, err := p.retryLoop(ctx, service, cfg, attempt)
	if err == nil && p.Health != nil {
		p.Health.MarkHealthy(service)
	} else if err != nil && p.Health != nil {
		p.Health.MarkUnhealthy(service)
	}
	return val, retries, err
}

// ErrNotSequence is the canonical error for control-flow steps whose items
// expression does not resolve to a sequence (spec §7.7).
var ErrNotSequence = errors.New("Items must be an array")
