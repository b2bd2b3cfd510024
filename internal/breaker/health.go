// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package breaker

import (
	"sync"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

// ToolHealth is the per-alias status record, modeled on the teacher's
// orchestrator.ProviderStatus -- a tool alias plays the same role here that
// an LLM provider name plays there.
type ToolHealth struct {
	Name         string
	Healthy      bool
	RequestCount int64
	ErrorCount   int64
	LastUsed     time.Time
}

// HealthTracker records which tool aliases have recently succeeded or
// failed, and owns the append-only FailoverEvent log. Both are shared across
// an engine instance (including all of its parallel branches), so every
// method takes its own lock rather than requiring external synchronization.
type HealthTracker struct {
	mu        sync.Mutex
	tools     map[string]*ToolHealth
	failovers []model.FailoverEvent
}

// NewHealthTracker returns an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{tools: make(map[string]*ToolHealth)}
}

func (h *HealthTracker) entry(name string) *ToolHealth {
	t, ok := h.tools[name]
	if !ok {
		t = &ToolHealth{Name: name, Healthy: true}
		h.tools[name] = t
	}
	return t
}

// MarkHealthy records a successful invocation against tool alias name.
func (h *HealthTracker) MarkHealthy(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.entry(name)
	t.Healthy = true
	t.RequestCount++
	t.LastUsed = time.Now()
}

// MarkUnhealthy records a failed invocation against tool alias name.
func (h *HealthTracker) MarkUnhealthy(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.entry(name)
	t.Healthy = false
	t.RequestCount++
	t.ErrorCount++
	t.LastUsed = time.Now()
}

// Snapshot returns the current per-tool health status, keyed by alias. This
// backs engine.ToolHealthSnapshot(), the supplemented parallel to the
// teacher's GetProviderStatus (SPEC_FULL.md §4).
func (h *HealthTracker) Snapshot() map[string]ToolHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]ToolHealth, len(h.tools))
	for k, v := range h.tools {
		out[k] = *v
	}
	return out
}

// RecordFailover appends one FailoverEvent to the instance-scoped log.
func (h *HealthTracker) RecordFailover(ev model.FailoverEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failovers = append(h.failovers, ev)
}

// FailoverHistory returns a copy of the failover log, backing
// engine.getFailoverHistory().
func (h *HealthTracker) FailoverHistory() []model.FailoverEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.FailoverEvent, len(h.failovers))
	copy(out, h.failovers)
	return out
}
