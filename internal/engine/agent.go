// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
)

// agentTurnReply is the JSON envelope an agent sub-workflow reply must
// parse into: either it signals completion (with an output or an error), or
// it is treated as an intermediate turn and fed back to the agent.
type agentTurnReply struct {
	Completed bool                   `json:"completed"`
	Output    map[string]interface{} `json:"output"`
	Error     string                 `json:"error"`
}

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// parseAgentReply extracts the JSON control envelope from a raw agent
// reply, preferring a fenced ```json block over the whole text.
func parseAgentReply(raw string) (agentTurnReply, bool) {
	candidate := strings.TrimSpace(raw)
	if m := fencedJSONBlock.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var reply agentTurnReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		return agentTurnReply{}, false
	}
	return reply, true
}

// runAgentSubWorkflow drives a sub-workflow definition through an LLM agent
// instead of the dispatcher (spec §4.6): the agent receives the workflow
// source and is asked to carry it out and report back a JSON envelope, up
// to MaxSubagentTurns. Each turn's health is tracked against the agent's
// alias on the shared HealthTracker for circuit-breaker-style visibility,
// but turns themselves are not retried through the full C4 pipeline -- the
// turn loop already provides the engine's retry budget for this mode.
func (e *Engine) runAgentSubWorkflow(ctx context.Context, step *model.Step, workflowPath string, inputs map[string]interface{}, basePath string) (interface{}, error) {
	if e.cfg.AgentClient == nil {
		return nil, fmt.Errorf("engine: sub-workflow %q requests useSubagent but no AgentClient is configured", workflowPath)
	}

	resolved := workflowPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(basePath, workflowPath)
	}
	source, err := e.cfg.FileReader(resolved)
	if err != nil {
		return nil, fmt.Errorf("engine: reading agent sub-workflow %s: %w", resolved, err)
	}

	agent := step.Agent
	if agent == "" {
		agent = e.cfg.DefaultAgent
	}
	agentModel := step.Model
	if agentModel == "" {
		agentModel = e.cfg.DefaultModel
	}

	maxTurns := e.cfg.MaxSubagentTurns
	if v, ok := step.SubagentConfig["maxTurns"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			maxTurns = n
		}
	}

	systemPrompt := "You are executing a workflow on behalf of an automation engine. " +
		"Carry out the workflow definition below against the given inputs. " +
		"Reply with a single fenced ```json code block containing " +
		`{"completed": bool, "output": object, "error": string}` +
		". Set completed=false only if you need another turn to finish."
	userPrompt := fmt.Sprintf("Workflow definition:\n%s\n\nInputs: %v", string(source), inputs)

	var lastReply string
	for turn := 0; turn < maxTurns; turn++ {
		reply, err := e.cfg.AgentClient.Chat(ChatContext{
			Agent:        agent,
			Model:        agentModel,
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
		})
		if err != nil {
			if e.health != nil {
				e.health.MarkUnhealthy(agent)
			}
			return nil, fmt.Errorf("agent sub-workflow %q, turn %d: %w", workflowPath, turn, err)
		}
		if e.health != nil {
			e.health.MarkHealthy(agent)
		}
		lastReply = reply

		parsed, ok := parseAgentReply(reply)
		if !ok {
			userPrompt = "Your last reply did not contain a valid JSON envelope. " +
				"Reply again with a fenced ```json block matching " +
				`{"completed": bool, "output": object, "error": string}` + "."
			continue
		}
		if !parsed.Completed {
			userPrompt = reply
			continue
		}
		if parsed.Error != "" {
			return nil, fmt.Errorf("agent sub-workflow %q reported: %s", workflowPath, parsed.Error)
		}
		return parsed.Output, nil
	}

	return nil, fmt.Errorf("agent sub-workflow %q exceeded maximum turns (%d); last reply: %.200s", workflowPath, maxTurns, lastReply)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
