package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptRule describes how the scripted client answers invocations whose
// resolved prompt contains Match. Rules are tried in order; the first match
// wins. An empty Match matches everything, which makes a trailing catch-all
// rule possible.
type ScriptRule struct {
	// Match is a substring tested against the first user message.
	Match string `yaml:"match" json:"match"`

	// ToolCalls are issued on the first tool-enabled invocation for this
	// rule. Subsequent tool-enabled invocations return Content with no calls,
	// ending the tool loop.
	ToolCalls []ToolCall `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`

	// Content is the assistant text for tool-enabled invocations.
	Content string `yaml:"content,omitempty" json:"content,omitempty"`

	// Output is the raw structured response. If Outputs is set it takes
	// precedence and successive structured invocations walk the slice,
	// sticking on the last entry (useful for exercising retry behavior).
	Output  string   `yaml:"output,omitempty" json:"output,omitempty"`
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Usage is reported on every response for this rule.
	Usage Usage `yaml:"usage,omitempty" json:"usage,omitempty"`

	// Fail simulates a provider failure with the given message.
	Fail string `yaml:"fail,omitempty" json:"fail,omitempty"`
}

// Script is a deterministic Client for workflow tests and offline runs
// ("cascade run --script"). It matches each invocation's prompt against its
// rules and replays canned responses, so workflow definitions can be exercised
// end to end without provider credentials.
type Script struct {
	rules []ScriptRule

	mu         sync.Mutex
	toolIssued map[int]bool
	structHits map[int]int
}

// NewScript creates a scripted client from the given rules.
func NewScript(rules []ScriptRule) *Script {
	return &Script{
		rules:      rules,
		toolIssued: make(map[int]bool),
		structHits: make(map[int]int),
	}
}

// InvokeWithTools implements Client.
func (s *Script) InvokeWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, rule, err := s.match(req.Messages)
	if err != nil {
		return nil, err
	}
	if rule.Fail != "" {
		return nil, fmt.Errorf("scripted provider failure: %s", rule.Fail)
	}

	s.mu.Lock()
	first := !s.toolIssued[idx]
	if len(rule.ToolCalls) > 0 {
		s.toolIssued[idx] = true
	}
	s.mu.Unlock()

	msg := Message{Role: RoleAssistant, Content: rule.Content}
	if first && len(rule.ToolCalls) > 0 {
		msg.ToolCalls = rule.ToolCalls
	}
	return &ToolResponse{Message: msg, Usage: rule.Usage}, nil
}

// InvokeStructured implements Client.
func (s *Script) InvokeStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, rule, err := s.match(req.Messages)
	if err != nil {
		return nil, err
	}
	if rule.Fail != "" {
		return nil, fmt.Errorf("scripted provider failure: %s", rule.Fail)
	}

	raw := rule.Output
	if len(rule.Outputs) > 0 {
		s.mu.Lock()
		hit := s.structHits[idx]
		s.structHits[idx]++
		s.mu.Unlock()
		if hit >= len(rule.Outputs) {
			hit = len(rule.Outputs) - 1
		}
		raw = rule.Outputs[hit]
	}
	return &StructuredResponse{Raw: raw, Usage: rule.Usage}, nil
}

// match finds the first rule whose Match substring appears in the first user
// message of the conversation.
func (s *Script) match(messages []Message) (int, *ScriptRule, error) {
	prompt := ""
	for _, m := range messages {
		if m.Role == RoleUser {
			prompt = m.Content
			break
		}
	}
	for i := range s.rules {
		if s.rules[i].Match == "" || strings.Contains(prompt, s.rules[i].Match) {
			return i, &s.rules[i], nil
		}
	}
	return 0, nil, fmt.Errorf("no script rule matches prompt %q", truncate(prompt, 120))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
