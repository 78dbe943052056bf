package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMessages(prompt string) []Message {
	return []Message{{Role: RoleUser, Content: prompt}}
}

func TestScript_MatchesFirstRuleBySubstring(t *testing.T) {
	s := NewScript([]ScriptRule{
		{Match: "Grade", Output: `{"score": 7}`},
		{Match: "Write", Output: `{"draft": "text"}`},
	})

	resp, err := s.InvokeStructured(context.Background(), StructuredRequest{
		Messages: userMessages("Write about refunds"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"draft": "text"}`, resp.Raw)
}

func TestScript_EmptyMatchIsCatchAll(t *testing.T) {
	s := NewScript([]ScriptRule{
		{Match: "Grade", Output: `{"score": 7}`},
		{Output: `{"draft": "fallback"}`},
	})

	resp, err := s.InvokeStructured(context.Background(), StructuredRequest{
		Messages: userMessages("something else entirely"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"draft": "fallback"}`, resp.Raw)
}

func TestScript_NoMatchingRule(t *testing.T) {
	s := NewScript([]ScriptRule{{Match: "Grade", Output: `{}`}})

	_, err := s.InvokeStructured(context.Background(), StructuredRequest{
		Messages: userMessages("Write about refunds"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no script rule matches")
}

func TestScript_ToolCallsIssuedOnce(t *testing.T) {
	s := NewScript([]ScriptRule{{
		Match:     "fetch",
		ToolCalls: []ToolCall{{ID: "1", Name: "clock", Arguments: map[string]interface{}{}}},
		Content:   "done",
	}})
	req := ToolRequest{Messages: userMessages("fetch the time")}

	first, err := s.InvokeWithTools(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Message.ToolCalls, 1)
	assert.Equal(t, "clock", first.Message.ToolCalls[0].Name)

	second, err := s.InvokeWithTools(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Message.ToolCalls)
	assert.Equal(t, "done", second.Message.Content)
}

func TestScript_OutputsWalkAndStick(t *testing.T) {
	s := NewScript([]ScriptRule{{
		Match:   "Grade",
		Outputs: []string{"not json", `{"score": 7}`},
	}})
	req := StructuredRequest{Messages: userMessages("Grade this")}

	first, err := s.InvokeStructured(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "not json", first.Raw)

	for i := 0; i < 2; i++ {
		resp, err := s.InvokeStructured(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"score": 7}`, resp.Raw)
	}
}

func TestScript_Fail(t *testing.T) {
	s := NewScript([]ScriptRule{{Match: "Grade", Fail: "rate limited"}})

	_, err := s.InvokeStructured(context.Background(), StructuredRequest{
		Messages: userMessages("Grade this"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = s.InvokeWithTools(context.Background(), ToolRequest{
		Messages: userMessages("Grade this"),
	})
	assert.Error(t, err)
}

func TestScript_ReportsUsage(t *testing.T) {
	s := NewScript([]ScriptRule{{
		Match:  "Grade",
		Output: `{"score": 7}`,
		Usage:  Usage{InputTokens: 100, OutputTokens: 20},
	}})

	resp, err := s.InvokeStructured(context.Background(), StructuredRequest{
		Messages: userMessages("Grade this"),
	})
	require.NoError(t, err)
	assert.Equal(t, 120, resp.Usage.Total())
}

func TestScript_CancelledContext(t *testing.T) {
	s := NewScript([]ScriptRule{{Output: `{}`}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.InvokeStructured(ctx, StructuredRequest{Messages: userMessages("x")})
	assert.ErrorIs(t, err, context.Canceled)
}
