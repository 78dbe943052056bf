package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/cascade/pkg/errors"
)

func TestResolve(t *testing.T) {
	s, err := BuildSchema(testStateConfig())
	require.NoError(t, err)
	r, err := s.NewRecord(map[string]interface{}{"topic": "refunds"})
	require.NoError(t, err)
	require.NoError(t, r.Apply(Delta{
		"score": float64(7),
		"done":  true,
		"notes": []interface{}{"first", "second"},
	}))

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "string field",
			prompt: "Write about {state.topic}",
			want:   "Write about refunds",
		},
		{
			name:   "whole number renders without decimal",
			prompt: "Score is {state.score}",
			want:   "Score is 7",
		},
		{
			name:   "bool field",
			prompt: "Done: {state.done}",
			want:   "Done: true",
		},
		{
			name:   "list renders as JSON",
			prompt: "Notes: {state.notes}",
			want:   `Notes: ["first","second"]`,
		},
		{
			name:   "multiple placeholders",
			prompt: "{state.topic}/{state.topic}",
			want:   "refunds/refunds",
		},
		{
			name:   "no placeholders",
			prompt: "static prompt",
			want:   "static prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.prompt, r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnsetFieldRendersEmpty(t *testing.T) {
	s, err := BuildSchema(testStateConfig())
	require.NoError(t, err)
	r, err := s.NewRecord(map[string]interface{}{"topic": "x"})
	require.NoError(t, err)

	got, err := Resolve("Done: {state.done}.", r)
	require.NoError(t, err)
	assert.Equal(t, "Done: .", got)
}

func TestResolve_UnknownFieldIsTemplateError(t *testing.T) {
	s, err := BuildSchema(testStateConfig())
	require.NoError(t, err)
	r, err := s.NewRecord(map[string]interface{}{"topic": "x"})
	require.NoError(t, err)

	_, err = Resolve("Write about {state.subject}", r)
	require.Error(t, err)

	var te *errors.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "subject", te.Field)
	assert.Equal(t, "{state.subject}", te.Placeholder)
}
