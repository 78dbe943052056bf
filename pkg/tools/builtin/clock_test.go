package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockTool_Execute(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tool := NewClockTool().WithNow(func() time.Time { return fixed })

	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", result["time"])
	assert.Equal(t, fixed.Unix(), result["unix"])
}

func TestClockTool_CustomLayout(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tool := NewClockTool().WithNow(func() time.Time { return fixed })

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"layout": "2006-01-02",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", result["time"])
}

func TestClockTool_UnknownTimezone(t *testing.T) {
	tool := NewClockTool()

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"timezone": "Not/AZone",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timezone")
}

func TestClockTool_Metadata(t *testing.T) {
	tool := NewClockTool()
	assert.Equal(t, "clock", tool.Name())
	assert.NotEmpty(t, tool.Description())
}
