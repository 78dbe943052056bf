package builtin

import (
	"context"
	"fmt"
	"time"
)

// ClockTool reports the current time. The clock function is injectable so
// workflow tests stay deterministic.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool backed by the system clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

// WithNow overrides the clock function.
func (t *ClockTool) WithNow(now func() time.Time) *ClockTool {
	t.now = now
	return t
}

// Name returns the tool's registered name.
func (t *ClockTool) Name() string {
	return "clock"
}

// Description returns what the tool does.
func (t *ClockTool) Description() string {
	return "Return the current time, optionally formatted with a Go layout string"
}

// Parameters returns the JSON Schema for the tool's arguments.
func (t *ClockTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"layout": map[string]interface{}{
				"type":        "string",
				"description": "Go time layout, defaults to RFC 3339",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone name, defaults to UTC",
			},
		},
	}
}

// Execute returns the formatted current time.
func (t *ClockTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	layout := time.RFC3339
	if l, ok := args["layout"].(string); ok && l != "" {
		layout = l
	}

	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		loc = parsed
	}

	now := t.now().In(loc)
	return map[string]interface{}{
		"time": now.Format(layout),
		"unix": now.Unix(),
	}, nil
}
