// ABOUTME: Tests for dashboard payload parsing into system snapshots.
// ABOUTME: Covers capabilities as arrays or JSON strings and malformed timestamps.

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []string
	}{
		{"array", `{"c":["scan","report"]}`, []string{"scan", "report"}},
		{"encoded string", `{"c":"[\"scan\",\"report\"]"}`, []string{"scan", "report"}},
		{"malformed string", `{"c":"[scan"}`, []string{}},
		{"string of object", `{"c":"{\"a\":1}"}`, []string{}},
		{"missing", `{}`, []string{}},
		{"number", `{"c":42}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCapabilities(gjson.Get(tt.json, "c"))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDashboard_NoStats(t *testing.T) {
	dash, err := ParseDashboard([]byte(`{"agents":[]}`))
	require.NoError(t, err)
	assert.Nil(t, dash.OnlineCount)
	assert.Zero(t, dash.QueuedCommands)
	assert.Empty(t, dash.Agents)
}

func TestParseDashboard_ErrorBody(t *testing.T) {
	_, err := ParseDashboard([]byte(`{"error":"db down"}`))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseDashboard_NotJSON(t *testing.T) {
	_, err := ParseDashboard([]byte(`<html>`))
	assert.Error(t, err)
}

func TestParseLastSeen(t *testing.T) {
	assert.True(t, parseLastSeen("").IsZero())
	assert.True(t, parseLastSeen("yesterday").IsZero())
	assert.Equal(t, 5, parseLastSeen("2026-01-02T03:04:05+00:00").Second())
	assert.Equal(t, 3, parseLastSeen("2026-01-02T03:04:05.123456").Hour())
}
