// ABOUTME: Tolerant parsing of the control plane's dashboard and agent payloads.
// ABOUTME: Accepts capabilities as a JSON array or a JSON-encoded string.

package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ParseDashboard decodes a GET /dashboard body. Unknown fields are ignored.
func ParseDashboard(raw []byte) (*Dashboard, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: dashboard response is not JSON", ErrUnavailable)
	}
	doc := gjson.ParseBytes(raw)
	if errField := doc.Get("error"); errField.Exists() && errField.Type != gjson.Null {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, errField.String())
	}

	stats := doc.Get("stats")
	dash := &Dashboard{
		QueuedCommands:  int(stats.Get("queued_commands").Int()),
		RunningCommands: int(stats.Get("running_commands").Int()),
		Agents:          parseAgentRecords(doc.Get("agents")),
	}
	if online := stats.Get("online_count"); online.Exists() && online.Type != gjson.Null {
		n := int(online.Int())
		dash.OnlineCount = &n
	}
	return dash, nil
}

func parseAgentRecords(list gjson.Result) []AgentRecord {
	if !list.IsArray() {
		return nil
	}
	items := list.Array()
	records := make([]AgentRecord, 0, len(items))
	for _, item := range items {
		name := item.Get("name").String()
		displayName := item.Get("display_name").String()
		if displayName == "" {
			displayName = name
		}
		status := item.Get("status").String()
		if status == "" {
			status = "offline"
		}
		records = append(records, AgentRecord{
			Name:         name,
			DisplayName:  displayName,
			Status:       status,
			AgentType:    item.Get("agent_type").String(),
			LastSeen:     parseLastSeen(item.Get("last_seen").String()),
			CurrentTask:  item.Get("current_task").String(),
			Capabilities: ParseCapabilities(item.Get("capabilities")),
		})
	}
	return records
}

// ParseCapabilities coerces a capabilities value into a list. Arrays pass
// through, strings holding a JSON array are decoded, anything else is empty.
func ParseCapabilities(v gjson.Result) []string {
	switch {
	case v.IsArray():
		return stringsOf(v)
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.String())
		if !gjson.Valid(s) {
			return []string{}
		}
		inner := gjson.Parse(s)
		if !inner.IsArray() {
			return []string{}
		}
		return stringsOf(inner)
	default:
		return []string{}
	}
}

func stringsOf(arr gjson.Result) []string {
	items := arr.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

// parseLastSeen accepts RFC 3339 timestamps with or without a zone ("Z" or
// offset). Unparseable values yield the zero time.
func parseLastSeen(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
