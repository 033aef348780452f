// ABOUTME: Tests for the JSON wire codec and the message field contract
// ABOUTME: Agents in other languages depend on these field names and enum numbers

package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, "json", c.Name())
}

func TestCodec_PulseFieldNames(t *testing.T) {
	data, err := codec{}.Marshal(&AgentPulse{
		AgentID:        "A1",
		PulseType:      PulseTypeTaskResult,
		SequenceNumber: 4,
		Result: &TaskResult{
			CommandID:       "cmd-1",
			Status:          TaskStatusSuccess,
			ExecutionTimeMs: 12,
		},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"agent_id": "A1",
		"pulse_type": 3,
		"sequence_number": 4,
		"task_result": {"command_id": "cmd-1", "status": 3, "execution_time_ms": 12}
	}`, string(data))
}

func TestCodec_DecodeDirective(t *testing.T) {
	raw := `{
		"directive_type": 2,
		"sequence_number": 7,
		"ack_for_pulse_id": "3",
		"command": {"command_id": "cmd-7", "command_type": "scan", "payload": {"depth": 2}, "priority": 1},
		"routing": {"target_agent": "A2", "source_agent": "A1"},
		"system_state": {"online_agents": 2, "agents": [{"name": "A1", "status": 2, "agent_type": 1}]}
	}`

	var d OrchestratorDirective
	require.NoError(t, codec{}.Unmarshal([]byte(raw), &d))
	assert.Equal(t, DirectiveTypeExecuteTask, d.GetDirectiveType())
	assert.Equal(t, uint64(7), d.GetSequenceNumber())
	assert.Equal(t, "3", d.GetAckForPulseID())
	assert.Equal(t, "cmd-7", d.GetCommand().GetCommandID())
	assert.Equal(t, map[string]any{"depth": float64(2)}, d.GetCommand().GetPayload())
	assert.Equal(t, "A2", d.GetRouting().GetTargetAgent())
	assert.Equal(t, int32(2), d.GetSystemState().GetOnlineAgents())
	require.Len(t, d.GetSystemState().GetAgents(), 1)
	assert.Equal(t, AgentStatusBusy, d.GetSystemState().GetAgents()[0].Status)
	assert.Equal(t, AgentTypePlanet, d.GetSystemState().GetAgents()[0].AgentType)
}

func TestCodec_EmptyMessage(t *testing.T) {
	var p AgentPulse
	require.NoError(t, codec{}.Unmarshal(nil, &p))
	assert.Equal(t, PulseTypeUnspecified, p.GetPulseType())
}

func TestCodec_InvalidJSON(t *testing.T) {
	var p AgentPulse
	err := codec{}.Unmarshal([]byte("{not json"), &p)
	assert.ErrorContains(t, err, "pulse codec unmarshal")
}

func TestNilGetters(t *testing.T) {
	var p *AgentPulse
	assert.Empty(t, p.GetAgentID())
	assert.Nil(t, p.GetIntent().GetPayload())
	assert.Zero(t, p.GetState().GetMetrics().GetCPUUsagePercent())

	var d *OrchestratorDirective
	assert.Empty(t, d.GetCommand().GetCommandID())
	assert.Nil(t, d.GetSystemState().GetAgents())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "PULSE_TYPE_INTENT", PulseTypeIntent.String())
	assert.Equal(t, "DIRECTIVE_TYPE_ACK", DirectiveTypeAck.String())
	assert.Equal(t, "AGENT_STATUS_OFFLINE", AgentStatusOffline.String())
	assert.Equal(t, "AGENT_TYPE_SWARM", AgentTypeSwarm.String())
	assert.Equal(t, "TASK_STATUS_PARTIAL", TaskStatusPartial.String())
	assert.Equal(t, "42", PulseType(42).String())
}
