package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboctl/internal/artifact"
	"roboctl/internal/reporting"
)

type mockRun struct {
	state     reporting.RunState
	reason    string
	table     []reporting.ServiceStateSnapshot
	cancelled bool
}

func (m *mockRun) ID() string                              { return "run-42" }
func (m *mockRun) State() (reporting.RunState, string)     { return m.state, m.reason }
func (m *mockRun) Table() []reporting.ServiceStateSnapshot { return m.table }
func (m *mockRun) Artifacts() *artifact.Set                { return nil }
func (m *mockRun) Cancel()                                 { m.cancelled = true }

func newMockRun() *mockRun {
	return &mockRun{
		state:  reporting.RunDegraded,
		reason: "failed to start move: no such package",
		table: []reporting.ServiceStateSnapshot{
			{Name: "gazebo", State: reporting.StateRunning, ReachedRunning: true, PID: 4242, Trigger: "root", StartedAt: time.Now()},
			{Name: "spawn_entity", State: reporting.StateExited, ReachedRunning: true, Trigger: "root"},
			{Name: "move", State: reporting.StateExited, ExitStatus: -1, ErrorDetail: errors.New("no such package"), Trigger: "after-delay(ur_controller)+5s"},
		},
	}
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "Expected TextContent")
	return text.Text
}

func TestGetTools(t *testing.T) {
	tools := NewTools(nil).GetTools()

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	assert.Len(t, tools, 4)
	assert.True(t, names["run_status"])
	assert.True(t, names["service_status"])
	assert.True(t, names["artifact_list"])
	assert.True(t, names["run_cancel"])

	for _, st := range NewTools(nil).ServerTools() {
		assert.NotNil(t, st.Handler, st.Tool.Name)
	}
}

func TestHandlers_NoRun(t *testing.T) {
	tools := NewTools(nil)

	result, err := tools.HandleRunStatus(context.Background(), call("run_status", nil))
	assert.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, ErrRunNotStarted.Error(), resultText(t, result))

	result, err = tools.HandleRunCancel(context.Background(), call("run_cancel", nil))
	assert.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRunStatus(t *testing.T) {
	run := newMockRun()
	tools := NewTools(nil)
	tools.SetRun(run)

	result, err := tools.HandleRunStatus(context.Background(), call("run_status", map[string]interface{}{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var status RunStatus
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &status))
	assert.Equal(t, "run-42", status.RunID)
	assert.Equal(t, "Degraded", status.State)
	require.Len(t, status.Services, 3)

	assert.Nil(t, status.Services[0].ExitStatus)
	assert.Equal(t, 4242, status.Services[0].PID)
	require.NotNil(t, status.Services[2].ExitStatus)
	assert.Equal(t, -1, *status.Services[2].ExitStatus)
	assert.Equal(t, "no such package", status.Services[2].Error)
}

func TestHandleServiceStatus(t *testing.T) {
	tools := NewTools(newMockRun())

	result, err := tools.HandleServiceStatus(context.Background(), call("service_status", map[string]interface{}{"name": "spawn_entity"}))
	require.NoError(t, err)
	var status ServiceStatus
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &status))
	assert.Equal(t, "Exited", status.State)
	assert.True(t, status.ReachedRunning)

	result, err = tools.HandleServiceStatus(context.Background(), call("service_status", map[string]interface{}{}))
	assert.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = tools.HandleServiceStatus(context.Background(), call("service_status", map[string]interface{}{"name": "nope"}))
	assert.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "service not found")
}

func TestHandleArtifactList_EmptySet(t *testing.T) {
	tools := NewTools(newMockRun())

	result, err := tools.HandleArtifactList(context.Background(), call("artifact_list", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleRunCancel(t *testing.T) {
	run := newMockRun()
	tools := NewTools(run)

	result, err := tools.HandleRunCancel(context.Background(), call("run_cancel", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.True(t, run.cancelled)
	assert.Contains(t, resultText(t, result), "run-42")
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "test", NewTools(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	assert.NotNil(t, srv.MCPServer())
	assert.Error(t, srv.Start(ctx))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	assert.NoError(t, srv.Stop(stopCtx))
	assert.Error(t, srv.Stop(stopCtx))
}
