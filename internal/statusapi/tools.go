package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"roboctl/internal/artifact"
	"roboctl/internal/reporting"
)

// ErrRunNotStarted is returned while no run is attached.
var ErrRunNotStarted = errors.New("run not started")

// RunView is the part of an orchestration run the tools read and control.
type RunView interface {
	ID() string
	State() (reporting.RunState, string)
	Table() []reporting.ServiceStateSnapshot
	Artifacts() *artifact.Set
	Cancel()
}

// ServiceStatus is the JSON form of one status table row.
type ServiceStatus struct {
	Name           string     `json:"name"`
	State          string     `json:"state"`
	ReachedRunning bool       `json:"reached_running"`
	ExitStatus     *int       `json:"exit_status,omitempty"`
	Error          string     `json:"error,omitempty"`
	PID            int        `json:"pid,omitempty"`
	Trigger        string     `json:"trigger,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
}

// RunStatus is the JSON form of the whole run.
type RunStatus struct {
	RunID    string          `json:"run_id"`
	State    string          `json:"state"`
	Reason   string          `json:"reason,omitempty"`
	Services []ServiceStatus `json:"services"`
}

// ArtifactInfo describes one built artifact.
type ArtifactInfo struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Size   int    `json:"size"`
}

func toServiceStatus(snap reporting.ServiceStateSnapshot) ServiceStatus {
	s := ServiceStatus{
		Name:           snap.Name,
		State:          string(snap.State),
		ReachedRunning: snap.ReachedRunning,
		PID:            snap.PID,
		Trigger:        snap.Trigger,
	}
	if snap.State == reporting.StateExited {
		status := snap.ExitStatus
		s.ExitStatus = &status
	}
	if snap.ErrorDetail != nil {
		s.Error = snap.ErrorDetail.Error()
	}
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt
		s.StartedAt = &started
	}
	return s
}

// Tools provides the MCP tools of the status API.
type Tools struct {
	mu  sync.RWMutex
	run RunView
}

// NewTools creates the tools. A run can be attached later with SetRun.
func NewTools(run RunView) *Tools {
	return &Tools{run: run}
}

// SetRun attaches the run the tools report on.
func (t *Tools) SetRun(run RunView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = run
}

func (t *Tools) current() (RunView, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.run == nil {
		return nil, ErrRunNotStarted
	}
	return t.run, nil
}

// GetTools returns the tool definitions.
func (t *Tools) GetTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("run_status",
			mcp.WithDescription("Get the overall run state and the per-service status table"),
		),
		mcp.NewTool("service_status",
			mcp.WithDescription("Get the status of one service"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Service name, e.g. ur_controller"),
			),
		),
		mcp.NewTool("artifact_list",
			mcp.WithDescription("List the artifacts built for the run"),
		),
		mcp.NewTool("run_cancel",
			mcp.WithDescription("Cancel the run and stop every started service"),
		),
	}
}

// ServerTools pairs every tool with its handler.
func (t *Tools) ServerTools() []server.ServerTool {
	handlers := map[string]server.ToolHandlerFunc{
		"run_status":     t.HandleRunStatus,
		"service_status": t.HandleServiceStatus,
		"artifact_list":  t.HandleArtifactList,
		"run_cancel":     t.HandleRunCancel,
	}
	var out []server.ServerTool
	for _, tool := range t.GetTools() {
		out = append(out, server.ServerTool{Tool: tool, Handler: handlers[tool.Name]})
	}
	return out
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// HandleRunStatus handles the run_status tool call
func (t *Tools) HandleRunStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := t.current()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, reason := run.State()
	status := RunStatus{RunID: run.ID(), State: string(state), Reason: reason, Services: []ServiceStatus{}}
	for _, snap := range run.Table() {
		status.Services = append(status.Services, toServiceStatus(snap))
	}
	return jsonResult(status)
}

// HandleServiceStatus handles the service_status tool call
func (t *Tools) HandleServiceStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	run, err := t.current()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	for _, snap := range run.Table() {
		if snap.Name == name {
			return jsonResult(toServiceStatus(snap))
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("%v: %s", reporting.ErrServiceNotFound, name)), nil
}

// HandleArtifactList handles the artifact_list tool call
func (t *Tools) HandleArtifactList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := t.current()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	set := run.Artifacts()
	infos := []ArtifactInfo{}
	for _, name := range set.Names() {
		a, _ := set.Get(name)
		infos = append(infos, ArtifactInfo{Name: string(name), Source: a.Source(), Size: len(a.Document())})
	}
	return jsonResult(infos)
}

// HandleRunCancel handles the run_cancel tool call
func (t *Tools) HandleRunCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := t.current()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run.Cancel()
	return mcp.NewToolResultText(fmt.Sprintf("Cancellation requested for run %s", run.ID())), nil
}
