package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestInitForCLI_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, FormatJSON, &buf)

	Error("Orchestrator", errors.New("boom"), "service %s failed", "spawn_entity")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "service spawn_entity failed", rec["msg"])
	assert.Equal(t, "Orchestrator", rec["subsystem"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "ERROR", rec["level"])
}

func TestInitForCLI_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, FormatText, &buf)

	Info("Resolver", "hidden")
	assert.Empty(t, buf.String())

	Warn("Resolver", "shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "subsystem=Resolver")
}

func TestInitForTUI_SendsEntries(t *testing.T) {
	ch := InitForTUI(LevelInfo)
	defer CloseTUIChannel()

	Debug("EventBus", "dropped by level")
	Info("EventBus", "delivered %d", 1)

	select {
	case entry := <-ch:
		assert.Equal(t, "delivered 1", entry.Message)
		assert.Equal(t, "EventBus", entry.Subsystem)
		assert.Equal(t, LevelInfo, entry.Level)
	default:
		t.Fatal("expected a log entry on the TUI channel")
	}

	select {
	case entry := <-ch:
		t.Fatalf("unexpected extra entry: %+v", entry)
	default:
	}
}
