package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"roboctl/pkg/logging"
)

// Server exposes the tools over MCP with an SSE transport.
type Server struct {
	addr    string
	version string
	tools   *Tools

	mu  sync.Mutex
	mcp *server.MCPServer
	sse *server.SSEServer
}

// NewServer creates a server listening on addr once started.
func NewServer(addr, version string, tools *Tools) *Server {
	return &Server{addr: addr, version: version, tools: tools}
}

// MCPServer returns the underlying MCP server, nil before Start.
func (s *Server) MCPServer() *server.MCPServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mcp
}

// Start registers the tools and starts serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mcp != nil {
		return fmt.Errorf("status API already started")
	}

	s.mcp = server.NewMCPServer(
		"roboctl-status",
		s.version,
		server.WithToolCapabilities(true),
	)
	s.mcp.AddTools(s.tools.ServerTools()...)

	s.sse = server.NewSSEServer(
		s.mcp,
		server.WithBaseURL("http://"+s.addr),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	logging.Info("StatusAPI", "Starting status API on %s", s.addr)
	sse := s.sse
	go func() {
		if err := sse.Start(s.addr); err != nil && err != http.ErrServerClosed {
			logging.Error("StatusAPI", err, "SSE server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			logging.Debug("StatusAPI", "Stop after context end: %v", err)
		}
	}()
	return nil
}

// Stop shuts the SSE server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sse := s.sse
	s.sse = nil
	s.mu.Unlock()

	if sse == nil {
		return fmt.Errorf("status API not running")
	}
	logging.Info("StatusAPI", "Stopping status API")
	return sse.Shutdown(ctx)
}
