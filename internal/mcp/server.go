// Package mcp serves the notes service as Model Context Protocol tools over
// stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"fission/internal/jsonx"
	"fission/internal/logging"
	"fission/internal/notes"
	"fission/internal/store"
	"fission/internal/summary"
)

const serverName = "fission"

// Server exposes the tool set.
type Server struct {
	svc    *notes.Service
	mcp    *mcpserver.MCPServer
	tools  []mcpserver.ServerTool
	logger logging.Logger
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(svc *notes.Service, version string, logger logging.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("mcp: notes service is required")
	}
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("mcp")
	}
	s := &Server{svc: svc, logger: logger}
	s.tools = s.buildTools()
	s.mcp = mcpserver.NewMCPServer(serverName, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	s.mcp.AddTools(s.tools...)
	return s, nil
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("Serving %d MCP tools on stdio", len(s.tools))
	return mcpserver.ServeStdio(s.mcp)
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Tool.Name)
	}
	return names
}

// Call invokes a registered tool directly.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	for _, t := range s.tools {
		if t.Tool.Name == name {
			req := mcpgo.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = args
			return t.Handler(ctx, req)
		}
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}

func (s *Server) buildTools() []mcpserver.ServerTool {
	styles := make([]string, 0, 4)
	for _, st := range summary.Styles() {
		styles = append(styles, string(st))
	}

	return []mcpserver.ServerTool{
		{
			Tool: mcpgo.NewTool("list_meetings",
				mcpgo.WithDescription("List every recorded meeting with its id and title."),
			),
			Handler: s.listMeetings,
		},
		{
			Tool: mcpgo.NewTool("list_tasks",
				mcpgo.WithDescription("List the action items of one meeting."),
				mcpgo.WithNumber("meeting_id", mcpgo.Required(), mcpgo.Description("Meeting id from list_meetings")),
			),
			Handler: s.listTasks,
		},
		{
			Tool: mcpgo.NewTool("record_meeting",
				mcpgo.WithDescription("Save a meeting transcript and extract its action items with the local model."),
				mcpgo.WithString("title", mcpgo.Required(), mcpgo.Description("Meeting title")),
				mcpgo.WithString("transcript", mcpgo.Description("Transcript text; the title is analysed when empty")),
			),
			Handler: s.recordMeeting,
		},
		{
			Tool: mcpgo.NewTool("extract_action_items",
				mcpgo.WithDescription("Extract action items from text without saving anything."),
				mcpgo.WithString("transcript", mcpgo.Required(), mcpgo.Description("Text to analyse")),
			),
			Handler: s.extractActionItems,
		},
		{
			Tool: mcpgo.NewTool("summarize_meeting",
				mcpgo.WithDescription("Write a short summary of a stored meeting."),
				mcpgo.WithNumber("meeting_id", mcpgo.Required(), mcpgo.Description("Meeting id from list_meetings")),
				mcpgo.WithString("style", mcpgo.Enum(styles...), mcpgo.Description("Summary register; defaults to the saved preference")),
			),
			Handler: s.summarizeMeeting,
		},
	}
}

func (s *Server) listMeetings(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	meetings, err := s.svc.Meetings(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(meetings)
}

func (s *Server) listTasks(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := meetingID(req)
	if err != nil {
		return toolError(err), nil
	}
	tasks, err := s.svc.Tasks(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tasks)
}

func (s *Server) recordMeeting(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return toolError(err), nil
	}
	outcome, err := s.svc.SaveRecording(ctx, title, req.GetString("transcript", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(outcome)
}

func (s *Server) extractActionItems(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	transcript, err := req.RequireString("transcript")
	if err != nil {
		return toolError(err), nil
	}
	res := s.svc.ExtractPreview(ctx, transcript)
	if !res.OK() {
		return mcpgo.NewToolResultError(fmt.Sprintf("%s: %v", res.Status, res.Err)), nil
	}
	return jsonResult(res.Items)
}

func (s *Server) summarizeMeeting(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := meetingID(req)
	if err != nil {
		return toolError(err), nil
	}
	outcome, err := s.svc.Summarize(ctx, id, req.GetString("style", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcpgo.NewToolResultText(outcome.Text), nil
}

func meetingID(req mcpgo.CallToolRequest) (int64, error) {
	raw, err := req.RequireFloat("meeting_id")
	if err != nil {
		return 0, err
	}
	id := int64(raw)
	if id <= 0 || float64(id) != raw {
		return 0, fmt.Errorf("meeting_id must be a positive integer, got %v", raw)
	}
	return id, nil
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func toolError(err error) *mcpgo.CallToolResult {
	msg := err.Error()
	if errors.Is(err, store.ErrNotFound) {
		msg = "meeting or task not found"
	}
	return mcpgo.NewToolResultError(strings.TrimSpace(msg))
}
