// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	name = "virtqmp"

	// DefaultEventTimeout is how long qmp_next_event waits if the caller
	// does not give a timeout.
	DefaultEventTimeout = time.Second

	maxEventTimeout = 60 * time.Second

	noEventText = "no event"
)

// Client is the QMP channel the tools operate on.
type Client interface {
	Submit(ctx context.Context, cmd any) (qmp.Message, error)
	NextEvent(ctx context.Context) (qmp.Event, error)
}

// ExecuteInput is the input of the qmp_execute tool.
type ExecuteInput struct {
	Command   string         `json:"command"             jsonschema:"QMP command name, like query-status or cont"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"optional command arguments"`
}

type nextEventInput struct {
	TimeoutMS *int64 `json:"timeout_ms"`
}

// Server exposes a QMP channel as Model Context Protocol tools.
type Server struct {
	server *mcp.Server
	client Client
	log    *slog.Logger
}

// New creates a new [Server] for the given client.
func New(client Client, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, nil),
		client: client,
		log:    logger,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "qmp_execute",
		Description: "Execute a QMP command on the virtual machine and return " +
			"the raw JSON return value. The machine starts paused, " +
			"use command \"cont\" to start it.",
	}, s.execute)

	s.server.AddTool(&mcp.Tool{
		Name: "qmp_next_event",
		Description: "Wait for the next asynchronous QMP event of the virtual " +
			"machine and return it as JSON.",
		InputSchema: nextEventSchema(),
	}, s.nextEvent)

	return s
}

// Run serves on the given transport until the client disconnects or the
// context is done.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.log.Debug("Serve MCP")

	err := s.server.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// Connect starts a single session on the given transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}

	return session, nil
}

func (s *Server) execute(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExecuteInput,
) (*mcp.CallToolResult, any, error) {
	if input.Command == "" {
		return nil, nil, errors.New("command must not be empty")
	}

	cmd := qmp.Command{Execute: input.Command}
	if len(input.Arguments) > 0 {
		cmd.Arguments = input.Arguments
	}

	s.log.Debug("Execute via MCP", slog.String("command", input.Command))

	value, err := s.client.Submit(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	return textResult(string(value)), nil, nil
}

func (s *Server) nextEvent(
	ctx context.Context,
	req *mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	var input nextEventInput

	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}

	timeout := DefaultEventTimeout
	if input.TimeoutMS != nil {
		timeout = min(time.Duration(*input.TimeoutMS)*time.Millisecond, maxEventTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	event, err := s.client.NextEvent(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return textResult(noEventText), nil
		}

		return errorResult(err), nil
	}

	return textResult(string(event.Raw)), nil
}

func nextEventSchema() *jsonschema.Schema {
	minimum := 0.0
	maximum := float64(maxEventTimeout.Milliseconds())

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"timeout_ms": {
				Type:        "integer",
				Description: "how long to wait for an event in milliseconds",
				Minimum:     &minimum,
				Maximum:     &maximum,
			},
		},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	result := textResult(err.Error())
	result.IsError = true

	return result
}
