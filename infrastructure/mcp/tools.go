package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/agent-registry/application"
	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// Tool names.
const (
	ToolRegisterAgent = "register_agent"
	ToolListAgents    = "list_agents"
	ToolSearchAgents  = "search_agents"
	ToolGetAgent      = "get_agent"
	ToolUpdateAgent   = "update_agent"
	ToolDeleteAgent   = "delete_agent"
	ToolGetAgentFacts = "get_agent_facts"
	ToolHealthCheck   = "health_check"
)

// ErrorPayload is returned in place of a result when a call fails.
type ErrorPayload struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Tool is one registry operation callable over MCP.
type Tool struct {
	Name        string
	Description string
	call        func(ctx context.Context, input json.RawMessage) (any, error)
}

// Call runs the tool and returns its JSON result. Failures are encoded as
// an ErrorPayload, never as a protocol error.
func (t Tool) Call(ctx context.Context, input json.RawMessage) string {
	result, err := t.call(ctx, input)
	if err != nil {
		return encode(errorPayload(err))
	}
	return encode(result)
}

type agentIDInput struct {
	AgentID string `json:"agent_id"`
}

type listInput struct {
	Status registry.Status `json:"status"`
}

type updateInput struct {
	AgentID string `json:"agent_id"`
	registry.AgentUpdate
}

type factsInput struct {
	Username string `json:"username"`
	AgentID  string `json:"agent_id"`
}

// inputError marks undecodable tool arguments.
type inputError struct {
	err error
}

func (e *inputError) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.err)
}

func (e *inputError) Unwrap() error { return e.err }

// Tools builds the registry tool set over svc.
func Tools(svc application.Registry) []Tool {
	return []Tool{
		{
			Name:        ToolRegisterAgent,
			Description: "Register or re-register an agent and publish its facts document",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var reg registry.AgentRegistration
				if err := decode(input, &reg); err != nil {
					return nil, err
				}
				return svc.Register(ctx, reg)
			},
		},
		{
			Name:        ToolListAgents,
			Description: "List registered agents, optionally filtered by status",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in listInput
				if err := decode(input, &in); err != nil {
					return nil, err
				}
				agents, err := svc.List(ctx, in.Status)
				if err != nil {
					return nil, err
				}
				return map[string]any{"agents": agents, "count": len(agents)}, nil
			},
		},
		{
			Name:        ToolSearchAgents,
			Description: "Search agents by capabilities, domain and free text",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var q registry.SearchQuery
				if err := decode(input, &q); err != nil {
					return nil, err
				}
				agents, err := svc.Search(ctx, q)
				if err != nil {
					return nil, err
				}
				return map[string]any{"agents": agents, "count": len(agents)}, nil
			},
		},
		{
			Name:        ToolGetAgent,
			Description: "Get the full record of an agent",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in agentIDInput
				if err := decodeAgentID(input, &in); err != nil {
					return nil, err
				}
				return svc.Get(ctx, in.AgentID)
			},
		},
		{
			Name:        ToolUpdateAgent,
			Description: "Update selected fields of an agent; facts are not regenerated",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in updateInput
				if err := decode(input, &in); err != nil {
					return nil, err
				}
				if strings.TrimSpace(in.AgentID) == "" {
					return nil, registry.NewValidationError("agent_id", "agent_id is required")
				}
				return svc.Update(ctx, in.AgentID, in.AgentUpdate)
			},
		},
		{
			Name:        ToolDeleteAgent,
			Description: "Delete an agent record; its facts document is kept",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in agentIDInput
				if err := decodeAgentID(input, &in); err != nil {
					return nil, err
				}
				return svc.Delete(ctx, in.AgentID)
			},
		},
		{
			Name:        ToolGetAgentFacts,
			Description: "Get the facts document of an agent by username or agent id",
			call: func(ctx context.Context, input json.RawMessage) (any, error) {
				var in factsInput
				if err := decode(input, &in); err != nil {
					return nil, err
				}
				username := strings.TrimSpace(in.Username)
				if username == "" && strings.TrimSpace(in.AgentID) != "" {
					username = registry.Username(in.AgentID)
				}
				if username == "" {
					return nil, registry.NewValidationError("username", "username or agent_id is required")
				}
				return svc.GetAgentFacts(ctx, username)
			},
		},
		{
			Name:        ToolHealthCheck,
			Description: "Report the health of the registry storage",
			call: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return svc.HealthCheck(ctx), nil
			},
		},
	}
}

func decode(input json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &inputError{err: err}
	}
	return nil
}

func decodeAgentID(input json.RawMessage, in *agentIDInput) error {
	if err := decode(input, in); err != nil {
		return err
	}
	if strings.TrimSpace(in.AgentID) == "" {
		return registry.NewValidationError("agent_id", "agent_id is required")
	}
	return nil
}

func errorPayload(err error) ErrorPayload {
	kind := registry.ErrorKind(err)
	var ie *inputError
	if errors.As(err, &ie) {
		kind = "validation"
	}
	return ErrorPayload{Status: "error", Kind: kind, Message: err.Error()}
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(ErrorPayload{Status: "error", Kind: "internal", Message: err.Error()})
	}
	return string(data)
}
