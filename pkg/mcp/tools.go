package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/valetiq/valet/internal/assistant"
	"github.com/valetiq/valet/internal/diagram"
)

// handleMessage runs one inbound message through the assistant.
func (s *ValetServer) handleMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError("identity is required"), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message is required"), nil
	}

	in := assistant.Inbound{
		Identity: identity,
		Message:  message,
		Channel:  req.GetString("channel", "mcp"),
		Timezone: req.GetString("timezone", ""),
	}

	reply, handleErr := s.assistant.Handle(ctx, in)
	if handleErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("message handling failed: %v", handleErr)), nil
	}

	out := map[string]any{
		"session_id": reply.SessionID,
		"kind":       string(reply.Kind),
		"text":       reply.Text,
	}
	if reply.AuthURL != "" {
		out["auth_url"] = reply.AuthURL
	}
	if reply.Rich != nil {
		out["rich"] = reply.Rich
	}
	return marshalResult(out)
}

// handleStatus returns the current state of a session's plan.
func (s *ValetServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	rec, getErr := s.store.GetPlan(ctx, sessionID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan lookup failed: %v", getErr)), nil
	}

	steps := make([]map[string]any, 0, len(rec.Plan.Steps))
	for _, step := range rec.Plan.Steps {
		entry := map[string]any{
			"id":     step.ID,
			"type":   step.Type,
			"action": step.Action,
			"state":  string(step.State),
		}
		if step.Result != nil {
			entry["result"] = step.Result
		}
		steps = append(steps, entry)
	}

	out := map[string]any{
		"session_id": rec.SessionID,
		"identity":   rec.Identity,
		"state":      string(rec.State),
		"summary":    rec.Plan.Summary,
		"steps":      steps,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}

	if req.GetString("include_events", "false") == "true" {
		events, evErr := s.store.GetEvents(ctx, sessionID, 0)
		if evErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("event lookup failed: %v", evErr)), nil
		}
		out["events"] = events
	}

	return marshalResult(out)
}

// handleSessions lists an identity's recent sessions.
func (s *ValetServer) handleSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := req.RequireString("identity")
	if err != nil {
		return mcp.NewToolResultError("identity is required"), nil
	}

	limit := 10
	if raw := req.GetString("limit", ""); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limit = n
		}
	}

	recs, listErr := s.store.ListPlansByIdentity(ctx, identity, limit)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session query failed: %v", listErr)), nil
	}

	sessions := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		sessions = append(sessions, map[string]any{
			"session_id": rec.SessionID,
			"state":      string(rec.State),
			"summary":    rec.Plan.Summary,
			"updated_at": rec.UpdatedAt,
		})
	}
	return marshalResult(map[string]any{"sessions": sessions})
}

// handleDiagram renders a session's plan graph as a Mermaid flowchart.
func (s *ValetServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	rec, getErr := s.store.GetPlan(ctx, sessionID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan lookup failed: %v", getErr)), nil
	}

	model := diagram.BuildModel(rec.Plan)
	return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
}

// handleCredential stores, deletes, or lists encrypted bridge credentials.
func (s *ValetServer) handleCredential(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.vault == nil {
		return mcp.NewToolResultError("credential vault is not configured"), nil
	}

	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError("op is required"), nil
	}

	switch op {
	case "store":
		key := req.GetString("key", "")
		value := req.GetString("value", "")
		if key == "" || value == "" {
			return mcp.NewToolResultError("store requires key and value"), nil
		}
		if storeErr := s.vault.Store(ctx, key, []byte(value)); storeErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("store failed: %v", storeErr)), nil
		}
		return marshalResult(map[string]any{"ok": true, "key": key})

	case "delete":
		key := req.GetString("key", "")
		if key == "" {
			return mcp.NewToolResultError("delete requires key"), nil
		}
		if delErr := s.vault.Delete(ctx, key); delErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", delErr)), nil
		}
		return marshalResult(map[string]any{"ok": true, "key": key})

	case "list":
		keys, listErr := s.vault.List(ctx)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"keys": keys})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown op: %s", op)), nil
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
