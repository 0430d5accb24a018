package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const queryLimitMax = 500

func (s *Server) registerTools() {
	// query_graph — filtered node lookup over the provenance graph.
	s.mcpServer.AddTool(
		mcplib.NewTool("query_graph",
			mcplib.WithDescription(`Query provenance nodes by label and property filters.

Node labels include A2ATask, A2ATaskExecution, A2ATaskState, A2AMessage,
A2AMessageProcessing, LlmCall, LlmPrompt, ToolCall, ToolArgs, AgentBoot,
AgentArchive, AgentRuntimeInstance and Artifact. Every node carries a
unique "name" property plus context_id, event_id and task_id where known.

EXAMPLE: node_label="LlmCall" with filters {"task_id": "t1"} returns all
LLM calls recorded for task t1.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("node_label",
				mcplib.Description("Node label to match. Omit to match any label."),
			),
			mcplib.WithObject("filters",
				mcplib.Description("Property equality filters, e.g. {\"task_id\": \"t1\"}. String, number and boolean values are supported."),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum nodes to return"),
				mcplib.Min(1),
				mcplib.Max(queryLimitMax),
				mcplib.DefaultNumber(25),
			),
		),
		s.handleQueryGraph,
	)

	// graph_stats — node and edge counts.
	s.mcpServer.AddTool(
		mcplib.NewTool("graph_stats",
			mcplib.WithDescription("Report the total number of nodes and edges in the provenance graph"),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleGraphStats,
	)
}

func (s *Server) handleQueryGraph(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.querier == nil {
		return mcplib.NewToolResultError("graph backend does not support queries"), nil
	}

	label := request.GetString("node_label", "")
	limit := request.GetInt("limit", 25)
	if limit < 1 || limit > queryLimitMax {
		return mcplib.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", queryLimitMax)), nil
	}

	args := request.GetArguments()
	filters, _ := args["filters"].(map[string]any)

	query, err := buildNodeQuery(label, filters, limit)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	columns, rows, err := s.querier.Query(ctx, query)
	if err != nil {
		s.logger.Warn("graph query failed", "error", err)
		return mcplib.NewToolResultErrorFromErr("graph query failed", err), nil
	}

	out := map[string]any{
		"columns": columns,
		"rows":    rows,
		"count":   len(rows),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleGraphStats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to read graph stats", err), nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal stats", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// buildNodeQuery renders a read-only Cypher match. Labels and property
// names are restricted to identifier characters; values are emitted as
// JSON literals, which Cypher accepts for strings, numbers and booleans.
func buildNodeQuery(label string, filters map[string]any, limit int) (string, error) {
	var b strings.Builder
	b.WriteString("MATCH (n")
	if label != "" {
		if !identifierPattern.MatchString(label) {
			return "", fmt.Errorf("invalid node label %q", label)
		}
		b.WriteString(":")
		b.WriteString(label)
	}
	b.WriteString(")")

	if len(filters) > 0 {
		keys := make([]string, 0, len(filters))
		for k := range filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if !identifierPattern.MatchString(k) {
				return "", fmt.Errorf("invalid filter property %q", k)
			}
			switch filters[k].(type) {
			case string, float64, int, int64, bool:
			default:
				return "", fmt.Errorf("unsupported filter value for %q", k)
			}
			val, err := json.Marshal(filters[k])
			if err != nil {
				return "", fmt.Errorf("encode filter value for %q: %w", k, err)
			}
			parts = append(parts, fmt.Sprintf("n.%s = %s", k, val))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	fmt.Fprintf(&b, " RETURN n.name, labels(n), n LIMIT %d", limit)
	return b.String(), nil
}
