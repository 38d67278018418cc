// Package chread provides read access to the ClickHouse decision_events
// table for the listing and analytics API.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse decision_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// DecisionRow represents a single row from the decision_events table.
type DecisionRow struct {
	RequestID        string
	AgentID          string
	ConversationID   string
	Timestamp        time.Time
	ToolName         string
	ArgumentsPreview string
	ContextTrusted   uint8
	Allowed          uint8
	Reason           string
	PolicyID         string
	InternalTool     uint8
	LatencyMs        float32
	Source           string
}

// ListDecisionsParams holds filters and pagination for decision listing.
type ListDecisionsParams struct {
	AgentID        string
	ToolName       *string
	Allowed        *bool
	ContextTrusted *bool
	ConversationID *string
	StartTime      *time.Time
	EndTime        *time.Time
	Page           int
	PageSize       int
}

const decisionColumns = "request_id, agent_id, conversation_id, timestamp, " +
	"tool_name, arguments_preview, context_trusted, allowed, reason, " +
	"policy_id, internal_tool, latency_ms, source"

// ListDecisions returns paginated, filtered decision events and the total count.
func (r *Reader) ListDecisions(ctx context.Context, params ListDecisionsParams) ([]DecisionRow, int, error) {
	conditions := []string{"agent_id = @agent_id"}
	args := []any{
		clickhouse.Named("agent_id", params.AgentID),
	}

	if params.ToolName != nil {
		conditions = append(conditions, "tool_name = @tool_name")
		args = append(args, clickhouse.Named("tool_name", *params.ToolName))
	}
	if params.Allowed != nil {
		conditions = append(conditions, "allowed = @allowed")
		args = append(args, clickhouse.Named("allowed", boolParam(*params.Allowed)))
	}
	if params.ContextTrusted != nil {
		conditions = append(conditions, "context_trusted = @context_trusted")
		args = append(args, clickhouse.Named("context_trusted", boolParam(*params.ContextTrusted)))
	}
	if params.ConversationID != nil {
		conditions = append(conditions, "conversation_id = @conversation_id")
		args = append(args, clickhouse.Named("conversation_id", *params.ConversationID))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM decision_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM decision_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		decisionColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDecisions query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []DecisionRow
	for rows.Next() {
		var d DecisionRow
		if err := scanDecision(rows, &d); err != nil {
			return nil, 0, fmt.Errorf("ListDecisions scan: %w", err)
		}
		decisions = append(decisions, d)
	}

	return decisions, int(total), rows.Err()
}

// GetDecision returns a single decision by agent ID and request ID, or nil
// if not found.
func (r *Reader) GetDecision(ctx context.Context, agentID, requestID string) (*DecisionRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM decision_events WHERE agent_id = @agent_id AND request_id = @request_id", decisionColumns),
		clickhouse.Named("agent_id", agentID),
		clickhouse.Named("request_id", requestID),
	)

	var d DecisionRow
	if err := scanDecision(row, &d); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, fmt.Errorf("GetDecision: %w", err)
	}
	return &d, nil
}

// DecisionSummary holds aggregate counts for an agent.
type DecisionSummary struct {
	Total          int
	Allowed        int
	Blocked        int
	UntrustedCalls int
}

// Summarize returns aggregate decision counts for one agent within a window.
func (r *Reader) Summarize(ctx context.Context, agentID string, since time.Time) (*DecisionSummary, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT count(),
		       countIf(allowed = 1),
		       countIf(allowed = 0),
		       countIf(context_trusted = 0)
		FROM decision_events
		WHERE agent_id = @agent_id AND timestamp >= @since`,
		clickhouse.Named("agent_id", agentID),
		clickhouse.Named("since", since),
	)

	var total, allowed, blocked, untrusted uint64
	if err := row.Scan(&total, &allowed, &blocked, &untrusted); err != nil {
		return nil, fmt.Errorf("Summarize: %w", err)
	}
	return &DecisionSummary{
		Total:          int(total),
		Allowed:        int(allowed),
		Blocked:        int(blocked),
		UntrustedCalls: int(untrusted),
	}, nil
}

// scanner is satisfied by both driver.Row and driver.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(s scanner, d *DecisionRow) error {
	return s.Scan(
		&d.RequestID, &d.AgentID, &d.ConversationID, &d.Timestamp,
		&d.ToolName, &d.ArgumentsPreview, &d.ContextTrusted, &d.Allowed,
		&d.Reason, &d.PolicyID, &d.InternalTool, &d.LatencyMs, &d.Source,
	)
}

func boolParam(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
