package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Operator is the comparison applied between a policy value and the extracted
// tool-call argument.
type Operator string

const (
	OpEndsWith    Operator = "endsWith"
	OpStartsWith  Operator = "startsWith"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpEqual       Operator = "equal"
	OpNotEqual    Operator = "notEqual"
	OpRegex       Operator = "regex"
)

// Action is what a policy does when its condition matches.
type Action string

const (
	ActionBlockAlways        Action = "block_always"
	ActionAllowWhenUntrusted Action = "allow_when_context_is_untrusted"
)

// Policy represents a row in the tool_invocation_policies table.
// AllowWhenUntrusted is denormalized from the owning agent_tools row via a
// JOIN at read time, so every policy in one result set carries the same value.
type Policy struct {
	ID                 string
	AgentToolID        string
	ArgumentName       string
	Operator           Operator
	Value              string
	Action             Action
	Reason             string
	AllowWhenUntrusted *bool // nil = relationship has no explicit default
	CreatedAt          time.Time
}

// SecurityConfig is the per-relationship default consulted when no policy row
// carries an explicit untrusted-usage flag.
type SecurityConfig struct {
	AgentToolID        string
	AllowWhenUntrusted *bool
}

// PolicyParams holds the writable fields of a policy.
type PolicyParams struct {
	ArgumentName string
	Operator     Operator
	Value        string
	Action       Action
	Reason       string
}

// UpdatePolicyParams holds optional fields for partial policy updates.
type UpdatePolicyParams struct {
	ArgumentName *string
	Operator     *Operator
	Value        *string
	Action       *Action
	Reason       *string
}

// ListPoliciesFor returns all policies attached to the (agentID, toolName)
// relationship in creation order. Returns an empty slice when the
// relationship exists but has no policies, and also when it does not exist.
func (s *Store) ListPoliciesFor(ctx context.Context, agentID, toolName string) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.agent_tool_id, p.argument_name, p.operator, p.value,
		       p.action, p.reason, at.allow_when_untrusted, p.created_at
		FROM tool_invocation_policies p
		JOIN agent_tools at ON at.id = p.agent_tool_id
		WHERE at.agent_id = $1 AND at.tool_name = $2
		ORDER BY p.created_at, p.id`, agentID, toolName)
	if err != nil {
		return nil, fmt.Errorf("ListPoliciesFor: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var policies []Policy
	for rows.Next() {
		var p Policy
		var allow sql.NullBool
		if err := rows.Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator,
			&p.Value, &p.Action, &p.Reason, &allow, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListPoliciesFor: %w", err)
		}
		if allow.Valid {
			v := allow.Bool
			p.AllowWhenUntrusted = &v
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPoliciesFor: %w", err)
	}
	return policies, nil
}

// GetSecurityConfig returns the untrusted-usage default for the
// (agentID, toolName) relationship, or nil if the relationship does not exist.
func (s *Store) GetSecurityConfig(ctx context.Context, agentID, toolName string) (*SecurityConfig, error) {
	var cfg SecurityConfig
	var allow sql.NullBool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, allow_when_untrusted
		FROM agent_tools
		WHERE agent_id = $1 AND tool_name = $2`, agentID, toolName,
	).Scan(&cfg.AgentToolID, &allow)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSecurityConfig: %w", err)
	}
	if allow.Valid {
		v := allow.Bool
		cfg.AllowWhenUntrusted = &v
	}
	return &cfg, nil
}

// SetSecurityConfig updates the untrusted-usage default on a relationship.
// Passing nil clears the flag back to unset. Returns false if the
// relationship does not exist.
func (s *Store) SetSecurityConfig(ctx context.Context, agentToolID string, allow *bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_tools SET allow_when_untrusted = $2 WHERE id = $1`,
		agentToolID, nullableBool(allow))
	if err != nil {
		return false, fmt.Errorf("SetSecurityConfig: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SetSecurityConfig: %w", err)
	}
	return n > 0, nil
}

// ListPoliciesByRelationship returns all policies for one agent_tools row in
// creation order. Used by the configuration API.
func (s *Store) ListPoliciesByRelationship(ctx context.Context, agentToolID string) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.agent_tool_id, p.argument_name, p.operator, p.value,
		       p.action, p.reason, at.allow_when_untrusted, p.created_at
		FROM tool_invocation_policies p
		JOIN agent_tools at ON at.id = p.agent_tool_id
		WHERE p.agent_tool_id = $1
		ORDER BY p.created_at, p.id`, agentToolID)
	if err != nil {
		return nil, fmt.Errorf("ListPoliciesByRelationship: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var policies []Policy
	for rows.Next() {
		var p Policy
		var allow sql.NullBool
		if err := rows.Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator,
			&p.Value, &p.Action, &p.Reason, &allow, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListPoliciesByRelationship: %w", err)
		}
		if allow.Valid {
			v := allow.Bool
			p.AllowWhenUntrusted = &v
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPoliciesByRelationship: %w", err)
	}
	return policies, nil
}

// CreatePolicy appends a policy to a relationship. clock_timestamp() (not
// now()) keeps created_at strictly increasing for inserts inside one
// transaction, which is what the engine's creation-order guarantee rests on.
func (s *Store) CreatePolicy(ctx context.Context, agentToolID string, params PolicyParams) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tool_invocation_policies
			(agent_tool_id, argument_name, operator, value, action, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
		RETURNING id, agent_tool_id, argument_name, operator, value, action, reason, created_at`,
		agentToolID, params.ArgumentName, params.Operator, params.Value,
		params.Action, params.Reason,
	).Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator, &p.Value,
		&p.Action, &p.Reason, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreatePolicy: %w", err)
	}
	return &p, nil
}

// UpdatePolicy applies a partial update to a policy. Only non-nil fields are
// changed. Returns nil if the policy does not exist.
func (s *Store) UpdatePolicy(ctx context.Context, policyID string, params UpdatePolicyParams) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE tool_invocation_policies SET
			argument_name = COALESCE($2, argument_name),
			operator      = COALESCE($3, operator),
			value         = COALESCE($4, value),
			action        = COALESCE($5, action),
			reason        = COALESCE($6, reason)
		WHERE id = $1
		RETURNING id, agent_tool_id, argument_name, operator, value, action, reason, created_at`,
		policyID, nullableStr(params.ArgumentName), nullableOp(params.Operator),
		nullableStr(params.Value), nullableAction(params.Action), nullableStr(params.Reason),
	).Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator, &p.Value,
		&p.Action, &p.Reason, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePolicy: %w", err)
	}
	return &p, nil
}

// DeletePolicy removes a policy. Returns false if it did not exist.
func (s *Store) DeletePolicy(ctx context.Context, policyID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_invocation_policies WHERE id = $1`, policyID)
	if err != nil {
		return false, fmt.Errorf("DeletePolicy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeletePolicy: %w", err)
	}
	return n > 0, nil
}

// SyncPolicies replaces the full policy set of a relationship inside one
// transaction, so a concurrent reader sees either the old set or the new set,
// never a partial mix. Policies are inserted in slice order.
func (s *Store) SyncPolicies(ctx context.Context, agentToolID string, policies []PolicyParams) ([]Policy, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SyncPolicies: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tool_invocation_policies WHERE agent_tool_id = $1`, agentToolID); err != nil {
		return nil, fmt.Errorf("SyncPolicies: %w", err)
	}

	out := make([]Policy, 0, len(policies))
	for _, params := range policies {
		var p Policy
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tool_invocation_policies
				(agent_tool_id, argument_name, operator, value, action, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
			RETURNING id, agent_tool_id, argument_name, operator, value, action, reason, created_at`,
			agentToolID, params.ArgumentName, params.Operator, params.Value,
			params.Action, params.Reason,
		).Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator, &p.Value,
			&p.Action, &p.Reason, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("SyncPolicies: %w", err)
		}
		out = append(out, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SyncPolicies: %w", err)
	}
	return out, nil
}

// nullableStr returns nil (SQL NULL) if the pointer is nil, otherwise the value.
func nullableStr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableOp(v *Operator) interface{} {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullableAction(v *Action) interface{} {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullableBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
