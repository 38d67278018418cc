package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Agent represents a row in the agents table.
type Agent struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentTool represents a row in the agent_tools table: one tool assigned to
// one agent, with its originating server and trust flag.
type AgentTool struct {
	ID                 string
	AgentID            string
	ToolName           string
	ServerName         string
	ServerTrusted      bool
	AllowWhenUntrusted *bool
	CreatedAt          time.Time
}

// GenerateAPIKey creates a new agk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the caller once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "agk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "agk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreateAgent inserts a new agent. Returns the agent and the plaintext API
// key (shown once).
func (s *Store) CreateAgent(ctx context.Context, name string) (*Agent, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateAgent: %w", err)
	}

	var a Agent
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO agents (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix, created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateAgent: %w", err)
	}
	return &a, fullKey, nil
}

// GetAgent returns an agent by id, or nil if not found.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM agents WHERE id = $1`, agentID,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAgent: %w", err)
	}
	return &a, nil
}

// ListAgents returns all agents ordered by creation time.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ListAgents: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListAgents: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAgents: %w", err)
	}
	return agents, nil
}

// LookupByPrefix returns the agent whose API key starts with the given
// prefix, or nil if none matches. The caller still verifies the full key
// against APIKeyHash.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM agents WHERE api_key_prefix = $1`, prefix,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &a, nil
}

// RotateKey issues a new API key for an agent, invalidating the old one.
// Returns the new plaintext key (shown once), or "" if the agent is unknown.
func (s *Store) RotateKey(ctx context.Context, agentID string) (string, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return "", "", fmt.Errorf("RotateKey: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET api_key_hash = $2, api_key_prefix = $3, updated_at = now()
		WHERE id = $1`, agentID, keyHash, keyPrefix)
	if err != nil {
		return "", "", fmt.Errorf("RotateKey: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", "", fmt.Errorf("RotateKey: %w", err)
	}
	if n == 0 {
		return "", "", nil
	}
	return fullKey, keyPrefix, nil
}

// DeleteAgent removes an agent and (via FK cascade) its tool assignments and
// policies. Returns false if the agent did not exist.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, agentID)
	if err != nil {
		return false, fmt.Errorf("DeleteAgent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteAgent: %w", err)
	}
	return n > 0, nil
}

// GetAgentTool returns the relationship row for an (agentID, toolName) pair,
// or nil if the tool is not assigned to the agent. The classifier's
// provenance resolver reads ServerName/ServerTrusted from here.
func (s *Store) GetAgentTool(ctx context.Context, agentID, toolName string) (*AgentTool, error) {
	var at AgentTool
	var allow sql.NullBool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, tool_name, server_name, server_trusted,
		       allow_when_untrusted, created_at
		FROM agent_tools
		WHERE agent_id = $1 AND tool_name = $2`, agentID, toolName,
	).Scan(&at.ID, &at.AgentID, &at.ToolName, &at.ServerName, &at.ServerTrusted,
		&allow, &at.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAgentTool: %w", err)
	}
	if allow.Valid {
		v := allow.Bool
		at.AllowWhenUntrusted = &v
	}
	return &at, nil
}

// GetAgentToolByID returns an agent_tools row by primary key, or nil if it
// does not exist.
func (s *Store) GetAgentToolByID(ctx context.Context, agentToolID string) (*AgentTool, error) {
	var at AgentTool
	var allow sql.NullBool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, tool_name, server_name, server_trusted,
		       allow_when_untrusted, created_at
		FROM agent_tools WHERE id = $1`, agentToolID,
	).Scan(&at.ID, &at.AgentID, &at.ToolName, &at.ServerName, &at.ServerTrusted,
		&allow, &at.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAgentToolByID: %w", err)
	}
	if allow.Valid {
		v := allow.Bool
		at.AllowWhenUntrusted = &v
	}
	return &at, nil
}

// ListAgentTools returns all tool assignments for an agent in creation order.
func (s *Store) ListAgentTools(ctx context.Context, agentID string) ([]AgentTool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, tool_name, server_name, server_trusted,
		       allow_when_untrusted, created_at
		FROM agent_tools WHERE agent_id = $1
		ORDER BY created_at, id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("ListAgentTools: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tools []AgentTool
	for rows.Next() {
		var at AgentTool
		var allow sql.NullBool
		if err := rows.Scan(&at.ID, &at.AgentID, &at.ToolName, &at.ServerName,
			&at.ServerTrusted, &allow, &at.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListAgentTools: %w", err)
		}
		if allow.Valid {
			v := allow.Bool
			at.AllowWhenUntrusted = &v
		}
		tools = append(tools, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAgentTools: %w", err)
	}
	return tools, nil
}

// DeleteAgentTool removes a tool assignment and (via FK cascade) its policies.
// Returns false if the row did not exist.
func (s *Store) DeleteAgentTool(ctx context.Context, agentToolID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_tools WHERE id = $1`, agentToolID)
	if err != nil {
		return false, fmt.Errorf("DeleteAgentTool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteAgentTool: %w", err)
	}
	return n > 0, nil
}

// CreateAgentTool assigns a tool to an agent.
func (s *Store) CreateAgentTool(ctx context.Context, agentID, toolName, serverName string, serverTrusted bool) (*AgentTool, error) {
	var at AgentTool
	var allow sql.NullBool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO agent_tools (agent_id, tool_name, server_name, server_trusted)
		VALUES ($1, $2, $3, $4)
		RETURNING id, agent_id, tool_name, server_name, server_trusted,
		          allow_when_untrusted, created_at`,
		agentID, toolName, serverName, serverTrusted,
	).Scan(&at.ID, &at.AgentID, &at.ToolName, &at.ServerName, &at.ServerTrusted,
		&allow, &at.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateAgentTool: %w", err)
	}
	if allow.Valid {
		v := allow.Bool
		at.AllowWhenUntrusted = &v
	}
	return &at, nil
}
