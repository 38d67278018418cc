package api

import (
	"net/http"
	"time"

	"github.com/kingerharshit/toolgate/internal/chread"
	"github.com/kingerharshit/toolgate/internal/gatekeeper"
	"github.com/kingerharshit/toolgate/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store      *store.Store
	Gatekeeper *gatekeeper.Gatekeeper
	Cache      *store.CachingPolicyReader // bumped on every policy mutation
	Reader     *chread.Reader             // nil if ClickHouse unavailable
	Logger     *zap.Logger
	CacheTTL   time.Duration

	auth *authCache // shared across every authenticated route
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Gatekeeper endpoints (auth required via Bearer agk_ token)
	mux.HandleFunc("POST /v1/gatekeeper/evaluate", deps.authMiddleware(deps.handleEvaluate))
	mux.HandleFunc("POST /v1/gatekeeper/classify", deps.authMiddleware(deps.handleClassify))
	mux.HandleFunc("POST /v1/gatekeeper/dispatch", deps.authMiddleware(deps.handleDispatch))

	// Agent CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/gatekeeper/agents", deps.handleCreateAgent)
	mux.HandleFunc("GET /api/gatekeeper/agents", deps.handleListAgents)
	mux.HandleFunc("GET /api/gatekeeper/agents/{agent_id}", deps.handleGetAgent)
	mux.HandleFunc("DELETE /api/gatekeeper/agents/{agent_id}", deps.handleDeleteAgent)
	mux.HandleFunc("POST /api/gatekeeper/agents/{agent_id}/rotate-key", deps.handleRotateKey)

	// Tool assignments (no auth)
	mux.HandleFunc("POST /api/gatekeeper/agents/{agent_id}/tools", deps.handleCreateAgentTool)
	mux.HandleFunc("GET /api/gatekeeper/agents/{agent_id}/tools", deps.handleListAgentTools)
	mux.HandleFunc("DELETE /api/gatekeeper/agent-tools/{agent_tool_id}", deps.handleDeleteAgentTool)

	// Policy CRUD + bulk sync + security config (no auth)
	mux.HandleFunc("GET /api/gatekeeper/agent-tools/{agent_tool_id}/policies", deps.handleListPolicies)
	mux.HandleFunc("POST /api/gatekeeper/agent-tools/{agent_tool_id}/policies", deps.handleCreatePolicy)
	mux.HandleFunc("PUT /api/gatekeeper/agent-tools/{agent_tool_id}/policies", deps.handleSyncPolicies)
	mux.HandleFunc("PATCH /api/gatekeeper/policies/{policy_id}", deps.handleUpdatePolicy)
	mux.HandleFunc("DELETE /api/gatekeeper/policies/{policy_id}", deps.handleDeletePolicy)
	mux.HandleFunc("GET /api/gatekeeper/agent-tools/{agent_tool_id}/security-config", deps.handleGetSecurityConfig)
	mux.HandleFunc("PUT /api/gatekeeper/agent-tools/{agent_tool_id}/security-config", deps.handlePutSecurityConfig)

	// Decision events (no auth)
	mux.HandleFunc("GET /api/gatekeeper/decisions", deps.handleListDecisions)
	mux.HandleFunc("GET /api/gatekeeper/decisions/{request_id}", deps.handleGetDecision)
	mux.HandleFunc("GET /api/gatekeeper/decisions-summary", deps.handleDecisionSummary)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
