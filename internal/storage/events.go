package storage

import "time"

// EventWriter is the interface for writing gatekeeper decision events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent represents a single gatekeeper decision to be persisted.
type DecisionEvent struct {
	RequestID      string
	AgentID        string
	ConversationID string
	Timestamp      time.Time
	ToolName       string
	ArgumentsJSON  string
	ContextTrusted bool
	Allowed        bool
	Reason         string
	PolicyID       string // policy that blocked, "" otherwise
	InternalTool   bool
	LatencyMs      float32
	Source         string // "evaluate" or "dispatch"
}

// ArgumentsPreviewLength is the max chars stored in arguments_preview.
const ArgumentsPreviewLength = 500

// TruncateArguments returns the first N characters (runes) of an argument
// payload for preview storage. It never splits a multi-byte UTF-8 character.
func TruncateArguments(args string, maxLen int) string {
	runes := []rune(args)
	if len(runes) <= maxLen {
		return args
	}
	return string(runes[:maxLen])
}
