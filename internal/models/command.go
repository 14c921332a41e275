package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CommandKind names the logical type of an internal command. The handler
// registry maps each kind to exactly one handler at startup.
type CommandKind string

const (
	CommandBundleMessages         CommandKind = "BUNDLE_MESSAGES"
	CommandNotifyHub              CommandKind = "NOTIFY_HUB"
	CommandCreateOutgoingMessages CommandKind = "CREATE_OUTGOING_MESSAGES"
)

// InternalCommand is a durable unit of deferred work. A command is pending
// while processed_at is null; the poller that claims it sets processed_at
// exactly once, together with error_message if the handler failed.
type InternalCommand struct {
	ID           uuid.UUID       `json:"id"`
	Kind         CommandKind     `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Pending reports whether the command is still waiting for execution at now.
func (c InternalCommand) Pending(now time.Time) bool {
	return c.ProcessedAt == nil && !c.ScheduledAt.After(now)
}
