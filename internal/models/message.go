package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actor identifies a market participant by number and regulatory role.
type Actor struct {
	Number string    `json:"number"`
	Role   ActorRole `json:"role"`
}

// BundleKey is the grouping tuple used to bundle outgoing messages.
// All messages sharing a key are delivered to the receiver in one document.
type BundleKey struct {
	Receiver       Actor          `json:"receiver"`
	DocumentType   DocumentType   `json:"document_type"`
	BusinessReason BusinessReason `json:"business_reason"`
}

// OutgoingMessage is one produced business document instance waiting for
// delivery. It is mutated only to attach a bundle reference and to flip the
// published flag.
type OutgoingMessage struct {
	ID             uuid.UUID       `json:"id"`
	DocumentType   DocumentType    `json:"document_type"`
	BusinessReason BusinessReason  `json:"business_reason"`
	Sender         Actor           `json:"sender"`
	Receiver       Actor           `json:"receiver"`
	Record         json.RawMessage `json:"record"`
	BundleID       *uuid.UUID      `json:"bundle_id,omitempty"`
	Published      bool            `json:"published"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Key returns the grouping tuple this message bundles under.
func (m OutgoingMessage) Key() BundleKey {
	return BundleKey{
		Receiver:       m.Receiver,
		DocumentType:   m.DocumentType,
		BusinessReason: m.BusinessReason,
	}
}
