package models

import (
	"time"

	"github.com/google/uuid"
)

// BundleState defines the lifecycle state of a bundle.
type BundleState string

const (
	BundleStateOpen     BundleState = "OPEN"
	BundleStateClosing  BundleState = "CLOSING"
	BundleStateReady    BundleState = "READY"
	BundleStateDequeued BundleState = "DEQUEUED"
)

// Bundle is the unit of delivery on an actor's message queue. At most one
// Open bundle exists per grouping tuple at any time; the persistence layer
// enforces this with a partial unique index.
type Bundle struct {
	ID             uuid.UUID      `json:"id"`
	Receiver       Actor          `json:"receiver"`
	DocumentType   DocumentType   `json:"document_type"`
	BusinessReason BusinessReason `json:"business_reason"`
	State          BundleState    `json:"state"`
	StorageRef     *string        `json:"storage_ref,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}

// Key returns the grouping tuple the bundle was created for.
func (b Bundle) Key() BundleKey {
	return BundleKey{
		Receiver:       b.Receiver,
		DocumentType:   b.DocumentType,
		BusinessReason: b.BusinessReason,
	}
}

// MarketDocument is the rendered artifact of a Ready or Dequeued bundle.
type MarketDocument struct {
	BundleID   uuid.UUID `json:"bundle_id"`
	StorageRef string    `json:"storage_ref"`
	CreatedAt  time.Time `json:"created_at"`
}
