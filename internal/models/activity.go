package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity is one entry in a board's audit trail.
type Activity struct {
	ID           uuid.UUID `json:"id"`
	BoardID      string    `json:"boardId"`
	CollectionID *string   `json:"collectionId,omitempty"`
	ItemID       *string   `json:"itemId,omitempty"`
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}
