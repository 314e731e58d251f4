package models

import (
	"time"
)

// Presence records one connection's membership in a board room. Entries live
// in Redis and expire unless refreshed by heartbeats.
type Presence struct {
	ConnID   string    `json:"conn_id"`
	UserID   string    `json:"user_id"`
	BoardID  string    `json:"board_id"`
	NodeID   string    `json:"node_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
