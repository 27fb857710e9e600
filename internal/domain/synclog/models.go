package synclog

import "time"

type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
	StatusSkipped SyncStatus = "skipped"
)

// SyncLog is one message-forwarding attempt. Rows record outcomes only;
// message content is never stored.
type SyncLog struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"teamId"`
	ChannelID    string     `json:"channelId,omitempty"`
	MessageTS    string     `json:"messageTs,omitempty"`
	Status       SyncStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type BackfillStatus string

const (
	BackfillPending   BackfillStatus = "pending"
	BackfillRunning   BackfillStatus = "running"
	BackfillCompleted BackfillStatus = "completed"
	BackfillFailed    BackfillStatus = "failed"
)

// BackfillRecord tracks one historical channel import.
type BackfillRecord struct {
	ID             string         `json:"id"`
	TeamID         string         `json:"teamId"`
	ChannelID      string         `json:"channelId"`
	Status         BackfillStatus `json:"status"`
	MessagesSynced int            `json:"messagesSynced"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// ChannelConfig marks a channel as opted in or out of forwarding.
type ChannelConfig struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	ChannelID string    `json:"channelId"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
