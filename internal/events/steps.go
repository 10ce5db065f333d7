// Package events defines the payloads published from the outbox.
package events

import "time"

// StepsRecorded is emitted when a screenshot upload is stored, covering both
// first-of-day inserts and same-day overwrites.
type StepsRecorded struct {
	RecordID   string    `json:"record_id"`
	UserID     string    `json:"user_id"`
	TeamID     string    `json:"team_id"`
	Steps      int       `json:"steps"`
	Date       string    `json:"date"`
	Action     string    `json:"action"`
	Confidence int       `json:"confidence"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TeamMemberJoined is emitted when a user joins a team roster.
type TeamMemberJoined struct {
	TeamCode string    `json:"team_code"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
