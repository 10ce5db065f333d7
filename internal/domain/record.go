package domain

import (
	"time"

	"github.com/google/uuid"
)

// NoTeam is the sentinel team id stored when the uploader belongs to no team.
const NoTeam = "NO_TEAM"

// DateLayout is the calendar-date format used throughout the service.
const DateLayout = "2006-01-02"

// StepRecord is the persisted step entry for one user and one calendar day.
type StepRecord struct {
	ID             string
	UserID         string
	TeamID         string
	Steps          int
	Date           string // YYYY-MM-DD, the day the record counts toward
	ExtractedText  string
	MatchedPattern string
	Confidence     int
	CreatedAt      time.Time // capture timestamp
}

// UpsertAction distinguishes a first upload of the day from an overwrite.
type UpsertAction string

const (
	ActionInsert UpsertAction = "insert"
	ActionUpdate UpsertAction = "update"
)

// UpsertPlan is the outcome of applying the same-day dedup rule.
type UpsertPlan struct {
	Action UpsertAction
	Record StepRecord
}

// PlanUpsert decides whether a new reading creates a record or overwrites an
// existing same-day record for the user. On overwrite the record identity is
// kept and steps, team, extraction metadata, and capture timestamp are
// replaced; team changes since the previous upload are picked up here.
// Pure with respect to the supplied snapshot; the caller persists the result.
func PlanUpsert(existing []StepRecord, reading Reading, userID, teamID, date string, now time.Time) UpsertPlan {
	for _, rec := range existing {
		if rec.UserID != userID || rec.Date != date {
			continue
		}

		rec.Steps = reading.Steps
		rec.TeamID = teamID
		rec.ExtractedText = reading.SourceText
		rec.MatchedPattern = reading.MatchedPattern
		rec.Confidence = reading.Confidence
		rec.CreatedAt = now
		return UpsertPlan{Action: ActionUpdate, Record: rec}
	}

	return UpsertPlan{
		Action: ActionInsert,
		Record: StepRecord{
			ID:             uuid.NewString(),
			UserID:         userID,
			TeamID:         teamID,
			Steps:          reading.Steps,
			Date:           date,
			ExtractedText:  reading.SourceText,
			MatchedPattern: reading.MatchedPattern,
			Confidence:     reading.Confidence,
			CreatedAt:      now,
		},
	}
}

// DateOf returns the calendar date of t in loc, formatted per DateLayout.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
