package domain

import (
	"math"
	"sort"
	"time"
)

// UserStepsSummary is derived on demand from a user's stored records.
type UserStepsSummary struct {
	TodaySteps int
	TotalSteps int
	LastUpdate *time.Time
}

// TeamStepsSummary is derived from all records of a team's current roster.
type TeamStepsSummary struct {
	TodaySteps   int
	TotalSteps   int
	AverageSteps int
}

// effectiveTime is the timestamp a record counts toward: the capture
// timestamp when present, else midnight of the record's calendar date in loc.
func effectiveTime(rec StepRecord, loc *time.Location) time.Time {
	if !rec.CreatedAt.IsZero() {
		return rec.CreatedAt
	}
	t, err := time.ParseInLocation(DateLayout, rec.Date, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SummarizeUser computes today's and all-time totals plus the most recent
// update across records. Empty input yields a zero summary, not an error.
func SummarizeUser(records []StepRecord, asOf time.Time, loc *time.Location) UserStepsSummary {
	var summary UserStepsSummary
	today := DateOf(asOf, loc)

	for _, rec := range records {
		summary.TotalSteps += rec.Steps

		eff := effectiveTime(rec, loc)
		if eff.IsZero() {
			continue
		}
		if DateOf(eff, loc) == today {
			summary.TodaySteps += rec.Steps
		}
		if summary.LastUpdate == nil || eff.After(*summary.LastUpdate) {
			ts := eff
			summary.LastUpdate = &ts
		}
	}

	return summary
}

// SummarizeTeam aggregates a team's records across its current roster.
// AverageSteps is the rounded per-member total, 0 for an empty roster.
func SummarizeTeam(records []StepRecord, rosterSize int, asOf time.Time, loc *time.Location) TeamStepsSummary {
	user := SummarizeUser(records, asOf, loc)

	summary := TeamStepsSummary{
		TodaySteps: user.TodaySteps,
		TotalSteps: user.TotalSteps,
	}
	if rosterSize > 0 {
		summary.AverageSteps = int(math.Round(float64(summary.TotalSteps) / float64(rosterSize)))
	}
	return summary
}

// TeamTotal is the ranking input for one team.
type TeamTotal struct {
	TeamID      string
	Name        string
	TotalSteps  int
	MemberCount int
}

// RankedTeam carries a team's 1-based position in the challenge standings.
type RankedTeam struct {
	TeamTotal
	Rank int
}

// RankTeams sorts descending by total steps and assigns sequential ranks.
// Equal totals keep their input order and still receive distinct ranks; this
// is a deliberate simplification, not competition ranking with shared ranks.
func RankTeams(totals []TeamTotal) []RankedTeam {
	ranked := make([]RankedTeam, 0, len(totals))
	for _, t := range totals {
		ranked = append(ranked, RankedTeam{TeamTotal: t})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalSteps > ranked[j].TotalSteps
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
