package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRecognitionFailed wraps OCR transport failures so the API layer can
// surface them as an upstream problem rather than a bad upload.
var ErrRecognitionFailed = errors.New("screenshot recognition failed")

// NoTeamDisplayName labels the rankings bucket for unaffiliated participants.
const NoTeamDisplayName = "개인 참가자"

// DefaultTeamCapacity is the challenge's roster limit.
const DefaultTeamCapacity = 3

// Service orchestrates the step challenge workflows.
type Service struct {
	users    UserRepository
	teams    TeamRepository
	records  StepRecordRepository
	ocr      Recognizer
	loc      *time.Location
	capacity int

	now     func() time.Time
	newCode func() string
}

// NewService constructs a Service. loc is the reference timezone that decides
// which calendar day an upload counts toward; capacity limits team rosters.
func NewService(users UserRepository, teams TeamRepository, records StepRecordRepository, ocr Recognizer, loc *time.Location, capacity int) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if capacity <= 0 {
		capacity = DefaultTeamCapacity
	}
	return &Service{
		users:    users,
		teams:    teams,
		records:  records,
		ocr:      ocr,
		loc:      loc,
		capacity: capacity,
		now:      time.Now,
		newCode:  GenerateTeamCode,
	}
}

// UpsertProfile stores or refreshes the caller's profile on login.
func (s *Service) UpsertProfile(ctx context.Context, user User) (*User, error) {
	if existing, err := s.users.GetUser(ctx, user.ID); err == nil && existing != nil {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}

	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches a stored profile.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UploadResult reports what an accepted screenshot produced.
type UploadResult struct {
	Action  UpsertAction
	Reading Reading
	Record  StepRecord
	Summary UserStepsSummary
}

// RecordUpload runs the full upload pipeline: recognize the screenshot,
// extract a reading, resolve the uploader's current team, and upsert the
// (user, today) record. Extraction failures propagate ErrNoStepCount so the
// caller can tell the user the screenshot was unreadable; a zero is never
// silently recorded.
func (s *Service) RecordUpload(ctx context.Context, userID string, shot Screenshot) (*UploadResult, error) {
	text, err := s.ocr.Recognize(ctx, shot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}

	reading, err := ExtractReading(text)
	if err != nil {
		return nil, err
	}

	teamID, err := s.currentTeamOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.records.RecordsOfUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	plan := PlanUpsert(existing, reading, userID, teamID, DateOf(now, s.loc), now)

	switch plan.Action {
	case ActionUpdate:
		err = s.records.UpdateRecord(ctx, plan.Record)
	default:
		err = s.records.InsertRecord(ctx, plan.Record)
	}
	if err != nil {
		return nil, err
	}

	stored, err := s.records.RecordsOfUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Action:  plan.Action,
		Reading: reading,
		Record:  plan.Record,
		Summary: SummarizeUser(stored, now, s.loc),
	}, nil
}

// UserSummary recomputes a user's step summary from stored records.
func (s *Service) UserSummary(ctx context.Context, userID string) (UserStepsSummary, error) {
	records, err := s.records.RecordsOfUser(ctx, userID)
	if err != nil {
		return UserStepsSummary{}, err
	}
	return SummarizeUser(records, s.now(), s.loc), nil
}

// CreateTeam creates a team with a generated join code and auto-joins the
// creator as leader. The returned bool reports whether the auto-join
// succeeded; the team exists either way.
func (s *Service) CreateTeam(ctx context.Context, creatorID, name, description string) (*Team, bool, error) {
	memberships, err := s.teams.TeamsOf(ctx, creatorID)
	if err != nil {
		return nil, false, err
	}
	if len(memberships) > 0 {
		return nil, false, ErrAlreadyOnTeam
	}

	team := Team{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatorID:   creatorID,
		CreatedAt:   s.now().UTC(),
	}

	for attempt := 0; attempt < 5; attempt++ {
		code := s.newCode()
		if existing, err := s.teams.GetTeam(ctx, code); err != nil {
			return nil, false, err
		} else if existing != nil {
			continue
		}
		team.Code = code
		break
	}
	if team.Code == "" {
		return nil, false, errors.New("could not allocate a unique team code")
	}

	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, false, err
	}

	joinErr := s.teams.AddMember(ctx, TeamMember{
		TeamCode: team.Code,
		UserID:   creatorID,
		Role:     RoleLeader,
		JoinedAt: s.now().UTC(),
	})
	return &team, joinErr == nil, nil
}

// JoinTeam adds the user to a team, enforcing the single-team invariant and
// the roster capacity.
func (s *Service) JoinTeam(ctx context.Context, code, userID string) error {
	team, err := s.teams.GetTeam(ctx, code)
	if err != nil {
		return err
	}
	if team == nil {
		return ErrTeamNotFound
	}

	memberships, err := s.teams.TeamsOf(ctx, userID)
	if err != nil {
		return err
	}
	if len(memberships) > 0 {
		return ErrAlreadyOnTeam
	}

	roster, err := s.teams.TeamMembers(ctx, code)
	if err != nil {
		return err
	}
	if len(roster) >= s.capacity {
		return ErrTeamFull
	}

	return s.teams.AddMember(ctx, TeamMember{
		TeamCode: code,
		UserID:   userID,
		Role:     RoleMember,
		JoinedAt: s.now().UTC(),
	})
}

// LeaveTeam removes the user from the team's roster.
func (s *Service) LeaveTeam(ctx context.Context, code, userID string) error {
	return s.teams.RemoveMember(ctx, code, userID)
}

// ListTeams returns every team with its member count.
func (s *Service) ListTeams(ctx context.Context) ([]TeamWithMemberCount, error) {
	return s.teams.ListTeams(ctx)
}

// UserTeams returns the teams the user currently belongs to.
func (s *Service) UserTeams(ctx context.Context, userID string) ([]Team, error) {
	return s.teams.TeamsOf(ctx, userID)
}

// MemberSummary decorates a roster entry with the member's step summary.
type MemberSummary struct {
	TeamMemberProfile
	Summary UserStepsSummary
}

// TeamMembers returns the roster joined with profiles and per-member summaries.
func (s *Service) TeamMembers(ctx context.Context, code string) ([]MemberSummary, error) {
	team, err := s.teams.GetTeam(ctx, code)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrTeamNotFound
	}

	roster, err := s.teams.TeamMembers(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]MemberSummary, 0, len(roster))
	for _, member := range roster {
		records, err := s.records.RecordsOfUser(ctx, member.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, MemberSummary{
			TeamMemberProfile: member,
			Summary:           SummarizeUser(records, now, s.loc),
		})
	}
	return out, nil
}

// TeamStanding is a team summary placed in the challenge standings.
type TeamStanding struct {
	TeamStepsSummary
	Rank int
}

// TeamSummary aggregates a team's records and ranks it against all teams.
func (s *Service) TeamSummary(ctx context.Context, code string) (*TeamStanding, error) {
	team, err := s.teams.GetTeam(ctx, code)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrTeamNotFound
	}

	records, err := s.records.RecordsOfTeam(ctx, code)
	if err != nil {
		return nil, err
	}

	roster, err := s.teams.TeamMembers(ctx, code)
	if err != nil {
		return nil, err
	}

	standing := TeamStanding{
		TeamStepsSummary: SummarizeTeam(records, len(roster), s.now(), s.loc),
	}

	ranked, err := s.Rankings(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range ranked {
		if entry.TeamID == code {
			standing.Rank = entry.Rank
			break
		}
	}
	return &standing, nil
}

// Rankings computes the challenge standings across all teams. Teams without
// records rank with zero totals; unaffiliated records are grouped into a
// NoTeam bucket when present.
func (s *Service) Rankings(ctx context.Context) ([]RankedTeam, error) {
	records, err := s.records.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	totalsByTeam := make(map[string]int)
	for _, rec := range records {
		teamID := rec.TeamID
		if teamID == "" {
			teamID = NoTeam
		}
		totalsByTeam[teamID] += rec.Steps
	}

	teams, err := s.teams.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	totals := make([]TeamTotal, 0, len(teams)+1)
	for _, team := range teams {
		totals = append(totals, TeamTotal{
			TeamID:      team.Code,
			Name:        team.Name,
			TotalSteps:  totalsByTeam[team.Code],
			MemberCount: team.MemberCount,
		})
	}
	if unaffiliated := totalsByTeam[NoTeam]; unaffiliated > 0 {
		totals = append(totals, TeamTotal{
			TeamID:     NoTeam,
			Name:       NoTeamDisplayName,
			TotalSteps: unaffiliated,
		})
	}

	return RankTeams(totals), nil
}

func (s *Service) currentTeamOf(ctx context.Context, userID string) (string, error) {
	memberships, err := s.teams.TeamsOf(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(memberships) == 0 {
		return NoTeam, nil
	}
	return memberships[0].Code, nil
}
