// Package memory provides an in-memory store for tests and for running the
// service without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/steprelay/internal/domain"
)

// Store implements the domain repositories over mutex-guarded maps.
type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	teams   map[string]domain.Team
	members []domain.TeamMember
	records map[string]domain.StepRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:   make(map[string]domain.User),
		teams:   make(map[string]domain.Team),
		records: make(map[string]domain.StepRecord),
	}
}

// UpsertUser implements domain.UserRepository.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

// GetUser implements domain.UserRepository.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// CreateTeam implements domain.TeamRepository.
func (s *Store) CreateTeam(ctx context.Context, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.Code] = team
	return nil
}

// GetTeam implements domain.TeamRepository.
func (s *Store) GetTeam(ctx context.Context, code string) (*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[code]
	if !ok {
		return nil, nil
	}
	return &team, nil
}

// ListTeams implements domain.TeamRepository.
func (s *Store) ListTeams(ctx context.Context) ([]domain.TeamWithMemberCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, member := range s.members {
		counts[member.TeamCode]++
	}

	out := make([]domain.TeamWithMemberCount, 0, len(s.teams))
	for _, team := range s.teams {
		out = append(out, domain.TeamWithMemberCount{Team: team, MemberCount: counts[team.Code]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// TeamsOf implements domain.TeamRepository.
func (s *Store) TeamsOf(ctx context.Context, userID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Team
	for _, member := range s.members {
		if member.UserID != userID {
			continue
		}
		if team, ok := s.teams[member.TeamCode]; ok {
			out = append(out, team)
		}
	}
	return out, nil
}

// AddMember implements domain.TeamRepository.
func (s *Store) AddMember(ctx context.Context, member domain.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, member)
	return nil
}

// RemoveMember implements domain.TeamRepository.
func (s *Store) RemoveMember(ctx context.Context, code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, member := range s.members {
		if member.TeamCode == code && member.UserID == userID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotTeamMember
}

// TeamMembers implements domain.TeamRepository, joining rosters with profiles.
func (s *Store) TeamMembers(ctx context.Context, code string) ([]domain.TeamMemberProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TeamMemberProfile
	for _, member := range s.members {
		if member.TeamCode != code {
			continue
		}
		profile := domain.TeamMemberProfile{TeamMember: member}
		if user, ok := s.users[member.UserID]; ok {
			profile.Name = user.Name
			profile.Email = user.Email
			profile.ProfileImage = user.ProfileImage
		}
		out = append(out, profile)
	}
	return out, nil
}

// RecordsOfUser implements domain.StepRecordRepository.
func (s *Store) RecordsOfUser(ctx context.Context, userID string) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StepRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// RecordsOfTeam implements domain.StepRecordRepository.
func (s *Store) RecordsOfTeam(ctx context.Context, teamID string) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StepRecord
	for _, rec := range s.records {
		if rec.TeamID == teamID {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// AllRecords implements domain.StepRecordRepository.
func (s *Store) AllRecords(ctx context.Context) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StepRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// InsertRecord implements domain.StepRecordRepository.
func (s *Store) InsertRecord(ctx context.Context, record domain.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// UpdateRecord implements domain.StepRecordRepository.
func (s *Store) UpdateRecord(ctx context.Context, record domain.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func sortRecords(records []domain.StepRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].ID < records[j].ID
	})
}
