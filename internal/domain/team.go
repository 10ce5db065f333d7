package domain

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var (
	// ErrUserNotFound is returned when a profile cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrTeamNotFound is returned when a team code resolves to nothing.
	ErrTeamNotFound = errors.New("team not found")
	// ErrTeamFull indicates the roster is at capacity.
	ErrTeamFull = errors.New("team roster is full")
	// ErrAlreadyOnTeam enforces the single-team-per-user invariant.
	ErrAlreadyOnTeam = errors.New("user already belongs to a team")
	// ErrNotTeamMember is returned when leaving a team the user never joined.
	ErrNotTeamMember = errors.New("user is not a member of the team")
)

// Roles assigned to team members.
const (
	RoleLeader = "leader"
	RoleMember = "member"
)

// User is a challenge participant, keyed by the identity provider subject.
type User struct {
	ID           string
	Email        string
	Name         string
	Nickname     string
	ProfileImage string
	CreatedAt    time.Time
}

// Team is a challenge team identified by a short join code.
type Team struct {
	Code        string
	Name        string
	Description string
	CreatorID   string
	CreatedAt   time.Time
}

// TeamMember links a user to a team.
type TeamMember struct {
	TeamCode string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// TeamMemberProfile is a roster entry joined with the member's profile.
type TeamMemberProfile struct {
	TeamMember
	Name         string
	Email        string
	ProfileImage string
}

// TeamWithMemberCount decorates a team with its current roster size.
type TeamWithMemberCount struct {
	Team
	MemberCount int
}

// UserRepository persists participant profiles.
type UserRepository interface {
	UpsertUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
}

// TeamRepository persists teams and their rosters.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team Team) error
	GetTeam(ctx context.Context, code string) (*Team, error)
	ListTeams(ctx context.Context) ([]TeamWithMemberCount, error)
	TeamsOf(ctx context.Context, userID string) ([]Team, error)
	AddMember(ctx context.Context, member TeamMember) error
	RemoveMember(ctx context.Context, code, userID string) error
	TeamMembers(ctx context.Context, code string) ([]TeamMemberProfile, error)
}

// StepRecordRepository persists step records. Same-day uniqueness is enforced
// by the upsert flow, not by the store.
type StepRecordRepository interface {
	RecordsOfUser(ctx context.Context, userID string) ([]StepRecord, error)
	RecordsOfTeam(ctx context.Context, teamID string) ([]StepRecord, error)
	AllRecords(ctx context.Context) ([]StepRecord, error)
	InsertRecord(ctx context.Context, record StepRecord) error
	UpdateRecord(ctx context.Context, record StepRecord) error
}

// Screenshot is an uploaded fitness-app image.
type Screenshot struct {
	Format string
	Data   []byte
}

// Recognizer turns a screenshot into recognized text.
type Recognizer interface {
	Recognize(ctx context.Context, shot Screenshot) (string, error)
}

const teamCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTeamCode produces a 6-character join code.
func GenerateTeamCode() string {
	code := make([]byte, 6)
	for i := range code {
		code[i] = teamCodeAlphabet[rand.Intn(len(teamCodeAlphabet))]
	}
	return string(code)
}
