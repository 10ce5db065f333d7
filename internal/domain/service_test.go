package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/steprelay/internal/domain"
	"example.com/steprelay/internal/persistence/memory"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, shot domain.Screenshot) (string, error) {
	return f.text, f.err
}

func newTestService(recognizer domain.Recognizer) (*domain.Service, *memory.Store) {
	store := memory.NewStore()
	loc := time.FixedZone("KST", 9*3600)
	return domain.NewService(store, store, store, recognizer, loc, 3), store
}

func seedUser(t *testing.T, service *domain.Service, id string) {
	t.Helper()
	_, err := service.UpsertProfile(context.Background(), domain.User{
		ID:    id,
		Email: id + "@example.com",
		Name:  id,
	})
	require.NoError(t, err)
}

func TestRecordUploadSameDayOverwrites(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeRecognizer{text: "오늘 5,000 걸음"}
	service, _ := newTestService(recognizer)
	seedUser(t, service, "user-1")

	first, err := service.RecordUpload(ctx, "user-1", domain.Screenshot{Format: "png", Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, domain.ActionInsert, first.Action)
	require.Equal(t, 5000, first.Reading.Steps)
	require.Equal(t, domain.NoTeam, first.Record.TeamID)

	recognizer.text = "오늘 8,000 걸음"
	second, err := service.RecordUpload(ctx, "user-1", domain.Screenshot{Format: "png", Data: []byte{2}})
	require.NoError(t, err)
	require.Equal(t, domain.ActionUpdate, second.Action)
	require.Equal(t, first.Record.ID, second.Record.ID)

	// One record for the day, holding the latest count.
	require.Equal(t, 8000, second.Summary.TodaySteps)
	require.Equal(t, 8000, second.Summary.TotalSteps)
}

func TestRecordUploadUnreadableScreenshot(t *testing.T) {
	service, _ := newTestService(&fakeRecognizer{text: "대충 찍힌 사진"})
	seedUser(t, service, "user-1")

	_, err := service.RecordUpload(context.Background(), "user-1", domain.Screenshot{Data: []byte{1}})
	require.ErrorIs(t, err, domain.ErrNoStepCount)

	summary, err := service.UserSummary(context.Background(), "user-1")
	require.NoError(t, err)
	require.Zero(t, summary.TotalSteps, "a failed extraction must not record a zero")
}

func TestRecordUploadRecognitionFailure(t *testing.T) {
	service, _ := newTestService(&fakeRecognizer{err: errors.New("ocr timeout")})
	seedUser(t, service, "user-1")

	_, err := service.RecordUpload(context.Background(), "user-1", domain.Screenshot{Data: []byte{1}})
	require.ErrorIs(t, err, domain.ErrRecognitionFailed)
}

func TestRecordUploadAttributesCurrentTeam(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecognizer{text: "7,500 걸음"})
	seedUser(t, service, "user-1")

	team, joined, err := service.CreateTeam(ctx, "user-1", "걷기왕들", "")
	require.NoError(t, err)
	require.True(t, joined)
	require.Len(t, team.Code, 6)

	result, err := service.RecordUpload(ctx, "user-1", domain.Screenshot{Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, team.Code, result.Record.TeamID)
}

func TestCreateTeamRejectsSecondTeam(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecognizer{})
	seedUser(t, service, "user-1")

	_, _, err := service.CreateTeam(ctx, "user-1", "첫 팀", "")
	require.NoError(t, err)

	_, _, err = service.CreateTeam(ctx, "user-1", "두번째 팀", "")
	require.ErrorIs(t, err, domain.ErrAlreadyOnTeam)
}

func TestJoinTeamEnforcesCapacityAndSingleTeam(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecognizer{})
	for _, id := range []string{"leader", "m1", "m2", "m3", "switcher"} {
		seedUser(t, service, id)
	}

	team, _, err := service.CreateTeam(ctx, "leader", "만보클럽", "하루 만보")
	require.NoError(t, err)

	require.NoError(t, service.JoinTeam(ctx, team.Code, "m1"))
	require.NoError(t, service.JoinTeam(ctx, team.Code, "m2"))

	// Capacity is 3: leader + two joiners.
	require.ErrorIs(t, service.JoinTeam(ctx, team.Code, "m3"), domain.ErrTeamFull)

	_, _, err = service.CreateTeam(ctx, "switcher", "다른 팀", "")
	require.NoError(t, err)
	require.ErrorIs(t, service.JoinTeam(ctx, team.Code, "switcher"), domain.ErrAlreadyOnTeam)

	require.ErrorIs(t, service.JoinTeam(ctx, "ZZZZZZ", "m3"), domain.ErrTeamNotFound)
}

func TestLeaveTeam(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecognizer{})
	seedUser(t, service, "leader")
	seedUser(t, service, "m1")

	team, _, err := service.CreateTeam(ctx, "leader", "팀", "")
	require.NoError(t, err)
	require.NoError(t, service.JoinTeam(ctx, team.Code, "m1"))

	require.NoError(t, service.LeaveTeam(ctx, team.Code, "m1"))
	require.ErrorIs(t, service.LeaveTeam(ctx, team.Code, "m1"), domain.ErrNotTeamMember)

	members, err := service.TeamMembers(ctx, team.Code)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "leader", members[0].UserID)
	require.Equal(t, domain.RoleLeader, members[0].Role)
}

func TestRankingsIncludeEmptyTeamsAndUnaffiliated(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeRecognizer{text: "10,000 걸음"}
	service, _ := newTestService(recognizer)
	for _, id := range []string{"leader", "solo", "idle"} {
		seedUser(t, service, id)
	}

	team, _, err := service.CreateTeam(ctx, "leader", "걷기왕들", "")
	require.NoError(t, err)
	_, err = service.RecordUpload(ctx, "leader", domain.Screenshot{Data: []byte{1}})
	require.NoError(t, err)

	empty, _, err := service.CreateTeam(ctx, "idle", "유령 팀", "")
	require.NoError(t, err)

	recognizer.text = "3,000 걸음"
	_, err = service.RecordUpload(ctx, "solo", domain.Screenshot{Data: []byte{1}})
	require.NoError(t, err)

	ranked, err := service.Rankings(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	require.Equal(t, team.Code, ranked[0].TeamID)
	require.Equal(t, 10000, ranked[0].TotalSteps)
	require.Equal(t, 1, ranked[0].Rank)

	require.Equal(t, domain.NoTeam, ranked[1].TeamID)
	require.Equal(t, domain.NoTeamDisplayName, ranked[1].Name)
	require.Equal(t, 3000, ranked[1].TotalSteps)

	require.Equal(t, empty.Code, ranked[2].TeamID)
	require.Zero(t, ranked[2].TotalSteps)
	require.Equal(t, 3, ranked[2].Rank)
}

func TestTeamSummaryRanksAgainstAllTeams(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeRecognizer{text: "9,000 걸음"}
	service, _ := newTestService(recognizer)
	seedUser(t, service, "leader")

	team, _, err := service.CreateTeam(ctx, "leader", "팀", "")
	require.NoError(t, err)
	_, err = service.RecordUpload(ctx, "leader", domain.Screenshot{Data: []byte{1}})
	require.NoError(t, err)

	standing, err := service.TeamSummary(ctx, team.Code)
	require.NoError(t, err)
	require.Equal(t, 9000, standing.TotalSteps)
	require.Equal(t, 9000, standing.TodaySteps)
	require.Equal(t, 9000, standing.AverageSteps)
	require.Equal(t, 1, standing.Rank)

	_, err = service.TeamSummary(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, domain.ErrTeamNotFound)
}

func TestUpsertProfileKeepsOriginalCreatedAt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeRecognizer{})

	first, err := service.UpsertProfile(ctx, domain.User{ID: "user-1", Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	require.False(t, first.CreatedAt.IsZero())

	second, err := service.UpsertProfile(ctx, domain.User{ID: "user-1", Email: "a@example.com", Name: "A renamed"})
	require.NoError(t, err)
	require.True(t, second.CreatedAt.Equal(first.CreatedAt))

	stored, err := service.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "A renamed", stored.Name)

	_, err = service.Profile(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
