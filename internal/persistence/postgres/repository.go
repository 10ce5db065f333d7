// Package postgres provides pgx-backed persistence for users, teams, and
// step records, recording outbox events in the storing transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/steprelay/internal/domain"
	"example.com/steprelay/internal/events"
	"example.com/steprelay/internal/observability"
)

// Repository implements the domain repositories over a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertUser stores or refreshes a profile keyed by the identity subject.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (user_id, email, name, nickname, profile_image, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE
        SET email=EXCLUDED.email, name=EXCLUDED.name, nickname=EXCLUDED.nickname, profile_image=EXCLUDED.profile_image`

	_, err := r.pool.Exec(ctx, stmt, user.ID, user.Email, user.Name, nullIfEmpty(user.Nickname), nullIfEmpty(user.ProfileImage), user.CreatedAt)
	return err
}

// GetUser fetches one profile, nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT user_id, email, name, COALESCE(nickname,''), COALESCE(profile_image,''), created_at
        FROM users WHERE user_id=$1`

	row := r.pool.QueryRow(ctx, query, id)
	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Nickname, &user.ProfileImage, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateTeam inserts a team row.
func (r *Repository) CreateTeam(ctx context.Context, team domain.Team) error {
	const stmt = `INSERT INTO teams (team_code, name, description, creator_id, created_at)
        VALUES ($1,$2,$3,$4,$5)`

	_, err := r.pool.Exec(ctx, stmt, team.Code, team.Name, nullIfEmpty(team.Description), team.CreatorID, team.CreatedAt)
	return err
}

// GetTeam fetches one team by join code, nil when absent.
func (r *Repository) GetTeam(ctx context.Context, code string) (*domain.Team, error) {
	const query = `SELECT team_code, name, COALESCE(description,''), creator_id, created_at
        FROM teams WHERE team_code=$1`

	row := r.pool.QueryRow(ctx, query, code)
	var team domain.Team
	if err := row.Scan(&team.Code, &team.Name, &team.Description, &team.CreatorID, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}

// ListTeams returns every team with its roster size.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.TeamWithMemberCount, error) {
	const query = `SELECT t.team_code, t.name, COALESCE(t.description,''), t.creator_id, t.created_at, COUNT(m.user_id)
        FROM teams t
        LEFT JOIN team_members m ON m.team_code = t.team_code
        GROUP BY t.team_code, t.name, t.description, t.creator_id, t.created_at
        ORDER BY t.team_code`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TeamWithMemberCount
	for rows.Next() {
		var team domain.TeamWithMemberCount
		if err := rows.Scan(&team.Code, &team.Name, &team.Description, &team.CreatorID, &team.CreatedAt, &team.MemberCount); err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, rows.Err()
}

// TeamsOf returns the teams a user belongs to.
func (r *Repository) TeamsOf(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT t.team_code, t.name, COALESCE(t.description,''), t.creator_id, t.created_at
        FROM teams t
        JOIN team_members m ON m.team_code = t.team_code
        WHERE m.user_id=$1
        ORDER BY m.joined_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.Code, &team.Name, &team.Description, &team.CreatorID, &team.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, rows.Err()
}

// AddMember inserts a roster row and records the joined event in the same
// transaction.
func (r *Repository) AddMember(ctx context.Context, member domain.TeamMember) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO team_members (team_code, user_id, role, joined_at) VALUES ($1,$2,$3,$4)`
	if _, err = tx.Exec(ctx, stmt, member.TeamCode, member.UserID, member.Role, member.JoinedAt); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxEntry{
		aggregateType: "team",
		aggregateID:   member.TeamCode,
		eventType:     eventTeamMemberJoined,
		partitionKey:  member.TeamCode,
		dedupeKey:     fmt.Sprintf("%s:%s:%s", member.TeamCode, member.UserID, eventTeamMemberJoined),
	}, events.TeamMemberJoined{
		TeamCode: member.TeamCode,
		UserID:   member.UserID,
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// RemoveMember deletes a roster row.
func (r *Repository) RemoveMember(ctx context.Context, code, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM team_members WHERE team_code=$1 AND user_id=$2`, code, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotTeamMember
	}
	return nil
}

// TeamMembers returns the roster joined with user profiles.
func (r *Repository) TeamMembers(ctx context.Context, code string) ([]domain.TeamMemberProfile, error) {
	const query = `SELECT m.team_code, m.user_id, m.role, m.joined_at,
            COALESCE(u.name,''), COALESCE(u.email,''), COALESCE(u.profile_image,'')
        FROM team_members m
        LEFT JOIN users u ON u.user_id = m.user_id
        WHERE m.team_code=$1
        ORDER BY m.joined_at`

	rows, err := r.pool.Query(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TeamMemberProfile
	for rows.Next() {
		var member domain.TeamMemberProfile
		if err := rows.Scan(&member.TeamCode, &member.UserID, &member.Role, &member.JoinedAt, &member.Name, &member.Email, &member.ProfileImage); err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, rows.Err()
}

const recordColumns = `record_id, user_id, team_id, steps, record_date, COALESCE(extracted_text,''), COALESCE(matched_pattern,''), confidence, created_at`

// RecordsOfUser returns all step records for one user.
func (r *Repository) RecordsOfUser(ctx context.Context, userID string) ([]domain.StepRecord, error) {
	return r.queryRecords(ctx, `SELECT `+recordColumns+` FROM step_records WHERE user_id=$1 ORDER BY record_date`, userID)
}

// RecordsOfTeam returns all step records attributed to one team.
func (r *Repository) RecordsOfTeam(ctx context.Context, teamID string) ([]domain.StepRecord, error) {
	return r.queryRecords(ctx, `SELECT `+recordColumns+` FROM step_records WHERE team_id=$1 ORDER BY record_date`, teamID)
}

// AllRecords returns every step record.
func (r *Repository) AllRecords(ctx context.Context) ([]domain.StepRecord, error) {
	return r.queryRecords(ctx, `SELECT `+recordColumns+` FROM step_records ORDER BY record_date`)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]domain.StepRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StepRecord
	for rows.Next() {
		var rec domain.StepRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TeamID, &rec.Steps, &rec.Date, &rec.ExtractedText, &rec.MatchedPattern, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertRecord persists a first-of-day record plus its outbox event.
func (r *Repository) InsertRecord(ctx context.Context, record domain.StepRecord) error {
	const stmt = `INSERT INTO step_records (record_id, user_id, team_id, steps, record_date, extracted_text, matched_pattern, confidence, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	return r.storeRecord(ctx, record, domain.ActionInsert, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			record.ID, record.UserID, record.TeamID, record.Steps, record.Date,
			nullIfEmpty(record.ExtractedText), nullIfEmpty(record.MatchedPattern), record.Confidence, record.CreatedAt)
		return err
	})
}

// UpdateRecord overwrites a same-day record plus its outbox event.
func (r *Repository) UpdateRecord(ctx context.Context, record domain.StepRecord) error {
	const stmt = `UPDATE step_records
        SET team_id=$2, steps=$3, extracted_text=$4, matched_pattern=$5, confidence=$6, created_at=$7
        WHERE record_id=$1`

	return r.storeRecord(ctx, record, domain.ActionUpdate, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			record.ID, record.TeamID, record.Steps,
			nullIfEmpty(record.ExtractedText), nullIfEmpty(record.MatchedPattern), record.Confidence, record.CreatedAt)
		return err
	})
}

func (r *Repository) storeRecord(ctx context.Context, record domain.StepRecord, action domain.UpsertAction, write func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = write(tx); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, outboxEntry{
		aggregateType: "step_record",
		aggregateID:   record.ID,
		eventType:     eventStepsRecorded,
		partitionKey:  record.UserID,
		dedupeKey:     fmt.Sprintf("%s:%s:%s", record.ID, record.Date, action),
	}, events.StepsRecorded{
		RecordID:   record.ID,
		UserID:     record.UserID,
		TeamID:     record.TeamID,
		Steps:      record.Steps,
		Date:       record.Date,
		Action:     string(action),
		Confidence: record.Confidence,
		OccurredAt: record.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordStepPersisted(record.CreatedAt)
	return nil
}

type outboxEntry struct {
	aggregateType string
	aggregateID   string
	eventType     string
	partitionKey  string
	dedupeKey     string
}

func insertOutbox(ctx context.Context, tx pgx.Tx, entry outboxEntry, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[entry.eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", entry.eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		entry.aggregateType,
		entry.aggregateID,
		entry.eventType,
		meta.Topic,
		meta.SchemaSubject,
		entry.partitionKey,
		body,
		entry.dedupeKey,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// Event routing metadata.
const (
	eventStepsRecorded    = "steps.recorded"
	eventTeamMemberJoined = "team.member_joined"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	eventStepsRecorded: {
		Topic:         "step_events",
		SchemaSubject: "step_events-value",
	},
	eventTeamMemberJoined: {
		Topic:         "team_events",
		SchemaSubject: "team_events-value",
	},
}
