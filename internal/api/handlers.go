// Package api exposes HTTP handlers for the step challenge service.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/steprelay/internal/auth"
	"example.com/steprelay/internal/domain"
	"example.com/steprelay/internal/observability"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/step-uploads", h.stepUploads)
	mux.HandleFunc("/v1/users/me", h.profile)
	mux.HandleFunc("/v1/users/me/steps", h.mySteps)
	mux.HandleFunc("/v1/users/", h.userByID)
	mux.HandleFunc("/v1/teams", h.teams)
	mux.HandleFunc("/v1/teams/mine", h.myTeams)
	mux.HandleFunc("/v1/teams/", h.teamByCode)
	mux.HandleFunc("/v1/rankings", h.rankings)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stepUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:write required")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "image is not valid base64")
		return
	}

	result, err := h.service.RecordUpload(r.Context(), claims.Subject, domain.Screenshot{
		Format: req.Format,
		Data:   image,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoStepCount):
			observability.RecordUpload("unreadable")
			writeError(w, http.StatusUnprocessableEntity, "unreadable_screenshot", "no step count found in screenshot")
		case errors.Is(err, domain.ErrRecognitionFailed):
			observability.RecordUpload("ocr_error")
			writeError(w, http.StatusBadGateway, "ocr_unavailable", "screenshot recognition failed")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	observability.RecordUpload(string(result.Action))
	observability.ObserveExtractedSteps(result.Reading.Steps)

	writeJSON(w, http.StatusOK, UploadResponse{
		Action:         string(result.Action),
		Steps:          result.Reading.Steps,
		Date:           result.Record.Date,
		TeamID:         result.Record.TeamID,
		MatchedPattern: result.Reading.MatchedPattern,
		Confidence:     result.Reading.Confidence,
		Summary:        toSummaryView(result.Summary),
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.upsertProfile(w, r, claims)
	case http.MethodGet:
		user, err := h.service.Profile(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "profile not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toUserView(*user))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) upsertProfile(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req UpsertProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	user, err := h.service.UpsertProfile(r.Context(), domain.User{
		ID:           claims.Subject,
		Email:        req.Email,
		Name:         req.Name,
		Nickname:     req.Nickname,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) mySteps(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	h.userSteps(w, r, claims.Subject)
}

func (h *Handler) userByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, tail, _ := strings.Cut(rest, "/")
	if userID == "" || tail != "steps" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	h.userSteps(w, r, userID)
}

func (h *Handler) userSteps(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeStepsRead) && !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:read required")
		return
	}

	summary, err := h.service.UserSummary(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(summary))
}

func (h *Handler) teams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTeam(w, r)
	case http.MethodGet:
		h.listTeams(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTeamsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope teams:write required")
		return
	}

	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	team, joined, err := h.service.CreateTeam(r.Context(), claims.Subject, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyOnTeam) {
			writeError(w, http.StatusConflict, "already_on_team", "caller already belongs to a team")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := CreateTeamResponse{
		Code:        team.Code,
		Name:        team.Name,
		Description: team.Description,
		Joined:      joined,
	}
	if !joined {
		resp.Message = "team created but automatic join failed; join manually with the code"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	teams, err := h.service.ListTeams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]TeamView, 0, len(teams))
	for _, team := range teams {
		items = append(items, TeamView{
			Code:        team.Code,
			Name:        team.Name,
			Description: team.Description,
			MemberCount: team.MemberCount,
			CreatedAt:   team.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListTeamsResponse{Items: items})
}

func (h *Handler) myTeams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	teams, err := h.service.UserTeams(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]TeamView, 0, len(teams))
	for _, team := range teams {
		items = append(items, TeamView{
			Code:        team.Code,
			Name:        team.Name,
			Description: team.Description,
			CreatedAt:   team.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListTeamsResponse{Items: items})
}

func (h *Handler) teamByCode(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/teams/")
	code, tail, _ := strings.Cut(rest, "/")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing team code")
		return
	}

	switch {
	case tail == "members" && r.Method == http.MethodPost:
		h.joinTeam(w, r, code)
	case tail == "members" && r.Method == http.MethodGet:
		h.teamMembers(w, r, code)
	case tail == "members/me" && r.Method == http.MethodDelete:
		h.leaveTeam(w, r, code)
	case tail == "summary" && r.Method == http.MethodGet:
		h.teamSummary(w, r, code)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) joinTeam(w http.ResponseWriter, r *http.Request, code string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTeamsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope teams:write required")
		return
	}

	if err := h.service.JoinTeam(r.Context(), code, claims.Subject); err != nil {
		switch {
		case errors.Is(err, domain.ErrTeamNotFound):
			writeError(w, http.StatusNotFound, "not_found", "team not found")
		case errors.Is(err, domain.ErrAlreadyOnTeam):
			writeError(w, http.StatusConflict, "already_on_team", "caller already belongs to a team")
		case errors.Is(err, domain.ErrTeamFull):
			writeError(w, http.StatusConflict, "team_full", "team roster is full")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"team_code": code, "status": "joined"})
}

func (h *Handler) leaveTeam(w http.ResponseWriter, r *http.Request, code string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTeamsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope teams:write required")
		return
	}

	if err := h.service.LeaveTeam(r.Context(), code, claims.Subject); err != nil {
		if errors.Is(err, domain.ErrNotTeamMember) {
			writeError(w, http.StatusNotFound, "not_found", "caller is not a member of the team")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"team_code": code, "status": "left"})
}

func (h *Handler) teamMembers(w http.ResponseWriter, r *http.Request, code string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeStepsRead) && !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:read required")
		return
	}

	members, err := h.service.TeamMembers(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrTeamNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "team not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]MemberView, 0, len(members))
	for _, member := range members {
		items = append(items, MemberView{
			UserID:       member.UserID,
			Name:         member.Name,
			Email:        member.Email,
			ProfileImage: member.ProfileImage,
			Role:         member.Role,
			JoinedAt:     member.JoinedAt,
			Steps:        toSummaryView(member.Summary),
		})
	}
	writeJSON(w, http.StatusOK, TeamMembersResponse{TeamCode: code, Members: items})
}

func (h *Handler) teamSummary(w http.ResponseWriter, r *http.Request, code string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeStepsRead) && !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:read required")
		return
	}

	standing, err := h.service.TeamSummary(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrTeamNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "team not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TeamSummaryResponse{
		TeamCode:     code,
		TodaySteps:   standing.TodaySteps,
		TotalSteps:   standing.TotalSteps,
		AverageSteps: standing.AverageSteps,
		Rank:         standing.Rank,
	})
}

func (h *Handler) rankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeStepsRead) && !claims.HasScope(auth.ScopeStepsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope steps:read required")
		return
	}

	ranked, err := h.service.Rankings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]RankingEntry, 0, len(ranked))
	for _, entry := range ranked {
		items = append(items, RankingEntry{
			Rank:        entry.Rank,
			TeamID:      entry.TeamID,
			Name:        entry.Name,
			TotalSteps:  entry.TotalSteps,
			MemberCount: entry.MemberCount,
		})
	}
	writeJSON(w, http.StatusOK, RankingsResponse{Items: items})
}

// UploadRequest is the payload for POST /v1/step-uploads.
type UploadRequest struct {
	Format string `json:"format"`
	Image  string `json:"image"`
}

// Validate ensures request correctness.
func (r UploadRequest) Validate() error {
	if strings.TrimSpace(r.Image) == "" {
		return errors.New("image is required")
	}
	return nil
}

// UploadResponse describes what an accepted screenshot produced.
type UploadResponse struct {
	Action         string      `json:"action"`
	Steps          int         `json:"steps"`
	Date           string      `json:"date"`
	TeamID         string      `json:"team_id"`
	MatchedPattern string      `json:"matched_pattern"`
	Confidence     int         `json:"confidence"`
	Summary        SummaryView `json:"summary"`
}

// UpsertProfileRequest is the payload for PUT /v1/users/me.
type UpsertProfileRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image"`
}

// Validate ensures request correctness.
func (r UpsertProfileRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// UserView exposes a stored profile.
type UserView struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Nickname     string    `json:"nickname,omitempty"`
	ProfileImage string    `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateTeamRequest is the payload for POST /v1/teams.
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate ensures request correctness.
func (r CreateTeamRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// CreateTeamResponse describes the response body for team creation.
type CreateTeamResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Joined      bool   `json:"joined"`
	Message     string `json:"message,omitempty"`
}

// TeamView is a team as listed to participants.
type TeamView struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTeamsResponse packages team list results.
type ListTeamsResponse struct {
	Items []TeamView `json:"items"`
}

// SummaryView exposes a user's derived step summary.
type SummaryView struct {
	TodaySteps int        `json:"today_steps"`
	TotalSteps int        `json:"total_steps"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// MemberView is a roster entry decorated with the member's steps.
type MemberView struct {
	UserID       string      `json:"user_id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	ProfileImage string      `json:"profile_image,omitempty"`
	Role         string      `json:"role"`
	JoinedAt     time.Time   `json:"joined_at"`
	Steps        SummaryView `json:"steps"`
}

// TeamMembersResponse packages a team roster.
type TeamMembersResponse struct {
	TeamCode string       `json:"team_code"`
	Members  []MemberView `json:"members"`
}

// TeamSummaryResponse merges a team's aggregates with its rank.
type TeamSummaryResponse struct {
	TeamCode     string `json:"team_code"`
	TodaySteps   int    `json:"today_steps"`
	TotalSteps   int    `json:"total_steps"`
	AverageSteps int    `json:"average_steps"`
	Rank         int    `json:"rank"`
}

// RankingEntry is one row of the challenge standings.
type RankingEntry struct {
	Rank        int    `json:"rank"`
	TeamID      string `json:"team_id"`
	Name        string `json:"name"`
	TotalSteps  int    `json:"total_steps"`
	MemberCount int    `json:"member_count,omitempty"`
}

// RankingsResponse packages the standings.
type RankingsResponse struct {
	Items []RankingEntry `json:"items"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toUserView(user domain.User) UserView {
	return UserView{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Nickname:     user.Nickname,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
	}
}

func toSummaryView(summary domain.UserStepsSummary) SummaryView {
	return SummaryView{
		TodaySteps: summary.TodaySteps,
		TotalSteps: summary.TotalSteps,
		LastUpdate: summary.LastUpdate,
	}
}
