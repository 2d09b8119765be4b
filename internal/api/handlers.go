// Package api exposes HTTP handlers for the progression service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence"
	"example.com/progression/internal/rewards"
)

const (
	serviceTimeout = 8 * time.Second
	maxBodyBytes   = 64 * 1024
	maxPageSize    = 100
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/progression/catalog", h.catalog)

	r.Route("/v1/progression/users/{userID}", func(r chi.Router) {
		r.Get("/", h.getProgress)
		r.Get("/history", h.listHistory)
		r.Post("/activities", h.recordActivity)
		r.Post("/challenge/complete", h.completeChallenge)
		r.Put("/challenge", h.assignChallenge)
		r.Post("/items", h.unlockItem)
		r.Post("/achievements", h.unlockAchievement)
		r.Post("/achievements/{achievementID}/claim", h.claimAchievementReward)
		r.Post("/daily-reward", h.claimDailyReward)
		r.Post("/games/sessions", h.completeGameSession)
		r.Put("/avatar", h.selectAvatar)
	})
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, toCatalogView(h.service.Rules()))
}

func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionRead)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	view, err := h.service.GetProgress(ctx, claims.TenantID, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressView(view, h.service.Rules().Table))
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionRead)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxPageSize)
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	entries, next, err := h.service.ListHistory(ctx, claims.TenantID, userID, cursor, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]ActivitySummaryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toActivitySummaryView(entry.Summary))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req RecordActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	summary, replay, err := h.service.RecordActivity(ctx, domain.RecordActivityInput{
		TenantID:       claims.TenantID,
		UserID:         userID,
		ActivityType:   req.ActivityType,
		DurationMin:    req.DurationMin,
		BasePoints:     req.BasePoints,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, RecordActivityResponse{Summary: toActivitySummaryView(summary), Replay: replay})
}

func (h *Handler) completeChallenge(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	summary, err := h.service.CompleteDailyChallenge(ctx, claims.TenantID, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeSummaryView(summary))
}

func (h *Handler) assignChallenge(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionAdmin)
	if !ok {
		return
	}

	var req AssignChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	challenge, err := h.service.AssignDailyChallenge(ctx, claims.TenantID, userID, req.toDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(challenge))
}

func (h *Handler) unlockItem(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req UnlockItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	unlocked, err := h.service.UnlockItem(ctx, claims.TenantID, userID, req.Category, req.ItemID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: unlocked})
}

func (h *Handler) unlockAchievement(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req UnlockAchievementRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	unlocked, err := h.service.UnlockAchievement(ctx, claims.TenantID, userID, req.AchievementID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: unlocked})
}

func (h *Handler) claimDailyReward(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	summary, err := h.service.ClaimDailyReward(ctx, claims.TenantID, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyRewardView(summary))
}

func (h *Handler) claimAchievementReward(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	id := rewards.AchievementID(chi.URLParam(r, "achievementID"))
	summary, err := h.service.ClaimAchievementReward(ctx, claims.TenantID, userID, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAchievementRewardView(summary))
}

func (h *Handler) completeGameSession(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req GameSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	summary, err := h.service.CompleteGameSession(ctx, domain.CompleteGameSessionInput{
		TenantID:    claims.TenantID,
		UserID:      userID,
		GameID:      req.GameID,
		Score:       req.Score,
		DurationMin: req.DurationMin,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGameSessionView(summary))
}

func (h *Handler) selectAvatar(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := authorize(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req AvatarRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	avatar, err := h.service.SelectAvatar(ctx, claims.TenantID, userID, req.toDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvatarView(avatar))
}

// authorize resolves the caller and the target user, writing the error response itself on failure.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, "", false
	}
	userID, err := auth.ResolveUser(claims, chi.URLParam(r, "userID"), scope)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
		return nil, "", false
	}
	return claims, userID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownStyle),
		errors.Is(err, domain.ErrInvalidChallenge):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrProgressionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "progression not found")
	case errors.Is(err, domain.ErrUnknownAchievement),
		errors.Is(err, domain.ErrUnknownGame):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStyleLocked):
		writeError(w, http.StatusConflict, "style_locked", err.Error())
	case errors.Is(err, domain.ErrAchievementLocked),
		errors.Is(err, domain.ErrGameLocked):
		writeError(w, http.StatusConflict, "locked", err.Error())
	case errors.Is(err, domain.ErrRewardClaimed):
		writeError(w, http.StatusConflict, "already_claimed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
