package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/internal/rewards"
	"example.com/progression/internal/unlock"
)

type harness struct {
	router  chi.Router
	service *domain.Service
	claims  *auth.Claims
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	table := rewards.Default()
	table.UnlockChance = 0
	rules := domain.NewRules(table, unlock.NewSeededSource(3), time.UTC)
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	rules.Now = func() time.Time { return now }

	h := &harness{service: domain.NewService(memory.NewRepository(), rules)}
	h.claims = claimsFor("user-1", auth.ScopeProgressionRead, auth.ScopeProgressionWrite)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if h.claims != nil {
				req = req.WithContext(auth.WithClaims(req.Context(), h.claims))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(h.service, nil).RegisterRoutes(r)
	h.router = r
	return h
}

func claimsFor(subject string, scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &auth.Claims{Subject: subject, TenantID: "tenant-1", Scopes: set, ExpiresAt: time.Now().Add(time.Hour)}
}

func (h *harness) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRecordActivityCreatesThenReplays(t *testing.T) {
	h := newHarness(t)
	body := RecordActivityRequest{ActivityType: "Cardio", DurationMin: 30}

	rr := h.do(t, http.MethodPost, "/v1/progression/users/user-1/activities", body, "Idempotency-Key", "evt-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decodeBody[RecordActivityResponse](t, rr)
	require.False(t, first.Replay)
	require.Equal(t, "evt-1", first.Summary.ActivityID)
	require.Equal(t, "cardio", first.Summary.ActivityType)
	require.Equal(t, 100, first.Summary.PointsEarned)
	require.Equal(t, 2, first.Summary.Level)
	require.True(t, first.Summary.LeveledUp)
	require.Contains(t, first.Summary.NewlyUnlockedAchievements, string(rewards.AchievementFirstWorkout))

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/activities", body, "Idempotency-Key", "evt-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decodeBody[RecordActivityResponse](t, rr)
	require.True(t, second.Replay)
	require.Equal(t, first.Summary.PointsEarned, second.Summary.PointsEarned)
	require.Equal(t, 100, second.Summary.TotalPoints)
}

func TestRecordActivityValidatesBody(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/v1/progression/users/user-1/activities", map[string]any{"activity_type": "yoga", "duration_min": 0})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeBody[map[string]string](t, rr)["type"])

	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-1/activities", map[string]any{"activity_type": "yoga", "duration_min": 10, "calories": 3})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decodeBody[map[string]string](t, rr)["type"])

	huge := math.MaxInt / 2
	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-1/activities", RecordActivityRequest{ActivityType: "yoga", DurationMin: 10, BasePoints: &huge})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeBody[map[string]string](t, rr)["type"])
}

func TestAuthorizationRules(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/v1/progression/users/user-2", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.do(t, http.MethodPut, "/v1/progression/users/user-1/challenge", AssignChallengeRequest{Type: "yoga", Title: "Zen", Target: 1})
	require.Equal(t, http.StatusForbidden, rr.Code, "assigning challenges needs the admin scope")

	h.claims = nil
	rr = h.do(t, http.MethodGet, "/v1/progression/users/user-1", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = h.do(t, http.MethodGet, "/v1/progression/catalog", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAssignsChallenge(t *testing.T) {
	h := newHarness(t)

	h.claims = claimsFor("ops", auth.ScopeProgressionAdmin)
	rr := h.do(t, http.MethodPut, "/v1/progression/users/user-9/challenge", AssignChallengeRequest{Type: "yoga", Title: "Zen", Target: 1, Points: 30})
	require.Equal(t, http.StatusNotFound, rr.Code, "unknown users have no progression to assign to")

	h.claims = claimsFor("user-9", auth.ScopeProgressionRead, auth.ScopeProgressionWrite)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/progression/users/me", nil).Code)

	h.claims = claimsFor("ops", auth.ScopeProgressionAdmin)
	rr = h.do(t, http.MethodPut, "/v1/progression/users/user-9/challenge", AssignChallengeRequest{Type: "Yoga", Title: "Zen", Target: 1, Points: 30})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	challenge := decodeBody[ChallengeView](t, rr)
	require.Equal(t, "yoga", challenge.Type)
	require.NotEmpty(t, challenge.ID)

	h.claims = claimsFor("user-9", auth.ScopeProgressionRead, auth.ScopeProgressionWrite)
	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/activities", RecordActivityRequest{ActivityType: "yoga", DurationMin: 15})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	summary := decodeBody[RecordActivityResponse](t, rr).Summary
	require.True(t, summary.ChallengeCompleted)
	require.Equal(t, 30, summary.ChallengePoints)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/challenge/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, decodeBody[ChallengeSummaryView](t, rr).AlreadyCompleted)
}

func TestGetProgressReportsDerivedState(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/v1/progression/users/user-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeBody[ProgressView](t, rr)
	require.Equal(t, "user-1", view.UserID)
	require.Equal(t, 1, view.Stats.Level)
	require.Equal(t, 100, view.Stats.PointsToNextLevel)
	require.Equal(t, []string{"dance", "yoga", "memory-match"}, view.UnlockedGames)
	require.Equal(t, rewards.DefaultAvatarStyle, view.Avatar.Style)
	require.NotNil(t, view.NextStyle)
	require.Equal(t, "identicon", view.NextStyle.ID)
	require.Len(t, view.Achievements, 4)
	for _, a := range view.Achievements {
		require.NotEmpty(t, a.Name)
		require.False(t, a.Unlocked)
	}
}

func TestAvatarAndUnlockEndpoints(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/progression/users/user-1", nil).Code)

	rr := h.do(t, http.MethodPut, "/v1/progression/users/user-1/avatar", AvatarRequest{Style: "miniavs"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "style_locked", decodeBody[map[string]string](t, rr)["type"])

	rr = h.do(t, http.MethodPut, "/v1/progression/users/user-1/avatar", AvatarRequest{Style: "no-such-style"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPut, "/v1/progression/users/user-1/avatar", AvatarRequest{Style: "pixel-art", Mood: "happy"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "happy", decodeBody[AvatarView](t, rr).Mood)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-1/items", UnlockItemRequest{Category: rewards.CategoryHair, ItemID: "spiky"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, decodeBody[UnlockResponse](t, rr).Unlocked)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-1/items", UnlockItemRequest{Category: rewards.CategoryHair, ItemID: "spiky"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, decodeBody[UnlockResponse](t, rr).Unlocked)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-1/achievements", UnlockAchievementRequest{AchievementID: rewards.AchievementWeek1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, decodeBody[UnlockResponse](t, rr).Unlocked)
}

func TestHistoryPaginatesWithCursor(t *testing.T) {
	h := newHarness(t)
	for _, key := range []string{"a", "b", "c"} {
		rr := h.do(t, http.MethodPost, "/v1/progression/users/user-1/activities",
			RecordActivityRequest{ActivityType: "sports", DurationMin: 10}, "Idempotency-Key", key)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := h.do(t, http.MethodGet, "/v1/progression/users/user-1/history?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decodeBody[HistoryResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rr = h.do(t, http.MethodGet, "/v1/progression/users/user-1/history?limit=2&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rest := decodeBody[HistoryResponse](t, rr)
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)

	seen := map[string]bool{}
	for _, item := range append(page.Items, rest.Items...) {
		seen[item.ActivityID] = true
	}
	require.Len(t, seen, 3)

	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/v1/progression/users/user-1/history?cursor=not-a-cursor", nil).Code)
	require.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/v1/progression/users/user-1/history?limit=-1", nil).Code)
}

func TestCatalogListsRewardTable(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/v1/progression/catalog", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	catalog := decodeBody[CatalogView](t, rr)
	require.Equal(t, 100, catalog.PointsPerLevel)
	require.Len(t, catalog.AvatarStyles, 9)
	require.Len(t, catalog.ItemPools, 3)
	require.Zero(t, catalog.UnlockChance, "the harness disables item rolls")
	require.Equal(t, rewards.Default().Achievements, catalog.Achievements)
	require.Equal(t, 10, catalog.DailyReward.Points)
	require.Equal(t, 10, catalog.GameSession.BaseXP)
}

func TestDailyRewardEndpoint(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/v1/progression/users/me/daily-reward", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	reward := decodeBody[DailyRewardView](t, rr)
	require.Equal(t, 10, reward.PointsAwarded)
	require.Equal(t, 1, reward.DailyStreak)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/daily-reward", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "already_claimed", decodeBody[map[string]string](t, rr)["type"])

	view := decodeBody[ProgressView](t, h.do(t, http.MethodGet, "/v1/progression/users/me", nil))
	require.False(t, view.Stats.CanClaimDailyReward)
	require.Equal(t, 1, view.Stats.DailyRewardStreak)
	require.Equal(t, 10, view.Stats.Points)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/user-2/daily-reward", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAchievementClaimEndpoint(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/v1/progression/users/me/achievements/firstWorkout/claim", nil)
	require.Equal(t, http.StatusNotFound, rr.Code, "no progression yet")

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/activities", RecordActivityRequest{ActivityType: "cardio", DurationMin: 20})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/achievements/week1/claim", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "locked", decodeBody[map[string]string](t, rr)["type"])

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/achievements/nope/claim", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/achievements/firstWorkout/claim", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	claim := decodeBody[AchievementRewardView](t, rr)
	require.Equal(t, "firstWorkout", claim.AchievementID)
	require.Equal(t, 50, claim.PointsAwarded)
	require.Equal(t, 150, claim.TotalPoints)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/achievements/firstWorkout/claim", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "already_claimed", decodeBody[map[string]string](t, rr)["type"])

	view := decodeBody[ProgressView](t, h.do(t, http.MethodGet, "/v1/progression/users/me", nil))
	for _, a := range view.Achievements {
		require.Positive(t, a.RewardPoints, a.ID)
		require.Equal(t, a.ID == "firstWorkout", a.Claimed, a.ID)
	}
}

func TestGameSessionEndpoint(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/v1/progression/users/me/games/sessions", GameSessionRequest{GameID: "memory-match", Score: 40, DurationMin: 3})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decodeBody[GameSessionView](t, rr)
	require.Equal(t, 14, session.PointsEarned)
	require.Equal(t, 1, session.GamesPlayed)
	require.NotEmpty(t, session.SessionID)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/games/sessions", GameSessionRequest{GameID: "magic"})
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/games/sessions", GameSessionRequest{GameID: "chess"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/progression/users/me/games/sessions", map[string]any{"score": 5})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	h := NewHandler(nil, nil)
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrProgressionNotFound, http.StatusNotFound},
		{domain.ErrStyleLocked, http.StatusConflict},
		{domain.ErrRewardClaimed, http.StatusConflict},
		{domain.ErrAchievementLocked, http.StatusConflict},
		{domain.ErrGameLocked, http.StatusConflict},
		{domain.ErrUnknownAchievement, http.StatusNotFound},
		{domain.ErrUnknownGame, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.handleServiceError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}
