// Package domain defines the business logic for the progression service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"example.com/progression/internal/achievement"
	"example.com/progression/internal/events"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/rewards"
)

// Mutation is the outcome of an UpdateFunc: the new state plus what must be written alongside it.
type Mutation struct {
	State  *Progression
	Events []Event
	Ledger *LedgerEntry
}

// UpdateFunc receives the stored progression, or nil when the user has none yet.
type UpdateFunc func(current *Progression) (Mutation, error)

// Repository captures persistence operations.
type Repository interface {
	// Update runs fn and persists its Mutation atomically while holding the user's row.
	// A ledger entry whose ActivityID already exists fails with ErrIdempotentReplay.
	Update(ctx context.Context, tenantID, userID string, fn UpdateFunc) error
	// Get returns nil, nil when the user has no progression.
	Get(ctx context.Context, tenantID, userID string) (*Progression, error)
	FindLedgerEntry(ctx context.Context, tenantID, userID, activityID string) (*LedgerEntry, error)
	ListLedger(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error)
	// ListUsers pages through every stored progression ordered by (tenant, user), starting after the given ref.
	ListUsers(ctx context.Context, after UserRef, limit int) ([]UserRef, error)
}

// Service is the single owner of progression state. Mutations for one user are serialised.
type Service struct {
	repo     Repository
	rules    Rules
	locks    *keyedMutex
	logger   *slog.Logger
	validate *validator.Validate
}

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs a Service.
func NewService(repo Repository, rules Rules, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		rules:    rules,
		locks:    newKeyedMutex(),
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rules the service applies.
func (s *Service) Rules() Rules {
	return s.rules
}

// RecordActivityInput captures an activity reported by the API or the activity consumer.
type RecordActivityInput struct {
	TenantID       string `validate:"required"`
	UserID         string `validate:"required"`
	ActivityType   string `validate:"required"`
	DurationMin    int    `validate:"gt=0"`
	BasePoints     *int   `validate:"omitempty,gte=0,lte=100000"`
	IdempotencyKey string `validate:"max=200"`
}

// RecordActivity credits an activity. A repeated idempotency key returns the stored summary with replay=true.
func (s *Service) RecordActivity(ctx context.Context, input RecordActivityInput) (ActivitySummary, bool, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.ActivityType = strings.TrimSpace(input.ActivityType)
	if err := s.validate.Struct(input); err != nil {
		return ActivitySummary{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindLedgerEntry(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
		switch {
		case err != nil:
			// The ledger insert still rejects a duplicate key, so the write goes ahead.
			s.logger.WarnContext(ctx, "idempotency pre-check failed",
				slog.String("tenant_id", input.TenantID),
				slog.String("user_id", input.UserID),
				slog.String("activity_id", input.IdempotencyKey),
				slog.Any("error", err),
			)
		case existing != nil:
			observability.RecordReplay()
			return existing.Summary, true, nil
		}
	}

	activityType := rewards.NormalizeActivityType(input.ActivityType)
	basePoints := s.rules.Table.BasePoints(activityType)
	if input.BasePoints != nil {
		basePoints = *input.BasePoints
	}
	activityID := input.IdempotencyKey
	if activityID == "" {
		activityID = uuid.NewString()
	}

	var summary ActivitySummary
	_, err := s.mutate(ctx, "record_activity", input.TenantID, input.UserID, true, func(engine *Engine) (*LedgerEntry, error) {
		summary = engine.RecordActivity(activityType, input.DurationMin, basePoints)
		summary.ActivityID = activityID
		state := engine.State()
		engine.emit(events.TypeActivityRewarded, "activity:"+activityID, events.ActivityRewarded{
			TenantID:           state.TenantID,
			UserID:             state.UserID,
			ActivityID:         activityID,
			ActivityType:       string(activityType),
			DurationMin:        input.DurationMin,
			PointsEarned:       summary.PointsEarned,
			ChallengePoints:    summary.ChallengePoints,
			StreakBonusApplied: summary.StreakBonusApplied,
			TotalPoints:        summary.TotalPoints,
			Level:              summary.Level,
			Streak:             summary.Streak,
			OccurredAt:         summary.RecordedAt,
		})
		return newLedgerEntry(state.TenantID, state.UserID, summary), nil
	})
	if errors.Is(err, ErrIdempotentReplay) {
		existing, findErr := s.repo.FindLedgerEntry(ctx, input.TenantID, input.UserID, activityID)
		if findErr != nil {
			return ActivitySummary{}, false, findErr
		}
		if existing == nil {
			return ActivitySummary{}, false, err
		}
		observability.RecordReplay()
		return existing.Summary, true, nil
	}
	if err != nil {
		return ActivitySummary{}, false, err
	}

	observability.RecordActivity(string(activityType), summary.PointsEarned)
	s.logger.InfoContext(ctx, "activity recorded",
		slog.String("tenant_id", input.TenantID),
		slog.String("user_id", input.UserID),
		slog.String("activity_id", activityID),
		slog.String("activity_type", string(activityType)),
		slog.Int("points_earned", summary.PointsEarned),
		slog.Int("level", summary.Level),
		slog.Bool("leveled_up", summary.LeveledUp),
	)
	return summary, false, nil
}

// CompleteDailyChallenge closes out the active challenge. Repeat calls are no-ops.
func (s *Service) CompleteDailyChallenge(ctx context.Context, tenantID, userID string) (ChallengeSummary, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return ChallengeSummary{}, err
	}
	var summary ChallengeSummary
	_, err := s.mutate(ctx, "complete_challenge", tenantID, userID, true, func(engine *Engine) (*LedgerEntry, error) {
		summary = engine.CompleteDailyChallenge()
		return nil, nil
	})
	return summary, err
}

// UnlockItem grants an inventory item. It reports false for unknown or already unlocked items.
func (s *Service) UnlockItem(ctx context.Context, tenantID, userID string, category rewards.CategoryID, itemID string) (bool, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return false, err
	}
	if category == "" || strings.TrimSpace(itemID) == "" {
		return false, fmt.Errorf("%w: category and item_id are required", ErrInvalidInput)
	}
	var unlocked bool
	_, err := s.mutate(ctx, "unlock_item", tenantID, userID, true, func(engine *Engine) (*LedgerEntry, error) {
		unlocked = engine.UnlockItem(category, itemID)
		return nil, nil
	})
	return unlocked, err
}

// UnlockAchievement grants an achievement. It reports false for unknown or already unlocked ids.
func (s *Service) UnlockAchievement(ctx context.Context, tenantID, userID string, id rewards.AchievementID) (bool, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return false, err
	}
	if id == "" {
		return false, fmt.Errorf("%w: achievement_id is required", ErrInvalidInput)
	}
	var unlocked bool
	_, err := s.mutate(ctx, "unlock_achievement", tenantID, userID, true, func(engine *Engine) (*LedgerEntry, error) {
		unlocked = engine.UnlockAchievement(id)
		return nil, nil
	})
	return unlocked, err
}

// AssignDailyChallenge replaces the active challenge of an existing user.
func (s *Service) AssignDailyChallenge(ctx context.Context, tenantID, userID string, challenge DailyChallenge) (DailyChallenge, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return DailyChallenge{}, err
	}
	state, err := s.mutate(ctx, "assign_challenge", tenantID, userID, false, func(engine *Engine) (*LedgerEntry, error) {
		return nil, engine.AssignDailyChallenge(challenge)
	})
	if err != nil {
		return DailyChallenge{}, err
	}
	return state.Challenge, nil
}

// SelectAvatar changes the avatar when the style is unlocked at the user's level.
func (s *Service) SelectAvatar(ctx context.Context, tenantID, userID string, avatar AvatarCustomization) (AvatarCustomization, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return AvatarCustomization{}, err
	}
	if err := s.validate.Struct(avatar); err != nil {
		return AvatarCustomization{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	state, err := s.mutate(ctx, "select_avatar", tenantID, userID, true, func(engine *Engine) (*LedgerEntry, error) {
		return nil, engine.SelectAvatar(avatar)
	})
	if err != nil {
		return AvatarCustomization{}, err
	}
	return state.Avatar, nil
}

// ProgressView is the read model served to clients.
type ProgressView struct {
	Progression         *Progression
	Achievements        map[rewards.AchievementID]achievement.Progress
	AvailableStyles     []rewards.AvatarStyle
	NextStyle           *rewards.AvatarStyle
	UnlockedGames       []string
	PointsToNextLevel   int
	CanClaimDailyReward bool
}

// GetProgress returns the user's progression, creating the default state on first access.
func (s *Service) GetProgress(ctx context.Context, tenantID, userID string) (ProgressView, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return ProgressView{}, err
	}
	state, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		return ProgressView{}, err
	}
	if state == nil {
		state, err = s.mutate(ctx, "initialise", tenantID, userID, true, func(*Engine) (*LedgerEntry, error) {
			return nil, nil
		})
		if err != nil {
			return ProgressView{}, err
		}
	}

	// Reads never persist, so a lapsed streak is only settled on the copy being viewed.
	today := s.rules.Today()
	state = state.Clone()
	settleStreak(&state.Stats, today)
	engine := NewEngine(s.rules, state)
	view := ProgressView{
		Progression:         engine.State(),
		Achievements:        engine.Evaluate(),
		AvailableStyles:     engine.AvailableStyles(),
		UnlockedGames:       engine.UnlockedGames(),
		PointsToNextLevel:   s.rules.Table.PointsForLevel(state.Stats.Level+1) - state.Stats.Points,
		CanClaimDailyReward: state.Stats.CanClaimDailyReward(today),
	}
	if next, ok := s.rules.Table.NextStyle(state.Stats.Level); ok {
		view.NextStyle = &next
	}
	return view, nil
}

// ClaimDailyReward pays out today's daily reward. A second claim on the same day fails
// with ErrRewardClaimed.
func (s *Service) ClaimDailyReward(ctx context.Context, tenantID, userID string) (DailyRewardSummary, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return DailyRewardSummary{}, err
	}
	var summary DailyRewardSummary
	_, err := s.mutate(ctx, "claim_daily_reward", tenantID, userID, true, func(engine *Engine) (*LedgerEntry, error) {
		var err error
		summary, err = engine.ClaimDailyReward()
		return nil, err
	})
	if err != nil {
		return DailyRewardSummary{}, err
	}
	s.logger.InfoContext(ctx, "daily reward claimed",
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.Int("points", summary.PointsAwarded),
		slog.Int("daily_streak", summary.Streak),
	)
	return summary, nil
}

// ClaimAchievementReward pays out an unlocked achievement's reward exactly once.
func (s *Service) ClaimAchievementReward(ctx context.Context, tenantID, userID string, id rewards.AchievementID) (AchievementRewardSummary, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return AchievementRewardSummary{}, err
	}
	if strings.TrimSpace(string(id)) == "" {
		return AchievementRewardSummary{}, fmt.Errorf("%w: achievement_id is required", ErrInvalidInput)
	}
	var summary AchievementRewardSummary
	_, err := s.mutate(ctx, "claim_achievement_reward", tenantID, userID, false, func(engine *Engine) (*LedgerEntry, error) {
		var err error
		summary, err = engine.ClaimAchievementReward(id)
		return nil, err
	})
	return summary, err
}

// CompleteGameSessionInput captures a finished game reported by a client.
type CompleteGameSessionInput struct {
	TenantID    string `validate:"required"`
	UserID      string `validate:"required"`
	GameID      string `validate:"required,max=64"`
	Score       int    `validate:"gte=0,lte=1000000"`
	DurationMin int    `validate:"gte=0,lte=1440"`
}

// CompleteGameSession credits a finished game session.
func (s *Service) CompleteGameSession(ctx context.Context, input CompleteGameSessionInput) (GameSessionSummary, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.GameID = strings.TrimSpace(input.GameID)
	if err := s.validate.Struct(input); err != nil {
		return GameSessionSummary{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var summary GameSessionSummary
	_, err := s.mutate(ctx, "complete_game_session", input.TenantID, input.UserID, true, func(engine *Engine) (*LedgerEntry, error) {
		var err error
		summary, err = engine.CompleteGameSession(input.GameID, input.Score, input.DurationMin)
		return nil, err
	})
	return summary, err
}

// ListHistory pages through the user's activity ledger, newest first.
func (s *Service) ListHistory(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]LedgerEntry, *Cursor, error) {
	if err := requireUser(tenantID, userID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListLedger(ctx, tenantID, userID, cursor, limit)
}

// RotateDailyChallenges assigns a fresh challenge to every user whose challenge predates day.
func (s *Service) RotateDailyChallenges(ctx context.Context, day time.Time) (int, error) {
	const pageSize = 100
	day = CalendarDay(day, s.rules.Location)

	var (
		after   UserRef
		rotated int
		errs    error
	)
	for {
		refs, err := s.repo.ListUsers(ctx, after, pageSize)
		if err != nil {
			return rotated, errors.Join(errs, err)
		}
		for _, ref := range refs {
			changed := false
			_, err := s.mutate(ctx, "rotate_challenge", ref.TenantID, ref.UserID, false, func(engine *Engine) (*LedgerEntry, error) {
				if !engine.State().Challenge.AssignedOn.Before(day) {
					return nil, errSkipWrite
				}
				changed = true
				return nil, engine.AssignDailyChallenge(s.rules.PickChallenge(day))
			})
			if err != nil && !errors.Is(err, errSkipWrite) {
				errs = errors.Join(errs, fmt.Errorf("rotate %s/%s: %w", ref.TenantID, ref.UserID, err))
				continue
			}
			if changed && err == nil {
				rotated++
			}
		}
		if len(refs) < pageSize {
			break
		}
		after = refs[len(refs)-1]
	}

	observability.RecordRotation(rotated)
	s.logger.InfoContext(ctx, "daily challenges rotated", slog.Time("day", day), slog.Int("rotated", rotated))
	return rotated, errs
}

// errSkipWrite aborts a mutation without persisting it.
var errSkipWrite = errors.New("no changes")

// mutate serialises a read-modify-write for one user. When create is false a missing
// progression fails with ErrProgressionNotFound.
func (s *Service) mutate(ctx context.Context, op, tenantID, userID string, create bool, apply func(*Engine) (*LedgerEntry, error)) (*Progression, error) {
	started := time.Now()
	unlock := s.locks.Lock(tenantID + "\x00" + userID)
	defer unlock()

	var (
		result  *Progression
		emitted []Event
	)
	err := s.repo.Update(ctx, tenantID, userID, func(current *Progression) (Mutation, error) {
		var state *Progression
		switch {
		case current != nil:
			state = current.Clone()
		case create:
			now := s.rules.now()
			state = NewProgression(tenantID, userID, s.rules.PickChallenge(CalendarDay(now, s.rules.Location)), now)
		default:
			return Mutation{}, ErrProgressionNotFound
		}

		engine := NewEngine(s.rules, state)
		ledger, err := apply(engine)
		if err != nil {
			return Mutation{}, err
		}
		state.Version++
		state.UpdatedAt = s.rules.now()
		result = state
		emitted = engine.Events()
		return Mutation{State: state, Events: emitted, Ledger: ledger}, nil
	})
	if !errors.Is(err, errSkipWrite) {
		observability.ObserveMutation(op, started, err)
	}
	if err != nil {
		if !errors.Is(err, errSkipWrite) && !isClientError(err) {
			s.logger.ErrorContext(ctx, "progression mutation failed",
				slog.String("operation", op),
				slog.String("tenant_id", tenantID),
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		return nil, err
	}

	recordEventMetrics(emitted)
	return result, nil
}

func recordEventMetrics(emitted []Event) {
	for _, evt := range emitted {
		switch payload := evt.Payload.(type) {
		case events.LevelChanged:
			observability.RecordLevelUp()
		case events.AchievementUnlocked:
			observability.RecordAchievement(payload.AchievementID)
		case events.ItemUnlocked:
			observability.RecordItem(payload.Category, payload.Source)
		case events.ChallengeCompleted:
			observability.RecordChallengeCompleted(payload.Points)
		case events.RewardClaimed:
			observability.RecordRewardClaimed(payload.Kind, payload.Points)
		case events.GameCompleted:
			observability.RecordGameSession(payload.GameID, payload.PointsEarned)
		}
	}
}

func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrProgressionNotFound) ||
		errors.Is(err, ErrStyleLocked) ||
		errors.Is(err, ErrUnknownStyle) ||
		errors.Is(err, ErrInvalidChallenge) ||
		errors.Is(err, ErrIdempotentReplay) ||
		errors.Is(err, ErrRewardClaimed) ||
		errors.Is(err, ErrUnknownAchievement) ||
		errors.Is(err, ErrAchievementLocked) ||
		errors.Is(err, ErrUnknownGame) ||
		errors.Is(err, ErrGameLocked)
}

func requireUser(tenantID, userID string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: tenant and user are required", ErrInvalidInput)
	}
	return nil
}
