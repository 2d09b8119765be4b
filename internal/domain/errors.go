package domain

import "errors"

var (
	// ErrInvalidInput is returned when a request fails boundary validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProgressionNotFound is returned when a user has no stored progression.
	ErrProgressionNotFound = errors.New("progression not found")
	// ErrStyleLocked is returned when the user's level is below the style's required level.
	ErrStyleLocked = errors.New("avatar style locked")
	// ErrUnknownStyle is returned for styles missing from the reward table.
	ErrUnknownStyle = errors.New("unknown avatar style")
	// ErrInvalidChallenge is returned when an assigned challenge has no type or a non-positive target.
	ErrInvalidChallenge = errors.New("invalid daily challenge")
	// ErrIdempotentReplay indicates an activity was already recorded for the idempotency key.
	ErrIdempotentReplay = errors.New("activity already recorded for idempotency key")
	// ErrRewardClaimed is returned when a daily or achievement reward was already paid out.
	ErrRewardClaimed = errors.New("reward already claimed")
	// ErrUnknownAchievement is returned for achievement ids missing from the reward table.
	ErrUnknownAchievement = errors.New("unknown achievement")
	// ErrAchievementLocked is returned when an achievement's requirement is not met yet.
	ErrAchievementLocked = errors.New("achievement requirements not met")
	// ErrUnknownGame is returned for games missing from the unlock table.
	ErrUnknownGame = errors.New("unknown game")
	// ErrGameLocked is returned when the user's level is below the game's unlock level.
	ErrGameLocked = errors.New("game locked")
)
