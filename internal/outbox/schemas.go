package outbox

const activityRewardedSchema = `{
  "type": "object",
  "title": "ActivityRewarded",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "duration_min": {"type": "integer", "minimum": 1},
    "points_earned": {"type": "integer", "minimum": 0},
    "challenge_points": {"type": "integer", "minimum": 0},
    "streak_bonus_applied": {"type": "boolean"},
    "total_points": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 1},
    "streak": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "activity_id", "activity_type", "points_earned", "total_points", "level", "occurred_at"],
  "additionalProperties": false
}`

const levelChangedSchema = `{
  "type": "object",
  "title": "LevelChanged",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "previous_level": {"type": "integer", "minimum": 1},
    "level": {"type": "integer", "minimum": 1},
    "total_points": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "previous_level", "level", "total_points", "occurred_at"],
  "additionalProperties": false
}`

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "achievement_id": {"type": "string"},
    "unlocked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "achievement_id", "unlocked_at"],
  "additionalProperties": false
}`

const itemUnlockedSchema = `{
  "type": "object",
  "title": "ItemUnlocked",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "category": {"type": "string"},
    "item_id": {"type": "string"},
    "source": {"type": "string", "enum": ["roll", "grant"]},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "category", "item_id", "source", "occurred_at"],
  "additionalProperties": false
}`

const challengeCompletedSchema = `{
  "type": "object",
  "title": "ChallengeCompleted",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "challenge_id": {"type": "string"},
    "challenge_type": {"type": "string"},
    "points": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "challenge_id", "challenge_type", "points", "occurred_at"],
  "additionalProperties": false
}`

const rewardClaimedSchema = `{
  "type": "object",
  "title": "RewardClaimed",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["daily", "achievement"]},
    "achievement_id": {"type": "string"},
    "points": {"type": "integer", "minimum": 0},
    "daily_streak": {"type": "integer", "minimum": 0},
    "total_points": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "kind", "points", "total_points", "level", "occurred_at"],
  "additionalProperties": false
}`

const gameCompletedSchema = `{
  "type": "object",
  "title": "GameCompleted",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "session_id": {"type": "string"},
    "game_id": {"type": "string"},
    "score": {"type": "integer"},
    "duration_min": {"type": "integer", "minimum": 0},
    "points_earned": {"type": "integer", "minimum": 0},
    "total_points": {"type": "integer", "minimum": 0},
    "level": {"type": "integer", "minimum": 1},
    "unlocked_games": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "session_id", "game_id", "points_earned", "total_points", "level", "occurred_at"],
  "additionalProperties": false
}`
