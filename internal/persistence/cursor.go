// Package persistence holds helpers shared by the repository implementations.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/progression/internal/domain"
)

// pageToken is the JSON body of an opaque history cursor.
type pageToken struct {
	RecordedAt time.Time `json:"t"`
	ActivityID string    `json:"a"`
}

// EncodeCursor turns a keyset position into a URL-safe page token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, _ := json.Marshal(pageToken{RecordedAt: c.RecordedAt.UTC(), ActivityID: c.ActivityID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor reverses EncodeCursor. A blank token means the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	var pt pageToken
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidInput)
	}
	if pt.RecordedAt.IsZero() || pt.ActivityID == "" {
		return nil, fmt.Errorf("%w: incomplete cursor", domain.ErrInvalidInput)
	}
	return &domain.Cursor{RecordedAt: pt.RecordedAt, ActivityID: pt.ActivityID}, nil
}
