// Package pagination implements keyset paging over (created_at, id) for
// newest-first listings.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

// Pagination binds the page_token and page_size query parameters.
type Pagination struct {
	PageToken string `form:"page_token" json:"page_token,omitempty"`
	PageSize  int    `form:"page_size" json:"page_size,omitempty"`
}

// Size clamps PageSize to [1, MaxPageSize], defaulting to DefaultPageSize.
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Cursor is the last row of a page. The next page starts strictly after it.
func (p Pagination) Cursor() (*Cursor, error) {
	return ParseCursor(p.PageToken)
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type wireCursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Token is the opaque url-safe form of c.
func (c Cursor) Token() string {
	b, _ := json.Marshal(wireCursor{ID: c.ID.String(), CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano)})
	return base64.RawURLEncoding.EncodeToString(b)
}

// ParseCursor returns nil for an empty token.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(w.ID)
	if err != nil || id == 0 {
		return nil, ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	return &Cursor{ID: id, CreatedAt: createdAt}, nil
}

// Trim cuts rows fetched with limit+1 down to limit. The next token points
// at the last row kept.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, PageInfo) {
	if len(rows) <= limit {
		return rows, PageInfo{}
	}
	rows = rows[:limit]
	return rows, PageInfo{HasMore: true, NextPageToken: cursorOf(rows[len(rows)-1]).Token()}
}
