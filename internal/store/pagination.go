package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type OffsetPage struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func newOffsetPage(items interface{}, total int64, page, pageSize int) *OffsetPage {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

type CursorPage struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// OrderCursor is a keyset position in the (created_at DESC, id DESC) order
// feed. The wire form is opaque to clients: URL-safe base64 over JSON.
type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

// feedHead is the position before the newest possible order.
func feedHead() OrderCursor {
	return OrderCursor{
		CreatedAt: time.Now(),
		ID:        int64(1<<63 - 1),
	}
}

func (c OrderCursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeOrderCursor parses a client-supplied cursor; an empty string means
// the head of the feed.
func DecodeOrderCursor(encoded string) (OrderCursor, error) {
	if encoded == "" {
		return feedHead(), nil
	}

	var cursor OrderCursor
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}
