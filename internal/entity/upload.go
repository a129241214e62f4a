package entity

import (
	"encoding/json"
	"time"
)

// Upload represents one submitted image URL awaiting extraction.
type Upload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"uploaded_at"`
}

// UserRequest is an audit entry counted against the monthly upload quota.
type UserRequest struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// ReceiptRequest keeps the raw extraction response for debugging.
type ReceiptRequest struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	UploadID  *string         `json:"upload_id,omitempty"`
	Raw       json.RawMessage `json:"raw"`
	CreatedAt time.Time       `json:"created_at"`
}
