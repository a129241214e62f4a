package entity

import (
	"time"
)

// TotalRowName is the name of the synthetic row that closes every flattened receipt.
const TotalRowName = "TOTAL"

// LineItem is one named amount as returned by the extraction model.
type LineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ReceiptDocument is the nested receipt produced by the extraction model.
// Total is expected to approximate the sum of items and taxes but is never checked.
type ReceiptDocument struct {
	Items []LineItem `json:"items"`
	Taxes []LineItem `json:"taxes"`
	Total float64    `json:"total"`
}

// Row is one line of a flattened receipt.
type Row struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ReceiptRecord represents a persisted, flattened receipt for data transfer between layers.
type ReceiptRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ImageURL   string    `json:"image_url"`
	Rows       []Row     `json:"items"`
	UploadedAt time.Time `json:"uploaded_at"`
}
