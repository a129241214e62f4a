package constants

// RequestAction is the action tag stored on user_requests rows.
type RequestAction string

// Stable values (store these exact strings in DB).
const (
	ActionUploadReceipt RequestAction = "upload_receipt" // counted against the monthly quota
)
