package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/receipt-vision/constants"
)

// UserRequestRepository stores the audit entries the monthly quota is counted from.
type UserRequestRepository interface {
	Record(ctx context.Context, userID string, action constants.RequestAction, at time.Time) error
	// CountInWindow counts entries with from <= created_at < to.
	CountInWindow(ctx context.Context, userID string, action constants.RequestAction, from, to time.Time) (int, error)
}

type userRequestRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewUserRequestRepository(db *DB, logger *slog.Logger) UserRequestRepository {
	return &userRequestRepository{db: db, logger: logger}
}

func (r *userRequestRepository) Record(ctx context.Context, userID string, action constants.RequestAction, at time.Time) error {
	query, args := r.db.builder().Insert(tableUserRequests).
		Columns("id", "user_id", "action", "created_at").
		Values(uuid.NewString(), userID, string(action), at.UTC().UnixMilli()).
		Query()
	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to record user request", "user_id", userID, "action", action, "error", err)
		return dbError("record user request", err)
	}
	return nil
}

func (r *userRequestRepository) CountInWindow(ctx context.Context, userID string, action constants.RequestAction, from, to time.Time) (int, error) {
	b := r.db.builder()
	query, args := b.Select().
		Count().
		From(b.Table(tableUserRequests)).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("action", string(action)),
			entsql.GTE("created_at", from.UTC().UnixMilli()),
			entsql.LT("created_at", to.UTC().UnixMilli()),
		)).
		Query()

	var n int
	if err := r.db.sql.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		r.logger.Error("failed to count user requests", "user_id", userID, "error", err)
		return 0, dbError("count user requests", err)
	}
	return n, nil
}

// ReceiptRequestRepository keeps the raw extraction responses.
type ReceiptRequestRepository interface {
	Record(ctx context.Context, userID string, uploadID *string, raw []byte, at time.Time) error
}

type receiptRequestRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewReceiptRequestRepository(db *DB, logger *slog.Logger) ReceiptRequestRepository {
	return &receiptRequestRepository{db: db, logger: logger}
}

// Record stores raw as JSON. Bodies that are not valid JSON are kept as a JSON string.
func (r *receiptRequestRepository) Record(ctx context.Context, userID string, uploadID *string, raw []byte, at time.Time) error {
	doc := raw
	if !json.Valid(doc) {
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			return err
		}
		doc = quoted
	}

	var upload any
	if uploadID != nil {
		upload = *uploadID
	}
	query, args := r.db.builder().Insert(tableReceiptRequests).
		Columns("id", "user_id", "upload_id", "raw", "created_at").
		Values(uuid.NewString(), userID, upload, string(doc), at.UTC().UnixMilli()).
		Query()
	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to record receipt request", "user_id", userID, "error", err)
		return dbError("record receipt request", err)
	}
	return nil
}
