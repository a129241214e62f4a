package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

// CreateReceiptRequest wraps parameters for persisting a flattened receipt.
type CreateReceiptRequest struct {
	UserID     string
	ImageURL   string
	Rows       []entity.Row
	UploadedAt time.Time
}

type ReceiptRepository interface {
	Create(ctx context.Context, req *CreateReceiptRequest) (*entity.ReceiptRecord, error)
	Get(ctx context.Context, id string) (*entity.ReceiptRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.ReceiptRecord, error)
	ReplaceRows(ctx context.Context, id string, rows []entity.Row) error
	Delete(ctx context.Context, id string) error
}

type receiptRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewReceiptRepository(db *DB, logger *slog.Logger) ReceiptRepository {
	return &receiptRepository{
		db:     db,
		logger: logger,
	}
}

var receiptColumns = []string{"id", "user_id", "image_url", "items", "uploaded_at"}

func (r *receiptRepository) Create(ctx context.Context, req *CreateReceiptRequest) (*entity.ReceiptRecord, error) {
	rows := req.Rows
	if rows == nil {
		rows = []entity.Row{}
	}
	items, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode receipt rows: %w", err)
	}

	rec := &entity.ReceiptRecord{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		ImageURL:   req.ImageURL,
		Rows:       rows,
		UploadedAt: req.UploadedAt.UTC(),
	}

	query, args := r.db.builder().Insert(tableReceiptData).
		Columns(receiptColumns...).
		Values(rec.ID, rec.UserID, rec.ImageURL, string(items), rec.UploadedAt.UnixMilli()).
		Query()
	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to insert receipt", "user_id", req.UserID, "error", err)
		return nil, dbError("insert receipt", err)
	}

	r.logger.Info("receipt stored", "receipt_id", rec.ID, "user_id", rec.UserID, "rows", len(rows))
	return rec, nil
}

func (r *receiptRepository) Get(ctx context.Context, id string) (*entity.ReceiptRecord, error) {
	b := r.db.builder()
	query, args := b.Select(receiptColumns...).
		From(b.Table(tableReceiptData)).
		Where(entsql.EQ("id", id)).
		Query()

	rec, err := scanReceipt(r.db.sql.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, dbError("get receipt "+id, err)
	}
	return rec, nil
}

func (r *receiptRepository) ListByUser(ctx context.Context, userID string) ([]*entity.ReceiptRecord, error) {
	b := r.db.builder()
	query, args := b.Select(receiptColumns...).
		From(b.Table(tableReceiptData)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("uploaded_at")).
		Query()

	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list receipts", "user_id", userID, "error", err)
		return nil, dbError("list receipts", err)
	}
	defer rows.Close()

	result := []*entity.ReceiptRecord{}
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, dbError("scan receipt", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list receipts", err)
	}
	return result, nil
}

// ReplaceRows overwrites the whole row list of a receipt.
func (r *receiptRepository) ReplaceRows(ctx context.Context, id string, rows []entity.Row) error {
	if rows == nil {
		rows = []entity.Row{}
	}
	items, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode receipt rows: %w", err)
	}

	query, args := r.db.builder().Update(tableReceiptData).
		Set("items", string(items)).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := r.db.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to replace receipt rows", "receipt_id", id, "error", err)
		return dbError("replace receipt rows", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("replace receipt %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// Delete removes the receipt; deleting a missing id is not an error.
func (r *receiptRepository) Delete(ctx context.Context, id string) error {
	query, args := r.db.builder().Delete(tableReceiptData).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to delete receipt", "receipt_id", id, "error", err)
		return dbError("delete receipt", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s rowScanner) (*entity.ReceiptRecord, error) {
	var (
		rec        entity.ReceiptRecord
		items      []byte
		uploadedAt int64
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.ImageURL, &items, &uploadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &rec.Rows); err != nil {
		return nil, fmt.Errorf("decode receipt rows: %w", err)
	}
	if rec.Rows == nil {
		rec.Rows = []entity.Row{}
	}
	rec.UploadedAt = time.UnixMilli(uploadedAt).UTC()
	return &rec, nil
}
