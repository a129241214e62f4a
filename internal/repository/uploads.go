package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

type UploadRepository interface {
	Create(ctx context.Context, userID, url string, at time.Time) (*entity.Upload, error)
	Get(ctx context.Context, id string) (*entity.Upload, error)
}

type uploadRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewUploadRepository(db *DB, logger *slog.Logger) UploadRepository {
	return &uploadRepository{db: db, logger: logger}
}

func (r *uploadRepository) Create(ctx context.Context, userID, url string, at time.Time) (*entity.Upload, error) {
	up := &entity.Upload{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       url,
		CreatedAt: at.UTC(),
	}
	query, args := r.db.builder().Insert(tableUploads).
		Columns("id", "user_id", "url", "created_at").
		Values(up.ID, up.UserID, up.URL, up.CreatedAt.UnixMilli()).
		Query()
	if _, err := r.db.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to insert upload", "user_id", userID, "error", err)
		return nil, dbError("insert upload", err)
	}
	r.logger.Info("upload stored", "upload_id", up.ID, "user_id", userID)
	return up, nil
}

func (r *uploadRepository) Get(ctx context.Context, id string) (*entity.Upload, error) {
	b := r.db.builder()
	query, args := b.Select("id", "user_id", "url", "created_at").
		From(b.Table(tableUploads)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		up        entity.Upload
		createdAt int64
	)
	err := r.db.sql.QueryRowContext(ctx, query, args...).Scan(&up.ID, &up.UserID, &up.URL, &createdAt)
	if err != nil {
		return nil, dbError("get upload "+id, err)
	}
	up.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &up, nil
}
