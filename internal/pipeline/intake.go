package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/repository"
)

// Publisher announces newly created uploads.
type Publisher interface {
	PublishUploadCreated(ctx context.Context, up entity.Upload) error
}

// SubmitRequest is the body of an asynchronous upload.
type SubmitRequest struct {
	URL    string `json:"url" validate:"required,http_url"`
	UserID string `json:"userId" validate:"required"`
}

// Intake records submitted upload URLs and hands them to the event path.
type Intake struct {
	uploads   repository.UploadRepository
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewIntake(uploads repository.UploadRepository, publisher Publisher, logger *slog.Logger) *Intake {
	return &Intake{uploads: uploads, publisher: publisher, logger: logger, now: time.Now}
}

// Submit stores the upload and publishes its created event.
func (i *Intake) Submit(ctx context.Context, req SubmitRequest) (*entity.Upload, error) {
	if err := common.ValidateStruct(req); err != nil {
		return nil, common.NewAppError("INVALID_UPLOAD", "Invalid request. url and userId are required.", err)
	}
	if caller := common.UserIDFromContext(ctx); caller != "" && caller != req.UserID {
		return nil, common.NewAppError("FORBIDDEN", "cannot upload for another user", common.ErrForbidden)
	}

	up, err := i.uploads.Create(ctx, req.UserID, req.URL, i.now())
	if err != nil {
		return nil, err
	}
	if err := i.publisher.PublishUploadCreated(ctx, *up); err != nil {
		i.logger.Error("intake.publish_failed", "upload_id", up.ID, "error", err)
		return nil, fmt.Errorf("publish upload %s: %w", up.ID, err)
	}
	i.logger.Info("intake.accepted", "upload_id", up.ID, "user_id", up.UserID)
	return up, nil
}
