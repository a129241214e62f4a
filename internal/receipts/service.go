package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/repository"
)

// ImageLinker turns the image reference stored on a receipt into a fetchable URL.
type ImageLinker interface {
	URL(ctx context.Context, ref string) (string, error)
}

// Service handles reads and user edits of stored receipts.
type Service struct {
	receiptRepo repository.ReceiptRepository
	links       ImageLinker
	logger      *slog.Logger
}

// NewService creates a new receipt service. links may be nil when stored
// image references are already fetchable.
func NewService(receiptRepo repository.ReceiptRepository, links ImageLinker, logger *slog.Logger) *Service {
	return &Service{
		receiptRepo: receiptRepo,
		links:       links,
		logger:      logger,
	}
}

// ReplaceRowsRequest carries the edited row list of a receipt.
type ReplaceRowsRequest struct {
	Rows []entity.Row `json:"items" validate:"required"`
}

// List returns the receipts of userID, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*entity.ReceiptRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		s.logger.Error("list receipts request missing user id")
		return nil, common.NewAppError("INVALID_USER", "userId is required", common.ErrInvalidInput)
	}
	if caller := common.UserIDFromContext(ctx); caller != "" && caller != userID {
		return nil, common.NewAppError("FORBIDDEN", "cannot list another user's receipts", common.ErrForbidden)
	}

	recs, err := s.receiptRepo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list receipts", "user_id", userID, "error", err)
		return nil, err
	}
	for _, rec := range recs {
		if err := s.link(ctx, rec); err != nil {
			return nil, err
		}
	}
	s.logger.Info("receipts listed successfully", "user_id", userID, "count", len(recs))
	return recs, nil
}

// Get returns one receipt with a fresh image URL. A receipt owned by someone
// other than the authenticated caller is reported as not found.
func (s *Service) Get(ctx context.Context, rawID string) (*entity.ReceiptRecord, error) {
	rec, err := s.owned(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := s.link(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) link(ctx context.Context, rec *entity.ReceiptRecord) error {
	if s.links == nil || rec.ImageURL == "" {
		return nil
	}
	u, err := s.links.URL(ctx, rec.ImageURL)
	if err != nil {
		s.logger.Error("failed to resolve image url", "receipt_id", rec.ID, "error", err)
		return err
	}
	rec.ImageURL = u
	return nil
}

func (s *Service) owned(ctx context.Context, rawID string) (*entity.ReceiptRecord, error) {
	id, err := common.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	rec, err := s.receiptRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAppError("NOT_FOUND", "Receipt not found", err)
		}
		s.logger.Error("failed to get receipt", "receipt_id", id, "error", err)
		return nil, err
	}
	if caller := common.UserIDFromContext(ctx); caller != "" && caller != rec.UserID {
		s.logger.Warn("receipt access denied", "receipt_id", id, "caller", caller)
		return nil, common.NewAppError("NOT_FOUND", "Receipt not found", common.ErrNotFound)
	}
	return rec, nil
}

// ReplaceRows overwrites the receipt's rows with req.Rows. Concurrent edits are last-write-wins.
func (s *Service) ReplaceRows(ctx context.Context, rawID string, req ReplaceRowsRequest) error {
	if err := common.ValidateStruct(req); err != nil {
		return common.NewAppError("INVALID_ROWS", "items is required", err)
	}
	rec, err := s.owned(ctx, rawID)
	if err != nil {
		return err
	}
	if err := s.receiptRepo.ReplaceRows(ctx, rec.ID, req.Rows); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewAppError("NOT_FOUND", "Receipt not found", err)
		}
		return fmt.Errorf("replace rows: %w", err)
	}
	s.logger.Info("receipt rows replaced", "receipt_id", rec.ID, "rows", len(req.Rows))
	return nil
}

// Delete removes the receipt after the ownership check.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	rec, err := s.owned(ctx, rawID)
	if err != nil {
		return err
	}
	if err := s.receiptRepo.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	s.logger.Info("receipt deleted", "receipt_id", rec.ID, "user_id", rec.UserID)
	return nil
}
