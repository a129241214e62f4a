package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

type fakeUploads struct{ created []entity.Upload }

func (f *fakeUploads) Create(_ context.Context, userID, url string, at time.Time) (*entity.Upload, error) {
	up := entity.Upload{ID: "up-1", UserID: userID, URL: url, CreatedAt: at}
	f.created = append(f.created, up)
	return &up, nil
}

func (f *fakeUploads) Get(context.Context, string) (*entity.Upload, error) {
	return nil, common.ErrNotFound
}

type fakePublisher struct {
	published []entity.Upload
	err       error
}

func (f *fakePublisher) PublishUploadCreated(_ context.Context, up entity.Upload) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, up)
	return nil
}

func TestIntake_Submit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("publishes stored upload", func(t *testing.T) {
		uploads, pub := &fakeUploads{}, &fakePublisher{}
		in := NewIntake(uploads, pub, logger)
		up, err := in.Submit(context.Background(), SubmitRequest{URL: "https://cdn.test/a.jpg", UserID: "u1"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if len(pub.published) != 1 || pub.published[0].ID != up.ID {
			t.Errorf("published = %+v", pub.published)
		}
	})

	t.Run("validation", func(t *testing.T) {
		uploads := &fakeUploads{}
		in := NewIntake(uploads, &fakePublisher{}, logger)
		for _, req := range []SubmitRequest{
			{UserID: "u1"},
			{URL: "https://cdn.test/a.jpg"},
			{URL: "not a url", UserID: "u1"},
		} {
			if _, err := in.Submit(context.Background(), req); !errors.Is(err, common.ErrValidation) {
				t.Errorf("%+v: want ErrValidation, got %v", req, err)
			}
		}
		if len(uploads.created) != 0 {
			t.Error("invalid requests must not be stored")
		}
	})

	t.Run("caller must match user", func(t *testing.T) {
		in := NewIntake(&fakeUploads{}, &fakePublisher{}, logger)
		ctx := common.WithUserID(context.Background(), "someone-else")
		_, err := in.Submit(ctx, SubmitRequest{URL: "https://cdn.test/a.jpg", UserID: "u1"})
		if !errors.Is(err, common.ErrForbidden) {
			t.Errorf("want ErrForbidden, got %v", err)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		in := NewIntake(&fakeUploads{}, &fakePublisher{err: errors.New("broker down")}, logger)
		if _, err := in.Submit(context.Background(), SubmitRequest{URL: "https://cdn.test/a.jpg", UserID: "u1"}); err == nil {
			t.Error("want error when the event cannot be published")
		}
	})
}
