package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
	"github.com/joseph-ayodele/receipt-vision/internal/llm"
	"github.com/joseph-ayodele/receipt-vision/internal/quota"
	"github.com/joseph-ayodele/receipt-vision/internal/repository"
	"github.com/joseph-ayodele/receipt-vision/internal/upload"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeExtractor struct {
	content string
	err     error
	calls   []llm.ImageInput
}

func (f *fakeExtractor) ExtractReceipt(_ context.Context, in llm.ImageInput) (*llm.Extraction, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	raw := []byte(`{"id":"chatcmpl-test"}`)
	doc, content, err := llm.ParseReceipt([]byte(f.content), nil)
	return &llm.Extraction{Document: doc, Content: content, Raw: raw}, err
}

type fakeBlobs struct {
	mu      sync.Mutex
	puts    []string
	deletes []string
}

func (f *fakeBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, key)
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) (upload.Image, error) {
	return upload.Image{Data: f.data, ContentType: "image/png"}, f.err
}

type rawEntry struct {
	userID   string
	uploadID *string
	raw      string
}

type fakeRawLog struct{ entries []rawEntry }

func (f *fakeRawLog) Record(_ context.Context, userID string, uploadID *string, raw []byte, _ time.Time) error {
	f.entries = append(f.entries, rawEntry{userID, uploadID, string(raw)})
	return nil
}

type harness struct {
	proc      *Processor
	extractor *fakeExtractor
	blobs     *fakeBlobs
	fetcher   *fakeFetcher
	rawLog    *fakeRawLog
	receipts  repository.ReceiptRepository
	requests  repository.UserRequestRepository
}

const goodContent = `{"items":[{"name":"MILK","price":2.5},{"name":"BREAD","price":3.0}],"taxes":[{"name":"VAT","price":0.55}],"total":6.05}`

func newHarness(t *testing.T, maxBytes int) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repository.Open(context.Background(), repository.Config{Driver: "sqlite", DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{
		extractor: &fakeExtractor{content: goodContent},
		blobs:     &fakeBlobs{},
		fetcher:   &fakeFetcher{data: []byte("tiny")},
		rawLog:    &fakeRawLog{},
		receipts:  repository.NewReceiptRepository(db, logger),
		requests:  repository.NewUserRequestRepository(db, logger),
	}
	counter := quota.NewStoreCounter(h.requests, 10, time.UTC, logger)
	h.proc = NewProcessor(logger, Deps{
		Validator:    upload.NewValidator(maxBytes, counter, logger),
		Fetcher:      h.fetcher,
		Blobs:        h.blobs,
		BlobPrefix:   "uploads",
		Extractor:    h.extractor,
		Receipts:     h.receipts,
		UserRequests: h.requests,
		RawLog:       h.rawLog,
	})
	h.proc.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) counts(t *testing.T, userID string) (receipts, audits int) {
	t.Helper()
	list, err := h.receipts.ListByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	from, to := quota.MonthWindow(fixedNow, time.UTC)
	n, err := h.requests.CountInWindow(context.Background(), userID, constants.ActionUploadReceipt, from, to)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return len(list), n
}

func TestProcessInline_Success(t *testing.T) {
	h := newHarness(t, 1024)
	img := upload.Image{Data: []byte("png-bytes"), ContentType: "image/png"}

	res, err := h.proc.ProcessInline(context.Background(), "u1", img)
	if err != nil {
		t.Fatalf("ProcessInline: %v", err)
	}

	want := []entity.Row{
		{Name: "MILK", Value: 2.5},
		{Name: "BREAD", Value: 3},
		{Name: "VAT", Value: 0.55},
		{Name: entity.TotalRowName, Value: 6.05},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	rec, err := h.receipts.Get(context.Background(), res.ReceiptID)
	if err != nil {
		t.Fatalf("get stored receipt: %v", err)
	}
	if diff := cmp.Diff(want, rec.Rows); diff != "" {
		t.Errorf("stored rows (-want +got):\n%s", diff)
	}
	if rec.ImageURL != "https://blobs.test/"+h.blobs.puts[0] {
		t.Errorf("image url = %s", rec.ImageURL)
	}
	if !rec.UploadedAt.Equal(fixedNow) {
		t.Errorf("uploaded_at = %v", rec.UploadedAt)
	}

	if got := h.extractor.calls[0].URL; got != img.DataURL() {
		t.Errorf("extractor got %q, want the inline data url", got)
	}
	if _, audits := h.counts(t, "u1"); audits != 1 {
		t.Errorf("audits = %d, want 1", audits)
	}
	if len(h.rawLog.entries) != 1 || h.rawLog.entries[0].uploadID != nil {
		t.Errorf("raw log = %+v", h.rawLog.entries)
	}
}

func TestProcessInline_OversizeNeverCallsExtractor(t *testing.T) {
	h := newHarness(t, 4)

	_, err := h.proc.ProcessInline(context.Background(), "u1", upload.Image{Data: []byte("12345")})
	if !errors.Is(err, common.ErrImageTooLarge) {
		t.Fatalf("want ErrImageTooLarge, got %v", err)
	}
	if len(h.extractor.calls) != 0 || len(h.blobs.puts) != 0 {
		t.Errorf("extractor calls = %d, blob puts = %d; want none", len(h.extractor.calls), len(h.blobs.puts))
	}
}

func TestProcessInline_InvalidModelOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "not json", content: "I could not read this receipt", wantErr: common.ErrExtractionFormat},
		{name: "json null", content: "null", wantErr: common.ErrExtractionShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1024)
			h.extractor.content = tt.content

			_, err := h.proc.ProcessInline(context.Background(), "u1", upload.Image{Data: []byte("x"), ContentType: "image/png"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
			if receipts, audits := h.counts(t, "u1"); receipts != 0 || audits != 0 {
				t.Errorf("receipts = %d, audits = %d; want 0, 0", receipts, audits)
			}
			if len(h.rawLog.entries) != 1 {
				t.Errorf("raw response should still be logged, got %d entries", len(h.rawLog.entries))
			}
			if diff := cmp.Diff(h.blobs.puts, h.blobs.deletes); diff != "" {
				t.Errorf("stored blob not cleaned up (-put +deleted):\n%s", diff)
			}
		})
	}
}

func TestProcessInline_UpstreamFailure(t *testing.T) {
	h := newHarness(t, 1024)
	h.extractor.err = common.NewAppError("UPSTREAM_TIMEOUT", "extraction service timed out", common.ErrUpstreamTimeout)

	_, err := h.proc.ProcessInline(context.Background(), "u1", upload.Image{Data: []byte("x")})
	if !errors.Is(err, common.ErrUpstreamTimeout) {
		t.Fatalf("want ErrUpstreamTimeout, got %v", err)
	}
	if len(h.rawLog.entries) != 0 {
		t.Errorf("nothing to log without a response, got %d entries", len(h.rawLog.entries))
	}
}

func TestProcessInline_MonthlyQuota(t *testing.T) {
	h := newHarness(t, 1024)
	ctx := context.Background()
	img := upload.Image{Data: []byte("x"), ContentType: "image/png"}

	// Nine uploads earlier this month, one from last month.
	for i := 0; i < 9; i++ {
		if err := h.requests.Record(ctx, "u1", constants.ActionUploadReceipt, fixedNow.Add(-time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.requests.Record(ctx, "u1", constants.ActionUploadReceipt, time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	if _, err := h.proc.ProcessInline(ctx, "u1", img); err != nil {
		t.Fatalf("10th upload: %v", err)
	}
	if _, audits := h.counts(t, "u1"); audits != 10 {
		t.Fatalf("audits = %d, want 10", audits)
	}

	calls := len(h.extractor.calls)
	_, err := h.proc.ProcessInline(ctx, "u1", img)
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("11th upload: want ErrQuotaExceeded, got %v", err)
	}
	if len(h.extractor.calls) != calls {
		t.Error("extractor called after quota rejection")
	}
	if receipts, audits := h.counts(t, "u1"); receipts != 1 || audits != 10 {
		t.Errorf("receipts = %d, audits = %d; want 1, 10", receipts, audits)
	}

	// Other users are unaffected.
	if _, err := h.proc.ProcessInline(ctx, "u2", img); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestProcessUpload(t *testing.T) {
	h := newHarness(t, 1024)
	up := entity.Upload{ID: "up-1", UserID: "u1", URL: "https://cdn.test/r.jpg", CreatedAt: fixedNow}

	res, err := h.proc.ProcessUpload(context.Background(), up)
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	rec, err := h.receipts.Get(context.Background(), res.ReceiptID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ImageURL != up.URL {
		t.Errorf("image url = %s, want %s", rec.ImageURL, up.URL)
	}
	if h.extractor.calls[0].URL != up.URL {
		t.Errorf("extractor got %s", h.extractor.calls[0].URL)
	}
	if len(h.blobs.puts) != 0 {
		t.Error("event path must not write blobs")
	}
	if len(h.rawLog.entries) != 1 || h.rawLog.entries[0].uploadID == nil || *h.rawLog.entries[0].uploadID != "up-1" {
		t.Errorf("raw log = %+v", h.rawLog.entries)
	}
	if _, audits := h.counts(t, "u1"); audits != 1 {
		t.Errorf("audits = %d, want 1", audits)
	}
}

func TestProcessUpload_Oversize(t *testing.T) {
	h := newHarness(t, 3)
	h.fetcher.data = []byte("toolong")

	_, err := h.proc.ProcessUpload(context.Background(), entity.Upload{ID: "up-1", UserID: "u1", URL: "https://x"})
	if !errors.Is(err, common.ErrImageTooLarge) {
		t.Fatalf("want ErrImageTooLarge, got %v", err)
	}
	if len(h.extractor.calls) != 0 {
		t.Error("extractor called for an oversize image")
	}
}
