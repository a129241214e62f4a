package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

func newTestService() *Service {
	s := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.UnixMilli(1717243200000) }
	return s
}

var sample = &entity.ReceiptRecord{
	ID:         "r1",
	UserID:     "u1",
	ImageURL:   "https://blobs.test/r1",
	UploadedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	Rows: []entity.Row{
		{Name: "MILK, 2%", Value: 2.5},
		{Name: "BREAD", Value: 3},
		{Name: entity.TotalRowName, Value: 5.5},
	},
}

func TestReceiptCSV(t *testing.T) {
	f, err := newTestService().Receipt(context.Background(), sample, FormatCSV)
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if f.Name != "receipt_1717243200000.csv" {
		t.Errorf("name = %s", f.Name)
	}
	want := "Name,Value\n\"MILK, 2%\",2.5\nBREAD,3\nTOTAL,5.5\n"
	if diff := cmp.Diff(want, string(f.Data)); diff != "" {
		t.Errorf("csv (-want +got):\n%s", diff)
	}
}

func TestReceiptXLSX(t *testing.T) {
	f, err := newTestService().Receipt(context.Background(), sample, FormatXLSX)
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if f.Name != "receipt_1717243200000.xlsx" {
		t.Errorf("name = %s", f.Name)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows("Receipts")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if diff := cmp.Diff([]string{"r1", "2024-06-01T12:00:00Z", "TOTAL", "5.5", "https://blobs.test/r1"}, rows[3]); diff != "" {
		t.Errorf("last row (-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("pdf should be rejected")
	}
}
