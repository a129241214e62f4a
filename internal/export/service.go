package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ParseFormat accepts "csv" (the default when empty) or "xlsx".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// File is a rendered export ready to be sent as an attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service renders stored receipts as CSV or XLSX.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// Receipt renders the rows of one receipt. The file is named receipt_<unix ms>.<ext>.
func (s *Service) Receipt(_ context.Context, rec *entity.ReceiptRecord, format Format) (*File, error) {
	name := fmt.Sprintf("receipt_%d.%s", s.now().UnixMilli(), format)
	switch format {
	case FormatCSV:
		data, err := rowsCSV(rec.Rows)
		if err != nil {
			return nil, err
		}
		s.logger.Info("export.csv.ok", "receipt_id", rec.ID, "rows", len(rec.Rows))
		return &File{Name: name, ContentType: contentTypeCSV, Data: data}, nil
	case FormatXLSX:
		data, err := s.ReceiptsXLSX([]*entity.ReceiptRecord{rec})
		if err != nil {
			return nil, err
		}
		return &File{Name: name, ContentType: contentTypeXLSX, Data: data}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func rowsCSV(rows []entity.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Name", "Value"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Name, formatValue(r.Value)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	return buf.Bytes(), nil
}

// ReceiptsXLSX returns a workbook with one line per receipt row.
func (s *Service) ReceiptsXLSX(recs []*entity.ReceiptRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()

	const sheet = "Receipts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Receipt ID", "Uploaded At", "Name", "Value", "Image URL"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		for _, line := range r.Rows {
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, r.ID)
			write(2, r.UploadedAt.UTC().Format(time.RFC3339))
			write(3, line.Name)
			write(4, line.Value)
			write(5, r.ImageURL)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "B", "B", 22) // uploaded at
	_ = f.SetColWidth(sheet, "C", "C", 32) // name
	_ = f.SetColWidth(sheet, "D", "D", 12) // value
	_ = f.SetColWidth(sheet, "E", "E", 60) // image

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"receipts", len(recs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
