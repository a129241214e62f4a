package receipts

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		doc  entity.ReceiptDocument
		want []entity.Row
	}{
		{
			name: "empty document yields only the total",
			doc:  entity.ReceiptDocument{Items: []entity.LineItem{}, Taxes: []entity.LineItem{}, Total: 0},
			want: []entity.Row{{Name: "TOTAL", Value: 0}},
		},
		{
			name: "nil lists behave like empty lists",
			doc:  entity.ReceiptDocument{Total: 12.5},
			want: []entity.Row{{Name: "TOTAL", Value: 12.5}},
		},
		{
			name: "items then taxes then total",
			doc: entity.ReceiptDocument{
				Items: []entity.LineItem{{Name: "Milk", Price: 3.5}, {Name: "Bread", Price: 2}},
				Taxes: []entity.LineItem{{Name: "VAT", Price: 0.5}},
				Total: 6,
			},
			want: []entity.Row{
				{Name: "Milk", Value: 3.5},
				{Name: "Bread", Value: 2},
				{Name: "VAT", Value: 0.5},
				{Name: "TOTAL", Value: 6},
			},
		},
		{
			name: "total is copied even when it does not match the lines",
			doc: entity.ReceiptDocument{
				Items: []entity.LineItem{{Name: "Coffee", Price: 4}},
				Total: 99,
			},
			want: []entity.Row{{Name: "Coffee", Value: 4}, {Name: "TOTAL", Value: 99}},
		},
		{
			name: "taxes only",
			doc: entity.ReceiptDocument{
				Taxes: []entity.LineItem{{Name: "GST", Price: 1}, {Name: "PST", Price: 0.7}},
				Total: 1.7,
			},
			want: []entity.Row{{Name: "GST", Value: 1}, {Name: "PST", Value: 0.7}, {Name: "TOTAL", Value: 1.7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.doc)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenShape(t *testing.T) {
	for n := 0; n < 4; n++ {
		for m := 0; m < 4; m++ {
			doc := entity.ReceiptDocument{Total: float64(n*10 + m)}
			for i := 0; i < n; i++ {
				doc.Items = append(doc.Items, entity.LineItem{Name: fmt.Sprintf("ITEM %d", i), Price: float64(i)})
			}
			for j := 0; j < m; j++ {
				doc.Taxes = append(doc.Taxes, entity.LineItem{Name: fmt.Sprintf("TAX %d", j), Price: float64(j) / 10})
			}

			rows := Flatten(doc)
			if len(rows) != n+m+1 {
				t.Fatalf("n=%d m=%d: got %d rows, want %d", n, m, len(rows), n+m+1)
			}
			last := rows[len(rows)-1]
			if last.Name != entity.TotalRowName || last.Value != doc.Total {
				t.Errorf("n=%d m=%d: last row = %+v, want TOTAL=%v", n, m, last, doc.Total)
			}
			for i, item := range doc.Items {
				if rows[i] != (entity.Row{Name: item.Name, Value: item.Price}) {
					t.Errorf("n=%d m=%d: row %d = %+v, want item %+v", n, m, i, rows[i], item)
				}
			}
			for j, tax := range doc.Taxes {
				if rows[n+j] != (entity.Row{Name: tax.Name, Value: tax.Price}) {
					t.Errorf("n=%d m=%d: row %d = %+v, want tax %+v", n, m, n+j, rows[n+j], tax)
				}
			}
		}
	}
}
