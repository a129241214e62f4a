package receipts

import "github.com/joseph-ayodele/receipt-vision/internal/entity"

// Flatten turns a nested receipt into display rows: items in order, then taxes in
// order, then a TOTAL row carrying doc.Total. Nil item or tax lists add no rows.
func Flatten(doc entity.ReceiptDocument) []entity.Row {
	rows := make([]entity.Row, 0, len(doc.Items)+len(doc.Taxes)+1)
	for _, item := range doc.Items {
		rows = append(rows, entity.Row{Name: item.Name, Value: item.Price})
	}
	for _, tax := range doc.Taxes {
		rows = append(rows, entity.Row{Name: tax.Name, Value: tax.Price})
	}
	return append(rows, entity.Row{Name: entity.TotalRowName, Value: doc.Total})
}
