package models

import "github.com/shopspring/decimal"

// LineSnapshot is the pre-edit state of a line sent back by the client.
type LineSnapshot struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// LineRecord is an order line as submitted in an edit request. Changed marks
// the line the user edited; Original carries its values before the edit.
type LineRecord struct {
	ID          *int64          `json:"id,omitempty"`
	ClientID    string          `json:"cid,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	OldQuantity int             `json:"old_qty"`
	OldPrice    decimal.Decimal `json:"old_price"`
	Taxes       []Tax           `json:"taxes,omitempty"`
	Items       []LineRecord    `json:"items,omitempty"`
	Changed     bool            `json:"_changed,omitempty"`
	Original    *LineSnapshot   `json:"_original,omitempty"`
}

// ToOrderLine builds a fresh line tree from the record. Edit markers are dropped.
func (r *LineRecord) ToOrderLine() *OrderLine {
	line := &OrderLine{
		ClientID:    r.ClientID,
		Quantity:    r.Quantity,
		Price:       r.Price,
		TotalPrice:  r.TotalPrice,
		OldQuantity: r.OldQuantity,
		OldPrice:    r.OldPrice,
	}
	if r.ID != nil {
		line.ID = Int64Ptr(*r.ID)
	}
	if len(r.Taxes) > 0 {
		line.Taxes = append([]Tax(nil), r.Taxes...)
	}
	if len(r.Items) > 0 {
		line.Items = make([]*OrderLine, 0, len(r.Items))
		for i := range r.Items {
			line.Items = append(line.Items, r.Items[i].ToOrderLine())
		}
	}
	return line
}

// RecordOf builds an unmarked record from a line tree.
func RecordOf(l *OrderLine) LineRecord {
	rec := LineRecord{
		ClientID:    l.ClientID,
		Quantity:    l.Quantity,
		Price:       l.Price,
		TotalPrice:  l.TotalPrice,
		OldQuantity: l.OldQuantity,
		OldPrice:    l.OldPrice,
	}
	if l.ID != nil {
		rec.ID = Int64Ptr(*l.ID)
	}
	if len(l.Taxes) > 0 {
		rec.Taxes = append([]Tax(nil), l.Taxes...)
	}
	for _, child := range l.Items {
		rec.Items = append(rec.Items, RecordOf(child))
	}
	return rec
}

// ToForest converts submitted records into an independent line forest.
func ToForest(records []LineRecord) []*OrderLine {
	forest := make([]*OrderLine, 0, len(records))
	for i := range records {
		forest = append(forest, records[i].ToOrderLine())
	}
	return forest
}

// LineChangeRequest is the payload of a recalculate-on-line-change call.
type LineChangeRequest struct {
	Items []LineRecord `json:"items"`
}
