package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceIssued    InvoiceStatus = "issued"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// roundingTolerance absorbs currency rounding when checking invoice sums.
var roundingTolerance = decimal.NewFromFloat(0.01)

// InvoiceLine is snapshotted from the order at invoice-creation time so
// later catalog changes cannot alter a historical invoice.
type InvoiceLine struct {
	ProductID string
	Name      string
	Code      string
	Quantity  int
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	LineTotal decimal.Decimal
}

// Invoice mirrors either a provider-issued document or a locally recorded
// one. Immutable once created, except for the transition to cancelled.
type Invoice struct {
	ID            string
	Number        string
	OrderID       string
	IssueDate     time.Time
	SupplyDate    time.Time
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	PaymentMethod string
	PaymentLink   string
	Notes         string

	// Set only for provider-issued invoices.
	ProviderSeries string
	ProviderNumber string
	ProviderID     string

	Status InvoiceStatus
	Lines  []InvoiceLine

	CreatedAt time.Time
}

// ProviderBacked reports whether the canonical record of this invoice
// lives in the external invoicing service.
func (inv *Invoice) ProviderBacked() bool {
	return inv.ProviderSeries != "" && inv.ProviderNumber != ""
}

// CheckTotals verifies the arithmetic invariants: line totals sum to the
// subtotal, and subtotal plus tax equals the total, within rounding.
func (inv *Invoice) CheckTotals() error {
	lines := decimal.Zero
	for _, l := range inv.Lines {
		lines = lines.Add(l.LineTotal)
	}
	if lines.Sub(inv.Subtotal).Abs().GreaterThan(roundingTolerance) {
		return fmt.Errorf("invoice %s: line totals %s != subtotal %s", inv.ID, lines, inv.Subtotal)
	}
	if inv.Subtotal.Add(inv.TaxAmount).Sub(inv.Total).Abs().GreaterThan(roundingTolerance) {
		return fmt.Errorf("invoice %s: subtotal %s + tax %s != total %s", inv.ID, inv.Subtotal, inv.TaxAmount, inv.Total)
	}
	return nil
}
