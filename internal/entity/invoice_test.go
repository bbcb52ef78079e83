package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validInvoice() Invoice {
	return Invoice{
		ID:       "inv-1",
		Number:   "INV-2025-000123",
		OrderID:  "1384",
		Subtotal: dec("124.98"),
		Total:    dec("124.98"),
		Currency: "EUR",
		Status:   InvoiceIssued,
		Lines: []InvoiceLine{
			{ProductID: "p1", Name: "Chef knife", Quantity: 1, UnitPrice: dec("89.99"), LineTotal: dec("89.99")},
			{ProductID: "p2", Name: "Whetstone", Quantity: 1, UnitPrice: dec("34.99"), LineTotal: dec("34.99")},
		},
	}
}

func TestCheckTotals(t *testing.T) {
	inv := validInvoice()
	require.NoError(t, inv.CheckTotals())
}

func TestCheckTotalsToleratesRounding(t *testing.T) {
	inv := validInvoice()
	inv.Subtotal = dec("124.99") // one cent off from the line sum
	assert.NoError(t, inv.CheckTotals())

	inv.Subtotal = dec("125.01")
	assert.Error(t, inv.CheckTotals())
}

func TestCheckTotalsLineMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Lines[0].LineTotal = dec("10.00")
	err := inv.CheckTotals()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line totals")
}

func TestCheckTotalsTaxMismatch(t *testing.T) {
	inv := validInvoice()
	inv.TaxAmount = dec("23.75") // total was not adjusted
	err := inv.CheckTotals()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total")
}

func TestCheckTotalsWithTax(t *testing.T) {
	inv := validInvoice()
	inv.TaxAmount = dec("23.75")
	inv.Total = dec("148.73")
	assert.NoError(t, inv.CheckTotals())
}

func TestProviderBacked(t *testing.T) {
	inv := validInvoice()
	assert.False(t, inv.ProviderBacked())

	inv.ProviderSeries = "KOF"
	assert.False(t, inv.ProviderBacked(), "series alone is not enough")

	inv.ProviderNumber = "1042"
	assert.True(t, inv.ProviderBacked())
}
