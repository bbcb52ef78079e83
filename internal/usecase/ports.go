package usecase

import (
	"context"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/shopspring/decimal"
)

// Data-gateway ports consumed by the orchestrator. Implemented by the
// MySQL repos; kept small so tests can fake them.

type OrderGateway interface {
	GetOrder(ctx context.Context, id string) (*entity.Order, error)
	UpdateOrderStatuses(ctx context.Context, id string, payment entity.PaymentStatus, fulfillment entity.FulfillmentStatus) error
}

type UserGateway interface {
	GetUser(ctx context.Context, id string) (*entity.User, error)
}

type InvoiceRepo interface {
	// Create persists the invoice and its line items atomically.
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// FindByOrder returns the non-cancelled invoice for the order,
	// or (nil, nil) when none exists.
	FindByOrder(ctx context.Context, orderID string) (*entity.Invoice, error)
	UpdateStatus(ctx context.Context, id string, status entity.InvoiceStatus) error
}

// ProviderInvoiceRequest is the provider-agnostic document shape the
// orchestrator builds from an order and its owner.
type ProviderInvoiceRequest struct {
	CompanyTaxID string
	SeriesName   string
	Client       ProviderClient
	IssueDate    time.Time
	DueDate      time.Time
	Currency     string
	Lines        []ProviderLine
}

// ProviderClient carries billing identity. Tax fields must be left empty
// (not blank-padded) when the customer has none; the wire adapter omits
// empty fields entirely.
type ProviderClient struct {
	Name      string
	VATNumber string
	RegNumber string
	Email     string
	Address   string
	City      string
	County    string
	Country   string
}

type ProviderLine struct {
	Name     string
	Code     string
	Unit     string
	Quantity int
	Price    decimal.Decimal
	TaxRate  decimal.Decimal
}

type ProviderInvoiceResult struct {
	Series     string
	Number     string
	ProviderID string
	PDFLink    string
	PayLink    string
}

// InvoicingProvider is the external invoicing client port. Every call is
// a single attempt; the orchestrator owns fallback policy.
type InvoicingProvider interface {
	CreateInvoice(ctx context.Context, req ProviderInvoiceRequest) (*ProviderInvoiceResult, error)
	GetInvoicePDF(ctx context.Context, taxID, series, number string) ([]byte, error)
	// IsInvoicePaid never fails: any transport or API error yields false.
	IsInvoicePaid(ctx context.Context, taxID, series, number string) bool
	CancelInvoice(ctx context.Context, taxID, series, number string) error
	SendInvoiceByEmail(ctx context.Context, taxID, series, number, to, subject, body string) error
}

// DedupStore guards against duplicate payment-event deliveries. A held
// lock with no remembered value means processing is in flight; holders
// must Unlock on failure so a redelivery can retry.
type DedupStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// EventPublisher announces issued invoices to downstream consumers
// (shipping fulfillment, notifications). Best-effort.
type EventPublisher interface {
	PublishInvoiceIssued(ctx context.Context, msg InvoiceIssuedMsg) error
}
