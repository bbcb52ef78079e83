package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/observ"
	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/shopspring/decimal"
)

// Invoices issued under the reverse-charge mechanism carry 0% VAT and
// this legal citation verbatim.
const reverseChargeNotes = "VAT reverse charge - tax to be accounted for by the recipient " +
	"per art. 331 of Law 227/2015 (Romanian Fiscal Code) and art. 196 of Council Directive 2006/112/EC."

const dueDays = 30

// Payment-event status values recognized as a successful payment.
func paymentSucceeded(status string) bool {
	return status == "completed" || status == "succeeded"
}

type PaymentEvent struct {
	EventID  string
	Provider string // stripe | revolut
	Status   string
	Method   string // label stored on the invoice, e.g. "card"
}

type InvoiceServiceConfig struct {
	ProviderEnabled bool
	CompanyTaxID    string
	DefaultSeries   string
}

// InvoiceService orchestrates order-to-invoice reconciliation: it marks
// paid orders, registers the invoice with the external provider when
// enabled, and degrades to a locally recorded invoice when the provider
// call fails.
type InvoiceService struct {
	orders   OrderGateway
	users    UserGateway
	invoices InvoiceRepo
	provider InvoicingProvider // nil when disabled
	dedup    DedupStore        // optional
	events   EventPublisher    // optional
	cfg      InvoiceServiceConfig
	log      *slog.Logger
	now      func() time.Time
}

func NewInvoiceService(
	orders OrderGateway,
	users UserGateway,
	invoices InvoiceRepo,
	provider InvoicingProvider,
	dedup DedupStore,
	events EventPublisher,
	cfg InvoiceServiceConfig,
) *InvoiceService {
	return &InvoiceService{
		orders:   orders,
		users:    users,
		invoices: invoices,
		provider: provider,
		dedup:    dedup,
		events:   events,
		cfg:      cfg,
		log:      logging.New("invoice-service"),
		now:      time.Now,
	}
}

// GenerateInvoiceAfterPayment is the single entry point called on a
// payment-completion event. At most one non-cancelled invoice exists per
// order: a duplicate delivery returns the already-persisted invoice.
func (s *InvoiceService) GenerateInvoiceAfterPayment(ctx context.Context, orderID string, ev PaymentEvent) (*entity.Invoice, error) {
	// Idempotency fast path: an invoice already covers this order.
	if existing, err := s.invoices.FindByOrder(ctx, orderID); err != nil {
		return nil, err
	} else if existing != nil {
		s.log.Info("invoice already exists for order", "order_id", orderID, "invoice_id", existing.ID)
		return existing, nil
	}

	// Guard concurrent duplicate deliveries of the same payment event.
	locked := false
	if s.dedup != nil && ev.EventID != "" {
		id, ok, err := s.dedup.Recall(ctx, ev.Provider, ev.EventID)
		if err != nil {
			s.log.Warn("dedup recall failed", "provider", ev.Provider, "event_id", ev.EventID, "err", err)
		}
		if ok {
			return s.invoices.GetByID(ctx, id)
		}
		ok, err = s.dedup.TryLock(ctx, ev.Provider, ev.EventID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDuplicateEvent
		}
		locked = true
	}

	inv, err := s.createInvoice(ctx, orderID, ev)
	if err != nil && locked {
		// Release the event lock so a redelivery can retry. Leaving it
		// held would shadow this failure as a duplicate for the whole
		// dedup TTL and the paid order would never get its invoice.
		if uerr := s.dedup.Unlock(ctx, ev.Provider, ev.EventID); uerr != nil {
			s.log.Warn("dedup unlock failed", "provider", ev.Provider, "event_id", ev.EventID, "err", uerr)
		}
	}
	return inv, err
}

func (s *InvoiceService) createInvoice(ctx context.Context, orderID string, ev PaymentEvent) (*entity.Invoice, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Kind: "order", ID: orderID}
	}
	user, err := s.users.GetUser(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &NotFoundError{Kind: "user", ID: order.UserID}
	}

	// Persist the payment-confirmed fact before attempting invoice
	// creation, so a later failure does not lose it.
	if paymentSucceeded(ev.Status) {
		if err := s.orders.UpdateOrderStatuses(ctx, orderID, entity.PaymentPaid, entity.FulfillmentProcessing); err != nil {
			return nil, err
		}
		order.PaymentStatus = entity.PaymentPaid
		order.FulfillmentStatus = entity.FulfillmentProcessing
	}

	inv, err := s.issueInvoice(ctx, order, user, ev)
	if err != nil {
		return nil, err
	}

	if err := inv.CheckTotals(); err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	if s.dedup != nil && ev.EventID != "" {
		_ = s.dedup.Remember(ctx, ev.Provider, ev.EventID, inv.ID)
	}
	if s.events != nil {
		if err := s.events.PublishInvoiceIssued(ctx, InvoiceIssuedMsg{
			InvoiceID:      inv.ID,
			OrderID:        inv.OrderID,
			Number:         inv.Number,
			ProviderMirror: inv.ProviderBacked(),
		}); err != nil {
			s.log.Warn("publish invoice.issued failed", "invoice_id", inv.ID, "err", err)
		}
	}

	return inv, nil
}

// issueInvoice builds the invoice via the provider when enabled, falling
// back to local issuance only on a provider invocation failure. Any other
// error propagates untouched.
func (s *InvoiceService) issueInvoice(ctx context.Context, order *entity.Order, user *entity.User, ev PaymentEvent) (*entity.Invoice, error) {
	if s.cfg.ProviderEnabled && s.provider != nil {
		req := s.buildProviderRequest(order, user)
		res, err := s.provider.CreateInvoice(ctx, req)
		if err == nil {
			observ.InvoicesIssued.WithLabelValues("provider").Inc()
			return s.newInvoice(order, ev, func(inv *entity.Invoice) {
				inv.Number = fmt.Sprintf("%s-%s", res.Series, res.Number)
				inv.ProviderSeries = res.Series
				inv.ProviderNumber = res.Number
				inv.ProviderID = res.ProviderID
				inv.PaymentLink = res.PayLink
			}), nil
		}
		var pie *ProviderInvocationError
		if !errors.As(err, &pie) {
			return nil, err
		}
		s.log.Warn("provider invoicing failed, falling back to local invoice",
			"order_id", order.ID, "err", err)
		observ.InvoiceFallbacks.Inc()
	}

	observ.InvoicesIssued.WithLabelValues("local").Inc()
	return s.newInvoice(order, ev, func(inv *entity.Invoice) {
		inv.Number = s.localInvoiceNumber()
	}), nil
}

// newInvoice snapshots the order into an invoice. Reverse charge applies:
// every line carries a 0% tax rate and the legal citation goes in notes.
func (s *InvoiceService) newInvoice(order *entity.Order, ev PaymentEvent, decorate func(*entity.Invoice)) *entity.Invoice {
	now := s.now()
	lines := make([]entity.InvoiceLine, 0, len(order.Items))
	subtotal := decimal.Zero
	for _, it := range order.Items {
		lines = append(lines, entity.InvoiceLine{
			ProductID: it.ProductID,
			Name:      it.Name,
			Code:      it.Code,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			TaxRate:   decimal.Zero,
			LineTotal: it.LineTotal,
		})
		subtotal = subtotal.Add(it.LineTotal)
	}

	inv := &entity.Invoice{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		IssueDate:     now,
		SupplyDate:    now,
		Subtotal:      subtotal,
		TaxAmount:     decimal.Zero,
		Total:         subtotal,
		Currency:      order.Currency,
		PaymentMethod: ev.Method,
		Notes:         reverseChargeNotes,
		Status:        entity.InvoiceIssued,
		Lines:         lines,
		CreatedAt:     now,
	}
	decorate(inv)
	return inv
}

// buildProviderRequest maps order + user to the provider document shape.
// Blank tax fields are dropped here so the wire adapter never sees them:
// the provider rejects an empty tax-code string but accepts its absence.
func (s *InvoiceService) buildProviderRequest(order *entity.Order, user *entity.User) ProviderInvoiceRequest {
	now := s.now()
	client := ProviderClient{
		Name:    user.BillingName(),
		Email:   strings.TrimSpace(user.Email),
		Address: order.BillingAddress.Street,
		City:    order.BillingAddress.City,
		County:  order.BillingAddress.County,
		Country: order.BillingAddress.Country,
	}
	if v := strings.TrimSpace(user.VATNumber); v != "" {
		client.VATNumber = v
	}
	if v := strings.TrimSpace(user.RegNumber); v != "" {
		client.RegNumber = v
	}

	lines := make([]ProviderLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, ProviderLine{
			Name:     it.Name,
			Code:     it.Code,
			Unit:     "buc",
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
			TaxRate:  decimal.Zero,
		})
	}

	return ProviderInvoiceRequest{
		CompanyTaxID: s.cfg.CompanyTaxID,
		SeriesName:   s.cfg.DefaultSeries,
		Client:       client,
		IssueDate:    now,
		DueDate:      now.AddDate(0, 0, dueDays),
		Currency:     order.Currency,
		Lines:        lines,
	}
}

// localInvoiceNumber formats INV-{year}-{last six digits of epoch millis}.
func (s *InvoiceService) localInvoiceNumber() string {
	now := s.now()
	return fmt.Sprintf("INV-%d-%06d", now.Year(), now.UnixMilli()%1_000_000)
}
