package usecase

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeOrders struct {
	orders  map[string]*entity.Order
	updates int
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (*entity.Order, error) {
	return f.orders[id], nil
}

func (f *fakeOrders) UpdateOrderStatuses(_ context.Context, id string, p entity.PaymentStatus, fl entity.FulfillmentStatus) error {
	o, ok := f.orders[id]
	if !ok {
		return errors.New("no such order")
	}
	o.PaymentStatus = p
	o.FulfillmentStatus = fl
	f.updates++
	return nil
}

type fakeUsers struct {
	users map[string]*entity.User
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*entity.User, error) {
	return f.users[id], nil
}

type fakeInvoices struct {
	byID    map[string]*entity.Invoice
	byOrder map[string]*entity.Invoice
	created int
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{byID: map[string]*entity.Invoice{}, byOrder: map[string]*entity.Invoice{}}
}

func (f *fakeInvoices) Create(_ context.Context, inv *entity.Invoice) error {
	f.byID[inv.ID] = inv
	f.byOrder[inv.OrderID] = inv
	f.created++
	return nil
}

func (f *fakeInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	return f.byID[id], nil
}

func (f *fakeInvoices) FindByOrder(_ context.Context, orderID string) (*entity.Invoice, error) {
	inv := f.byOrder[orderID]
	if inv != nil && inv.Status == entity.InvoiceCancelled {
		return nil, nil
	}
	return inv, nil
}

func (f *fakeInvoices) UpdateStatus(_ context.Context, id string, status entity.InvoiceStatus) error {
	inv, ok := f.byID[id]
	if !ok {
		return errors.New("no such invoice")
	}
	inv.Status = status
	return nil
}

type fakeDedup struct {
	locks   map[string]bool
	values  map[string]string
	unlocks int
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{locks: map[string]bool{}, values: map[string]string{}}
}

func (f *fakeDedup) TryLock(_ context.Context, scope, key string) (bool, error) {
	k := scope + ":" + key
	if f.locks[k] {
		return false, nil
	}
	f.locks[k] = true
	return true, nil
}

func (f *fakeDedup) Unlock(_ context.Context, scope, key string) error {
	delete(f.locks, scope+":"+key)
	f.unlocks++
	return nil
}

func (f *fakeDedup) Remember(_ context.Context, scope, key, value string) error {
	f.values[scope+":"+key] = value
	return nil
}

func (f *fakeDedup) Recall(_ context.Context, scope, key string) (string, bool, error) {
	v, ok := f.values[scope+":"+key]
	return v, ok, nil
}

// flakyInvoices fails Create a fixed number of times, then delegates.
type flakyInvoices struct {
	*fakeInvoices
	failures int
}

func (f *flakyInvoices) Create(ctx context.Context, inv *entity.Invoice) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("mysql: connection reset")
	}
	return f.fakeInvoices.Create(ctx, inv)
}

type fakeProvider struct {
	res     *ProviderInvoiceResult
	err     error
	calls   int
	lastReq ProviderInvoiceRequest
}

func (f *fakeProvider) CreateInvoice(_ context.Context, req ProviderInvoiceRequest) (*ProviderInvoiceResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeProvider) GetInvoicePDF(context.Context, string, string, string) ([]byte, error) {
	return []byte("%PDF-"), nil
}

func (f *fakeProvider) IsInvoicePaid(context.Context, string, string, string) bool { return true }

func (f *fakeProvider) CancelInvoice(context.Context, string, string, string) error { return nil }

func (f *fakeProvider) SendInvoiceByEmail(context.Context, string, string, string, string, string, string) error {
	return nil
}

// --- helpers ---

func testOrder(id string, total string, items ...entity.OrderItem) *entity.Order {
	return &entity.Order{
		ID:                id,
		UserID:            "u1",
		Items:             items,
		Total:             decimal.RequireFromString(total),
		Currency:          "EUR",
		PaymentStatus:     entity.PaymentUnpaid,
		FulfillmentStatus: entity.FulfillmentPending,
		BillingAddress:    entity.Address{Street: "Str. Principala 1", City: "Cluj-Napoca", County: "Cluj", Country: "Romania"},
	}
}

func item(price string, qty int) entity.OrderItem {
	p := decimal.RequireFromString(price)
	return entity.OrderItem{
		ProductID: "p1",
		Name:      "Chef knife",
		Quantity:  qty,
		UnitPrice: p,
		LineTotal: p.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func newService(orders *fakeOrders, users *fakeUsers, invoices *fakeInvoices, provider InvoicingProvider, enabled bool) *InvoiceService {
	svc := NewInvoiceService(orders, users, invoices, provider, nil, nil, InvoiceServiceConfig{
		ProviderEnabled: enabled,
		CompanyTaxID:    "RO12345678",
		DefaultSeries:   "KOF",
	})
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC) }
	return svc
}

var successEvent = PaymentEvent{EventID: "evt_1", Provider: "stripe", Status: "completed", Method: "card"}

// --- tests ---

func TestGenerateInvoiceLocalPath(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"1384": testOrder("1384", "124.98", item("124.98", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop", Email: "ana@example.com"}}}
	invoices := newFakeInvoices()
	svc := newService(orders, users, invoices, nil, false)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "1384", successEvent)
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, "1384", inv.OrderID)
	assert.Regexp(t, regexp.MustCompile(`^INV-\d{4}-\d{6}$`), inv.Number)
	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("124.98")), "subtotal %s", inv.Subtotal)
	assert.True(t, inv.TaxAmount.IsZero())
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("124.98")))
	assert.Contains(t, inv.Notes, "reverse charge")
	assert.Empty(t, inv.ProviderSeries)
	assert.Equal(t, entity.InvoiceIssued, inv.Status)
	assert.Equal(t, 1, invoices.created)

	// payment fact persisted
	assert.Equal(t, entity.PaymentPaid, orders.orders["1384"].PaymentStatus)
	assert.Equal(t, entity.FulfillmentProcessing, orders.orders["1384"].FulfillmentStatus)
}

func TestGenerateInvoiceLineTotalsMatchOrder(t *testing.T) {
	order := testOrder("o2", "74.97", item("24.99", 3))
	orders := &fakeOrders{orders: map[string]*entity.Order{"o2": order}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	svc := newService(orders, users, newFakeInvoices(), nil, false)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o2", successEvent)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.LineTotal)
		assert.True(t, l.TaxRate.IsZero())
	}
	assert.True(t, sum.Equal(order.Total), "line sum %s vs order total %s", sum, order.Total)
	require.NoError(t, inv.CheckTotals())
}

func TestGenerateInvoiceProviderPath(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o3": testOrder("o3", "49.90", item("49.90", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {
		ID: "u1", FirstName: "Ion", LastName: "Ionescu",
		CompanyName: "Gastro SRL", VATNumber: "RO998877",
	}}}
	invoices := newFakeInvoices()
	provider := &fakeProvider{res: &ProviderInvoiceResult{Series: "KOF", Number: "1042", ProviderID: "doc-1"}}
	svc := newService(orders, users, invoices, provider, true)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o3", successEvent)
	require.NoError(t, err)

	assert.Equal(t, "KOF-1042", inv.Number)
	assert.Equal(t, "KOF", inv.ProviderSeries)
	assert.Equal(t, "1042", inv.ProviderNumber)
	assert.Equal(t, "doc-1", inv.ProviderID)
	assert.True(t, inv.ProviderBacked())
	assert.Equal(t, 1, provider.calls)

	// business client: invoiced to the company, tax fields carried
	assert.Equal(t, "Gastro SRL", provider.lastReq.Client.Name)
	assert.Equal(t, "RO998877", provider.lastReq.Client.VATNumber)
}

func TestGenerateInvoiceBlankVATOmitted(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o4": testOrder("o4", "10.00", item("10.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {
		ID: "u1", FirstName: "Ana", LastName: "Pop", VATNumber: "   ",
	}}}
	provider := &fakeProvider{res: &ProviderInvoiceResult{Series: "KOF", Number: "1"}}
	svc := newService(orders, users, newFakeInvoices(), provider, true)

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o4", successEvent)
	require.NoError(t, err)

	assert.Empty(t, provider.lastReq.Client.VATNumber)
	assert.Equal(t, "Ana Pop", provider.lastReq.Client.Name)
}

func TestGenerateInvoiceFallsBackOnProviderError(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o5": testOrder("o5", "20.00", item("20.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	provider := &fakeProvider{err: &ProviderInvocationError{Op: "CreateInvoice", Err: errors.New("status 500")}}
	svc := newService(orders, users, invoices, provider, true)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o5", successEvent)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^INV-\d{4}-\d{6}$`), inv.Number)
	assert.False(t, inv.ProviderBacked())
	assert.Equal(t, 1, invoices.created)
}

func TestGenerateInvoiceDoesNotFallBackOnOtherErrors(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o6": testOrder("o6", "20.00", item("20.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	provider := &fakeProvider{err: errors.New("context canceled")}
	svc := newService(orders, users, invoices, provider, true)

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o6", successEvent)
	require.Error(t, err)
	assert.Equal(t, 0, invoices.created)
}

func TestGenerateInvoiceIdempotent(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o7": testOrder("o7", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	svc := newService(orders, users, invoices, nil, false)

	first, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o7", successEvent)
	require.NoError(t, err)
	second, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o7", successEvent)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, invoices.created)
}

func TestGenerateInvoiceRetrySucceedsAfterTransientFailure(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o12": testOrder("o12", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := &flakyInvoices{fakeInvoices: newFakeInvoices(), failures: 1}
	dedup := newFakeDedup()
	svc := NewInvoiceService(orders, users, invoices, nil, dedup, nil, InvoiceServiceConfig{})
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC) }

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o12", successEvent)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 1, dedup.unlocks, "failed attempt must release the event lock")

	// redelivery of the same event against a healthy store
	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o12", successEvent)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 1, invoices.created)
}

func TestGenerateInvoiceConcurrentDuplicateRejected(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o13": testOrder("o13", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	dedup := newFakeDedup()
	dedup.locks["stripe:evt_1"] = true // another worker is mid-flight
	svc := NewInvoiceService(orders, users, newFakeInvoices(), nil, dedup, nil, InvoiceServiceConfig{})

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o13", successEvent)
	require.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 0, dedup.unlocks, "a lock we never acquired must stay held")
}

func TestGenerateInvoiceRecalledEventReturnsStoredInvoice(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o14": testOrder("o14", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	dedup := newFakeDedup()
	svc := NewInvoiceService(orders, users, invoices, nil, dedup, nil, InvoiceServiceConfig{})
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC) }

	first, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o14", successEvent)
	require.NoError(t, err)
	assert.Equal(t, first.ID, dedup.values["stripe:evt_1"])

	// cancelled invoice frees the FindByOrder fast path, but the event
	// mapping still resolves the duplicate delivery to the same invoice
	first.Status = entity.InvoiceCancelled
	second, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o14", successEvent)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, invoices.created)
}

func TestGenerateInvoiceOrderNotFound(t *testing.T) {
	svc := newService(&fakeOrders{orders: map[string]*entity.Order{}}, &fakeUsers{users: map[string]*entity.User{}}, newFakeInvoices(), nil, false)

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "missing", successEvent)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGenerateInvoiceFailedPaymentKeepsOrderUnpaid(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o8": testOrder("o8", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	svc := newService(orders, users, newFakeInvoices(), nil, false)

	_, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o8", PaymentEvent{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentUnpaid, orders.orders["o8"].PaymentStatus)
	assert.Equal(t, 0, orders.updates)
}

func TestCheckPaymentStatusLocalInvoice(t *testing.T) {
	order := testOrder("o9", "15.00", item("15.00", 1))
	orders := &fakeOrders{orders: map[string]*entity.Order{"o9": order}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	svc := newService(orders, users, invoices, nil, false)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o9", successEvent)
	require.NoError(t, err)

	paid, err := svc.CheckInvoicePaymentStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	order.PaymentStatus = entity.PaymentUnpaid
	paid, err = svc.CheckInvoicePaymentStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestGetInvoicePDFLocalInvoiceReturnsNil(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o10": testOrder("o10", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	svc := newService(orders, users, invoices, nil, false)

	inv, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o10", successEvent)
	require.NoError(t, err)

	pdf, err := svc.GetInvoicePDF(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Nil(t, pdf)

	sent, err := svc.SendInvoiceByEmail(context.Background(), inv.ID, "")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestCancelInvoiceFreesOrderSlot(t *testing.T) {
	orders := &fakeOrders{orders: map[string]*entity.Order{"o11": testOrder("o11", "15.00", item("15.00", 1))}}
	users := &fakeUsers{users: map[string]*entity.User{"u1": {ID: "u1", FirstName: "Ana", LastName: "Pop"}}}
	invoices := newFakeInvoices()
	svc := newService(orders, users, invoices, nil, false)

	first, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o11", successEvent)
	require.NoError(t, err)
	require.NoError(t, svc.CancelInvoice(context.Background(), first.ID))

	second, err := svc.GenerateInvoiceAfterPayment(context.Background(), "o11", successEvent)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, invoices.created)
}
