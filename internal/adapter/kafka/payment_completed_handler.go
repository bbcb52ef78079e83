package kafka

import (
	"context"
	"errors"

	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
)

// PaymentCompletedHandler feeds payment events into the invoice
// orchestrator. Broker redelivery of the same event is harmless: the
// orchestrator resolves duplicates to the already-issued invoice.
type PaymentCompletedHandler struct {
	Svc *usecase.InvoiceService
}

func NewPaymentCompletedHandler(svc *usecase.InvoiceService) *PaymentCompletedHandler {
	return &PaymentCompletedHandler{Svc: svc}
}

func (h *PaymentCompletedHandler) Handle(ctx context.Context, ev usecase.PaymentCompletedMsg) error {
	_, err := h.Svc.GenerateInvoiceAfterPayment(ctx, ev.OrderID, usecase.PaymentEvent{
		EventID:  ev.EventID,
		Provider: ev.Provider,
		Status:   ev.Status,
		Method:   ev.Method,
	})
	// A concurrent delivery holds the lock; this copy can be dropped.
	if errors.Is(err, usecase.ErrDuplicateEvent) {
		return nil
	}
	// Missing order/user will not appear on retry either; drop rather
	// than poison the partition.
	if usecase.IsNotFound(err) {
		return nil
	}
	return err
}
