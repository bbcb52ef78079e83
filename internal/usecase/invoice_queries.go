package usecase

import (
	"context"
	"fmt"

	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/observ"
	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
)

// GetInvoicePDF fetches the provider-rendered PDF. Returns (nil, nil)
// when the invoice is not provider-backed or the provider is disabled;
// local invoices have no stored rendering.
func (s *InvoiceService) GetInvoicePDF(ctx context.Context, invoiceID string) ([]byte, error) {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.ProviderBacked() || !s.cfg.ProviderEnabled || s.provider == nil {
		return nil, nil
	}
	return s.provider.GetInvoicePDF(ctx, s.cfg.CompanyTaxID, inv.ProviderSeries, inv.ProviderNumber)
}

// SendInvoiceByEmail dispatches the invoice through the provider. Returns
// false (without error) when the invoice is not provider-backed; true
// only on confirmed provider success.
func (s *InvoiceService) SendInvoiceByEmail(ctx context.Context, invoiceID, recipientOverride string) (bool, error) {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	if !inv.ProviderBacked() || !s.cfg.ProviderEnabled || s.provider == nil {
		return false, nil
	}

	to := recipientOverride
	if to == "" {
		order, err := s.orders.GetOrder(ctx, inv.OrderID)
		if err != nil {
			return false, err
		}
		if order == nil {
			return false, &NotFoundError{Kind: "order", ID: inv.OrderID}
		}
		user, err := s.users.GetUser(ctx, order.UserID)
		if err != nil {
			return false, err
		}
		if user == nil {
			return false, &NotFoundError{Kind: "user", ID: order.UserID}
		}
		to = user.Email
	}

	subject := fmt.Sprintf("Invoice %s", inv.Number)
	body := fmt.Sprintf("Your invoice %s for order %s is attached.", inv.Number, inv.OrderID)
	if err := s.provider.SendInvoiceByEmail(ctx, s.cfg.CompanyTaxID, inv.ProviderSeries, inv.ProviderNumber, to, subject, body); err != nil {
		return false, err
	}
	return true, nil
}

// CheckInvoicePaymentStatus answers "is this invoice paid". Provider-backed
// invoices get the provider's conservative best-effort answer; local
// invoices derive it from the owning order's payment status, which is
// authoritative and needs no network.
func (s *InvoiceService) CheckInvoicePaymentStatus(ctx context.Context, invoiceID string) (bool, error) {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return false, err
	}

	if inv.ProviderBacked() && s.cfg.ProviderEnabled && s.provider != nil {
		paid := s.provider.IsInvoicePaid(ctx, s.cfg.CompanyTaxID, inv.ProviderSeries, inv.ProviderNumber)
		if paid {
			observ.ProviderPaymentChecks.WithLabelValues("paid").Inc()
		} else {
			observ.ProviderPaymentChecks.WithLabelValues("unpaid").Inc()
		}
		return paid, nil
	}

	order, err := s.orders.GetOrder(ctx, inv.OrderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, &NotFoundError{Kind: "order", ID: inv.OrderID}
	}
	return order.PaymentStatus == entity.PaymentPaid, nil
}

// CancelInvoice cancels at the provider when applicable, then transitions
// the local record. Freeing the slot lets a corrected invoice be issued
// for the same order.
func (s *InvoiceService) CancelInvoice(ctx context.Context, invoiceID string) error {
	inv, err := s.loadInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status == entity.InvoiceCancelled {
		return nil
	}
	if inv.ProviderBacked() && s.cfg.ProviderEnabled && s.provider != nil {
		if err := s.provider.CancelInvoice(ctx, s.cfg.CompanyTaxID, inv.ProviderSeries, inv.ProviderNumber); err != nil {
			return err
		}
	}
	return s.invoices.UpdateStatus(ctx, invoiceID, entity.InvoiceCancelled)
}

func (s *InvoiceService) loadInvoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, &NotFoundError{Kind: "invoice", ID: invoiceID}
	}
	return inv, nil
}
