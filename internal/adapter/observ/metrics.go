package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvoicesIssued counts persisted invoices by path: "provider" or "local".
	InvoicesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoices_issued_total",
			Help: "Total invoices persisted, by issuing path",
		},
		[]string{"path"},
	)

	// InvoiceFallbacks counts provider failures recovered by local issuance.
	InvoiceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invoice_provider_fallbacks_total",
			Help: "Provider invoicing failures that fell back to a local invoice",
		},
	)

	// ProviderPaymentChecks counts payment-status lookups against the provider.
	ProviderPaymentChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_payment_checks_total",
			Help: "Payment-status checks against the provider, by outcome (paid, unpaid)",
		},
		[]string{"outcome"},
	)
)
