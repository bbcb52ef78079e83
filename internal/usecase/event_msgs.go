package usecase

// Consumed from the payment.events Kafka topic.
type PaymentCompletedMsg struct {
	OrderID  string `json:"orderId"`
	EventID  string `json:"eventId"`
	Provider string `json:"provider"` // stripe | revolut
	Status   string `json:"status"`   // completed | succeeded | failed
	Method   string `json:"method,omitempty"`
}

// Published on the invoice.events exchange after an invoice is persisted.
type InvoiceIssuedMsg struct {
	InvoiceID     string `json:"invoiceId"`
	OrderID       string `json:"orderId"`
	Number        string `json:"number"`
	ProviderMirror bool  `json:"providerMirror"` // true when provider-issued
}
