package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "pending"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Address is an immutable snapshot taken at order-creation time.
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	County     string `json:"county"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Code      string          `json:"code,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	ID                string
	UserID            string
	Items             []OrderItem
	Total             decimal.Decimal
	Currency          string
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	BillingAddress    Address
	ShippingAddress   Address
	CreatedAt         time.Time
}

func (o *Order) Validate() error {
	if o.Total.Sign() <= 0 || o.Currency == "" {
		return ErrInvalidAmount
	}
	return nil
}

// ItemsTotal sums the line totals of every item.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}
