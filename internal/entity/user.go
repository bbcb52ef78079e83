package entity

import "strings"

// User carries the billing profile of the customer who owns an order.
// Company fields are optional; when present they classify the customer
// as a business for invoicing purposes.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string

	CompanyName string
	VATNumber   string
	RegNumber   string
	TaxID       string
}

func (u *User) IsBusiness() bool {
	return strings.TrimSpace(u.CompanyName) != ""
}

// BillingName is the name invoices are issued to: the registered company
// name for businesses, the personal full name otherwise.
func (u *User) BillingName() string {
	if u.IsBusiness() {
		return strings.TrimSpace(u.CompanyName)
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
