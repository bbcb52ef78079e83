package security

// In-memory client registry (replace with DB/config later)
type Client struct {
	ID      string
	Secret  string
	Perms   []string // e.g. {"invoices.read","invoices.write"}
	Enabled bool
}

var Clients = map[string]Client{
	"storefront-web": {ID: "storefront-web", Secret: "storefront-secret", Perms: []string{"invoices.read"}, Enabled: true},
	"svc-checkout":   {ID: "svc-checkout", Secret: "checkout-secret", Perms: []string{"invoices.read", "invoices.write"}, Enabled: true},
	"ops-backoffice": {ID: "ops-backoffice", Secret: "ops-secret", Perms: []string{"invoices.read", "invoices.write", "shipping.read", "shipping.write"}, Enabled: true},
}
