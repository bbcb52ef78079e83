package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/shopspring/decimal"
)

type MySQLInvoiceRepo struct{ db *sql.DB }

func NewMySQLInvoiceRepo(db *sql.DB) *MySQLInvoiceRepo { return &MySQLInvoiceRepo{db: db} }

var _ usecase.InvoiceRepo = (*MySQLInvoiceRepo)(nil)

// Create persists the invoice and its line items in one transaction.
// A unique index on (order_id, active) enforces at most one non-cancelled
// invoice per order even under concurrent webhook deliveries.
func (r *MySQLInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO invoices
  (id,number,order_id,issue_date,supply_date,subtotal,tax_amount,total,currency,
   payment_method,payment_link,notes,provider_series,provider_number,provider_id,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,NOW())`,
		inv.ID, inv.Number, inv.OrderID, inv.IssueDate, inv.SupplyDate,
		inv.Subtotal.String(), inv.TaxAmount.String(), inv.Total.String(), inv.Currency,
		inv.PaymentMethod, inv.PaymentLink, inv.Notes,
		nullIfEmpty(inv.ProviderSeries), nullIfEmpty(inv.ProviderNumber), nullIfEmpty(inv.ProviderID),
		inv.Status,
	)
	if err != nil {
		return err
	}

	for _, l := range inv.Lines {
		_, err = tx.ExecContext(ctx, `
INSERT INTO invoice_items (invoice_id,product_id,name,code,quantity,unit_price,tax_rate,line_total)
VALUES (?,?,?,?,?,?,?,?)`,
			inv.ID, l.ProductID, l.Name, l.Code, l.Quantity,
			l.UnitPrice.String(), l.TaxRate.String(), l.LineTotal.String(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *MySQLInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.queryOne(ctx, `WHERE id=?`, id)
}

// FindByOrder returns the non-cancelled invoice for the order, or nil.
func (r *MySQLInvoiceRepo) FindByOrder(ctx context.Context, orderID string) (*entity.Invoice, error) {
	return r.queryOne(ctx, `WHERE order_id=? AND status<>'cancelled'`, orderID)
}

func (r *MySQLInvoiceRepo) UpdateStatus(ctx context.Context, id string, status entity.InvoiceStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invoices SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MySQLInvoiceRepo) queryOne(ctx context.Context, where string, arg any) (*entity.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,number,order_id,issue_date,supply_date,subtotal,tax_amount,total,currency,
       payment_method,payment_link,notes,provider_series,provider_number,provider_id,status,created_at
FROM invoices `+where, arg)

	var (
		inv                        entity.Invoice
		subtotal, tax, total       string
		series, number, providerID sql.NullString
		link                       sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.IssueDate, &inv.SupplyDate,
		&subtotal, &tax, &total, &inv.Currency,
		&inv.PaymentMethod, &link, &inv.Notes, &series, &number, &providerID,
		&inv.Status, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if inv.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, err
	}
	if inv.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return nil, err
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	inv.PaymentLink = link.String
	inv.ProviderSeries = series.String
	inv.ProviderNumber = number.String
	inv.ProviderID = providerID.String

	if inv.Lines, err = r.loadLines(ctx, inv.ID); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *MySQLInvoiceRepo) loadLines(ctx context.Context, invoiceID string) ([]entity.InvoiceLine, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT product_id,name,code,quantity,unit_price,tax_rate,line_total
FROM invoice_items WHERE invoice_id=? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []entity.InvoiceLine
	for rows.Next() {
		var (
			l                     entity.InvoiceLine
			price, taxRate, total string
			code                  sql.NullString
		)
		if err := rows.Scan(&l.ProductID, &l.Name, &code, &l.Quantity, &price, &taxRate, &total); err != nil {
			return nil, err
		}
		l.Code = code.String
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if l.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
			return nil, err
		}
		if l.LineTotal, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
