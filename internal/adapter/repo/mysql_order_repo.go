package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

type MySQLOrderRepo struct{ db *sql.DB }

func NewMySQLOrderRepo(db *sql.DB) *MySQLOrderRepo { return &MySQLOrderRepo{db: db} }

var _ usecase.OrderGateway = (*MySQLOrderRepo)(nil)

func (r *MySQLOrderRepo) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,user_id,total,currency,payment_status,fulfillment_status,items_json,billing_address,shipping_address,created_at
FROM orders WHERE id=?`, id)

	var (
		o                          entity.Order
		total                      string
		itemsJSON, billing, shipping []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &total, &o.Currency, &o.PaymentStatus, &o.FulfillmentStatus,
		&itemsJSON, &billing, &shipping, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, err
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
			return nil, err
		}
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

// UpdateOrderStatuses flips payment and fulfillment status in one write.
func (r *MySQLOrderRepo) UpdateOrderStatuses(ctx context.Context, id string, payment entity.PaymentStatus, fulfillment entity.FulfillmentStatus) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE orders
        SET payment_status = ?, fulfillment_status = ?, updated_at = NOW()
        WHERE id = ?`,
		payment, fulfillment, id,
	)
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

// UpdateFulfillmentIf performs a guarded transition (e.g. processing -> shipped).
// Returns false when nothing matched: order absent or status mismatch.
func (r *MySQLOrderRepo) UpdateFulfillmentIf(ctx context.Context, id string, from, to entity.FulfillmentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE orders
        SET fulfillment_status = ?, updated_at = NOW()
        WHERE id = ? AND fulfillment_status = ?`,
		to, id, from,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
