package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/livioochertes/kitchenoff-sub001/internal/entity"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
)

type MySQLUserRepo struct{ db *sql.DB }

func NewMySQLUserRepo(db *sql.DB) *MySQLUserRepo { return &MySQLUserRepo{db: db} }

var _ usecase.UserGateway = (*MySQLUserRepo)(nil)

func (r *MySQLUserRepo) GetUser(ctx context.Context, id string) (*entity.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,first_name,last_name,email,company_name,vat_number,reg_number,tax_id
FROM users WHERE id=?`, id)

	var (
		u                                   entity.User
		company, vat, reg, tax sql.NullString
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &company, &vat, &reg, &tax)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CompanyName = company.String
	u.VATNumber = vat.String
	u.RegNumber = reg.String
	u.TaxID = tax.String
	return &u, nil
}
