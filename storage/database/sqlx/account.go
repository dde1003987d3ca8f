package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/user"
)

type accountRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) user.Repository {
	return &accountRepository{db: db}
}

type accountRow struct {
	ID           string       `db:"id"`
	Email        string       `db:"email"`
	DisplayName  string       `db:"display_name"`
	Role         string       `db:"role"`
	DistrictID   string       `db:"district_id"`
	SchoolName   string       `db:"school_name"`
	SchoolCode   string       `db:"school_code"`
	PasswordHash []byte       `db:"password_hash"`
	IsActive     bool         `db:"is_active"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
	LastLogin    sql.NullTime `db:"last_login"`
}

const accountColumns = `id, email, display_name, role, district_id, school_name, school_code,
	password_hash, is_active, created_at, updated_at, last_login`

func (r accountRow) account() user.Account {
	role, _ := user.ParseRole(r.Role)
	acc := user.Account{
		User: user.User{
			ID:          r.ID,
			Email:       r.Email,
			DisplayName: r.DisplayName,
			Role:        role,
			DistrictID:  r.DistrictID,
			SchoolName:  r.SchoolName,
			SchoolCode:  r.SchoolCode,
			CreatedAt:   r.CreatedAt.UTC(),
		},
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		acc.LastLogin = r.LastLogin.Time.UTC()
	}
	return acc
}

func newAccountRow(acc user.Account) accountRow {
	return accountRow{
		ID:           acc.ID,
		Email:        acc.Email,
		DisplayName:  acc.DisplayName,
		Role:         acc.Role.String(),
		DistrictID:   acc.DistrictID,
		SchoolName:   acc.SchoolName,
		SchoolCode:   acc.SchoolCode,
		PasswordHash: acc.PasswordHash,
		IsActive:     acc.IsActive,
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    sql.NullTime{Time: acc.LastLogin.UTC(), Valid: !acc.LastLogin.IsZero()},
	}
}

func (repo *accountRepository) get(ctx context.Context, where string, arg interface{}) (user.Account, error) {
	var row accountRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+accountColumns+" FROM users WHERE "+where, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, errors.Wrap(err, "getting account")
	}
	return row.account(), nil
}

func (repo *accountRepository) GetAccountByID(ctx context.Context, id string) (user.Account, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (user.Account, error) {
	return repo.get(ctx, "email = $1", email)
}

const upsertAccount = `INSERT INTO users (` + accountColumns + `)
VALUES (:id, :email, :display_name, :role, :district_id, :school_name, :school_code,
	:password_hash, :is_active, :created_at, :updated_at, :last_login)
ON CONFLICT (id) DO UPDATE SET
	email = EXCLUDED.email,
	display_name = EXCLUDED.display_name,
	role = EXCLUDED.role,
	district_id = EXCLUDED.district_id,
	school_name = EXCLUDED.school_name,
	school_code = EXCLUDED.school_code,
	password_hash = EXCLUDED.password_hash,
	is_active = EXCLUDED.is_active,
	updated_at = EXCLUDED.updated_at,
	last_login = EXCLUDED.last_login`

func (repo *accountRepository) UpdateOrCreateAccount(ctx context.Context, acc user.Account) (user.Account, error) {
	if _, err := repo.db.NamedExecContext(ctx, upsertAccount, newAccountRow(acc)); err != nil {
		return user.Account{}, errors.Wrap(err, "saving account")
	}
	return acc, nil
}
