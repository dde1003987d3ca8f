package inmemdb

import (
	"context"
	"time"

	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
)

const passwordHashCol = "password_hash"

type accountRepository struct {
	db *DB
}

var _ user.Repository = (*accountRepository)(nil)

// NewAccountRepository serves accounts from the users table, password hashes included.
func NewAccountRepository(db *DB) user.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) users() *table {
	return repo.db.tables[rest.Users]
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id string) (user.Account, error) {
	t := repo.users()
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if r, ok := t.rows[id]; ok {
		return rowToAccount(r), nil
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (user.Account, error) {
	t := repo.users()
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, r := range t.all() {
		if r["email"] == email {
			return rowToAccount(r), nil
		}
	}
	return user.Account{}, user.ErrNotFound
}

func (repo *accountRepository) UpdateOrCreateAccount(_ context.Context, acc user.Account) (user.Account, error) {
	t := repo.users()
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.put(acc.ID, accountToRow(acc))
	return acc, nil
}

func accountToRow(acc user.Account) rest.Row {
	return rest.Row{
		"id":            acc.ID,
		"email":         acc.Email,
		"display_name":  acc.DisplayName,
		"role":          acc.Role.String(),
		"district_id":   acc.DistrictID,
		"school_name":   acc.SchoolName,
		"school_code":   acc.SchoolCode,
		"is_active":     acc.IsActive,
		"created_at":    acc.CreatedAt.UTC(),
		"updated_at":    acc.UpdatedAt.UTC(),
		"last_login":    acc.LastLogin.UTC(),
		passwordHashCol: append([]byte(nil), acc.PasswordHash...),
	}
}

func rowToAccount(r rest.Row) user.Account {
	str := func(col string) string { s, _ := r[col].(string); return s }
	tm := func(col string) time.Time { t, _ := r[col].(time.Time); return t }

	role, _ := user.ParseRole(str("role"))
	active, _ := r["is_active"].(bool)
	hash, _ := r[passwordHashCol].([]byte)
	return user.Account{
		User: user.User{
			ID:          str("id"),
			Email:       str("email"),
			DisplayName: str("display_name"),
			Role:        role,
			DistrictID:  str("district_id"),
			SchoolName:  str("school_name"),
			SchoolCode:  str("school_code"),
			CreatedAt:   tm("created_at"),
		},
		PasswordHash: append([]byte(nil), hash...),
		IsActive:     active,
		UpdatedAt:    tm("updated_at"),
		LastLogin:    tm("last_login"),
	}
}
