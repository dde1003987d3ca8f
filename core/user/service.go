package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("account is disabled")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		GetAccountByID(ctx context.Context, id string) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		// UpdateOrCreateAccount inserts the account, or updates the row with the same ID.
		UpdateOrCreateAccount(ctx context.Context, acc Account) (Account, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate checks the password of the active account registered with email.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "getting account")
	}
	if err := acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return Account{}, ErrInactive
	}
	return svc.touchLastLogin(ctx, acc)
}

// AuthenticateFederated resolves the active account of an e-mail vouched for by an identity provider.
func (svc *Service) AuthenticateFederated(ctx context.Context, email string) (Account, error) {
	acc, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return Account{}, err
	}
	if !acc.IsActive {
		return Account{}, ErrInactive
	}
	return svc.touchLastLogin(ctx, acc)
}

func (svc *Service) touchLastLogin(ctx context.Context, acc Account) (Account, error) {
	acc.LastLogin = NowFunc().UTC()
	acc, err := svc.repo.UpdateOrCreateAccount(ctx, acc)
	if err != nil {
		return Account{}, errors.Wrap(err, "updating last login")
	}
	return acc, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Save updates the account registered with na.Email or creates a new one.
// na must have been validated.
func (svc *Service) Save(ctx context.Context, na NewAccount) (Account, error) {
	role, err := ParseRole(na.Role)
	if err != nil {
		return Account{}, err
	}

	now := NowFunc().UTC()
	acc, err := svc.repo.GetAccountByEmail(ctx, na.Email)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Account{}, errors.Wrap(err, "getting account")
		}
		acc = Account{User: User{
			ID:        uuid.New().String(),
			Email:     na.Email,
			CreatedAt: now,
		}}
	}

	acc.DisplayName = na.DisplayName
	acc.Role = role
	acc.DistrictID = na.DistrictID
	acc.SchoolName = na.SchoolName
	acc.SchoolCode = na.SchoolCode
	acc.IsActive = true
	acc.UpdatedAt = now
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, err
	}
	return svc.repo.UpdateOrCreateAccount(ctx, acc)
}
