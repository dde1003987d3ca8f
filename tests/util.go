// Package testutil holds helpers shared by the tests of several packages.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
)

// NewConfig returns the configuration used by tests: no request logs, short timeouts.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "EduWeave",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
		Portal: core.PortalConfig{
			BaseURL:         "http://portal.test",
			DisableReqLogs:  true,
			ShutdownTimeout: time.Second,
		},
		Backend: core.BackendConfig{
			JWTExpirationDelta: time.Hour,
			OAuthStateDelta:    time.Minute,
			DisableReqLogs:     true,
			ShutdownTimeout:    time.Second,
			RequestTimeout:     5 * time.Second,
		},
		Credentials: core.CredentialsConfig{Driver: "memory"},
		Database:    core.DatabaseConfig{Engine: "inmem"},
	}
}

// CreateAccount stores an account directly in repo.
func CreateAccount(
	t *testing.T,
	repo user.Repository,
	email, name string,
	role user.Role,
	districtID, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.Account {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := user.Account{
		User: user.User{
			ID:          email, // stable and readable in assertions
			Email:       email,
			DisplayName: name,
			Role:        role,
			DistrictID:  districtID,
			CreatedAt:   tstamp,
		},
		IsActive:  isActive,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, err := repo.UpdateOrCreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

// Seed inserts rows into a collection and returns them as stored.
func Seed(t *testing.T, repo rest.Repository, collection string, rows ...rest.Row) []rest.Row {
	c, err := rest.Lookup(collection)
	if err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	out, err := repo.Insert(context.Background(), c, rows)
	if err != nil {
		t.Fatalf("Seed(%s) failed: %v", collection, err)
	}
	return out
}

type repoDataSource struct {
	repo rest.Repository
}

// NewDataSource serves a rest.Repository as a records.DataSource, ignoring tokens.
func NewDataSource(repo rest.Repository) records.DataSource {
	return &repoDataSource{repo: repo}
}

func (ds *repoDataSource) Select(ctx context.Context, _, collection string, q rest.Query) ([]rest.Row, error) {
	c, err := rest.Lookup(collection)
	if err != nil {
		return nil, err
	}
	return ds.repo.Select(ctx, c, q)
}

func (ds *repoDataSource) Insert(ctx context.Context, _, collection string, rows ...rest.Row) ([]rest.Row, error) {
	c, err := rest.Lookup(collection)
	if err != nil {
		return nil, err
	}
	return ds.repo.Insert(ctx, c, rows)
}

func (ds *repoDataSource) Update(ctx context.Context, _, collection string, q rest.Query, patch rest.Row) ([]rest.Row, error) {
	c, err := rest.Lookup(collection)
	if err != nil {
		return nil, err
	}
	return ds.repo.Update(ctx, c, q, patch)
}
