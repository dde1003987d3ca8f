// Package session holds the process-wide record of who is signed in to the portal.
package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/user"
)

// Keys of the persisted credential record.
const (
	TokenKey = "eduweave.auth.token"
	UserKey  = "eduweave.auth.user"
)

var (
	// ErrAuthenticationFailed is returned for bad credentials and identity provider failures alike.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrSessionRestoreFailed is logged when the persisted record cannot be read. It never reaches callers.
	ErrSessionRestoreFailed = errors.New("session restore failed")
	// ErrItemNotFound is returned by a CredentialStore for missing keys.
	ErrItemNotFound = errors.New("item not found")
)

// State is the lifecycle of a Store: uninitialized -> restoring -> ready.
type State int

const (
	StateUninitialized State = iota
	StateRestoring
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

type (
	// Credentials is what the identity provider hands back on sign-in.
	Credentials struct {
		Token string    `json:"access_token"`
		User  user.User `json:"user"`
	}

	// CredentialStore is the durable key-value store backing the session across restarts.
	CredentialStore interface {
		GetItem(ctx context.Context, key string) (string, error)
		SetItem(ctx context.Context, key, value string) error
		RemoveItem(ctx context.Context, key string) error
	}

	// IdentityProvider verifies credentials on behalf of the portal.
	IdentityProvider interface {
		SignIn(ctx context.Context, email, password string) (Credentials, error)
		SignOut(ctx context.Context, token string) error
		GetCurrentUser(ctx context.Context, token string) (user.User, error)
		// FederatedSignInURL returns the address the browser must be sent to for an OAuth sign-in.
		// The provider sends the browser back to redirectTo once done.
		FederatedSignInURL(ctx context.Context, redirectTo string) (string, error)
	}

	// Snapshot is a consistent copy of the session taken under a single lock.
	Snapshot struct {
		State   State
		Loading bool
		User    *user.User
	}
)
