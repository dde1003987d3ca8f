package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/user"
)

// Store is the single source of truth for "who is signed in".
//
// Operations are not mutually exclusive: a sign-in whose identity call is still in flight
// when SignOut completes will publish its user afterwards. Callers are expected to keep
// their controls disabled while Loading reports true.
type Store struct {
	creds  CredentialStore
	idp    IdentityProvider
	logger core.Logger

	restoreOnce sync.Once
	restored    chan struct{}

	mu       sync.RWMutex
	state    State
	inFlight int
	user     *user.User
	token    string
}

func NewStore(creds CredentialStore, idp IdentityProvider, logger core.Logger) *Store {
	return &Store{
		creds:    creds,
		idp:      idp,
		logger:   logger,
		restored: make(chan struct{}),
	}
}

// Restore reads the persisted credential record. Only the first call does any work.
// Read errors are logged and treated as "signed out".
func (s *Store) Restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		defer close(s.restored)

		s.mu.Lock()
		s.state = StateRestoring
		s.mu.Unlock()

		token, usr, err := s.readCredentials(ctx)
		if err != nil {
			s.logger.Warn(ErrSessionRestoreFailed.Error(), err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if err == nil && token != "" && usr != nil {
			s.token, s.user = token, usr
		}
		s.state = StateReady
	})
}

// Restored is closed once the first Restore has finished.
func (s *Store) Restored() <-chan struct{} {
	return s.restored
}

func (s *Store) readCredentials(ctx context.Context) (string, *user.User, error) {
	token, err := s.creds.GetItem(ctx, TokenKey)
	if err != nil {
		if errors.Cause(err) == ErrItemNotFound {
			return "", nil, nil
		}
		return "", nil, errors.Wrap(err, "reading token")
	}
	rawUsr, err := s.creds.GetItem(ctx, UserKey)
	if err != nil {
		if errors.Cause(err) == ErrItemNotFound {
			return "", nil, nil
		}
		return "", nil, errors.Wrap(err, "reading user")
	}

	var usr user.User
	if err := json.Unmarshal([]byte(rawUsr), &usr); err != nil {
		return "", nil, errors.Wrap(err, "decoding user")
	}
	if !usr.Role.Valid() {
		return "", nil, errors.Wrap(user.ErrInvalidRole, "decoding user")
	}
	return token, &usr, nil
}

// SignIn verifies the credentials with the identity provider, persists the returned
// record and only then publishes the user.
func (s *Store) SignIn(ctx context.Context, email, password string) (user.User, error) {
	s.begin()
	defer s.end()

	creds, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		s.logger.Warn("sign-in failed", err, map[string]interface{}{"email": email})
		return user.User{}, ErrAuthenticationFailed
	}
	return s.establish(ctx, creds)
}

// SignInWithFederatedProvider returns the address of the OAuth consent screen.
// The sign-in completes on the callback view with CompleteFederatedSignIn.
func (s *Store) SignInWithFederatedProvider(ctx context.Context, callbackURL string) (string, error) {
	s.begin()
	defer s.end()

	redirectURL, err := s.idp.FederatedSignInURL(ctx, callbackURL)
	if err != nil {
		s.logger.Warn("federated sign-in failed", err)
		return "", ErrAuthenticationFailed
	}
	return redirectURL, nil
}

// CompleteFederatedSignIn resolves the identity behind the token handed back by the OAuth callback.
func (s *Store) CompleteFederatedSignIn(ctx context.Context, token string) (user.User, error) {
	s.begin()
	defer s.end()

	if token == "" {
		return user.User{}, ErrAuthenticationFailed
	}
	usr, err := s.idp.GetCurrentUser(ctx, token)
	if err != nil {
		s.logger.Warn("federated sign-in failed", err)
		return user.User{}, ErrAuthenticationFailed
	}
	return s.establish(ctx, Credentials{Token: token, User: usr})
}

func (s *Store) establish(ctx context.Context, creds Credentials) (user.User, error) {
	if creds.Token == "" || !creds.User.Role.Valid() {
		s.logger.Warn("sign-in failed", errors.New("identity provider returned an incomplete record"), creds.User)
		return user.User{}, ErrAuthenticationFailed
	}
	if dropped, err := s.persist(ctx, creds); err != nil {
		if dropped {
			s.mu.Lock()
			s.token, s.user = "", nil
			s.mu.Unlock()
		}
		return user.User{}, err
	}

	usr := creds.User
	s.mu.Lock()
	s.token, s.user = creds.Token, &usr
	s.mu.Unlock()
	return usr, nil
}

// persist writes both keys. If the user write fails the previous token is put back;
// when that is not possible the whole record is removed and dropped is true.
func (s *Store) persist(ctx context.Context, creds Credentials) (dropped bool, err error) {
	rawUsr, err := json.Marshal(creds.User)
	if err != nil {
		return false, errors.Wrap(err, "encoding user")
	}
	prevToken, prevErr := s.creds.GetItem(ctx, TokenKey)

	if err := s.creds.SetItem(ctx, TokenKey, creds.Token); err != nil {
		return false, errors.Wrap(err, "persisting token")
	}
	if err := s.creds.SetItem(ctx, UserKey, string(rawUsr)); err != nil {
		if rbErr := s.restoreToken(ctx, prevToken, prevErr); rbErr != nil {
			s.logger.Error("rolling back token", rbErr)
			s.dropCredentials(ctx)
			return true, errors.Wrap(err, "persisting user")
		}
		return false, errors.Wrap(err, "persisting user")
	}
	return false, nil
}

func (s *Store) restoreToken(ctx context.Context, prevToken string, prevErr error) error {
	switch {
	case prevErr == nil:
		return s.creds.SetItem(ctx, TokenKey, prevToken)
	case errors.Cause(prevErr) == ErrItemNotFound:
		return s.creds.RemoveItem(ctx, TokenKey)
	default:
		return errors.Wrap(prevErr, "reading previous token")
	}
}

func (s *Store) dropCredentials(ctx context.Context) {
	for _, key := range []string{TokenKey, UserKey} {
		if err := s.creds.RemoveItem(ctx, key); err != nil && errors.Cause(err) != ErrItemNotFound {
			s.logger.Error("clearing "+key, err)
		}
	}
}

// SignOut clears the persisted record and the in-memory user whatever the outcome of the remote call.
func (s *Store) SignOut(ctx context.Context) {
	s.begin()
	defer s.end()

	s.mu.RLock()
	token, usr := s.token, s.user
	s.mu.RUnlock()

	if token != "" {
		if err := s.idp.SignOut(ctx, token); err != nil {
			args := []interface{}{err}
			if usr != nil {
				args = append(args, *usr)
			}
			s.logger.Warn("remote sign-out failed", args...)
		}
	}

	s.dropCredentials(ctx)

	s.mu.Lock()
	s.token, s.user = "", nil
	s.mu.Unlock()
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *Store) loading() bool {
	return s.state != StateReady || s.inFlight > 0
}

// Loading is true until the first Restore finishes and while a sign-in or sign-out is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Store) CurrentUser() *user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	usr := *s.user
	return &usr
}

// Token is the bearer token of the signed-in user, empty when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{State: s.state, Loading: s.loading()}
	if s.user != nil {
		usr := *s.user
		snap.User = &usr
	}
	return snap
}
