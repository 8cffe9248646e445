package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRefreshMargin is how much lifetime a token must have left to be
// used without refreshing.
const DefaultRefreshMargin = 5 * time.Minute

// Persister loads and saves the credential of one service.
type Persister interface {
	Load() (*Credential, error)
	Save(cred *Credential) error
}

// Refresher exchanges a refresh token at the service's token endpoint.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*Credential, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	return f(ctx, refreshToken)
}

// Provider is what API clients depend on.
type Provider interface {
	GetValidCredential(ctx context.Context, service Service) (*Credential, error)
	ForceRefresh(ctx context.Context, service Service) (*Credential, error)
}

type entry struct {
	cred      *Credential
	persister Persister
	refresher Refresher
	failed    *CredentialError
}

// TokenStore owns the cached credentials of every service for one run.
type TokenStore struct {
	mu      sync.Mutex
	entries map[Service]*entry
	margin  time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
}

var _ Provider = (*TokenStore)(nil)

func NewTokenStore(margin time.Duration, log logrus.FieldLogger) *TokenStore {
	if margin < 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenStore{
		entries: map[Service]*entry{},
		margin:  margin,
		now:     time.Now,
		log:     log,
	}
}

// Register loads the persisted credential for service.
func (s *TokenStore) Register(service Service, persister Persister, refresher Refresher) error {
	cred, err := persister.Load()
	if err != nil {
		return &CredentialError{Service: service, Reason: "loading persisted credential", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[service] = &entry{cred: cred, persister: persister, refresher: refresher}
	return nil
}

// GetValidCredential returns a credential that will not expire within the
// refresh margin, refreshing and persisting it first when needed.
func (s *TokenStore) GetValidCredential(ctx context.Context, service Service) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(service)
	if err != nil {
		return nil, err
	}
	if e.cred.ValidAt(s.now(), s.margin) {
		c := *e.cred
		return &c, nil
	}
	return s.refreshLocked(ctx, service, e)
}

// ForceRefresh refreshes regardless of the cached expiry, typically after the
// service rejected the access token.
func (s *TokenStore) ForceRefresh(ctx context.Context, service Service) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entry(service)
	if err != nil {
		return nil, err
	}
	return s.refreshLocked(ctx, service, e)
}

func (s *TokenStore) entry(service Service) (*entry, error) {
	e, ok := s.entries[service]
	if !ok {
		return nil, &CredentialError{Service: service, Reason: "no credential registered"}
	}
	if e.failed != nil {
		return nil, e.failed
	}
	return e, nil
}

func (s *TokenStore) refreshLocked(ctx context.Context, service Service, e *entry) (*Credential, error) {
	fail := func(reason string, err error) (*Credential, error) {
		e.failed = &CredentialError{Service: service, Reason: reason, Err: err}
		s.log.WithField("service", service).WithError(err).Errorf("credential unusable: %s", reason)
		return nil, e.failed
	}

	if e.cred.RefreshToken == "" {
		return fail("no refresh token available", nil)
	}

	s.log.WithField("service", service).Info("refreshing access token")
	fresh, err := e.refresher.Refresh(ctx, e.cred.RefreshToken)
	if err != nil {
		var credErr *CredentialError
		if errors.As(err, &credErr) {
			return fail(credErr.Reason, credErr.Err)
		}
		return fail("token endpoint rejected refresh", err)
	}
	if fresh == nil || fresh.AccessToken == "" {
		return fail("token endpoint returned no access token", nil)
	}

	next := *fresh
	if next.RefreshToken == "" {
		next.RefreshToken = e.cred.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = e.cred.Scope
	}
	if next.ExpiresAt.IsZero() {
		return fail("token endpoint returned no expiry", nil)
	}

	if err := e.persister.Save(&next); err != nil {
		return fail("persisting refreshed credential", fmt.Errorf("save: %w", err))
	}
	e.cred = &next

	s.log.WithField("service", service).Infof("access token refreshed, valid until %s", next.ExpiresAt.Format(time.RFC3339))
	c := next
	return &c, nil
}
