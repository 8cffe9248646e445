package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	cred  *Credential
	saves int
	err   error
}

func (m *memPersister) Load() (*Credential, error) {
	c := *m.cred
	return &c, nil
}

func (m *memPersister) Save(cred *Credential) error {
	if m.err != nil {
		return m.err
	}
	c := *cred
	m.cred = &c
	m.saves++
	return nil
}

type countingRefresher struct {
	calls int
	resp  *Credential
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	c := *r.resp
	return &c, nil
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, p Persister, r Refresher) *TokenStore {
	log, _ := test.NewNullLogger()
	s := NewTokenStore(DefaultRefreshMargin, log)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Register(ServiceStrava, p, r))
	return s
}

func TestGetValidCredential_ExpiredRefreshesOnceAndPersists(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(-time.Hour)}}
	r := &countingRefresher{resp: &Credential{AccessToken: "new", RefreshToken: "r2", ExpiresAt: now.Add(6 * time.Hour)}}
	s := newStore(t, p, r)

	cred, err := s.GetValidCredential(context.Background(), ServiceStrava)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 1, p.saves)
	assert.Equal(t, "new", cred.AccessToken)
	assert.Equal(t, *p.cred, *cred)

	// cached now, no second refresh
	again, err := s.GetValidCredential(context.Background(), ServiceStrava)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, *cred, *again)
}

func TestGetValidCredential_NearExpiryRefreshes(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(2 * time.Minute)}}
	r := &countingRefresher{resp: &Credential{AccessToken: "new", ExpiresAt: now.Add(time.Hour)}}
	s := newStore(t, p, r)

	cred, err := s.GetValidCredential(context.Background(), ServiceStrava)
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "r1", cred.RefreshToken, "refresh token kept when the endpoint omits it")
	assert.Equal(t, "r1", p.cred.RefreshToken)
}

func TestGetValidCredential_ValidIsReturnedAsIs(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)}}
	r := &countingRefresher{}
	s := newStore(t, p, r)

	cred, err := s.GetValidCredential(context.Background(), ServiceStrava)
	require.NoError(t, err)
	assert.Equal(t, "a", cred.AccessToken)
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, 0, p.saves)
}

func TestGetValidCredential_NoRefreshToken(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)}}
	r := &countingRefresher{}
	s := newStore(t, p, r)

	_, err := s.GetValidCredential(context.Background(), ServiceStrava)
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, ServiceStrava, credErr.Service)
	assert.Equal(t, 0, r.calls)
}

func TestGetValidCredential_RejectedRefreshPoisonsService(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "a", RefreshToken: "revoked", ExpiresAt: now.Add(-time.Hour)}}
	r := &countingRefresher{err: errors.New("invalid_grant")}
	s := newStore(t, p, r)

	_, err := s.GetValidCredential(context.Background(), ServiceStrava)
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))

	_, err = s.ForceRefresh(context.Background(), ServiceStrava)
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, 1, r.calls, "no further token endpoint calls after a credential error")
	assert.Equal(t, 0, p.saves)
}

func TestGetValidCredential_PersistFailure(t *testing.T) {
	p := &memPersister{
		cred: &Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)},
		err:  errors.New("disk full"),
	}
	r := &countingRefresher{resp: &Credential{AccessToken: "new", ExpiresAt: now.Add(time.Hour)}}
	s := newStore(t, p, r)

	_, err := s.GetValidCredential(context.Background(), ServiceStrava)
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
}

func TestForceRefresh(t *testing.T) {
	p := &memPersister{cred: &Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)}}
	r := &countingRefresher{resp: &Credential{AccessToken: "b", RefreshToken: "r2", ExpiresAt: now.Add(2 * time.Hour)}}
	s := newStore(t, p, r)

	cred, err := s.ForceRefresh(context.Background(), ServiceStrava)
	require.NoError(t, err)
	assert.Equal(t, "b", cred.AccessToken)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "r2", p.cred.RefreshToken)
}

func TestUnregisteredService(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewTokenStore(DefaultRefreshMargin, log)
	_, err := s.GetValidCredential(context.Background(), ServiceDrive)
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, ServiceDrive, credErr.Service)
}

func TestRegisterMissingFile(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewTokenStore(DefaultRefreshMargin, log)
	err := s.Register(ServiceDrive, FileStore{Path: filepath.Join(t.TempDir(), "missing.json")}, &countingRefresher{})
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
}
