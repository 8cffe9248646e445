package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	codes []string
	err   error
}

func (f *fakeAuthorizer) Service() credentials.Service { return credentials.ServiceStrava }

func (f *fakeAuthorizer) AuthCodeURL(state string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (f *fakeAuthorizer) Exchange(ctx context.Context, code, scope string) (*credentials.Credential, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return &credentials.Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Unix(1717243200, 0).UTC(), Scope: scope}, nil
}

type memPersister struct {
	saved *credentials.Credential
}

func (m *memPersister) Load() (*credentials.Credential, error) { return m.saved, nil }

func (m *memPersister) Save(cred *credentials.Credential) error {
	m.saved = cred
	return nil
}

func newAuthRouter(a Authorizer, p credentials.Persister) (*gin.Engine, chan *credentials.Credential) {
	gin.SetMode(gin.TestMode)
	done := make(chan *credentials.Credential, 1)
	return ConfigureAuthRouter(GetAuthRoutes(a, p, "xyz", done)), done
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestAuthorizeRedirects(t *testing.T) {
	router, _ := newAuthRouter(&fakeAuthorizer{}, &memPersister{})

	w := get(router, "/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://auth.example.com/authorize?state=xyz", w.Header().Get("Location"))
}

func TestTokenExchange_SavesCredential(t *testing.T) {
	a := &fakeAuthorizer{}
	p := &memPersister{}
	router, done := newAuthRouter(a, p)

	w := get(router, "/tokenexchange?state=xyz&code=abc&scope=read,activity:read_all")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "authorized")
	assert.Equal(t, []string{"abc"}, a.codes)
	require.NotNil(t, p.saved)
	assert.Equal(t, "read,activity:read_all", p.saved.Scope)

	select {
	case cred := <-done:
		assert.Same(t, p.saved, cred)
	default:
		t.Fatal("done was not signalled")
	}
}

func TestTokenExchange_Rejections(t *testing.T) {
	for name, target := range map[string]string{
		"state mismatch": "/tokenexchange?state=other&code=abc",
		"missing code":   "/tokenexchange?state=xyz",
		"denied":         "/tokenexchange?state=xyz&error=access_denied",
	} {
		t.Run(name, func(t *testing.T) {
			a := &fakeAuthorizer{}
			p := &memPersister{}
			router, _ := newAuthRouter(a, p)

			w := get(router, target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, a.codes)
			assert.Nil(t, p.saved)
		})
	}
}

func TestTokenExchange_ExchangeFailure(t *testing.T) {
	p := &memPersister{}
	router, _ := newAuthRouter(&fakeAuthorizer{err: errors.New("invalid code")}, p)

	w := get(router, "/tokenexchange?state=xyz&code=abc")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "invalid code")
	assert.Nil(t, p.saved)
}

func TestStravaAuthorizer_AuthCodeURL(t *testing.T) {
	a := StravaAuthorizer{ClientID: "123", RedirectURL: "http://localhost:8080/tokenexchange"}

	u, err := url.Parse(a.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "www.strava.com", u.Host)
	q := u.Query()
	assert.Equal(t, "123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "read,activity:read_all", q.Get("scope"))
	assert.Equal(t, "xyz", q.Get("state"))
}

func TestGoogleAuthorizer_AuthCodeURL(t *testing.T) {
	a := NewGoogleAuthorizer(credentials.ClientConfig{ClientID: "gid", ClientSecret: "s", TokenURI: credentials.GoogleTokenURI}, "http://localhost:8080/tokenexchange")

	u, err := url.Parse(a.AuthCodeURL("xyz"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "gid", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, GoogleDriveScope, q.Get("scope"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Equal(t, credentials.ServiceDrive, a.Service())
}
