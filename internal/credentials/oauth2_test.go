package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuth2Refresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/drive.file"}`))
	}))
	defer srv.Close()

	r := NewOAuth2Refresher("cid", "secret", srv.URL, time.Second)
	before := time.Now()
	cred, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, "r1", cred.RefreshToken)
	assert.Equal(t, "https://www.googleapis.com/auth/drive.file", cred.Scope)
	assert.True(t, cred.ExpiresAt.After(before.Add(50*time.Minute)))
}

func TestOAuth2Refresher_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	_, err := NewOAuth2Refresher("cid", "secret", srv.URL, time.Second).Refresh(context.Background(), "revoked")
	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
}
