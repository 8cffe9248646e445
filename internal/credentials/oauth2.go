package credentials

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// GoogleTokenURI is the token endpoint used when neither the config nor the
// credential file names one.
const GoogleTokenURI = "https://oauth2.googleapis.com/token"

// OAuth2Refresher refreshes through a standard OAuth2 token endpoint.
type OAuth2Refresher struct {
	Config  *oauth2.Config
	Timeout time.Duration
}

func NewOAuth2Refresher(clientID, clientSecret, tokenURI string, timeout time.Duration) *OAuth2Refresher {
	if tokenURI == "" {
		tokenURI = GoogleTokenURI
	}
	return &OAuth2Refresher{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURI,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Timeout: timeout,
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: r.Timeout})

	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &CredentialError{Reason: "token endpoint rejected refresh", Err: err}
		}
		return nil, err
	}
	return CredentialFromToken(tok), nil
}

// CredentialFromToken converts an oauth2 token, either from a refresh or from
// an authorization code exchange.
func CredentialFromToken(tok *oauth2.Token) *Credential {
	cred := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
		TokenType:    tok.TokenType,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = strings.TrimSpace(scope)
	}
	return cred
}
