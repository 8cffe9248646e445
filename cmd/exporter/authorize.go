package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nmiodice/strava-drive-export/internal/backend"
	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/spf13/cobra"
)

func newAuthorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "authorize strava|google",
		Short:     "Run the one-time OAuth flow and write the credential file",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"strava", "google"},
		RunE:      runAuthorize,
	}
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config, log, err := setup(ctx)
	if err != nil {
		return err
	}

	redirectURL := fmt.Sprintf("http://localhost:%d%s", config.HttpServer.Port, backend.TokenExchangePath)

	var authorizer backend.Authorizer
	var persister credentials.FileStore
	switch args[0] {
	case "strava":
		stravaSDK, err := backend.NewStravaSDK(config, log)
		if err != nil {
			return err
		}
		authorizer = backend.StravaAuthorizer{SDK: stravaSDK, ClientID: config.Strava.ClientID, RedirectURL: redirectURL}
		persister = credentials.FileStore{Path: config.Strava.TokenFile}
	case "google":
		cc, err := backend.GoogleClientConfig(config)
		if err != nil {
			return err
		}
		authorizer = backend.NewGoogleAuthorizer(cc, redirectURL)
		persister = credentials.FileStore{Path: config.Google.TokenFile}
	}

	done := make(chan *credentials.Credential, 1)
	routes := backend.GetAuthRoutes(authorizer, persister, uuid.NewString(), done)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.HttpServer.Port),
		Handler:           backend.ConfigureAuthRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Open http://localhost:%d/ in a browser to authorize %s.\n", config.HttpServer.Port, args[0])

	select {
	case <-done:
		log.Infof("credential saved to %s", persister.Path)
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Warnf("authorization aborted")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
