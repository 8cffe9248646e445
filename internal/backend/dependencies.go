package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/database"
	"github.com/nmiodice/strava-drive-export/internal/metrics"
	"github.com/nmiodice/strava-drive-export/internal/orchestrator"
	"github.com/nmiodice/strava-drive-export/internal/queue"
	"github.com/nmiodice/strava-drive-export/internal/state"
	"github.com/nmiodice/strava-drive-export/internal/storage"
	"github.com/nmiodice/strava-drive-export/internal/strava"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"github.com/sirupsen/logrus"
)

const cursorName = "default"

type Dependencies struct {
	DB        *database.DB
	StravaSDK sdk.StravaSDK
	Tokens    *credentials.TokenStore
	Fetcher   *strava.Fetcher
	Store     storage.Store
	Cursors   state.CursorStore
	Reporters []orchestrator.Reporter
	Pipeline  *orchestrator.Pipeline
}

func NewStravaSDK(config *Config, log logrus.FieldLogger) (sdk.StravaSDK, error) {
	if config.Strava.ClientID == "" || config.Strava.ClientSecret == "" {
		return nil, errors.New("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
	}
	return sdk.NewStravaSDK(sdk.StravaSDKConfig{
		Timeout:      config.HttpClient.Timeout,
		ClientID:     config.Strava.ClientID,
		ClientSecret: config.Strava.ClientSecret,
		APIRootURL:   config.Strava.APIURL,
		Log:          log,
	}), nil
}

// GoogleClientConfig returns the Google OAuth client settings. Values missing
// from the environment are taken from the token file, as written by earlier
// tooling.
func GoogleClientConfig(config *Config) (credentials.ClientConfig, error) {
	cc := credentials.ClientConfig{
		ClientID:     config.Google.ClientID,
		ClientSecret: config.Google.ClientSecret,
		TokenURI:     config.Google.TokenURI,
	}

	if cc.ClientID == "" || cc.ClientSecret == "" || cc.TokenURI == "" {
		fromFile, err := credentials.FileStore{Path: config.Google.TokenFile}.ClientConfig()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cc, err
		}
		if cc.ClientID == "" {
			cc.ClientID = fromFile.ClientID
		}
		if cc.ClientSecret == "" {
			cc.ClientSecret = fromFile.ClientSecret
		}
		if cc.TokenURI == "" {
			cc.TokenURI = fromFile.TokenURI
		}
	}

	if cc.TokenURI == "" {
		cc.TokenURI = credentials.GoogleTokenURI
	}
	if cc.ClientID == "" || cc.ClientSecret == "" {
		return cc, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set, or present in the Google token file")
	}
	return cc, nil
}

// GetStravaDependencies builds only the Strava side: the SDK, a token store
// holding the Strava credential and the activity fetcher.
func GetStravaDependencies(config *Config, log logrus.FieldLogger) (*Dependencies, error) {
	stravaSDK, err := NewStravaSDK(config, log)
	if err != nil {
		return nil, err
	}

	tokens := credentials.NewTokenStore(config.HttpClient.RefreshMargin, log)
	err = tokens.Register(
		credentials.ServiceStrava,
		credentials.FileStore{Path: config.Strava.TokenFile},
		strava.NewTokenRefresher(stravaSDK))
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		StravaSDK: stravaSDK,
		Tokens:    tokens,
		Fetcher: strava.NewFetcher(stravaSDK, tokens, strava.FetcherConfig{
			PageSize:          config.Strava.PageSize,
			MaxRateLimitWait:  config.HttpClient.RateLimitMaxWait,
			RateLimitBackoff:  config.HttpClient.RateLimitBackoff,
			RequestsPerSecond: config.Strava.RequestsPerSecond,
		}, log),
	}, nil
}

func GetDependencies(ctx context.Context, config *Config, log logrus.FieldLogger) (*Dependencies, error) {
	deps, err := GetStravaDependencies(config, log)
	if err != nil {
		return nil, err
	}
	tokens := deps.Tokens

	switch config.Destination.Kind {
	case DestinationDrive:
		cc, err := GoogleClientConfig(config)
		if err != nil {
			return nil, err
		}
		err = tokens.Register(
			credentials.ServiceDrive,
			credentials.FileStore{Path: config.Google.TokenFile},
			credentials.NewOAuth2Refresher(cc.ClientID, cc.ClientSecret, cc.TokenURI, config.HttpClient.Timeout))
		if err != nil {
			return nil, err
		}
		deps.Store = storage.NewDriveStore(storage.DriveStoreConfig{
			Timeout:    config.HttpClient.Timeout,
			APIRootURL: config.Google.DriveAPIURL,
			Log:        log,
		}, tokens)
	case DestinationAzBlob:
		deps.Store, err = storage.NewAzureBlobstore(
			ctx,
			config.Storage.ContainerName,
			config.Storage.AccountName,
			config.Storage.AccountKey)
		if err != nil {
			return nil, err
		}
	}

	switch config.Export.StateBackend {
	case StateBackendFile:
		deps.Cursors = &state.FileCursorStore{Path: config.Export.StateFile}
	case StateBackendPostgres:
		db, err := database.NewDB(ctx, config.Export.DatabaseURL)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		cursors := state.NewPostgresCursorStore(db, cursorName)
		if err := cursors.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		deps.Cursors = cursors
	default:
		deps.Cursors = state.NoopCursorStore{}
	}

	if config.Reporting.SummaryQueueName != "" {
		if config.Storage.AccountName == "" || config.Storage.AccountKey == "" {
			deps.Close()
			return nil, fmt.Errorf("SUMMARY_QUEUE_NAME needs STORAGE_ACCOUNT_NAME and STORAGE_ACCOUNT_KEY")
		}
		publisher, err := queue.NewAzureStorageQueue(
			ctx,
			config.Reporting.SummaryQueueName,
			config.Storage.AccountName,
			config.Storage.AccountKey)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Reporters = append(deps.Reporters, publisher)
	}
	if config.Reporting.PushgatewayURL != "" {
		deps.Reporters = append(deps.Reporters, metrics.NewPusher(config.Reporting.PushgatewayURL, metrics.NewRunMetrics()))
	}

	layout, err := storage.ParseLayout(config.Destination.Layout)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Pipeline = &orchestrator.Pipeline{
		Tokens:    tokens,
		Source:    orchestrator.NewFetcherSource(deps.Fetcher, log),
		Uploader:  storage.NewUploader(deps.Store, log),
		Cursors:   deps.Cursors,
		Reporters: deps.Reporters,
		Config: orchestrator.Config{
			Services:     config.Services(),
			Root:         config.Destination.Folder,
			Layout:       layout,
			FetchDetails: config.Strava.FetchDetails,
		},
		Log: log,
	}

	return deps, nil
}

func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
