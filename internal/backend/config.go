package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/orchestrator"
	"github.com/nmiodice/strava-drive-export/internal/storage"
	"github.com/sethvargo/go-envconfig"
)

const (
	DestinationDrive  = "drive"
	DestinationAzBlob = "azblob"

	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
	StateBackendNone     = "none"

	sinceFull = "full"
)

type HttpServerConfig struct {
	Port int `env:"PORT,default=8080"`
}

type HttpClientConfig struct {
	Timeout          time.Duration `env:"HTTP_CLIENT_TIMEOUT,default=30s"`
	RateLimitMaxWait time.Duration `env:"RATE_LIMIT_MAX_WAIT,default=15m"`
	RateLimitBackoff time.Duration `env:"RATE_LIMIT_BACKOFF,default=60s"`
	RefreshMargin    time.Duration `env:"TOKEN_REFRESH_MARGIN,default=5m"`
}

type StravaAppConfig struct {
	ClientID          string  `env:"STRAVA_CLIENT_ID"`
	ClientSecret      string  `env:"STRAVA_CLIENT_SECRET"`
	APIURL            string  `env:"STRAVA_API_URL,default=https://www.strava.com/api/v3/"`
	TokenFile         string  `env:"STRAVA_TOKEN_FILE,default=config/strava_token.json"`
	PageSize          int     `env:"STRAVA_PAGE_SIZE,default=100"`
	FetchDetails      bool    `env:"STRAVA_FETCH_DETAILS,default=true"`
	RequestsPerSecond float64 `env:"STRAVA_REQUESTS_PER_SECOND,default=0"`
}

type GoogleAppConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	TokenFile    string `env:"GOOGLE_TOKEN_FILE,default=config/token.json"`
	TokenURI     string `env:"GOOGLE_TOKEN_URI"`
	DriveAPIURL  string `env:"DRIVE_API_URL,default=https://www.googleapis.com/"`
}

type DestinationConfig struct {
	Kind   string `env:"DESTINATION,default=drive"`
	Folder string `env:"DESTINATION_FOLDER,default=strava-export"`
	Layout string `env:"DESTINATION_LAYOUT,default=flat"`
}

type StorageConfig struct {
	ContainerName string `env:"STORAGE_CONTAINER_NAME"`
	AccountName   string `env:"STORAGE_ACCOUNT_NAME"`
	AccountKey    string `env:"STORAGE_ACCOUNT_KEY"`
}

type ExportConfig struct {
	Since        string `env:"EXPORT_SINCE"`
	StateBackend string `env:"STATE_BACKEND,default=file"`
	StateFile    string `env:"STATE_FILE,default=config/export_state.json"`
	DatabaseURL  string `env:"DATABASE_URL"`
}

type ReportingConfig struct {
	SummaryQueueName string `env:"SUMMARY_QUEUE_NAME"`
	PushgatewayURL   string `env:"PUSHGATEWAY_URL"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

type Config struct {
	HttpServer  HttpServerConfig
	HttpClient  HttpClientConfig
	Strava      StravaAppConfig
	Google      GoogleAppConfig
	Destination DestinationConfig
	Storage     StorageConfig
	Export      ExportConfig
	Reporting   ReportingConfig
	Log         LogConfig
}

func GetConfig(ctx context.Context) (*Config, error) {
	return GetConfigWith(ctx, envconfig.OsLookuper())
}

func GetConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config
	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	c.Destination.Kind = strings.ToLower(c.Destination.Kind)
	switch c.Destination.Kind {
	case DestinationDrive:
	case DestinationAzBlob:
		if c.Storage.AccountName == "" || c.Storage.AccountKey == "" || c.Storage.ContainerName == "" {
			return fmt.Errorf("destination %s needs STORAGE_ACCOUNT_NAME, STORAGE_ACCOUNT_KEY and STORAGE_CONTAINER_NAME", c.Destination.Kind)
		}
	default:
		return fmt.Errorf("unknown destination %q", c.Destination.Kind)
	}

	if _, err := storage.ParseLayout(c.Destination.Layout); err != nil {
		return err
	}

	c.Export.StateBackend = strings.ToLower(c.Export.StateBackend)
	switch c.Export.StateBackend {
	case StateBackendFile, StateBackendNone:
	case StateBackendPostgres:
		if c.Export.DatabaseURL == "" {
			return fmt.Errorf("state backend %s needs DATABASE_URL", c.Export.StateBackend)
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.Export.StateBackend)
	}

	if c.Strava.PageSize < 1 || c.Strava.PageSize > 200 {
		return fmt.Errorf("STRAVA_PAGE_SIZE must be between 1 and 200, got %d", c.Strava.PageSize)
	}
	return nil
}

// Services lists the credentials a run needs.
func (c *Config) Services() []credentials.Service {
	services := []credentials.Service{credentials.ServiceStrava}
	if c.Destination.Kind == DestinationDrive {
		services = append(services, credentials.ServiceDrive)
	}
	return services
}

// ParseSince turns an EXPORT_SINCE value into run options. The empty string
// continues from the saved cursor, "full" exports everything, and anything
// else is an RFC 3339 time or a look-back duration such as 720h.
func ParseSince(s string, now time.Time) (orchestrator.RunOptions, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return orchestrator.RunOptions{Incremental: true}, nil
	case sinceFull:
		return orchestrator.RunOptions{}, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return orchestrator.RunOptions{Since: &t}, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		t := now.Add(-d).UTC()
		return orchestrator.RunOptions{Since: &t}, nil
	}
	return orchestrator.RunOptions{}, fmt.Errorf("invalid since %q: want \"full\", an RFC 3339 time or a duration", s)
}

// DaysBack is the --days-back flag: a look-back of whole days.
func DaysBack(days int, now time.Time) orchestrator.RunOptions {
	t := now.AddDate(0, 0, -days).UTC()
	return orchestrator.RunOptions{Since: &t}
}
