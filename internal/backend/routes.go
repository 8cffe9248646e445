package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nmiodice/strava-drive-export/internal/credentials"
	"github.com/nmiodice/strava-drive-export/internal/strava"
	"github.com/nmiodice/strava-drive-export/internal/strava/sdk"
	"golang.org/x/oauth2"
)

const (
	ResponseError   = "Error"
	ResponseStatus  = "status"
	ResponseService = "service"
	QueryParamCode  = "code"
	QueryParamState = "state"
	QueryParamScope = "scope"
	QueryParamError = "error"

	TokenExchangePath = "/tokenexchange"

	StravaAuthorizeURL = "https://www.strava.com/oauth/authorize"
	GoogleAuthorizeURL = "https://accounts.google.com/o/oauth2/auth"
	GoogleDriveScope   = "https://www.googleapis.com/auth/drive.file"
)

var StravaScopes = []string{"read", "activity:read_all"}

// Authorizer runs the authorization code flow for one service.
type Authorizer interface {
	Service() credentials.Service
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, scope string) (*credentials.Credential, error)
}

type StravaAuthorizer struct {
	SDK         sdk.StravaSDK
	ClientID    string
	RedirectURL string
}

func (a StravaAuthorizer) Service() credentials.Service {
	return credentials.ServiceStrava
}

func (a StravaAuthorizer) AuthCodeURL(state string) string {
	params := url.Values{}
	params.Add("client_id", a.ClientID)
	params.Add("redirect_uri", a.RedirectURL)
	params.Add("response_type", "code")
	params.Add("approval_prompt", "force")
	params.Add("scope", strings.Join(StravaScopes, ","))
	params.Add(QueryParamState, state)
	return StravaAuthorizeURL + "?" + params.Encode()
}

func (a StravaAuthorizer) Exchange(ctx context.Context, code, scope string) (*credentials.Credential, error) {
	return strava.ExchangeCode(ctx, a.SDK, code, scope)
}

type GoogleAuthorizer struct {
	Config *oauth2.Config
}

func NewGoogleAuthorizer(cc credentials.ClientConfig, redirectURL string) GoogleAuthorizer {
	return GoogleAuthorizer{Config: &oauth2.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{GoogleDriveScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   GoogleAuthorizeURL,
			TokenURL:  cc.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}}
}

func (a GoogleAuthorizer) Service() credentials.Service {
	return credentials.ServiceDrive
}

func (a GoogleAuthorizer) AuthCodeURL(state string) string {
	// offline access with forced consent so a refresh token is always issued
	return a.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a GoogleAuthorizer) Exchange(ctx context.Context, code, scope string) (*credentials.Credential, error) {
	tok, err := a.Config.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return credentials.CredentialFromToken(tok), nil
}

type AuthRoutes struct {
	Authorize     gin.HandlerFunc
	TokenExchange gin.HandlerFunc
}

// GetAuthRoutes builds the handlers of the one-time authorization server. The
// stored credential is sent on done once the exchange succeeds.
func GetAuthRoutes(authorizer Authorizer, persister credentials.Persister, state string, done chan<- *credentials.Credential) *AuthRoutes {
	return &AuthRoutes{
		Authorize:     getAuthorizeRoute(authorizer, state),
		TokenExchange: getTokenExchangeRoute(authorizer, persister, state, done),
	}
}

func ConfigureAuthRouter(routes *AuthRoutes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", routes.Authorize)
	router.GET(TokenExchangePath, routes.TokenExchange)

	return router
}

var getAuthorizeRoute = func(authorizer Authorizer, state string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, authorizer.AuthCodeURL(state))
	}
}

var getTokenExchangeRoute = func(authorizer Authorizer, persister credentials.Persister, state string, done chan<- *credentials.Credential) gin.HandlerFunc {
	return func(c *gin.Context) {
		if msg := c.Query(QueryParamError); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{
				ResponseError: fmt.Sprintf("authorization denied: %s", msg),
			})
			return
		}
		if c.Query(QueryParamState) != state {
			c.JSON(http.StatusBadRequest, gin.H{
				ResponseError: "state mismatch",
			})
			return
		}
		code := c.Query(QueryParamCode)
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				ResponseError: "missing code",
			})
			return
		}

		cred, err := authorizer.Exchange(c.Request.Context(), code, c.Query(QueryParamScope))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				ResponseError: err.Error(),
			})
			return
		}
		if err := persister.Save(cred); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				ResponseError: err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			ResponseStatus:  "authorized",
			ResponseService: authorizer.Service(),
		})

		select {
		case done <- cred:
		default:
		}
	}
}
