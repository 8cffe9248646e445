package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	resty "github.com/go-resty/resty/v2"
)

type sdkImpl struct {
	client       *resty.Client
	apiRootURL   string
	clientID     string
	clientSecret string
}

const (
	// according to https://developers.strava.com/docs/
	MaxPaginatedResults = 200
	DefaultAPIRootURL   = "https://www.strava.com/api/v3/"
)

func (sdk sdkImpl) ExchangeAuthToken(ctx context.Context, request *TokenExchangeCode) (*AuthorizationCodeResponse, error) {
	res, err := sdk.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     sdk.clientID,
			"client_secret": sdk.clientSecret,
			"grant_type":    "authorization_code",
			"code":          request.Code,
		}).
		Post(sdk.apiRootURL + "oauth/token")

	if err != nil {
		return nil, err
	}

	authCodeResponse := &AuthorizationCodeResponse{}
	err = json.Unmarshal(res.Body(), authCodeResponse)
	return authCodeResponse, err
}

func (sdk sdkImpl) RefreshAuthToken(ctx context.Context, refreshToken string) (*StravaTokens, error) {
	res, err := sdk.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     sdk.clientID,
			"client_secret": sdk.clientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		Post(sdk.apiRootURL + "oauth/token")

	if err != nil {
		return nil, err
	}

	tokens := &StravaTokens{}
	err = json.Unmarshal(res.Body(), tokens)
	return tokens, err
}

// GetActivitiesByPage return the activities on a particular page, most recent
// first. No `after` filter is sent because Strava reverses the ordering when
// one is given.
func (sdk sdkImpl) GetActivitiesByPage(ctx context.Context, token string, page int, perPage int) ([]*ActivitySummary, error) {
	res, err := sdk.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}).
		Get(sdk.apiRootURL + "athlete/activities")

	if err != nil {
		return nil, err
	}

	objects, err := decodeObjects(res.Body())
	if err != nil {
		return nil, fmt.Errorf("decoding activities page %d: %w", page, err)
	}

	activities := make([]*ActivitySummary, 0, len(objects))
	for _, o := range objects {
		activities = append(activities, &ActivitySummary{Fields: o})
	}
	return activities, nil
}

// GetActivity return the detailed representation of an activity
func (sdk sdkImpl) GetActivity(ctx context.Context, token string, activityID int64) (*ActivityDetail, error) {
	url := fmt.Sprintf(sdk.apiRootURL+"activities/%d", activityID)
	res, err := sdk.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetQueryParam("include_all_efforts", "false").
		Get(url)

	if err != nil {
		return nil, err
	}

	object, err := decodeObject(res.Body())
	if err != nil {
		return nil, fmt.Errorf("decoding activity %d: %w", activityID, err)
	}
	return &ActivityDetail{Fields: object}, nil
}
