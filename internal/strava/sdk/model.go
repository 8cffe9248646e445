package sdk

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type AuthorizationCodeResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	Scope        string `json:"scope,omitempty"`
	Athlete      struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
	} `json:"athlete"`
}

func (acr AuthorizationCodeResponse) Tokens() *StravaTokens {
	return &StravaTokens{
		TokenType:    acr.TokenType,
		AccessToken:  acr.AccessToken,
		ExpiresAt:    acr.ExpiresAt,
		ExpiresIn:    acr.ExpiresIn,
		RefreshToken: acr.RefreshToken,
	}
}

type StravaTokens struct {
	TokenType    string `json:"token_type,omitempty"`
	AccessToken  string `json:"access_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

type TokenExchangeCode struct {
	Code string
}

// ActivitySummary is one entry of the paginated activity listing, kept as the
// raw decoded object so unknown or malformed fields survive until
// normalization.
type ActivitySummary struct {
	Fields map[string]interface{}
}

// ActivityDetail is the full per-activity payload including splits and laps.
type ActivityDetail struct {
	Fields map[string]interface{}
}

// ID returns the activity id, or 0 when the field is missing or unusable.
func (a *ActivitySummary) ID() int64 {
	if a == nil {
		return 0
	}
	return rawID(a.Fields["id"])
}

// StartDate returns the parsed start_date. ok is false when it is missing or
// cannot be parsed.
func (a *ActivitySummary) StartDate() (time.Time, bool) {
	if a == nil {
		return time.Time{}, false
	}
	s, isString := a.Fields["start_date"].(string)
	if !isString {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (a *ActivityDetail) ID() int64 {
	if a == nil {
		return 0
	}
	return rawID(a.Fields["id"])
}

func rawID(v interface{}) int64 {
	switch id := v.(type) {
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return n
		}
	case float64:
		if id == float64(int64(id)) {
			return int64(id)
		}
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func decodeObjects(body []byte) ([]map[string]interface{}, error) {
	var objects []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	var object map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&object); err != nil {
		return nil, err
	}
	return object, nil
}
