package kis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrTokenMissing is returned when the token endpoint answers without an
// access token.
var ErrTokenMissing = errors.New("kis: token response has no access_token")

// APIError represents a non-success HTTP response from the provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kis API error: status %d on %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// ResultError represents a provider-level failure (rt_cd != "0") inside a
// 200 response.
type ResultError struct {
	Code    string
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("kis result error rt_cd=%s: %s", e.Code, e.Message)
}

// tokenRequest is the credential-exchange payload.
type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

// tokenResponse is the credential-exchange reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// flexNumber accepts a numeric JSON field that the provider encodes as a
// string. Missing or malformed values coerce to zero instead of failing the
// whole segment.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = flexNumber(s)
		return nil
	}
	// Bare numbers pass through as their literal text.
	*n = flexNumber(data)
	return nil
}

// Float64 parses the value, defaulting to 0.
func (n flexNumber) Float64() float64 {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return v
}

// Int64 parses the value, defaulting to 0.
func (n flexNumber) Int64() int64 {
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// dailyBarRow is one provider bar in its native encoding.
type dailyBarRow struct {
	Date   string     `json:"stck_bsop_date"` // YYYYMMDD
	Open   flexNumber `json:"stck_oprc"`
	High   flexNumber `json:"stck_hgpr"`
	Low    flexNumber `json:"stck_lwpr"`
	Close  flexNumber `json:"stck_clpr"`
	Volume flexNumber `json:"acml_vol"`
}

// dailyBarResponse is the daily bar query reply.
type dailyBarResponse struct {
	ResultCode string        `json:"rt_cd"`
	Message    string        `json:"msg1"`
	Output2    []dailyBarRow `json:"output2"`
}
