package token

import (
	"bytes"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// ExpirationLayout formats access token expiry dates (yyyy-MM-dd'T'HH:mm:ssZ).
// Dates are always rendered in UTC, so the zone is +0000.
const ExpirationLayout = "2006-01-02T15:04:05-0700"

// Result is the normalized outcome of a successful authorization or refresh.
type Result struct {
	AccessToken *string `json:"accessToken"`

	// AccessTokenExpirationDate is formatted with ExpirationLayout, or empty
	// when the provider reported no lifetime.
	AccessTokenExpirationDate string `json:"accessTokenExpirationDate"`

	// AdditionalParameters holds the non-standard response fields as strings.
	// It is never nil.
	AdditionalParameters map[string]string `json:"additionalParameters"`

	IDToken      *string `json:"idToken"`
	RefreshToken *string `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`

	expiry time.Time
}

// Expiry returns the access token expiry, or the zero time when unknown.
func (r *Result) Expiry() time.Time {
	return r.expiry
}

// OAuth2Token converts the result into an *oauth2.Token, e.g. to build a
// TokenSource. The ID token and additional parameters are available through
// Token.Extra.
func (r *Result) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: deref(r.AccessToken),
		TokenType:   r.TokenType,
		Expiry:      r.expiry,
	}
	if r.RefreshToken != nil {
		tok.RefreshToken = *r.RefreshToken
	}

	extra := make(map[string]any, len(r.AdditionalParameters)+1)
	for k, v := range r.AdditionalParameters {
		extra[k] = v
	}
	if r.IDToken != nil {
		extra[FieldIDToken] = *r.IDToken
	}
	return tok.WithExtra(extra)
}

// Normalize converts a raw token response into a Result. It is pure.
func Normalize(raw *Response) *Result {
	res := &Result{AdditionalParameters: map[string]string{}}
	if raw == nil {
		return res
	}

	res.AccessToken = raw.AccessToken
	res.IDToken = raw.IDToken
	res.RefreshToken = raw.RefreshToken
	res.TokenType = raw.TokenType

	if raw.AccessTokenExpirationTime != nil {
		res.expiry = time.UnixMilli(*raw.AccessTokenExpirationTime).UTC()
		res.AccessTokenExpirationDate = FormatExpiration(res.expiry)
	}

	for name, value := range raw.AdditionalParameters {
		res.AdditionalParameters[name] = flatten(value)
	}

	return res
}

// FormatExpiration renders t in UTC with ExpirationLayout.
func FormatExpiration(t time.Time) string {
	return t.UTC().Format(ExpirationLayout)
}

// flatten renders a JSON value as a string: strings are unquoted, anything
// else becomes its compact JSON text.
func flatten(raw json.RawMessage) string {
	if isNull(raw) {
		return "null"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
