package token

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Standard token response fields. Everything else a provider returns is
// carried as an additional parameter.
const (
	FieldAccessToken  = "access_token"
	FieldTokenType    = "token_type"
	FieldExpiresIn    = "expires_in"
	FieldRefreshToken = "refresh_token"
	FieldIDToken      = "id_token"
	FieldScope        = "scope"
)

var standardFields = map[string]struct{}{
	FieldAccessToken:  {},
	FieldTokenType:    {},
	FieldExpiresIn:    {},
	FieldRefreshToken: {},
	FieldIDToken:      {},
	FieldScope:        {},
}

// IsStandardField reports whether name is one of the fields a token response
// defines (RFC 6749 section 5.1 plus id_token).
func IsStandardField(name string) bool {
	_, ok := standardFields[name]
	return ok
}

// Response is a raw successful token endpoint response.
type Response struct {
	// AccessToken, RefreshToken and IDToken are nil when the provider omitted them.
	AccessToken  *string
	RefreshToken *string
	IDToken      *string

	// TokenType is usually "Bearer".
	TokenType string

	// Scope is the granted scope, if the provider reported it.
	Scope string

	// AccessTokenExpirationTime is the absolute expiry in Unix milliseconds,
	// computed from expires_in at receipt. Nil when expires_in was absent.
	AccessTokenExpirationTime *int64

	// AdditionalParameters holds every non-standard field, undecoded.
	AdditionalParameters map[string]json.RawMessage
}

// ParseResponse decodes a token endpoint body. receivedAt anchors the
// relative expires_in to an absolute expiry.
func ParseResponse(body []byte, receivedAt time.Time) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to decode token response: not a JSON object")
	}

	resp := &Response{
		AdditionalParameters: make(map[string]json.RawMessage),
	}

	var err error
	if resp.AccessToken, err = optionalString(fields, FieldAccessToken); err != nil {
		return nil, err
	}
	if resp.RefreshToken, err = optionalString(fields, FieldRefreshToken); err != nil {
		return nil, err
	}
	if resp.IDToken, err = optionalString(fields, FieldIDToken); err != nil {
		return nil, err
	}

	if tokenType, err := optionalString(fields, FieldTokenType); err != nil {
		return nil, err
	} else if tokenType != nil {
		resp.TokenType = *tokenType
	}
	if scope, err := optionalString(fields, FieldScope); err != nil {
		return nil, err
	} else if scope != nil {
		resp.Scope = *scope
	}

	if raw, ok := fields[FieldExpiresIn]; ok && !isNull(raw) {
		seconds, err := parseExpiresIn(raw)
		if err != nil {
			return nil, err
		}
		expiry := receivedAt.Add(time.Duration(seconds) * time.Second).UnixMilli()
		resp.AccessTokenExpirationTime = &expiry
	}

	for name, value := range fields {
		if !IsStandardField(name) {
			resp.AdditionalParameters[name] = value
		}
	}

	return resp, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (*string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("token response field %s is not a string: %w", name, err)
	}
	return &s, nil
}

// parseExpiresIn accepts a JSON number or a numeric string. Some providers
// send the latter.
func parseExpiresIn(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("token response field expires_in is not a number: %w", err)
		}
		n = json.Number(s)
	}

	if seconds, err := n.Int64(); err == nil {
		return seconds, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("token response field expires_in is not a number: %w", err)
	}
	return int64(f), nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
