package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DevTokenParams describe the identity a minted development token carries.
// Tokens are unsigned and only accepted by the UnsignedTokenVerifier.
type DevTokenParams struct {
	Subject string
	Email   string
	Name    string
	TTL     time.Duration
}

// MintDevToken builds an unsigned JWT for local development and CI. The
// output is a standard three-segment token with an empty signature, so the
// same extractor that handles verified tokens can read it.
func MintDevToken(params DevTokenParams) (string, error) {
	if params.Subject == "" {
		return "", errors.New("subject is required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now().UTC()
	claims := map[string]interface{}{
		"sub":            params.Subject,
		"uid":            params.Subject,
		"email_verified": true,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
	}
	if params.Email != "" {
		claims["email"] = params.Email
	}
	if params.Name != "" {
		claims["name"] = params.Name
	}

	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + ".", nil
}
