package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Validator checks a bearer token with the auth service and returns
// the identity it proves.
type Validator interface {
	Validate(ctx context.Context, appID, bearer string) (*AuthToken, error)
}

// HTTPValidator calls the auth service's token validation endpoint.
type HTTPValidator struct {
	// urlFormat has one %s verb for the app id.
	urlFormat string
	client    *http.Client
}

// NewHTTPValidator builds a validator for the given endpoint format.
func NewHTTPValidator(urlFormat string, timeout time.Duration) *HTTPValidator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPValidator{
		urlFormat: urlFormat,
		client:    &http.Client{Timeout: timeout},
	}
}

// Validate forwards the client's Authorization header verbatim and
// treats any non-200 answer as an invalid token.
func (v *HTTPValidator) Validate(ctx context.Context, appID, bearer string) (*AuthToken, error) {
	url := fmt.Sprintf(v.urlFormat, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Accept", "application/json")

	res, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call auth service: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth service returned status %d", res.StatusCode)
	}

	var token AuthToken
	if err := json.NewDecoder(res.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode auth token: %w", err)
	}
	return &token, nil
}
