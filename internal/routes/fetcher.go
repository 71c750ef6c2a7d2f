package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/bibekaryal86/gateway-service/internal/config"
	"github.com/bibekaryal86/gateway-service/internal/logging"
)

// Environment-service property names. BASE_URLS is suffixed with the
// deployment profile so one environment service can serve multiple
// deployments.
const (
	propAuthExclusions = "AUTH_EXCLUSIONS_ENDS_WITH"
	propBasicAuth      = "BASIC_AUTH_BEGINS_WITH"
	propBaseURLs       = "BASE_URLS"
	propAuthApps       = "AUTH_APPS"
	propProxyHeaders   = "PROXY_HEADERS"

	credUserSuffix = "_usr"
	credPassSuffix = "_pwd"
)

type envDetail struct {
	Name      string            `json:"name"`
	ListValue []string          `json:"listValue"`
	MapValue  map[string]string `json:"mapValue"`
}

type envDetailsResponse struct {
	ErrMsg     string      `json:"errMsg"`
	EnvDetails []envDetail `json:"envDetails"`
}

// Fetcher pulls routing and auth configuration from the environment
// service and assembles it into snapshots.
type Fetcher struct {
	cfg    config.EnvServiceConfig
	secret string
	client *http.Client
}

// NewFetcher creates a fetcher. secretKey decrypts stored credential
// values from the AUTH_APPS property.
func NewFetcher(cfg config.EnvServiceConfig, secretKey string) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		secret: secretKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch retrieves the current configuration, retrying transient
// failures with exponential backoff until ctx is cancelled or the
// retry budget is spent.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	policy := backoff.WithContext(newRetryPolicy(), ctx)

	var resp envDetailsResponse
	operation := func() error {
		var err error
		resp, err = f.fetchOnce(ctx)
		return err
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("fetch env details: %w", err)
	}
	return f.assemble(resp.EnvDetails)
}

func newRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second
	return policy
}

func (f *Fetcher) fetchOnce(ctx context.Context) (envDetailsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL, nil)
	if err != nil {
		return envDetailsResponse{}, backoff.Permanent(err)
	}
	req.SetBasicAuth(f.cfg.Username, f.cfg.Password)
	req.Header.Set("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return envDetailsResponse{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("env service returned status %d", res.StatusCode)
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return envDetailsResponse{}, backoff.Permanent(err)
		}
		return envDetailsResponse{}, err
	}

	var resp envDetailsResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return envDetailsResponse{}, fmt.Errorf("decode env details: %w", err)
	}
	if resp.ErrMsg != "" {
		return envDetailsResponse{}, backoff.Permanent(fmt.Errorf("env service error: %s", resp.ErrMsg))
	}
	return resp, nil
}

func (f *Fetcher) assemble(details []envDetail) (*Snapshot, error) {
	var (
		routeTable    map[string]string
		exclusions    []string
		basicPrefixes []string
		proxyHeaders  []string
		credentials   = make(map[string]Credential)
	)

	baseURLsName := propBaseURLs + "_" + strings.ToUpper(f.cfg.Profile)
	for _, d := range details {
		switch d.Name {
		case baseURLsName:
			routeTable = d.MapValue
		case propAuthExclusions:
			exclusions = d.ListValue
		case propBasicAuth:
			basicPrefixes = d.ListValue
		case propProxyHeaders:
			proxyHeaders = d.ListValue
		case propAuthApps:
			if err := f.decodeCredentials(d.MapValue, credentials); err != nil {
				return nil, err
			}
		}
	}

	if len(routeTable) == 0 {
		return nil, fmt.Errorf("env details missing %s", baseURLsName)
	}

	snap := NewSnapshot(routeTable, exclusions, basicPrefixes, credentials, proxyHeaders)
	logging.Info("assembled route snapshot",
		zap.Int("routes", snap.RouteCount()),
		zap.Int("credentials", len(credentials)),
		zap.Int("authExclusions", len(exclusions)))
	return snap, nil
}

// decodeCredentials pairs up `<name>_usr` / `<name>_pwd` keys and
// decrypts their values. A name with only one half of the pair is
// dropped; its route will answer 511 until the store is fixed.
func (f *Fetcher) decodeCredentials(raw map[string]string, out map[string]Credential) error {
	for key, enc := range raw {
		var name string
		var isUser bool
		switch {
		case strings.HasSuffix(key, credUserSuffix):
			name, isUser = strings.TrimSuffix(key, credUserSuffix), true
		case strings.HasSuffix(key, credPassSuffix):
			name = strings.TrimSuffix(key, credPassSuffix)
		default:
			logging.Warn("unrecognized credential key", zap.String("key", key))
			continue
		}

		plain, err := decryptSecret(enc, f.secret)
		if err != nil {
			return fmt.Errorf("decrypt credential %s: %w", key, err)
		}

		cred := out[name]
		if isUser {
			cred.Username = plain
		} else {
			cred.Password = plain
		}
		out[name] = cred
	}

	for name, cred := range out {
		if cred.Username == "" || cred.Password == "" {
			logging.Warn("incomplete credential pair", zap.String("route", name))
			delete(out, name)
		}
	}
	return nil
}
