package routes

import (
	"bytes"
	"context"
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bibekaryal86/gateway-service/internal/config"
)

const testSecret = "unit-test-secret-key"

// encryptSecret mirrors what the environment service does to stored
// credential values before this package decrypts them.
func encryptSecret(t *testing.T, plain string) string {
	t.Helper()
	key := make([]byte, secretKeyLen)
	copy(key, testSecret)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("init cipher: %v", err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	data := append([]byte(plain), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += aes.BlockSize {
		block.Encrypt(out[off:off+aes.BlockSize], data[off:off+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(out)
}

func TestDecryptSecretRoundTrip(t *testing.T) {
	for _, plain := range []string{"p", "sixteen-byte-val", "a-much-longer-credential-value"} {
		enc := encryptSecret(t, plain)
		got, err := decryptSecret(enc, testSecret)
		if err != nil {
			t.Fatalf("decryptSecret(%q): %v", plain, err)
		}
		if got != plain {
			t.Fatalf("decryptSecret = %q, want %q", got, plain)
		}
	}
}

func TestDecryptSecretRejectsGarbage(t *testing.T) {
	if _, err := decryptSecret("not-base64!!!", testSecret); err == nil {
		t.Fatal("invalid base64 should fail")
	}
	if _, err := decryptSecret(base64.StdEncoding.EncodeToString([]byte("short")), testSecret); err == nil {
		t.Fatal("non-block-aligned ciphertext should fail")
	}
}

func envService(t *testing.T, details []envDetail) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "envuser" || pass != "envpass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(envDetailsResponse{EnvDetails: details})
	}))
}

func testEnvConfig(url string) config.EnvServiceConfig {
	return config.EnvServiceConfig{
		BaseURL:  url,
		Username: "envuser",
		Password: "envpass",
		Profile:  "prod",
	}
}

func TestFetchAssemblesSnapshot(t *testing.T) {
	srv := envService(t, []envDetail{
		{Name: "BASE_URLS_PROD", MapValue: map[string]string{"usersvc": "http://users:8080"}},
		{Name: "AUTH_EXCLUSIONS_ENDS_WITH", ListValue: []string{"/tests/ping"}},
		{Name: "BASIC_AUTH_BEGINS_WITH", ListValue: []string{"/reportsvc/export"}},
		{Name: "PROXY_HEADERS", ListValue: []string{"Content-Type"}},
		{Name: "AUTH_APPS", MapValue: map[string]string{
			"usersvc_usr": encryptSecret(t, "svc-user"),
			"usersvc_pwd": encryptSecret(t, "svc-pass"),
			"halfsvc_usr": encryptSecret(t, "orphan"),
		}},
		{Name: "BASE_URLS_DEV", MapValue: map[string]string{"usersvc": "http://dev:1"}},
	})
	defer srv.Close()

	f := NewFetcher(testEnvConfig(srv.URL), testSecret)
	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if url, ok := snap.TargetBaseURL("usersvc"); !ok || url != "http://users:8080" {
		t.Fatalf("profile-selected base URL = %q, %v", url, ok)
	}
	if !snap.IsAuthExcluded("/tests/ping") {
		t.Fatal("exclusion list not carried into snapshot")
	}
	if !snap.IsBasicAuthOnly("/reportsvc/export/q") {
		t.Fatal("basic-auth prefixes not carried into snapshot")
	}
	if !snap.ForwardsHeader("Content-Type") {
		t.Fatal("forwarded headers not carried into snapshot")
	}
	cred, ok := snap.Credentials("usersvc")
	if !ok || cred.Username != "svc-user" || cred.Password != "svc-pass" {
		t.Fatalf("decrypted credentials = %+v, %v", cred, ok)
	}
	if _, ok := snap.Credentials("halfsvc"); ok {
		t.Fatal("orphaned credential half should be dropped")
	}
}

func TestFetchFailsWithoutProfileBaseURLs(t *testing.T) {
	srv := envService(t, []envDetail{
		{Name: "BASE_URLS_DEV", MapValue: map[string]string{"usersvc": "http://dev:1"}},
	})
	defer srv.Close()

	f := NewFetcher(testEnvConfig(srv.URL), testSecret)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("missing profile base URLs should fail the fetch")
	}
}

func TestFetchBadCredentialsIsPermanent(t *testing.T) {
	srv := envService(t, nil)
	defer srv.Close()

	cfg := testEnvConfig(srv.URL)
	cfg.Password = "wrong"
	f := NewFetcher(cfg, testSecret)

	start := time.Now()
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("401 from env service should fail the fetch")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("401 should not be retried, took %v", elapsed)
	}
}

func TestFetchReportedErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(envDetailsResponse{ErrMsg: "store offline"})
	}))
	defer srv.Close()

	f := NewFetcher(testEnvConfig(srv.URL), testSecret)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("errMsg in the response body should fail the fetch")
	}
}

func snapshotVersionGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "gateway_route_snapshot_version" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("gateway_route_snapshot_version not registered")
	return 0
}

func TestRefreshUpdatesSnapshotVersionGauge(t *testing.T) {
	srv := envService(t, []envDetail{
		{Name: "BASE_URLS_PROD", MapValue: map[string]string{"usersvc": "http://users:8080"}},
	})
	defer srv.Close()

	store := NewStore()
	r := NewRefresher(NewFetcher(testEnvConfig(srv.URL), testSecret), store, time.Minute)

	for i := 0; i < 2; i++ {
		if err := r.RefreshNow(context.Background()); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		want := float64(store.Load().Version)
		if got := snapshotVersionGauge(t); got != want {
			t.Fatalf("gauge = %v, want %v after refresh %d", got, want, i)
		}
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			_ = json.NewEncoder(w).Encode(envDetailsResponse{ErrMsg: "store offline"})
			return
		}
		_ = json.NewEncoder(w).Encode(envDetailsResponse{EnvDetails: []envDetail{
			{Name: "BASE_URLS_PROD", MapValue: map[string]string{"usersvc": "http://users:8080"}},
		}})
	}))
	defer srv.Close()

	store := NewStore()
	r := NewRefresher(NewFetcher(testEnvConfig(srv.URL), testSecret), store, time.Minute)

	if err := r.RefreshNow(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	good := store.Load()

	healthy = false
	if err := r.RefreshNow(context.Background()); err == nil {
		t.Fatal("refresh against a failing env service should error")
	}
	if store.Load() != good {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}
