package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPValidatorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appId"); got != "42" {
			t.Errorf("appId query = %q, want 42", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want verbatim bearer", got)
		}
		_ = json.NewEncoder(w).Encode(AuthToken{
			Platform: "web", Profile: "prod", Roles: []string{"user"}, IsSuperUser: true,
		})
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL+"/validate?appId=%s", time.Second)
	token, err := v.Validate(context.Background(), "42", "Bearer tok")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if token.Platform != "web" || token.Profile != "prod" || !token.IsSuperUser {
		t.Fatalf("token = %+v", token)
	}
}

func TestHTTPValidatorNon200(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		v := NewHTTPValidator(srv.URL+"?appId=%s", time.Second)
		if _, err := v.Validate(context.Background(), "42", "Bearer tok"); err == nil {
			t.Errorf("status %d should fail validation", status)
		}
		srv.Close()
	}
}

func TestSignAndParseIdentity(t *testing.T) {
	token := &AuthToken{
		Platform:    "mobile",
		Profile:     "prod",
		Roles:       []string{"reader", "writer"},
		Permissions: []string{"orders:read"},
	}
	signed, err := SignIdentity(token, "42", "sign-test-secret", time.Minute)
	if err != nil {
		t.Fatalf("SignIdentity: %v", err)
	}

	got, err := ParseIdentity(signed, "sign-test-secret")
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if got.Platform != "mobile" || len(got.Roles) != 2 || got.Permissions[0] != "orders:read" {
		t.Fatalf("round trip = %+v", got)
	}

	if _, err := ParseIdentity(signed, "wrong-secret"); err == nil {
		t.Fatal("wrong secret should fail verification")
	}
}
