package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/familycal/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GoTrueClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoTrueClient(GoTrueConfig{
		BaseURL:    srv.URL,
		AnonKey:    "test-anon-key",
		HTTPClient: srv.Client(),
	})
}

func TestSignInWithOneTimeLink_Success(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	err := client.SignInWithOneTimeLink(context.Background(), "parent@example.com", OneTimeLinkOptions{
		RedirectTo:    "https://cal.example.com/auth/callback",
		AllowNewUsers: false,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/otp" {
		t.Errorf("path = %q, want /otp", gotPath)
	}
	if gotAPIKey != "test-anon-key" {
		t.Errorf("apikey = %q, want test-anon-key", gotAPIKey)
	}
	if gotBody["email"] != "parent@example.com" {
		t.Errorf("email = %v", gotBody["email"])
	}
	if gotBody["create_user"] != false {
		t.Errorf("create_user = %v, want false", gotBody["create_user"])
	}
}

func TestSignInWithOneTimeLink_ProviderError_SurfacesRawMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"msg":"Signups not allowed for otp"}`))
	})

	err := client.SignInWithOneTimeLink(context.Background(), "stranger@example.com", OneTimeLinkOptions{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Signups not allowed for otp") {
		t.Errorf("error should contain the provider's raw message, got %q", err.Error())
	}
}

func TestExchangeCodeForSession_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" || r.URL.Query().Get("grant_type") != "pkce" {
			t.Errorf("unexpected request: %s %s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"access_token": "at-123",
			"refresh_token": "rt-456",
			"expires_in": 3600,
			"user": {"id": "auth-user-1", "email": "parent@example.com"}
		}`))
	})

	sess, err := client.ExchangeCodeForSession(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess.AccessToken != "at-123" {
		t.Errorf("AccessToken = %q", sess.AccessToken)
	}
	if sess.RefreshToken != "rt-456" {
		t.Errorf("RefreshToken = %q", sess.RefreshToken)
	}
	if sess.UserID != "auth-user-1" {
		t.Errorf("UserID = %q", sess.UserID)
	}
	if sess.Email != "parent@example.com" {
		t.Errorf("Email = %q", sess.Email)
	}
	if sess.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be derived from expires_in")
	}
}

func TestExchangeCodeForSession_Rejected_ReturnsExchangeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	})

	_, err := client.ExchangeCodeForSession(context.Background(), "expired-code")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Category != "exchange" {
		t.Errorf("err = %v, want exchange category APIError", err)
	}
}

func TestVerifyOneTimeToken_Success(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("path = %q, want /verify", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{
			"access_token": "at-789",
			"refresh_token": "rt-789",
			"expires_at": 1900000000,
			"user": {"id": "auth-user-2", "email": "kid@example.com"}
		}`))
	})

	sess, err := client.VerifyOneTimeToken(context.Background(), "hash-abc", "magiclink")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotBody["token_hash"] != "hash-abc" || gotBody["type"] != "magiclink" {
		t.Errorf("body = %v", gotBody)
	}
	if sess.UserID != "auth-user-2" {
		t.Errorf("UserID = %q", sess.UserID)
	}
}

func TestGetValidatedUser_Success(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("path = %q, want /user", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id": "auth-user-1", "email": "parent@example.com"}`))
	})

	ident, err := client.GetValidatedUser(context.Background(), "at-123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotAuth != "Bearer at-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if ident.UserID != "auth-user-1" || ident.Email != "parent@example.com" {
		t.Errorf("identity = %+v", ident)
	}
}

func TestGetValidatedUser_InvalidToken_ReturnsAuthError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"msg":"invalid JWT"}`))
	})

	_, err := client.GetValidatedUser(context.Background(), "corrupt")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Category != "auth" {
		t.Errorf("err = %v, want auth category APIError", err)
	}
}

func TestSignOut_AlreadyInvalidToken_IsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if err := client.SignOut(context.Background(), "stale"); err != nil {
		t.Errorf("sign-out of an already invalid token should succeed, got %v", err)
	}
}

