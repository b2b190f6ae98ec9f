package controlserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenAuthenticatorDisabledWhenNoToken(t *testing.T) {
	auth, err := newTokenAuthenticator("")
	if err != nil {
		t.Fatalf("newTokenAuthenticator: %v", err)
	}
	if auth.enabled() {
		t.Fatal("expected authenticator to be disabled with no configured token")
	}
	if !auth.verify("anything") {
		t.Fatal("expected verify to pass through when disabled")
	}
}

func TestTokenAuthenticatorAcceptsCorrectToken(t *testing.T) {
	auth, err := newTokenAuthenticator("s3cr3t")
	if err != nil {
		t.Fatalf("newTokenAuthenticator: %v", err)
	}
	if !auth.enabled() {
		t.Fatal("expected authenticator to be enabled")
	}
	if !auth.verify("s3cr3t") {
		t.Fatal("expected correct token to verify")
	}
	if auth.verify("wrong") {
		t.Fatal("expected incorrect token to be rejected")
	}
}

func TestHashTokenNeverStoresPlaintext(t *testing.T) {
	encoded, err := hashToken("s3cr3t")
	if err != nil {
		t.Fatalf("hashToken: %v", err)
	}
	if encoded == "s3cr3t" {
		t.Fatal("expected hashed token to differ from plaintext")
	}
	if err := verifyToken(encoded, "s3cr3t"); err != nil {
		t.Fatalf("verifyToken: %v", err)
	}
	if err := verifyToken(encoded, "nope"); err == nil {
		t.Fatal("expected verifyToken to reject a wrong candidate")
	}
}

func TestRequireAuthRejectsMissingAndWrongBearer(t *testing.T) {
	auth, err := newTokenAuthenticator("s3cr3t")
	if err != nil {
		t.Fatalf("newTokenAuthenticator: %v", err)
	}
	handler := auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no bearer header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong bearer token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct bearer token, got %d", rec.Code)
	}
}
