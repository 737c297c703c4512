package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseStaticTokens(t *testing.T) {
	v, err := ParseStaticTokens("tok-farmer:farmer-1, tok-admin:ops:admin,,")
	if err != nil {
		t.Fatalf("ParseStaticTokens() error = %v", err)
	}
	if v.Len() != 2 {
		t.Fatalf("Len() = %d", v.Len())
	}

	id, err := v.Verify(context.Background(), "tok-admin")
	if err != nil || id.UserID != "ops" || !id.IsAdmin() {
		t.Fatalf("Verify(admin) = %+v, %v", id, err)
	}
	id, err = v.Verify(context.Background(), "tok-farmer")
	if err != nil || id.UserID != "farmer-1" || id.IsAdmin() {
		t.Fatalf("Verify(farmer) = %+v, %v", id, err)
	}
	if _, err := v.Verify(context.Background(), "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify(unknown) error = %v", err)
	}
}

func TestParseStaticTokensRejectsBadEntries(t *testing.T) {
	tooLong := "tok:" + strings.Repeat("u", 129)
	for _, list := range []string{"justatoken", "tok:user:root", ":user", "a:b:c:d", tooLong} {
		if _, err := ParseStaticTokens(list); err == nil {
			t.Errorf("ParseStaticTokens(%q) expected error", list)
		}
	}
}

func TestMiddleware(t *testing.T) {
	v, _ := ParseStaticTokens("good:farmer-7")
	var seen Identity
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/history/chat", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history/chat", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen.UserID != "farmer-7" {
		t.Fatalf("status = %d, identity = %+v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history/chat", nil)
	req.Header.Set("X-API-Key", "bad")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
}

func TestMiddlewareOpenModeAndRequireAdmin(t *testing.T) {
	h := Middleware(nil)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous admin status = %d", rec.Code)
	}

	v, _ := ParseStaticTokens("root-token:ops:admin")
	h = Middleware(v)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer root-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
}
