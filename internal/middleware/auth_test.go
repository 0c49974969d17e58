package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func echoIdentity() (http.Handler, *string) {
	var seen string
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, _ := UsernameFromContext(r.Context())
		seen = name
	}))
	return h, &seen
}

func TestIdentity_BearerHeader(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")

	token, err := IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	h, seen := echoIdentity()
	req := httptest.NewRequest("POST", "/follow", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || *seen != "alice" {
		t.Fatalf("code=%d seen=%q", rec.Code, *seen)
	}
}

// Websocket dials cannot set headers from the browser, so the token may ride
// in the query string.
func TestIdentity_QueryToken(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")

	token, err := IssueToken("bob")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	h, seen := echoIdentity()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/timeline?token="+token, nil))

	if rec.Code != http.StatusOK || *seen != "bob" {
		t.Fatalf("code=%d seen=%q", rec.Code, *seen)
	}
}

func TestIdentity_Rejections(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")

	h, _ := echoIdentity()

	cases := map[string]func(*http.Request){
		"missing credentials": func(r *http.Request) {},
		"malformed header":    func(r *http.Request) { r.Header.Set("Authorization", "Token abc") },
		"garbage token":       func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") },
	}
	for name, prep := range cases {
		req := httptest.NewRequest("POST", "/follow", nil)
		prep(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestIdentity_WrongSecret(t *testing.T) {
	os.Setenv("JWT_SECRET", "other-secret")
	token, err := IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	os.Setenv("JWT_SECRET", "test-secret")

	h, _ := echoIdentity()
	req := httptest.NewRequest("POST", "/follow", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mis-signed token, got %d", rec.Code)
	}
}
