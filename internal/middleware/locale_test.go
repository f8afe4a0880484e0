package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveLocale(t *testing.T) {
	tests := []struct {
		name    string
		xLocale string
		accept  string
		want    string
	}{
		{"explicit header wins", "id", "en-US", "id"},
		{"explicit header normalized", "id-ID", "", "id"},
		{"accept language match", "", "id-ID,id;q=0.9,en;q=0.5", "id"},
		{"accept language fallback to english", "", "fr-FR,fr;q=0.9", "en"},
		{"regional english", "", "en-GB", "en"},
		{"nothing set uses default", "", "", "en"},
		{"garbage header", "!!", "", "en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.xLocale != "" {
				req.Header.Set("X-Locale", tc.xLocale)
			}
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			if got := resolveLocale(req, "en"); got != tc.want {
				t.Fatalf("resolveLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserContextRejectsAnonymous(t *testing.T) {
	var seen string
	handler := UserContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "user-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("identified request = %d, want 200", rec.Code)
	}
	if seen != "user-42" {
		t.Fatalf("user id in context = %q, want user-42", seen)
	}
}
