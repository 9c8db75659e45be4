package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// okHandler answers 200 "ok".
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
})

func callWithKey(t *testing.T, mw func(http.Handler) http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/results", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rr, req)
	return rr
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		key        string
		sendHeader string
		sendKey    string
		want       int
		wantBody   string
	}{
		{"mode none passes through", "none", "secret", "X-API-Key", "", http.StatusOK, "ok"},
		{"empty key passes through", "apikey", "", "X-API-Key", "", http.StatusOK, "ok"},
		{"correct key", "apikey", "secret", "X-API-Key", "secret", http.StatusOK, "ok"},
		{"header is case-insensitive", "apikey", "secret", "x-api-key", "secret", http.StatusOK, "ok"},
		{"wrong key", "apikey", "secret", "X-API-Key", "nope", http.StatusUnauthorized, "invalid api key"},
		{"missing header", "apikey", "secret", "X-API-Key", "", http.StatusUnauthorized, "missing api key"},
		{"key in another header", "apikey", "secret", "X-Other", "secret", http.StatusUnauthorized, "missing api key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := callWithKey(t, APIKey(tc.mode, "X-API-Key", tc.key), tc.sendHeader, tc.sendKey)
			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
			if !strings.Contains(rr.Body.String(), tc.wantBody) {
				t.Errorf("body: got %q, want it to contain %q", rr.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	mw := APIKey("apikey", "X-Thermocert-Key", "k")
	if rr := callWithKey(t, mw, "X-Thermocert-Key", "k"); rr.Code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", rr.Code)
	}
	if rr := callWithKey(t, mw, "X-API-Key", "k"); rr.Code != http.StatusUnauthorized {
		t.Errorf("default header with custom config: got %d, want 401", rr.Code)
	}
}
