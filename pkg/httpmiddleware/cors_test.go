package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantMethods string
		wantCreds   string
	}{
		{
			name:       "any origin simple request",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://shop.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:        "preflight allowed origin",
			cfg:         CORSConfig{AllowOrigins: []string{"https://Shop.example"}, MaxAge: 600},
			method:      http.MethodOptions,
			origin:      "https://shop.example",
			preflight:   true,
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "https://Shop.example",
			wantMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		},
		{
			name:       "preflight disallowed origin",
			cfg:        CORSConfig{AllowOrigins: []string{"https://shop.example"}},
			method:     http.MethodOptions,
			origin:     "https://evil.example",
			preflight:  true,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "credentials echo origin",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodPost,
			origin:     "https://shop.example",
			wantStatus: http.StatusOK,
			wantOrigin: "https://shop.example",
			wantCreds:  "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/orders", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
