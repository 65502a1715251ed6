//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestProbes(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(strings.TrimPrefix(path, "/"), func(t *testing.T) {
			resp := doGet(t, path)
			defer resp.Body.Close()
			expectStatus(t, resp, http.StatusOK)

			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type: got %q", ct)
			}
			body := decodeJSON[healthResponse](t, resp)
			if body.Status != "ok" {
				t.Fatalf("status: got %q, want ok (failing: %v)", body.Status, body.Checks)
			}
			if len(body.Checks) != 0 {
				t.Errorf("healthy probe reported failures: %v", body.Checks)
			}
		})
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	resp := doGet(t, "/api/nowhere")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	if body := decodeJSON[errorResponse](t, resp); body.ErrorCode != "NotFound" {
		t.Errorf("errorCode: got %q, want NotFound", body.ErrorCode)
	}
}
