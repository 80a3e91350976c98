package harvester

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmailFromProfile(t *testing.T) {
	serve := func(t *testing.T, body string) *httptest.Server {
		t.Helper()

		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
	}

	t.Run("plain address anywhere in the page", func(t *testing.T) {
		server := serve(t, `<html><body><p>Reach me at Jane.Doe@cs.example.edu or in room 314.</p></body></html>`)
		defer server.Close()

		h := newTestHarvester(t, nil)

		email, err := h.EmailFromProfile(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}

		if email != "jane.doe@cs.example.edu" {
			t.Errorf("email: got %q", email)
		}
	})

	t.Run("compact obfuscation", func(t *testing.T) {
		server := serve(t, `<html><body><span>jane.doe[at]cs.example[dot]edu</span></body></html>`)
		defer server.Close()

		h := newTestHarvester(t, nil)

		email, err := h.EmailFromProfile(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}

		if email != "jane.doe@cs.example.edu" {
			t.Errorf("email: got %q", email)
		}
	})

	t.Run("entity-encoded mailto falls back to the link scan", func(t *testing.T) {
		server := serve(t, `<html><body><a href="mailto:Jane&#64;cs.example.edu?subject=hi">contact</a></body></html>`)
		defer server.Close()

		h := newTestHarvester(t, nil)

		email, err := h.EmailFromProfile(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}

		if email != "jane@cs.example.edu" {
			t.Errorf("email: got %q", email)
		}
	})

	t.Run("no address", func(t *testing.T) {
		server := serve(t, `<html><body><p>Office hours by appointment.</p></body></html>`)
		defer server.Close()

		h := newTestHarvester(t, nil)

		email, err := h.EmailFromProfile(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}

		if email != "" {
			t.Errorf("email: got %q, want empty", email)
		}
	})

	t.Run("fetch failure surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(http.NotFound))
		defer server.Close()

		h := newTestHarvester(t, nil)

		if _, err := h.EmailFromProfile(context.Background(), server.URL); err == nil {
			t.Error("expected error")
		}
	})
}
