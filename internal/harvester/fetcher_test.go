package harvester

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
)

const testUserAgent = "Mozilla/5.0 (test)"

func TestSessionGet(t *testing.T) {
	t.Run("sends browser headers", func(t *testing.T) {
		var gotHeader http.Header

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Clone()

			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer server.Close()

		session := NewSession(SessionConfig{UserAgent: testUserAgent})

		if _, err := session.Get(context.Background(), server.URL); err != nil {
			t.Fatalf("get: %v", err)
		}

		if got := gotHeader.Get(headerUserAgent); got != testUserAgent {
			t.Errorf("user agent: got %q, want %q", got, testUserAgent)
		}

		if got := gotHeader.Get(headerAccept); got != acceptHTML {
			t.Errorf("accept: got %q, want %q", got, acceptHTML)
		}

		if got := gotHeader.Get(headerAcceptLanguage); got != acceptLanguageEN {
			t.Errorf("accept-language: got %q, want %q", got, acceptLanguageEN)
		}
	})

	t.Run("maps status 429 to the rate limit sentinel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		session := NewSession(SessionConfig{})

		_, err := session.Get(context.Background(), server.URL)
		if !errors.Is(err, corerrors.ErrRateLimited) {
			t.Errorf("got %v, want %v", err, corerrors.ErrRateLimited)
		}
	})

	t.Run("rejects other statuses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		session := NewSession(SessionConfig{})

		_, err := session.Get(context.Background(), server.URL)
		if !errors.Is(err, errHTTPStatus) {
			t.Errorf("got %v, want %v", err, errHTTPStatus)
		}
	})

	t.Run("decodes legacy charsets", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(headerContentType, "text/html; charset=windows-1251")

			// "Привет" in windows-1251.
			_, _ = w.Write([]byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2})
		}))
		defer server.Close()

		session := NewSession(SessionConfig{})

		body, err := session.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		if body != "Привет" {
			t.Errorf("body: got %q, want %q", body, "Привет")
		}
	})

	t.Run("keeps cookies across requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/set" {
				http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})

				_, _ = w.Write([]byte("ok"))

				return
			}

			if _, err := r.Cookie("sid"); err != nil {
				_, _ = w.Write([]byte("no-cookie"))
				return
			}

			_, _ = w.Write([]byte("have-cookie"))
		}))
		defer server.Close()

		session := NewSession(SessionConfig{})

		if _, err := session.Get(context.Background(), server.URL+"/set"); err != nil {
			t.Fatalf("first get: %v", err)
		}

		body, err := session.Get(context.Background(), server.URL+"/check")
		if err != nil {
			t.Fatalf("second get: %v", err)
		}

		if body != "have-cookie" {
			t.Errorf("body: got %q, want %q", body, "have-cookie")
		}
	})
}

func TestSessionPostForm(t *testing.T) {
	t.Run("sends the encoded form and merged headers", func(t *testing.T) {
		var (
			gotHeader http.Header
			gotValue  string
		)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Clone()
			gotValue = r.PostFormValue("view_name")

			w.Header().Set(headerContentType, "application/json")
			_, _ = w.Write([]byte("[]"))
		}))
		defer server.Close()

		session := NewSession(SessionConfig{UserAgent: testUserAgent})

		extra := make(http.Header)
		extra.Set(headerAccept, "application/json")
		extra.Set("X-Requested-With", "XMLHttpRequest")

		form := url.Values{}
		form.Set("view_name", "directory")

		body, contentType, err := session.PostForm(context.Background(), server.URL, form, extra)
		if err != nil {
			t.Fatalf("post: %v", err)
		}

		if body != "[]" || !isJSONContentType(contentType) {
			t.Errorf("got body %q content type %q", body, contentType)
		}

		if gotValue != "directory" {
			t.Errorf("form value: got %q, want %q", gotValue, "directory")
		}

		// The extra Accept must override the session default.
		if got := gotHeader.Get(headerAccept); got != "application/json" {
			t.Errorf("accept: got %q, want %q", got, "application/json")
		}

		if got := gotHeader.Get("X-Requested-With"); got != "XMLHttpRequest" {
			t.Errorf("x-requested-with: got %q", got)
		}

		if got := gotHeader.Get(headerUserAgent); got != testUserAgent {
			t.Errorf("user agent: got %q, want %q", got, testUserAgent)
		}
	})

	t.Run("returns the content type on status errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(headerContentType, "text/html; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		session := NewSession(SessionConfig{})

		_, contentType, err := session.PostForm(context.Background(), server.URL, url.Values{}, nil)
		if err == nil {
			t.Fatal("expected error")
		}

		if contentType != "text/html; charset=utf-8" {
			t.Errorf("content type: got %q", contentType)
		}
	})
}

func TestIsJSONContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"APPLICATION/JSON", true},
		{"text/html", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isJSONContentType(tt.contentType); got != tt.want {
			t.Errorf("isJSONContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
