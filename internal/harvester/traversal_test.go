package harvester

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func alphabetIndexHTML(count int) string {
	var b strings.Builder

	b.WriteString(`<div class="az-index">`)

	for i := 0; i < count; i++ {
		letter := rune('A' + i)
		fmt.Fprintf(&b, `<a href="/people?letter=%c">%c</a> `, letter, letter)
	}

	b.WriteString(`</div>`)

	return b.String()
}

func TestDiscoverTraversalTargets(t *testing.T) {
	base := mustParseURL(t, testBaseURL)

	t.Run("alphabet index", func(t *testing.T) {
		targets := discoverTraversalTargets(mustParseHTML(t, alphabetIndexHTML(26)), base)

		if len(targets) != 26 {
			t.Fatalf("target count: got %d, want 26", len(targets))
		}

		if targets[0] != testBaseURL+"?letter=A" || targets[25] != testBaseURL+"?letter=Z" {
			t.Errorf("targets not sorted: %q ... %q", targets[0], targets[25])
		}
	})

	t.Run("too few letter links", func(t *testing.T) {
		if targets := discoverTraversalTargets(mustParseHTML(t, alphabetIndexHTML(5)), base); len(targets) != 0 {
			t.Errorf("target count: got %d, want 0", len(targets))
		}
	})

	t.Run("numeric pager", func(t *testing.T) {
		doc := mustParseHTML(t, `
			<ul class="pager">
				<li><a href="/people?page=1">2</a></li>
				<li><a href="/people?page=2">3</a></li>
				<li><a href="/people?page=1">Next</a></li>
				<li><a href="/people/all">View all people</a></li>
			</ul>`)

		targets := discoverTraversalTargets(doc, base)

		want := []string{testBaseURL + "?page=1", testBaseURL + "?page=2"}

		if len(targets) != len(want) {
			t.Fatalf("targets: got %v, want %v", targets, want)
		}

		for i := range want {
			if targets[i] != want[i] {
				t.Errorf("target %d: got %q, want %q", i, targets[i], want[i])
			}
		}
	})

	t.Run("scripted letter endpoint expands over the alphabet", func(t *testing.T) {
		doc := mustParseHTML(t, `<script>var src = "/api/people?letter=a";</script>`)

		targets := discoverTraversalTargets(doc, base)

		if len(targets) != 26 {
			t.Fatalf("target count: got %d, want 26", len(targets))
		}

		if targets[0] != "https://cs.example.edu/api/people?letter=A" {
			t.Errorf("first target: got %q", targets[0])
		}
	})

	t.Run("scripted api pager expands over the first pages", func(t *testing.T) {
		doc := mustParseHTML(t, `<script>fetch("/api/directory?page=1&size=50");</script>`)

		targets := discoverTraversalTargets(doc, base)

		if len(targets) != maxScriptedAPIPages {
			t.Fatalf("target count: got %d, want %d", len(targets), maxScriptedAPIPages)
		}

		for i, target := range targets {
			want := fmt.Sprintf("https://cs.example.edu/api/directory?page=%d&size=50", i+1)
			if target != want {
				t.Errorf("target %d: got %q, want %q", i, target, want)
			}
		}
	})

	t.Run("caps the target list", func(t *testing.T) {
		var b strings.Builder

		b.WriteString(`<ul class="pagination">`)

		for i := 1; i <= 60; i++ {
			fmt.Fprintf(&b, `<li><a href="/people?page=%d">%d</a></li>`, i, i)
		}

		b.WriteString(`</ul>`)

		if targets := discoverTraversalTargets(mustParseHTML(t, b.String()), base); len(targets) != maxTraversalTargets {
			t.Errorf("target count: got %d, want %d", len(targets), maxTraversalTargets)
		}
	})

	t.Run("excludes the directory itself", func(t *testing.T) {
		doc := mustParseHTML(t, `
			<div class="pager">
				<a href="/people">1</a>
				<a href="/people?page=2">2</a>
			</div>`)

		targets := discoverTraversalTargets(doc, base)

		if len(targets) != 1 || targets[0] != testBaseURL+"?page=2" {
			t.Errorf("targets: got %v", targets)
		}
	})
}

func TestIsPageLinkText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"2", true},
		{"12", true},
		{"next", true},
		{"next page", true},
		{"»", true},
		{"→", true},
		{"more >", true},
		{"view all", false},
		{"3a", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isPageLinkText(tt.text); got != tt.want {
			t.Errorf("isPageLinkText(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestTraverse(t *testing.T) {
	t.Run("collects across segments and skips failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seg := r.URL.Query().Get("seg")
			if seg == "bad" {
				http.NotFound(w, r)
				return
			}

			fmt.Fprintf(w, `<div class="view-content">
				<div><a href="/people/%s-1">Jane %s-One</a></div>
				<div><a href="/people/%s-2">John %s-Two</a></div>
			</div>`, seg, seg, seg, seg)
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		acc := newProfileSet(250)

		targets := []string{
			server.URL + "/people?seg=a",
			server.URL + "/people?seg=bad",
			server.URL + "/people?seg=b",
		}

		added := h.traverse(context.Background(), targets, acc)

		if added != 4 {
			t.Errorf("added: got %d, want 4", added)
		}

		if acc.len() != 4 {
			t.Errorf("accumulated: got %d, want 4", acc.len())
		}
	})

	t.Run("stops once the set is full", func(t *testing.T) {
		var requests int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++

			seg := r.URL.Query().Get("seg")
			fmt.Fprintf(w, `<div class="view-content">
				<div><a href="/people/%s-1">Jane %s-One</a></div>
				<div><a href="/people/%s-2">John %s-Two</a></div>
			</div>`, seg, seg, seg, seg)
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		acc := newProfileSet(3)

		targets := []string{
			server.URL + "/people?seg=a",
			server.URL + "/people?seg=b",
			server.URL + "/people?seg=c",
		}

		added := h.traverse(context.Background(), targets, acc)

		if added != 3 {
			t.Errorf("added: got %d, want 3", added)
		}

		if requests != 2 {
			t.Errorf("request count: got %d, want 2", requests)
		}
	})
}
