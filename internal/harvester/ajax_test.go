package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const ajaxSettingsJSON = `{
	"views": {
		"ajax_path": "/views/ajax",
		"ajaxViews": {
			"views_dom_id:abc123": {
				"view_name": "faculty_directory",
				"view_display_id": "page_1",
				"view_args": "",
				"view_path": "/people",
				"view_dom_id": "abc123",
				"pager_element": 0
			}
		}
	},
	"ajaxPageState": {"theme": "uni_theme", "theme_token": "tok123", "libraries": "core/drupal.ajax"}
}`

func ajaxDirectoryPage() string {
	return `<html><body>
		<script type="application/json" data-drupal-selector="drupal-settings-json">` + ajaxSettingsJSON + `</script>
		<div class="js-view-dom-id-abc123">
			<div class="view-content">
				<div class="views-row"><a href="/people/seed-00">Seed Person</a></div>
			</div>
		</div>
		<form class="views-exposed-form">
			<input type="hidden" name="form_build_id" value="form-BUILD">
			<input type="hidden" name="form_token" value="TOKEN-9">
			<select name="field_department_target_id"><option value="">All</option></select>
		</form>
	</body></html>`
}

// ajaxCardsFragment renders count cards with globally unique profile URLs
// starting at offset.
func ajaxCardsFragment(offset, count int) string {
	var b strings.Builder

	b.WriteString(`<div class="view-content">`)

	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, `<div class="views-row"><a href="/people/ajax-%03d">Jane Ajax%03d</a></div>`, offset+i, offset+i)
	}

	b.WriteString(`</div>`)

	return b.String()
}

func insertResponse(t *testing.T, fragment string) []byte {
	t.Helper()

	resp, err := json.Marshal([]map[string]interface{}{
		{"command": "settings", "data": map[string]interface{}{"noise": true}},
		{"command": "insert", "method": "replaceWith", "data": fragment},
	})
	if err != nil {
		t.Fatalf("marshal ajax response: %v", err)
	}

	return resp
}

// ajaxRecorder captures every POST the crawl makes.
type ajaxRecorder struct {
	mu       sync.Mutex
	paths    []string
	payloads []url.Values
	headers  []http.Header
}

func (rec *ajaxRecorder) record(r *http.Request) url.Values {
	_ = r.ParseForm()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.paths = append(rec.paths, r.URL.Path)
	rec.payloads = append(rec.payloads, r.PostForm)
	rec.headers = append(rec.headers, r.Header.Clone())

	return r.PostForm
}

func (rec *ajaxRecorder) posts() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return len(rec.paths)
}

func TestAjaxCrawl(t *testing.T) {
	t.Run("walks the pagination endpoint until an empty page", func(t *testing.T) {
		rec := &ajaxRecorder{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method %s", r.Method)
				return
			}

			form := rec.record(r)
			page, _ := strconv.Atoi(form.Get("page"))

			w.Header().Set(headerContentType, "application/json")

			if page >= 3 {
				_, _ = w.Write([]byte("[]"))
				return
			}

			_, _ = w.Write(insertResponse(t, ajaxCardsFragment(page*20, 20)))
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		doc := mustParseHTML(t, ajaxDirectoryPage())
		base := mustParseURL(t, server.URL+"/people")
		acc := newProfileSet(250)

		added, attempted := h.ajaxCrawl(context.Background(), doc, base, acc)

		if !attempted {
			t.Fatal("crawl not attempted")
		}

		if added != 60 {
			t.Errorf("added: got %d, want 60", added)
		}

		if rec.posts() != 4 {
			t.Fatalf("post count: got %d, want 4", rec.posts())
		}

		first := rec.payloads[0]

		wantFields := map[string]string{
			"view_name":                    "faculty_directory",
			"_view_name":                   "faculty_directory",
			"view_display_id":              "page_1",
			"_view_display_id":             "page_1",
			"view_dom_id":                  "abc123",
			"pager_element":                "0",
			"page":                         "0",
			"_drupal_ajax":                 "1",
			"ajax_page_state[theme]":       "uni_theme",
			"ajax_page_state[theme_token]": "tok123",
			"ajax_page_state[libraries]":   "core/drupal.ajax",
			"form_build_id":                "form-BUILD",
			"form_token":                   "TOKEN-9",
			"form_id":                      "views_exposed_form",
		}

		for field, want := range wantFields {
			if got := first.Get(field); got != want {
				t.Errorf("payload %s: got %q, want %q", field, got, want)
			}
		}

		// The empty select must still be posted, as an empty string.
		if !first.Has("field_department_target_id") {
			t.Error("select field missing from the payload")
		}

		if got := rec.payloads[3].Get("page"); got != "3" {
			t.Errorf("last page: got %q, want %q", got, "3")
		}

		header := rec.headers[0]

		if got := header.Get("X-Requested-With"); got != "XMLHttpRequest" {
			t.Errorf("X-Requested-With: got %q", got)
		}

		if got := header.Get("Referer"); got != base.String() {
			t.Errorf("Referer: got %q, want %q", got, base.String())
		}

		if got := acc.len(); got != 60 {
			t.Errorf("accumulated: got %d, want 60", got)
		}
	})

	t.Run("falls back to the directory url once on rejection", func(t *testing.T) {
		rec := &ajaxRecorder{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			form := rec.record(r)

			// The dedicated endpoint always answers with HTML; only the
			// directory path speaks the protocol.
			if r.URL.Path == "/views/ajax" {
				w.Header().Set(headerContentType, "text/html; charset=utf-8")
				_, _ = w.Write([]byte("<html>nope</html>"))

				return
			}

			page, _ := strconv.Atoi(form.Get("page"))

			w.Header().Set(headerContentType, "application/json")
			_, _ = w.Write(insertResponse(t, ajaxCardsFragment(page*20, 20)))
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		doc := mustParseHTML(t, ajaxDirectoryPage())
		base := mustParseURL(t, server.URL+"/people")
		acc := newProfileSet(250)

		added, attempted := h.ajaxCrawl(context.Background(), doc, base, acc)

		if !attempted {
			t.Fatal("crawl not attempted")
		}

		// Page zero lands via the fallback; page one hits the dedicated
		// endpoint again, is rejected past page zero, and ends the crawl.
		if added != 20 {
			t.Errorf("added: got %d, want 20", added)
		}

		wantPaths := []string{"/views/ajax", "/people", "/views/ajax"}

		if rec.posts() != len(wantPaths) {
			t.Fatalf("post count: got %d, want %d", rec.posts(), len(wantPaths))
		}

		for i, want := range wantPaths {
			if rec.paths[i] != want {
				t.Errorf("post %d path: got %q, want %q", i, rec.paths[i], want)
			}
		}
	})

	t.Run("stops when the endpoint repeats content", func(t *testing.T) {
		rec := &ajaxRecorder{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.record(r)

			w.Header().Set(headerContentType, "application/json")
			_, _ = w.Write(insertResponse(t, ajaxCardsFragment(0, 20)))
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		doc := mustParseHTML(t, ajaxDirectoryPage())
		base := mustParseURL(t, server.URL+"/people")
		acc := newProfileSet(250)

		added, _ := h.ajaxCrawl(context.Background(), doc, base, acc)

		if added != 20 {
			t.Errorf("added: got %d, want 20", added)
		}

		if rec.posts() != 2 {
			t.Errorf("post count: got %d, want 2", rec.posts())
		}
	})

	t.Run("stops at the page cap", func(t *testing.T) {
		rec := &ajaxRecorder{}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			form := rec.record(r)
			page, _ := strconv.Atoi(form.Get("page"))

			w.Header().Set(headerContentType, "application/json")
			_, _ = w.Write(insertResponse(t, ajaxCardsFragment(page, 1)))
		}))
		defer server.Close()

		h := newTestHarvester(t, nil)
		doc := mustParseHTML(t, ajaxDirectoryPage())
		base := mustParseURL(t, server.URL+"/people")
		acc := newProfileSet(250)

		added, _ := h.ajaxCrawl(context.Background(), doc, base, acc)

		if added != maxAjaxPages+1 {
			t.Errorf("added: got %d, want %d", added, maxAjaxPages+1)
		}

		if rec.posts() != maxAjaxPages+1 {
			t.Errorf("post count: got %d, want %d", rec.posts(), maxAjaxPages+1)
		}
	})

	t.Run("not attempted without embedded settings", func(t *testing.T) {
		h := newTestHarvester(t, nil)
		doc := mustParseHTML(t, `<div class="view-content"></div>`)
		base := mustParseURL(t, testBaseURL)
		acc := newProfileSet(250)

		added, attempted := h.ajaxCrawl(context.Background(), doc, base, acc)

		if attempted || added != 0 {
			t.Errorf("got added=%d attempted=%v, want 0/false", added, attempted)
		}
	})

	t.Run("not attempted when no view container scores", func(t *testing.T) {
		h := newTestHarvester(t, nil)

		// Settings are present but the referenced container is missing.
		doc := mustParseHTML(t, `<script data-drupal-selector="drupal-settings-json">`+ajaxSettingsJSON+`</script>`)
		base := mustParseURL(t, testBaseURL)
		acc := newProfileSet(250)

		added, attempted := h.ajaxCrawl(context.Background(), doc, base, acc)

		if attempted || added != 0 {
			t.Errorf("got added=%d attempted=%v, want 0/false", added, attempted)
		}
	})
}

func TestSelectBestView(t *testing.T) {
	doc := mustParseHTML(t, `
		<div class="js-view-dom-id-side"><a href="/events/all-news-items">news</a></div>
		<div class="js-view-dom-id-main">
			<a href="/people/jane-doe">Jane Doe</a>
			<a href="/people/john-roe">John Roe</a>
			<a href="https://twitter.com/dept">follow</a>
		</div>`)

	views := map[string]ajaxView{
		"a": {ViewName: "sidebar", ViewDomID: "side"},
		"b": {ViewName: "directory", ViewDomID: "main"},
		"c": {ViewName: "orphan", ViewDomID: "gone"},
	}

	view, ok := selectBestView(doc, views)
	if !ok {
		t.Fatal("no view selected")
	}

	if view.ViewName != "directory" {
		t.Errorf("view: got %q, want %q", view.ViewName, "directory")
	}

	t.Run("zero score selects nothing", func(t *testing.T) {
		empty := mustParseHTML(t, `<div class="js-view-dom-id-main"><a href="#top">top</a></div>`)

		if _, ok := selectBestView(empty, map[string]ajaxView{"b": {ViewName: "directory", ViewDomID: "main"}}); ok {
			t.Error("selected a view with no internal links")
		}
	})
}

func TestAjaxPayload(t *testing.T) {
	view := ajaxView{ViewName: "directory", ViewDisplayID: "page_1", ViewDomID: "abc", PagerElement: 0}

	var settings cmsSettings

	settings.AjaxPageState.Theme = "uni_theme"

	t.Run("injects the default form id", func(t *testing.T) {
		payload := ajaxPayload(view, settings, map[string]string{}, 2)

		if got := payload.Get("form_id"); got != viewsExposedFormID {
			t.Errorf("form_id: got %q, want %q", got, viewsExposedFormID)
		}

		if got := payload.Get("page"); got != "2" {
			t.Errorf("page: got %q, want %q", got, "2")
		}

		if payload.Get("view_name") != "directory" || payload.Get("_view_name") != "directory" {
			t.Error("view name must go out under both spellings")
		}
	})

	t.Run("extracted form state wins", func(t *testing.T) {
		state := map[string]string{"form_id": "custom_form", "view_name": "overridden"}

		payload := ajaxPayload(view, settings, state, 0)

		if got := payload.Get("form_id"); got != "custom_form" {
			t.Errorf("form_id: got %q, want %q", got, "custom_form")
		}

		if got := payload.Get("view_name"); got != "overridden" {
			t.Errorf("view_name: got %q, want %q", got, "overridden")
		}
	})
}

func TestExposedFormState(t *testing.T) {
	t.Run("captures inputs and selects", func(t *testing.T) {
		doc := mustParseHTML(t, `
			<form class="views-exposed-form">
				<input type="hidden" name="form_build_id" value="b-1">
				<input type="text" name="keywords" value="">
				<select name="department"><option value="9">CS</option></select>
			</form>`)

		state := exposedFormState(doc)

		want := map[string]string{"form_build_id": "b-1", "keywords": "", "department": ""}

		if len(state) != len(want) {
			t.Fatalf("state size: got %d, want %d", len(state), len(want))
		}

		for k, v := range want {
			if state[k] != v {
				t.Errorf("state[%q] = %q, want %q", k, state[k], v)
			}
		}
	})

	t.Run("no form yields empty state", func(t *testing.T) {
		if state := exposedFormState(mustParseHTML(t, `<div></div>`)); len(state) != 0 {
			t.Errorf("state: got %v, want empty", state)
		}
	})
}

func TestIsInternalLink(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{"/people/jane-doe", true},
		{"/a", false},
		{"https://example.edu/people", false},
		{"mailto:jane@example.edu", false},
		{"#content", false},
	}

	for _, tt := range tests {
		if got := isInternalLink(tt.href); got != tt.want {
			t.Errorf("isInternalLink(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}
}

func TestContentHash(t *testing.T) {
	if contentHash("abc") != contentHash("abc") {
		t.Error("equal bodies must hash equal")
	}

	if contentHash("abc") == contentHash("abd") {
		t.Error("different bodies must not collide")
	}
}
