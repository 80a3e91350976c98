package harvester

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultAjaxPath    = "/views/ajax"
	viewsExposedFormID = "views_exposed_form"
)

// ajaxView is one entry of the settings views.ajaxViews map.
type ajaxView struct {
	ViewName      string `json:"view_name"`
	ViewDisplayID string `json:"view_display_id"`
	ViewArgs      string `json:"view_args"`
	ViewPath      string `json:"view_path"`
	ViewDomID     string `json:"view_dom_id"`
	PagerElement  int    `json:"pager_element"`
}

// cmsSettings is the subset of the page settings JSON the crawl needs.
type cmsSettings struct {
	Views struct {
		AjaxPath  string              `json:"ajax_path"`
		AjaxViews map[string]ajaxView `json:"ajaxViews"`
	} `json:"views"`
	AjaxPageState struct {
		Theme      string `json:"theme"`
		ThemeToken string `json:"theme_token"`
		Libraries  string `json:"libraries"`
	} `json:"ajaxPageState"`
}

// ajaxCommand is one DOM mutation in the AJAX response. Only insert commands
// carrying an HTML string matter here; settings and css commands carry
// objects and are skipped.
type ajaxCommand struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// ajaxCrawl walks the CMS pagination endpoint when the document embeds AJAX
// view settings. Every inserted HTML fragment goes back through the card
// extractor. Returns the number of profiles added and whether the protocol
// was attempted at all; an unattempted crawl must not trigger the caller's
// yield short-circuit.
func (h *Harvester) ajaxCrawl(ctx context.Context, doc *goquery.Document, base *url.URL, acc *profileSet) (int, bool) {
	settings, ok := parseCMSSettings(doc)
	if !ok || len(settings.Views.AjaxViews) == 0 {
		return 0, false
	}

	view, ok := selectBestView(doc, settings.Views.AjaxViews)
	if !ok {
		return 0, false
	}

	h.logger.Debug().Str(logKeyView, view.ViewName).Msg("CMS AJAX view selected")

	formState := exposedFormState(doc)

	ajaxPath := settings.Views.AjaxPath
	if ajaxPath == "" {
		ajaxPath = defaultAjaxPath
	}

	endpoint := resolveURL(base, ajaxPath)
	header := ajaxHeaders(base.String())

	added := 0

	var lastHash uint64

	hasLastHash := false

	for page := 0; ; page++ {
		if ctx.Err() != nil {
			break
		}

		payload := ajaxPayload(view, settings, formState, page)

		body, rejected := h.postAjaxPage(ctx, endpoint, base.String(), payload, header, page)
		if rejected {
			break
		}

		var commands []ajaxCommand
		if err := json.Unmarshal([]byte(body), &commands); err != nil {
			h.logger.Debug().Err(err).Int(logKeyPage, page).Msg("CMS AJAX response decode failed")
			break
		}

		pageAdded := 0

		for _, cmd := range commands {
			if cmd.Command != "insert" {
				continue
			}

			var fragment string
			if err := json.Unmarshal(cmd.Data, &fragment); err != nil || strings.TrimSpace(fragment) == "" {
				continue
			}

			fragmentDoc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
			if err != nil {
				continue
			}

			pageAdded += acc.addAll(extractProfiles(fragmentDoc, base))
		}

		added += pageAdded

		// Page zero usually replays the content already parsed from the
		// document, so an empty first page is not a stop signal.
		if pageAdded == 0 && page > 0 {
			h.logger.Debug().Int(logKeyPage, page).Msg("CMS AJAX returned no new profiles, stopping")
			break
		}

		hash := contentHash(body)
		if hasLastHash && hash == lastHash {
			h.logger.Debug().Int(logKeyPage, page).Msg("CMS AJAX repeated identical content, stopping")
			break
		}

		lastHash = hash
		hasLastHash = true

		if page >= maxAjaxPages {
			break
		}
	}

	return added, true
}

// postAjaxPage posts one pagination request. When the endpoint rejects the
// call (transport error, bad status, or a non-JSON body) on the first page,
// the directory URL itself is tried once; some CMS builds serve AJAX there.
// Past page zero a rejection ends the crawl.
func (h *Harvester) postAjaxPage(ctx context.Context, endpoint, directoryURL string, payload url.Values, header http.Header, page int) (string, bool) {
	body, contentType, err := h.session.PostForm(ctx, endpoint, payload, header)
	if err == nil && isJSONContentType(contentType) {
		return body, false
	}

	if page != 0 {
		return "", true
	}

	body, contentType, err = h.session.PostForm(ctx, directoryURL, payload, header)
	if err != nil || !isJSONContentType(contentType) {
		h.logger.Debug().Err(err).Str(logKeyContentType, contentType).Msg("CMS AJAX endpoint rejected the request")
		return "", true
	}

	return body, false
}

// ajaxHeaders are the extra headers the CMS expects on pagination calls.
func ajaxHeaders(directoryURL string) http.Header {
	header := make(http.Header)
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Referer", directoryURL)
	header.Set(headerAccept, "application/json, text/javascript, */*; q=0.01")

	return header
}

// ajaxPayload builds the pagination form body. View identity goes out under
// both the plain and underscored spellings; CMS versions differ on which
// they read. Extracted form state is merged last and wins on collision.
func ajaxPayload(view ajaxView, settings cmsSettings, formState map[string]string, page int) url.Values {
	payload := url.Values{}
	payload.Set("view_name", view.ViewName)
	payload.Set("view_display_id", view.ViewDisplayID)
	payload.Set("_view_name", view.ViewName)
	payload.Set("_view_display_id", view.ViewDisplayID)
	payload.Set("view_args", view.ViewArgs)
	payload.Set("view_path", view.ViewPath)
	payload.Set("view_dom_id", view.ViewDomID)
	payload.Set("pager_element", strconv.Itoa(view.PagerElement))
	payload.Set("page", strconv.Itoa(page))
	payload.Set("_drupal_ajax", "1")
	payload.Set("ajax_page_state[theme]", settings.AjaxPageState.Theme)
	payload.Set("ajax_page_state[theme_token]", settings.AjaxPageState.ThemeToken)
	payload.Set("ajax_page_state[libraries]", settings.AjaxPageState.Libraries)

	if _, ok := formState["form_id"]; !ok {
		payload.Set("form_id", viewsExposedFormID)
	}

	for name, value := range formState {
		payload.Set(name, value)
	}

	return payload
}

// parseCMSSettings decodes the page settings script, when present.
func parseCMSSettings(doc *goquery.Document) (cmsSettings, bool) {
	var settings cmsSettings

	script := doc.Find(`script[data-drupal-selector="drupal-settings-json"]`).First()
	if script.Length() == 0 {
		return settings, false
	}

	if err := json.Unmarshal([]byte(script.Text()), &settings); err != nil {
		return settings, false
	}

	return settings, true
}

// selectBestView scores each AJAX view by the number of internal links under
// its DOM container and picks the densest; that container is almost always
// the faculty listing rather than a sidebar or teaser view.
func selectBestView(doc *goquery.Document, views map[string]ajaxView) (ajaxView, bool) {
	ids := make([]string, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var best ajaxView

	bestScore := 0

	for _, id := range ids {
		view := views[id]
		if view.ViewDomID == "" {
			continue
		}

		container := doc.Find(".js-view-dom-id-" + view.ViewDomID).First()
		if container.Length() == 0 {
			continue
		}

		score := 0

		container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if isInternalLink(href) {
				score++
			}
		})

		if score > bestScore {
			bestScore = score
			best = view
		}
	}

	return best, bestScore > 0
}

// isInternalLink reports whether href looks like a same-site content link.
func isInternalLink(href string) bool {
	return len(href) > 5 &&
		!strings.HasPrefix(href, "http") &&
		!strings.HasPrefix(href, "mailto") &&
		!strings.HasPrefix(href, "#")
}

// exposedFormState captures the inputs of the exposed filter form, including
// the CSRF trio (form_build_id, form_token, form_id) that hardened sites
// require on AJAX posts. Selects post the empty string, meaning no filter.
func exposedFormState(doc *goquery.Document) map[string]string {
	state := make(map[string]string)

	form := doc.Find("form.views-exposed-form").First()
	if form.Length() == 0 {
		return state
	}

	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}

		value, _ := input.Attr("value")
		state[name] = value
	})

	form.Find("select").Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("name"); ok && name != "" {
			state[name] = ""
		}
	})

	return state
}

// contentHash guards against endpoints that replay the last page forever.
func contentHash(body string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(body))

	return h.Sum64()
}
