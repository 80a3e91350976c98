package harvester

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	pagerClassRe = regexp.MustCompile(`(?i)page|pager|pagination|nav`)

	// Quoted endpoint paths in inline scripts: a single-letter filter
	// parameter, or an /api/ path with a page number.
	letterEndpointRe = regexp.MustCompile(`(?i)["'](/[^"']*\?[^"']*(?:letter|initial|alpha|filter)=[a-z])["']`)
	letterParamRe    = regexp.MustCompile(`(?i)=[a-z]`)
	apiPageRe        = regexp.MustCompile(`["'](/api/[^"']+page=\d+[^"']*)["']`)
	apiPageParamRe   = regexp.MustCompile(`page=\d+`)
)

var nextPageTokens = []string{"next", ">", "»", "→"}

// discoverTraversalTargets finds sub-pages that shard the directory:
// alphabetical indices, numeric pagers, and endpoints mentioned in inline
// scripts. Results are resolved, deduplicated, sorted, and capped.
func discoverTraversalTargets(doc *goquery.Document, base *url.URL) []string {
	var targets []string

	targets = append(targets, alphabeticalIndexTargets(doc, base)...)
	targets = append(targets, paginationTargets(doc, base)...)
	targets = append(targets, scriptedEndpointTargets(doc, base)...)

	seen := make(map[string]struct{}, len(targets))
	unique := targets[:0]

	for _, t := range targets {
		if t == "" || t == base.String() {
			continue
		}

		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	sort.Strings(unique)

	if len(unique) > maxTraversalTargets {
		unique = unique[:maxTraversalTargets]
	}

	return unique
}

// alphabeticalIndexTargets returns the hrefs of single-letter anchors once
// the page carries a critical mass of them.
func alphabeticalIndexTargets(doc *goquery.Document, base *url.URL) []string {
	var hrefs []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if utf8.RuneCountInString(text) != 1 {
			return
		}

		r, _ := utf8.DecodeRuneInString(text)
		if !unicode.IsLetter(r) {
			return
		}

		if href, ok := a.Attr("href"); ok {
			hrefs = append(hrefs, resolveURL(base, href))
		}
	})

	if len(hrefs) < minLetterLinks {
		return nil
	}

	return hrefs
}

// paginationTargets collects links inside pager-like elements whose text is
// a page number or a next-page arrow.
func paginationTargets(doc *goquery.Document, base *url.URL) []string {
	var targets []string

	doc.Find("[class]").Each(func(_ int, el *goquery.Selection) {
		class, _ := el.Attr("class")
		if !pagerClassRe.MatchString(class) {
			return
		}

		el.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(a.Text()))
			if !isPageLinkText(text) {
				return
			}

			if href, ok := a.Attr("href"); ok {
				targets = append(targets, resolveURL(base, href))
			}
		})
	})

	return targets
}

// isPageLinkText reports whether anchor text names a page: all digits or a
// next-page token.
func isPageLinkText(text string) bool {
	if text == "" {
		return false
	}

	if isDigits(text) {
		return true
	}

	for _, token := range nextPageTokens {
		if strings.Contains(text, token) {
			return true
		}
	}

	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// scriptedEndpointTargets scans inline scripts for filterable endpoints. A
// letter-filter path expands over the full alphabet; an /api/ pager path
// expands over the first pages.
func scriptedEndpointTargets(doc *goquery.Document, base *url.URL) []string {
	var targets []string

	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		text := script.Text()
		if text == "" {
			return
		}

		for _, m := range letterEndpointRe.FindAllStringSubmatch(text, -1) {
			for letter := 'A'; letter <= 'Z'; letter++ {
				expanded := letterParamRe.ReplaceAllString(m[1], "="+string(letter))
				targets = append(targets, resolveURL(base, expanded))
			}
		}

		for _, m := range apiPageRe.FindAllStringSubmatch(text, -1) {
			for page := 1; page <= maxScriptedAPIPages; page++ {
				expanded := apiPageParamRe.ReplaceAllString(m[1], "page="+strconv.Itoa(page))
				targets = append(targets, resolveURL(base, expanded))
			}
		}
	})

	return targets
}

// traverse fetches each target and runs the card extractor on it, resolving
// hrefs against the segment URL. A failed segment is skipped, not fatal.
// Returns the number of profiles added.
func (h *Harvester) traverse(ctx context.Context, targets []string, acc *profileSet) int {
	if len(targets) > 0 {
		h.logger.Debug().Int(logKeyTargets, len(targets)).Msg("Traversing directory segments")
	}

	added := 0

	for _, target := range targets {
		if ctx.Err() != nil || acc.full() {
			break
		}

		body, err := h.session.Get(ctx, target)
		if err != nil {
			h.logger.Debug().Err(err).Str(logKeyURL, target).Msg("Traversal segment fetch failed")
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			h.logger.Debug().Err(err).Str(logKeyURL, target).Msg("Traversal segment parse failed")
			continue
		}

		segmentURL, err := url.Parse(target)
		if err != nil {
			continue
		}

		added += acc.addAll(extractProfiles(doc, segmentURL))
	}

	return added
}
