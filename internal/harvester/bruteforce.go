package harvester

import (
	"context"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Query parameter names commonly used for letter filters.
var bruteForceParams = []string{"letter", "initial", "q"}

// bruteForce probes directoryURL?param=letter for every A-Z letter and every
// known parameter name. A response is parsed only when the probed letter
// occurs in the body at all, which filters out generic error pages without
// parsing them. Stops once the accumulated harvest reaches the brute-force
// budget. Returns the number of profiles added.
func (h *Harvester) bruteForce(ctx context.Context, directoryURL string, acc *profileSet) int {
	added := 0

	for letter := 'A'; letter <= 'Z'; letter++ {
		for _, param := range bruteForceParams {
			// Checked per probe, not per letter: one parameter's yield can
			// exhaust the budget mid-letter.
			if ctx.Err() != nil || acc.full() || acc.len() >= bruteForceYieldStop {
				return added
			}

			trialURL := appendQueryParam(directoryURL, param, string(letter))

			body, err := h.session.Get(ctx, trialURL)
			if err != nil {
				continue
			}

			if !containsLetterFold(body, letter) {
				continue
			}

			doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
			if err != nil {
				continue
			}

			trialParsed, err := url.Parse(trialURL)
			if err != nil {
				continue
			}

			added += acc.addAll(extractProfiles(doc, trialParsed))
		}
	}

	return added
}

// containsLetterFold reports whether the body contains the letter in either
// case. Sites answer letter filters with lowercase slugs as often as with
// the display letter.
func containsLetterFold(body string, letter rune) bool {
	return strings.ContainsRune(body, letter) || strings.ContainsRune(body, unicode.ToLower(letter))
}

// appendQueryParam attaches param=value with the right separator.
func appendQueryParam(rawURL, param, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}

	return rawURL + sep + param + "=" + value
}
