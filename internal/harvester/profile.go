package harvester

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EmailFromProfile fetches a single profile page and scans it for an email
// address. The whole raw body is de-obfuscated before the scan, so addresses
// split across markup ("name [at] host [dot] edu") are found even when no
// single element contains them. A page without an address yields "", nil.
func (h *Harvester) EmailFromProfile(ctx context.Context, profileURL string) (string, error) {
	body, err := h.session.Get(ctx, profileURL)
	if err != nil {
		return "", fmt.Errorf("fetch profile: %w", err)
	}

	text := obfuscatedAtRe.ReplaceAllString(body, "@")
	text = obfuscatedDotRe.ReplaceAllString(text, ".")

	if email := emailRe.FindString(text); email != "" {
		return strings.ToLower(email), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse profile: %w", err)
	}

	mailto := doc.Find(`a[href^="mailto:"]`).First()
	if mailto.Length() > 0 {
		href, _ := mailto.Attr("href")
		if email := emailFromMailto(href); email != "" {
			return strings.ToLower(email), nil
		}
	}

	return "", nil
}
