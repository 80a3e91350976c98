package harvester

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Profile is one faculty member discovered on a directory page. Email stays
// empty when no address was visible on the card itself.
type Profile struct {
	Name       string
	ProfileURL string
	Email      string
}

// Listing container classes, in priority order. Blocks nested in
// nav/header/footer are menu noise and are skipped.
var cardBlockClasses = []string{
	"view-content", "people-list", "faculty-list", "directory",
	"staff-list", "profiles", "people-row", "people-item",
	"inner-people-grid", "views-view-grid", "grid", "row",
}

// Element kinds that can be a single faculty card.
var cardContainerTags = map[string]bool{
	"div": true, "li": true, "tr": true, "article": true, "section": true, "fieldset": true,
}

const cardContainerSelector = "div, li, tr, article, section, fieldset"

// Vocabulary that marks a text fragment as site navigation rather than a
// person. Matched case-sensitively as substrings.
var nameBlacklist = []string{
	"Calendar", "Events", "News", "Contact", "Give", "Social", "Mission",
	"Values", "Diversity", "Search", "Login", "Resources", "Safety", "COVID",
	"History", "Map", "Jobs", "Career", "Colloquia", "Seminars", "About", "Home",
	"Student", "Alumni", "Portal", "Accessibility", "Privacy", "Statement", "Language",
	"Services", "Department", "Faculty Directory", "People Search", "Staff", "Overview",
}

var (
	hrefSkipKeywords = []string{"facebook", "twitter", "linkedin", "mailto:", "tel:", "vcard", "google"}
	hrefSkipSuffixes = []string{".jpg", ".png", ".pdf", ".docx", ".zip"}
)

var (
	academicTitleRe = regexp.MustCompile(`(?i)(Prof\.|Professor|Dr\.|Dr-Ing\.|MD|PhD|M\.Sc\.|Associate|Assistant|Emeritus|Visiting|Junior|Senior)`)

	emailRe           = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[\w.-]+\.[a-zA-Z]{2,}`)
	obfuscatedEmailRe = regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+\s*(?:[\(\[]at[\)\]]|@)\s*[\w.-]+\s*(?:[\(\[]dot[\)\]]|\.)\s*[a-zA-Z]{2,}`)
	obfuscatedAtRe    = regexp.MustCompile(`(?i)[\(\[]at[\)\]]`)
	obfuscatedDotRe   = regexp.MustCompile(`(?i)[\(\[]dot[\)\]]`)
)

// extractProfiles parses faculty cards out of a document. The result keeps
// document order and is deduplicated by resolved profile URL within this one
// extraction; cross-strategy dedup is the accumulator's job.
func extractProfiles(doc *goquery.Document, base *url.URL) []Profile {
	var profiles []Profile

	seen := make(map[string]struct{})

	for _, block := range candidateBlocks(doc) {
		if cardContainerTags[goquery.NodeName(block)] {
			extractFromContainer(block, base, seen, &profiles)
		}

		block.Find(cardContainerSelector).Each(func(_ int, container *goquery.Selection) {
			extractFromContainer(container, base, seen, &profiles)
		})
	}

	return profiles
}

// candidateBlocks collects listing containers by known class names, skipping
// anything inside navigation chrome. Falls back to the document root when no
// class matches, so unstyled pages still get scanned.
func candidateBlocks(doc *goquery.Document) []*goquery.Selection {
	var blocks []*goquery.Selection

	for _, class := range cardBlockClasses {
		doc.Find("." + class).Each(func(_ int, block *goquery.Selection) {
			if block.ParentsFiltered("nav, header, footer").Length() > 0 {
				return
			}

			blocks = append(blocks, block)
		})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, doc.Selection)
	}

	return blocks
}

// extractFromContainer emits at most one profile per card container. The URL
// is only marked as seen once a valid name was found, so a later container
// pointing at the same page can still supply the missing name.
func extractFromContainer(container *goquery.Selection, base *url.URL, seen map[string]struct{}, profiles *[]Profile) {
	link := container.Find("a[href]").First()
	if link.Length() == 0 {
		return
	}

	href, _ := link.Attr("href")
	if !acceptableProfileHref(href) {
		return
	}

	profileURL := resolveURL(base, href)
	if profileURL == "" {
		return
	}

	if _, ok := seen[profileURL]; ok {
		return
	}

	name, ok := candidateName(container, link)
	if !ok {
		return
	}

	*profiles = append(*profiles, Profile{
		Name:       cleanName(name),
		ProfileURL: profileURL,
		Email:      extractEmail(container),
	})
	seen[profileURL] = struct{}{}
}

// acceptableProfileHref rejects hrefs that cannot point at a profile page:
// social links, mail and phone schemes, bare anchors, scripts, and assets.
func acceptableProfileHref(href string) bool {
	if href == "" || href == "#" {
		return false
	}

	lower := strings.ToLower(href)

	if strings.Contains(lower, "javascript:") {
		return false
	}

	for _, keyword := range hrefSkipKeywords {
		if strings.Contains(lower, keyword) {
			return false
		}
	}

	for _, suffix := range hrefSkipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	return true
}

// candidateName picks the most plausible name text inside a card: a heading
// first, then name-classed elements, then direct bold or anchor children,
// finally the profile link text itself.
func candidateName(container, link *goquery.Selection) (string, bool) {
	name := normalizeText(container.Find("h1, h2, h3, h4, h5, h6").First().Text())
	if isValidNameFormat(name) {
		return name, true
	}

	name = normalizeText(container.Find(`[class*="name"], [class*="title"]`).First().Text())
	if isValidNameFormat(name) {
		return name, true
	}

	found := ""

	container.ChildrenFiltered("strong, b, a").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := normalizeText(el.Text())
		if isValidNameFormat(text) {
			found = text

			return false
		}

		return true
	})

	if found != "" {
		return found, true
	}

	name = normalizeText(link.Text())
	if isValidNameFormat(name) {
		return name, true
	}

	return "", false
}

// normalizeText trims and NFC-normalizes extracted text. Directory pages mix
// composed and decomposed accents, which breaks dedup and length checks.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// isValidNameFormat reports whether text plausibly names one person: 5-60
// characters, a space or comma separator, at least one letter, at most four
// words, and no navigation vocabulary.
func isValidNameFormat(text string) bool {
	length := utf8.RuneCountInString(text)
	if length < 5 || length > 60 {
		return false
	}

	for _, word := range nameBlacklist {
		if strings.Contains(text, word) {
			return false
		}
	}

	if !strings.Contains(text, " ") && !strings.Contains(text, ",") {
		return false
	}

	if !containsLetter(text) {
		return false
	}

	return len(strings.Fields(text)) <= 4
}

func containsLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}

	return false
}

// cleanName strips academic honorifics and rank words, then trims leftover
// whitespace and stray commas.
func cleanName(text string) string {
	cleaned := academicTitleRe.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, ",")

	return strings.TrimSpace(cleaned)
}

// extractEmail scans a card for an address: a mailto link first, then a
// plain-text scan, then an obfuscation-aware scan for the "name [at] host
// [dot] edu" convention in both bracket styles.
func extractEmail(container *goquery.Selection) string {
	mailto := container.Find(`a[href^="mailto:"]`).First()
	if mailto.Length() > 0 {
		href, _ := mailto.Attr("href")
		if email := emailFromMailto(href); email != "" {
			return email
		}
	}

	text := container.Text()

	if email := emailRe.FindString(text); email != "" {
		return email
	}

	if match := obfuscatedEmailRe.FindString(text); match != "" {
		return deobfuscateEmail(match)
	}

	return ""
}

// emailFromMailto extracts the address part of a mailto href, dropping any
// query suffix like ?subject=.
func emailFromMailto(href string) string {
	email := strings.TrimPrefix(href, "mailto:")
	if i := strings.Index(email, "?"); i >= 0 {
		email = email[:i]
	}

	return strings.TrimSpace(email)
}

// deobfuscateEmail rewrites bracketed at/dot tokens and drops spaces.
func deobfuscateEmail(match string) string {
	email := obfuscatedAtRe.ReplaceAllString(match, "@")
	email = obfuscatedDotRe.ReplaceAllString(email, ".")

	return strings.ReplaceAll(email, " ", "")
}

// resolveURL resolves href against base, returning "" for unparseable input.
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	if base == nil {
		return ref.String()
	}

	return base.ResolveReference(ref).String()
}
