// Package harvester turns a faculty-directory URL into a list of profile
// records. It is a strategy machine: static HTML first, then a headless
// browser for client-rendered pages, then the CMS AJAX pagination protocol,
// then traversal of alphabetical or numbered sub-pages, and a last-resort
// A-Z query trial.
//
// The machine is best-effort by construction. Every strategy failure is
// absorbed and the next strategy runs; the caller only ever sees the
// accumulated profile list. Yields from all strategies land in one
// insertion-ordered set, deduplicated by resolved profile URL and capped.
package harvester

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/scholarmatch/pipeline/internal/observability"
)

// Strategy tags the harvesting mode that produced a batch of profiles.
type Strategy string

const (
	StrategyBaseHTML   Strategy = "base_html"
	StrategyHydrated   Strategy = "hydrated"
	StrategyCMSAjax    Strategy = "cms_ajax"
	StrategyTraversal  Strategy = "traversal"
	StrategyBruteForce Strategy = "brute_force"
)

// Renderer returns fully hydrated HTML for a URL using a headless browser.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Config tunes the harvester. Zero values fall back to defaults.
type Config struct {
	MaxProfiles int
}

// Harvester discovers faculty profiles on a department directory page.
type Harvester struct {
	session     *Session
	renderer    Renderer // nil when browser rendering is disabled
	maxProfiles int
	logger      *zerolog.Logger
}

// New creates a Harvester. renderer may be nil; the hydration stage then
// degrades straight to the AJAX and traversal fallbacks.
func New(session *Session, renderer Renderer, cfg Config, logger *zerolog.Logger) *Harvester {
	maxProfiles := cfg.MaxProfiles
	if maxProfiles <= 0 {
		maxProfiles = defaultMaxProfiles
	}

	return &Harvester{
		session:     session,
		renderer:    renderer,
		maxProfiles: maxProfiles,
		logger:      logger,
	}
}

// Harvest runs the strategy machine against directoryURL. The error return
// is reserved for an unusable URL; everything past that point degrades to
// whatever was accumulated.
func (h *Harvester) Harvest(ctx context.Context, directoryURL string) ([]Profile, error) {
	base, err := url.Parse(directoryURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}

	acc := newProfileSet(h.maxProfiles)

	body, err := h.session.Get(ctx, directoryURL)
	if err != nil {
		h.logger.Warn().Err(err).Str(logKeyURL, directoryURL).Msg("Directory fetch failed")
		return acc.profiles(), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		h.logger.Warn().Err(err).Str(logKeyURL, directoryURL).Msg("Directory HTML parse failed")
		return acc.profiles(), nil
	}

	baseYield := acc.addAll(extractProfiles(doc, base))
	h.recordStage(StrategyBaseHTML, baseYield, acc)

	if baseYield > baseYieldShortCircuit {
		return acc.profiles(), nil
	}

	// A starved static parse on a page with CMS listing markup means the
	// cards materialize client-side; re-extract from the rendered DOM. The
	// rendered document also replaces the working document, so the later
	// stages see the hydrated markup.
	if looksJSHydrated(doc, baseYield) {
		if h.renderer == nil {
			h.logger.Debug().Str(logKeyURL, directoryURL).Msg("Hydration signal present but rendering is disabled")
		} else if rendered := h.renderHydrated(ctx, directoryURL); rendered != nil {
			doc = rendered

			extracted := extractProfiles(doc, base)
			hydratedYield := acc.addAll(extracted)
			h.recordStage(StrategyHydrated, hydratedYield, acc)

			if len(extracted) > baseYieldShortCircuit {
				return acc.profiles(), nil
			}
		}
	}

	ajaxYield, ajaxAttempted := h.ajaxCrawl(ctx, doc, base, acc)
	if ajaxAttempted {
		h.recordStage(StrategyCMSAjax, ajaxYield, acc)

		if acc.len() > ajaxYieldShortCircuit {
			return acc.profiles(), nil
		}
	}

	targets := discoverTraversalTargets(doc, base)

	traversalYield := h.traverse(ctx, targets, acc)
	h.recordStage(StrategyTraversal, traversalYield, acc)

	// Nothing to traverse and almost nothing harvested: trial common
	// letter-filter query parameters blind.
	if acc.len() < traversalLowYield && len(targets) == 0 {
		bruteYield := h.bruteForce(ctx, directoryURL, acc)
		h.recordStage(StrategyBruteForce, bruteYield, acc)
	}

	return acc.profiles(), nil
}

// renderHydrated renders the directory in the headless browser and parses
// the result, returning nil when rendering or parsing failed.
func (h *Harvester) renderHydrated(ctx context.Context, directoryURL string) *goquery.Document {
	html, err := h.renderer.Render(ctx, directoryURL)
	if err != nil {
		h.logger.Warn().Err(err).Str(logKeyURL, directoryURL).Msg("Browser render failed, keeping static HTML")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		h.logger.Warn().Err(err).Str(logKeyURL, directoryURL).Msg("Rendered HTML parse failed")
		return nil
	}

	return doc
}

func (h *Harvester) recordStage(strategy Strategy, added int, acc *profileSet) {
	observability.HarvestStrategyRuns.WithLabelValues(string(strategy)).Inc()
	observability.HarvestProfiles.WithLabelValues(string(strategy)).Add(float64(added))

	h.logger.Debug().
		Str(logKeyStrategy, string(strategy)).
		Int(logKeyYield, added).
		Int(logKeyAccumulated, acc.len()).
		Msg("Harvest stage finished")
}

// CMS container class hints checked by the hydration detector.
var hydrationContainerClasses = []string{
	"view-content", "views-view-grid", "people-list", "faculty-list", "directory", "grid", "row",
}

// looksJSHydrated reports whether the page appears to be a client-rendered
// directory: card yield is low although a known listing container exists,
// and the page carries either a CMS settings script or a pager element.
func looksJSHydrated(doc *goquery.Document, yield int) bool {
	if yield >= hydrationLowYield {
		return false
	}

	hasContainer := false

	for _, class := range hydrationContainerClasses {
		if doc.Find("."+class).Length() > 0 {
			hasContainer = true
			break
		}
	}

	if !hasContainer {
		return false
	}

	if doc.Find(`script[data-drupal-selector="drupal-settings-json"]`).Length() > 0 {
		return true
	}

	return doc.Find(`[data-drupal-selector*="pager"]`).Length() > 0
}

// profileSet accumulates profiles across strategies in insertion order,
// deduplicating by resolved profile URL and enforcing the hard cap.
type profileSet struct {
	seen  map[string]struct{}
	items []Profile
	limit int
}

func newProfileSet(limit int) *profileSet {
	return &profileSet{seen: make(map[string]struct{}), limit: limit}
}

// add inserts one profile, reporting whether it was new and fit the cap.
func (s *profileSet) add(p Profile) bool {
	if len(s.items) >= s.limit {
		return false
	}

	if _, ok := s.seen[p.ProfileURL]; ok {
		return false
	}

	s.seen[p.ProfileURL] = struct{}{}
	s.items = append(s.items, p)

	return true
}

// addAll inserts a batch in order, returning the number actually added.
func (s *profileSet) addAll(profiles []Profile) int {
	added := 0

	for _, p := range profiles {
		if s.add(p) {
			added++
		}
	}

	return added
}

func (s *profileSet) len() int { return len(s.items) }

func (s *profileSet) full() bool { return len(s.items) >= s.limit }

func (s *profileSet) profiles() []Profile { return s.items }
