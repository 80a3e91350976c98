// Package renderer drives a headless Chromium to capture directory pages
// whose faculty cards only materialize client-side. Each render gets a fresh
// browser: directory harvests are rare enough that keeping a warm instance
// is not worth the leaked-state risk between universities.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	corerrors "github.com/scholarmatch/pipeline/internal/core/errors"
	"github.com/scholarmatch/pipeline/internal/observability"
)

const (
	defaultNavTimeout    = 30 * time.Second
	consentProbeTimeout  = 3 * time.Second
	consentSettle        = 1 * time.Second
	hydrationWaitTimeout = 10 * time.Second
	loadMoreWaitTimeout  = 8 * time.Second
	loadMoreSettle       = 1 * time.Second
	finalScrollSettle    = 2 * time.Second
	maxLoadMoreClicks    = 25

	// Matches the Accept-Language the plain HTTP session sends, so both
	// fetch paths present the same client to the site.
	acceptLanguage = "en-US,en;q=0.9"

	logKeyURL   = "url"
	logKeyCards = "cards"
)

// hydrationSelector matches the first faculty-card elements to appear; the
// table row variant is excluded from growth counting because header and
// filler rows inflate it.
const (
	hydrationSelector = ".view-content article, .view-content .views-row, .people-row, .people-item, .inner-people-grid, table tr"
	cardCountSelector = ".view-content article, .view-content .views-row, .people-row, .people-item, .inner-people-grid"
)

// hydrationProbeJS reports whether any faculty-card element exists yet.
const hydrationProbeJS = `document.querySelector('` + hydrationSelector + `') !== null`

// clickConsentJS clicks the first visible button whose trimmed text is a
// known consent label, reporting whether one was found.
const clickConsentJS = `(() => {
	const labels = ['accept', 'agree', 'i agree', 'allow'];
	for (const btn of document.querySelectorAll('button')) {
		const text = (btn.textContent || '').trim().toLowerCase();
		if (labels.includes(text) && btn.offsetParent !== null) {
			btn.click();
			return true;
		}
	}
	return false;
})()`

// clickLoadMoreJS clicks the first visible load-more pager link and returns
// the pre-click card count, or -1 when no such link is visible.
const clickLoadMoreJS = `(() => {
	for (const link of document.querySelectorAll('.js-pager__items a, .pager__item a')) {
		const text = (link.textContent || '').trim().toLowerCase();
		if (text.includes('load more') && link.offsetParent !== null) {
			const count = document.querySelectorAll('` + cardCountSelector + `').length;
			link.click();
			return count;
		}
	}
	return -1;
})()`

const scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight)`

// Config tunes the renderer. A zero NavTimeout falls back to the default.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
}

// Renderer captures hydrated page HTML through a headless browser.
type Renderer struct {
	cfg    Config
	logger *zerolog.Logger
}

func New(cfg Config, logger *zerolog.Logger) *Renderer {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}

	return &Renderer{
		cfg:    cfg,
		logger: logger,
	}
}

// Render navigates to pageURL, dismisses a consent wall if one appears,
// waits for the cards to hydrate, exhausts the load-more pager, and returns
// the final DOM. The whole run shares one navigation budget.
func (r *Renderer) Render(ctx context.Context, pageURL string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(r.cfg.UserAgent)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, r.cfg.NavTimeout)
	defer cancelRun()

	var html string

	err := chromedp.Run(runCtx,
		network.Enable(),
		// The allocator flag covers request headers; the emulation override
		// also fixes navigator.userAgent, which consent scripts inspect.
		emulation.SetUserAgentOverride(r.cfg.UserAgent).WithAcceptLanguage(acceptLanguage),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		r.dismissConsent(),
		r.hydrateAndExpand(),
		chromedp.Evaluate(scrollToBottomJS, nil),
		chromedp.Sleep(finalScrollSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		observability.RenderRuns.WithLabelValues(observability.StatusError).Inc()

		if isBrowserStartError(err) {
			return "", fmt.Errorf("%w: %v", corerrors.ErrRenderUnavailable, err)
		}

		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}

	observability.RenderRuns.WithLabelValues(observability.StatusOK).Inc()

	r.logger.Debug().Str(logKeyURL, pageURL).Msg("Page rendered")

	return html, nil
}

// dismissConsent clicks a visible cookie-consent button when one shows up
// within the probe window. Absence is the normal case and never an error.
func (r *Renderer) dismissConsent() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var clicked bool

		err := chromedp.Poll(clickConsentJS, &clicked, chromedp.WithPollingTimeout(consentProbeTimeout)).Do(ctx)
		if err != nil {
			if !errors.Is(err, chromedp.ErrPollingTimeout) {
				r.logger.Debug().Err(err).Msg("Consent probe failed, continuing")
			}

			return nil
		}

		if clicked {
			r.logger.Debug().Msg("Consent dialog dismissed")
			return chromedp.Sleep(consentSettle).Do(ctx)
		}

		return nil
	}
}

// hydrateAndExpand waits for the first cards, then clicks through the
// load-more pager until it disappears or stops adding cards. A hydration
// timeout skips pager automation; whatever is on the page still gets
// captured by the caller.
func (r *Renderer) hydrateAndExpand() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var hydrated bool
		if err := chromedp.Poll(hydrationProbeJS, &hydrated, chromedp.WithPollingTimeout(hydrationWaitTimeout)).Do(ctx); err != nil {
			r.logger.Debug().Err(err).Msg("Hydration wait expired, capturing current state")
			return nil
		}

		for i := 0; i < maxLoadMoreClicks; i++ {
			var preClickCount int
			if err := chromedp.Evaluate(clickLoadMoreJS, &preClickCount).Do(ctx); err != nil {
				r.logger.Debug().Err(err).Msg("Load-more click failed, stopping pager")
				return nil
			}

			if preClickCount < 0 {
				break
			}

			r.logger.Debug().Int(logKeyCards, preClickCount).Msg("Load-more clicked")

			growthJS := fmt.Sprintf("document.querySelectorAll(%q).length > %d", cardCountSelector, preClickCount)

			var grown bool
			if err := chromedp.Poll(growthJS, &grown, chromedp.WithPollingTimeout(loadMoreWaitTimeout)).Do(ctx); err != nil {
				r.logger.Debug().Msg("Load-more produced no growth, stopping pager")
				break
			}

			if err := chromedp.Sleep(loadMoreSettle).Do(ctx); err != nil {
				return err
			}
		}

		return nil
	}
}

// allocatorOptions mirror a desktop browser closely enough for consent walls
// and naive bot checks.
func allocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
}

// isBrowserStartError reports whether the browser binary itself failed to
// launch, as opposed to a navigation failure inside a live browser.
func isBrowserStartError(err error) bool {
	var execErr *exec.Error

	return errors.As(err, &execErr)
}
