package harvester

import "time"

const (
	defaultFetchTimeout = 15 * time.Second

	// Response bodies larger than this are truncated before parsing.
	maxResponseBytes = 4 << 20

	// Yield thresholds of the strategy machine. A stage that clears its
	// threshold ends the harvest; a starved stage hands over to the next.
	baseYieldShortCircuit = 40
	ajaxYieldShortCircuit = 30
	hydrationLowYield     = 15
	traversalLowYield     = 20
	bruteForceYieldStop   = 100

	defaultMaxProfiles  = 250
	maxTraversalTargets = 50
	maxScriptedAPIPages = 7
	maxAjaxPages        = 50

	// Single-letter anchors below this count are initials in names, not an
	// A-Z index.
	minLetterLinks = 15

	logKeyURL         = "url"
	logKeyPage        = "page"
	logKeyStrategy    = "strategy"
	logKeyYield       = "yield"
	logKeyAccumulated = "accumulated"
	logKeyTargets     = "targets"
	logKeyContentType = "content_type"
	logKeyView        = "view"
)
