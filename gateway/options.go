package gateway

import (
	"strconv"
	"time"
)

// SearchOptions parameterize one search request.
type SearchOptions struct {
	// Location is the geographic origin of the search, e.g. "Austin,TX".
	Location string

	// Language is the interface language code. Defaults to "en".
	Language string

	// Device is "desktop", "mobile", or "tablet". Defaults to "desktop".
	Device string

	// ResultsPerPage is how many organic results to request. Defaults
	// to 10.
	ResultsPerPage int

	// Provider pins the search to one provider, bypassing cost-ordered
	// selection (failover is disabled for pinned searches).
	Provider string

	// BypassCache forces a live provider call; the result is still
	// written through.
	BypassCache bool

	// Timeout bounds each individual provider call. Zero means the
	// provider client's own timeout applies.
	Timeout time.Duration

	// Priority orders queued work under rate limiting; lower runs
	// first. Zero is the default priority.
	Priority int
}

// normalize fills in defaults.
func (o *SearchOptions) normalize() {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.Device == "" {
		o.Device = "desktop"
	}
	if o.ResultsPerPage <= 0 {
		o.ResultsPerPage = 10
	}
}

// cacheParams returns the options that affect the provider response, for
// cache key derivation. Priority, BypassCache, and Timeout do not change
// the payload and are excluded.
func (o SearchOptions) cacheParams() map[string]string {
	return map[string]string{
		"location": o.Location,
		"language": o.Language,
		"device":   o.Device,
		"num":      strconv.Itoa(o.ResultsPerPage),
		"provider": o.Provider,
	}
}
