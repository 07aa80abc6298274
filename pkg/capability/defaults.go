package capability

import (
	"context"
	"strings"
)

// StaticCityLookup resolves nearby cities from a fixed table. Deployments
// normally wire the geocoding service instead; the table covers the common
// platform regions for standalone runs.
type StaticCityLookup struct {
	Nearby map[string]string
}

// NewStaticCityLookup builds the default table.
func NewStaticCityLookup() *StaticCityLookup {
	return &StaticCityLookup{Nearby: map[string]string{
		"köln":       "Leverkusen",
		"koeln":      "Leverkusen",
		"berlin":     "Potsdam",
		"hamburg":    "Norderstedt",
		"münchen":    "Dachau",
		"muenchen":   "Dachau",
		"frankfurt":  "Offenbach",
		"stuttgart":  "Esslingen",
		"düsseldorf": "Neuss",
		"duesseldorf": "Neuss",
		"leipzig":    "Markkleeberg",
		"dortmund":   "Witten",
		"essen":      "Bottrop",
	}}
}

// FindNearby returns a nearby real city or empty.
func (c *StaticCityLookup) FindNearby(ctx context.Context, city string) (string, error) {
	return c.Nearby[strings.ToLower(strings.TrimSpace(city))], nil
}

// PassthroughModeration never blocks. Used in tests and when the moderation
// service is not configured; the upstream platform moderates separately.
type PassthroughModeration struct{}

// Check lets everything through.
func (PassthroughModeration) Check(ctx context.Context, text string) (ModerationResult, error) {
	return ModerationResult{}, nil
}
