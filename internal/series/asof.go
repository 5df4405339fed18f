// Package series implements the As-Of Filter and Rolling Statistics: the
// two leaf components every other engine in the pipeline is built on.
package series

import (
	"strings"

	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/pkg/types"
)

// PublicationLagDays is the static per-series publication-lag table.
// Lookup falls back to a class-based default when the exact series id is
// not registered, keyed by a recognizable prefix/suffix, then to the daily
// default of 0 days.
var PublicationLagDays = map[string]int{
	"WALCL": 7,
	"RRP":   1,
	"TGA":   1,
	"CPI":   30,
	"PCE":   30,
	"NFP":   5,
	"VIX":   0,
	"DXY":   0,
	"SPX":   0,
	"BTC":   0,
	"GOLD":  0,
}

// PublicationLag returns the publication lag, in days, for seriesID.
func PublicationLag(seriesID string) int {
	if lag, ok := PublicationLagDays[seriesID]; ok {
		return lag
	}
	upper := strings.ToUpper(seriesID)
	switch {
	case strings.Contains(upper, "CPI"), strings.Contains(upper, "PCE"), strings.Contains(upper, "GDP"):
		return 30
	case strings.Contains(upper, "FED"), strings.Contains(upper, "WALCL"), strings.Contains(upper, "RRP"), strings.Contains(upper, "TGA"):
		return 7
	case strings.Contains(upper, "NFP"), strings.Contains(upper, "CLAIMS"):
		return 5
	default:
		return 0
	}
}

// AsOf returns a new Series containing only the points of s whose date is
// ≤ asOf minus the series' publication lag. Missing points are preserved
// (never synthesized). Returns apperr.SeriesUnavailable if zero points
// survive.
func AsOf(s types.Series, asOf types.Date) (types.Series, error) {
	cutoff := asOf.AddDays(-PublicationLag(s.ID))

	out := types.Series{ID: s.ID, Frequency: s.Frequency}
	for _, p := range s.Points {
		if p.Date.After(cutoff) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	if len(out.Points) == 0 {
		return types.Series{}, apperr.SeriesUnavailable("series " + s.ID + " has no points as of " + asOf.String())
	}
	return out, nil
}

// LatestAvailable returns the most recent non-missing point at or before
// asOf-lag, and whether one was found. Used by lenient (dashboard) callers
// that tolerate stale data rather than erroring.
func LatestAvailable(s types.Series, asOf types.Date) (types.Point, bool) {
	filtered, err := AsOf(s, asOf)
	if err != nil {
		return types.Point{}, false
	}
	for i := len(filtered.Points) - 1; i >= 0; i-- {
		if !filtered.Points[i].Missing {
			return filtered.Points[i], true
		}
	}
	return types.Point{}, false
}
