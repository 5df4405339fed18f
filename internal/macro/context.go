// Package macro implements the Macro Context Builder, Liquidity Impulse
// Engine, and Macro Score Engine: the layer that turns raw,
// as-of-filtered series into signed macro pressure.
package macro

import (
	"sort"

	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/apperr"
	"github.com/regimebrain/brain/internal/series"
	"github.com/regimebrain/brain/pkg/types"
)

const fiveYearWeeks = 260

// ContextBuilder normalizes raw as-of series to weekly cadence and derives
// the SeriesContext the rest of the pipeline consumes.
type ContextBuilder struct {
	logger *zap.Logger
}

func NewContextBuilder(logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{logger: logger.Named("macro.context")}
}

// Build produces a SeriesContext for s as of asOf. s is expected to already
// be As-Of filtered by the caller; Build performs no further publication-lag
// filtering of its own.
func (b *ContextBuilder) Build(s types.Series, asOf types.Date) (types.SeriesContext, error) {
	weekly := toWeeklyAsOf(s)
	if len(weekly) == 0 {
		return types.SeriesContext{}, apperr.InsufficientData("series " + s.ID + " has no weekly points")
	}

	ctx := types.SeriesContext{
		SeriesID:    s.ID,
		AsOf:        asOf,
		Deltas:      make(map[int]*float64),
		DeltaZScore: make(map[int]*float64),
	}

	values := valuesOf(weekly)
	if v := values[len(values)-1]; !weekly[len(weekly)-1].Missing {
		cur := v
		ctx.Current = &cur
	}

	for _, n := range []int{4, 13, 26} {
		deltaSeries := rollingDeltas(values, weeklyMissing(weekly), n)
		if d, ok := series.Delta(values, n); ok && series.IsFinite(d) {
			dv := d
			ctx.Deltas[n] = &dv

			if z, ok := series.ZScore(d, deltaSeries); ok {
				zv := series.ClampZ(z)
				ctx.DeltaZScore[n] = &zv
			}
		}
	}

	if len(values) >= series.Min5YWeeklyPoints {
		window := values
		if len(window) > fiveYearWeeks {
			window = window[len(window)-fiveYearWeeks:]
		}
		if mean, ok := series.Mean(window); ok {
			ctx.Mean5Y = &mean
		}
		if sd, ok := series.StdDev(window); ok {
			ctx.Std5Y = &sd
		}
		mn, mx := window[0], window[0]
		for _, v := range window {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		ctx.Min5Y = &mn
		ctx.Max5Y = &mx
	}

	return ctx, nil
}

// toWeeklyAsOf normalizes a series onto a weekly cadence: weekly series pass
// through unchanged; daily series are collapsed to the last observation of each
// ISO week (Friday-anchored). A week whose last observation is marked
// Missing stays an explicit Missing point; a week with no observations at
// all produces no point.
func toWeeklyAsOf(s types.Series) []types.Point {
	if s.Frequency == types.FrequencyWeekly {
		out := make([]types.Point, len(s.Points))
		copy(out, s.Points)
		sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
		return out
	}

	byWeek := make(map[string]types.Point)
	var weekOrder []string
	for _, p := range s.Points {
		key := fridayOfWeek(p.Date).String()
		existing, seen := byWeek[key]
		if !seen {
			weekOrder = append(weekOrder, key)
			byWeek[key] = p
			continue
		}
		if p.Date.After(existing.Date) {
			byWeek[key] = p
		}
	}
	sort.Strings(weekOrder)

	out := make([]types.Point, 0, len(weekOrder))
	for _, key := range weekOrder {
		p := byWeek[key]
		d, _ := types.ParseDate(key)
		out = append(out, types.Point{Date: d, Value: p.Value, Missing: p.Missing})
	}
	return out
}

// fridayOfWeek returns the Friday that ends the calendar week containing d
// (ISO week, Monday start).
func fridayOfWeek(d types.Date) types.Date {
	weekday := int(d.Time().Weekday())
	if weekday == 0 {
		weekday = 7 // treat Sunday as day 7 of the prior week
	}
	offsetToFriday := 5 - weekday
	return d.AddDays(offsetToFriday)
}

func valuesOf(points []types.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func weeklyMissing(points []types.Point) []bool {
	out := make([]bool, len(points))
	for i, p := range points {
		out[i] = p.Missing
	}
	return out
}

// rollingDeltas computes the trailing n-period delta at every index where
// both endpoints are present, forming the distribution ZScore measures
// against. A delta whose start or end point is missing is omitted; missing
// points strictly between the endpoints are not checked.
func rollingDeltas(values []float64, missing []bool, n int) []float64 {
	var out []float64
	for i := n; i < len(values); i++ {
		if missing[i] || missing[i-n] {
			continue
		}
		out = append(out, values[i]-values[i-n])
	}
	return out
}
