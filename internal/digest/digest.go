// Package digest turns the national dataset into the lines, header, footer
// and attachments of the daily thread.
package digest

import (
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/dailythread/internal/dataset"
	"github.com/rewired-gh/dailythread/internal/indicator"
	"github.com/rewired-gh/dailythread/internal/thread"
)

var ErrNotEnoughData = errors.New("not enough data for a digest")

const (
	trendUp   = "📈"
	trendFlat = "0️⃣"
	trendDown = "📉"
)

// Options shape the thread built from a dataset.
type Options struct {
	Header            string
	RepeatHeader      bool
	Footer            string
	RepeatFooter      bool
	MovingAverageDays int
	Limits            thread.Limits
}

// DefaultOptions returns the header, footer and limits used in production.
func DefaultOptions() Options {
	return Options{
		Header:            "🦠🇮🇹 Aggiornamento Giornaliero Covid-19",
		RepeatHeader:      false,
		Footer:            "#COVID2019 #CovidDailyUpdates",
		RepeatFooter:      false,
		MovingAverageDays: 5,
		Limits:            thread.DefaultLimits(),
	}
}

type headline struct {
	label string
	field dataset.Field
}

var headlines = []headline{
	{"Totale casi attivi", dataset.TotalActivePositives},
	{"Totale ospedalizzati", dataset.TotalHospitalized},
	{"Totali terapia intensiva", dataset.IntensiveCare},
	{"Totale morti", dataset.TotalDeaths},
}

// Build fills a composer with the digest of ds and attaches charts as photos.
func Build(ds *dataset.Dataset, charts []string, opts Options) (*thread.Composer, error) {
	if ds.Len() < 2 {
		return nil, fmt.Errorf("%w: have %d records, need 2", ErrNotEnoughData, ds.Len())
	}

	c, err := thread.NewComposer(opts.Limits)
	if err != nil {
		return nil, err
	}
	if err := c.SetHeader(opts.Header, opts.RepeatHeader); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if err := c.SetFooter(opts.Footer, opts.RepeatFooter); err != nil {
		return nil, fmt.Errorf("footer: %w", err)
	}

	lines, err := Lines(ds, opts.MovingAverageDays)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if err := c.AddLine(l.Text, l.ForceNew); err != nil {
			return nil, err
		}
	}
	for _, path := range charts {
		c.AddMedia(path, thread.Photo)
	}
	return c, nil
}

// Lines formats the headline block followed by the daily-flow block, which
// always starts a new post.
func Lines(ds *dataset.Dataset, maDays int) ([]thread.Line, error) {
	recent := ds.Last(2)
	var lines []thread.Line

	for _, h := range headlines {
		seq := recent.Series(h.field)
		delta, err := last(indicator.NewDelta(seq))
		if err != nil {
			return nil, fmt.Errorf("%s delta: %w", h.field, err)
		}
		pct, err := last(indicator.NewDeltaPercentage(seq))
		if err != nil {
			return nil, fmt.Errorf("%s delta percentage: %w", h.field, err)
		}
		lines = append(lines, thread.Line{
			Text: fmt.Sprintf("%s %s: %d (%+d) (%s)", TrendIcon(delta), h.label, int64(seq[len(seq)-1]), int64(delta), formatPercent(pct)),
		})
	}

	tests, err := last(indicator.NewDelta(recent.Series(dataset.TotalTests)))
	if err != nil {
		return nil, fmt.Errorf("tests delta: %w", err)
	}
	recovered, err := last(indicator.NewDelta(recent.Series(dataset.TotalRecovered)))
	if err != nil {
		return nil, fmt.Errorf("recovered delta: %w", err)
	}
	newPositives := recent.Series(dataset.NewInfected)

	lines = append(lines,
		thread.Line{Text: fmt.Sprintf("🧪 Tamponi giornalieri: %d", int64(tests)), ForceNew: true},
		thread.Line{Text: fmt.Sprintf("🆕 Nuovi positivi: %d", int64(newPositives[len(newPositives)-1]))},
		thread.Line{Text: fmt.Sprintf("💚 Nuovi guariti: %d", int64(recovered))},
	)

	if maDays > 0 {
		maPositives, err := movingAverageOf(ds.Series(dataset.NewInfected), maDays)
		if err != nil {
			return nil, fmt.Errorf("new positives moving average: %w", err)
		}
		deaths, err := indicator.NewDelta(ds.Series(dataset.TotalDeaths))
		if err != nil {
			return nil, err
		}
		maDeaths, err := movingAverageOf(deaths.All(), maDays)
		if err != nil {
			return nil, fmt.Errorf("deaths moving average: %w", err)
		}
		lines = append(lines,
			thread.Line{Text: fmt.Sprintf("📊 Media mobile %dgg nuovi positivi: %s", maDays, formatAverage(maPositives))},
			thread.Line{Text: fmt.Sprintf("📊 Media mobile %dgg decessi: %s", maDays, formatAverage(maDeaths))},
		)
	}
	return lines, nil
}

// TrendIcon returns the icon for the sign of a change.
func TrendIcon(v float64) string {
	switch {
	case v > 0:
		return trendUp
	case v == 0:
		return trendFlat
	default:
		return trendDown
	}
}

func last(ind indicator.Indicator, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	return ind.Last()
}

func movingAverageOf(seq indicator.Sequence, period int) (float64, error) {
	ma, err := indicator.NewMovingAverage(seq, period)
	if err != nil {
		return 0, err
	}
	return ma.Last()
}

func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/d"
	}
	return fmt.Sprintf("%+.2f%%", v)
}

func formatAverage(v float64) string {
	if math.IsNaN(v) {
		return "n/d"
	}
	return fmt.Sprintf("%.0f", v)
}
