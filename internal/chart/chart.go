// Package chart renders the dataset into PNG charts attached to the thread.
package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rewired-gh/dailythread/internal/dataset"
	"github.com/rewired-gh/dailythread/internal/indicator"
	"github.com/rewired-gh/dailythread/internal/logger"
)

var (
	blue  = drawing.ColorFromHex("636EFA")
	red   = drawing.ColorFromHex("EF553B")
	green = drawing.ColorFromHex("00CC96")
)

// Renderer writes chart images for a dataset into dir and returns their paths.
type Renderer interface {
	Render(ds *dataset.Dataset, dir string) ([]string, error)
}

// Disabled renders nothing.
type Disabled struct{}

func (Disabled) Render(*dataset.Dataset, string) ([]string, error) { return nil, nil }

// PNGRenderer draws line charts with go-chart.
type PNGRenderer struct {
	MovingAverageDays int
	Width             int
	Height            int
}

// NewPNGRenderer returns a renderer with 1200x800 images.
func NewPNGRenderer(maDays int) *PNGRenderer {
	return &PNGRenderer{MovingAverageDays: maDays, Width: 1200, Height: 800}
}

type line struct {
	name   string
	color  drawing.Color
	values []float64
}

type spec struct {
	title string
	dates []time.Time
	lines []line
}

func (r *PNGRenderer) Render(ds *dataset.Dataset, dir string) ([]string, error) {
	specs, err := r.specs(ds)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}

	var paths []string
	for _, s := range specs {
		if len(s.dates) < 2 {
			logger.Debug("Skipping chart %q: %d points", s.title, len(s.dates))
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("chart_%d.png", len(paths)))
		if err := r.write(path, s); err != nil {
			return nil, fmt.Errorf("failed to render %q: %w", s.title, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *PNGRenderer) specs(ds *dataset.Dataset) ([]spec, error) {
	dates := ds.Dates()

	delta := func(f dataset.Field) ([]float64, error) {
		d, err := indicator.NewDelta(ds.Series(f))
		if err != nil {
			return nil, err
		}
		return d.All(), nil
	}
	tests, err := delta(dataset.TotalTests)
	if err != nil {
		return nil, err
	}
	newRecovered, err := delta(dataset.TotalRecovered)
	if err != nil {
		return nil, err
	}
	newDeaths, err := delta(dataset.TotalDeaths)
	if err != nil {
		return nil, err
	}

	specs := []spec{
		{
			title: "COVID2019 Italia - contagiati attivi, deceduti e guariti",
			dates: dates,
			lines: []line{
				{"Contagiati Attivi", blue, ds.Series(dataset.TotalActivePositives)},
				{"Deceduti", red, ds.Series(dataset.TotalDeaths)},
				{"Guariti", green, ds.Series(dataset.TotalRecovered)},
			},
		},
		{
			title: "COVID2019 Italia - ospedalizzati e isolamento domiciliare dei positivi",
			dates: dates,
			lines: []line{
				{"Ospedalizzati TI", red, ds.Series(dataset.IntensiveCare)},
				{"Ospedalizzati Non TI", blue, ds.Series(dataset.HospitalizedNonIC)},
				{"Isolamento Domiciliare", green, ds.Series(dataset.HomeConfinement)},
			},
		},
		{
			title: "COVID2019 Italia - tamponi effettuati giornalmente e nuovi infetti",
			dates: dates,
			lines: []line{
				{"Tamponi Effettuati", blue, tests},
				{"Nuovi Infetti", red, ds.Series(dataset.NewInfected)},
			},
		},
	}

	if r.MovingAverageDays > 0 {
		avg := func(values []float64) ([]float64, error) {
			ma, err := indicator.NewMovingAverage(values, r.MovingAverageDays)
			if err != nil {
				return nil, err
			}
			return indicator.Defined(ma.All()), nil
		}
		positives, err := avg(ds.Series(dataset.NewInfected))
		if err != nil {
			return nil, err
		}
		recovered, err := avg(newRecovered)
		if err != nil {
			return nil, err
		}
		deaths, err := avg(newDeaths)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec{
			title: fmt.Sprintf("COVID2019 Italia - nuovi guariti, morti, infetti [media mobile %dgg]", r.MovingAverageDays),
			dates: dates[len(dates)-len(positives):],
			lines: []line{
				{"Infetti", blue, positives},
				{"Guariti", green, recovered},
				{"Morti", red, deaths},
			},
		})
	}
	return specs, nil
}

func (r *PNGRenderer) write(path string, s spec) error {
	series := make([]gochart.Series, 0, len(s.lines))
	for _, l := range s.lines {
		series = append(series, gochart.TimeSeries{
			Name: l.name,
			Style: gochart.Style{
				StrokeColor: l.color,
				StrokeWidth: 2,
			},
			XValues: s.dates,
			YValues: l.values,
		})
	}

	graph := gochart.Chart{
		Title:  s.title,
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 60, Left: 30, Right: 30, Bottom: 30},
		},
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat("02-01-06"),
		},
		Series: series,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := graph.Render(gochart.PNG, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
