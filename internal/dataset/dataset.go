// Package dataset loads and validates the national daily COVID-19 dataset
// published by the Italian Civil Protection department.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rewired-gh/dailythread/internal/indicator"
)

// DateLayout is the layout of the dataset's "data" field and of the
// last-processed marker.
const DateLayout = "2006-01-02T15:04:05"

var ErrMalformedData = errors.New("malformed dataset")

// Field names one numeric column of the dataset.
type Field int

const (
	HospitalizedNonIC Field = iota
	IntensiveCare
	TotalHospitalized
	HomeConfinement
	TotalActivePositives
	DeltaActivePositives
	NewInfected
	TotalRecovered
	TotalDeaths
	TotalCases
	TotalTests
)

func (f Field) String() string {
	switch f {
	case HospitalizedNonIC:
		return "total_hospitalized_non_ic"
	case IntensiveCare:
		return "total_intensive_care"
	case TotalHospitalized:
		return "total_hospitalized"
	case HomeConfinement:
		return "total_home_confinement"
	case TotalActivePositives:
		return "total_active_positives"
	case DeltaActivePositives:
		return "delta_active_positives"
	case NewInfected:
		return "new_infected"
	case TotalRecovered:
		return "total_recovered"
	case TotalDeaths:
		return "total_deaths"
	case TotalCases:
		return "total_cases"
	case TotalTests:
		return "total_tests"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Record is one day of national data.
type Record struct {
	Date                 time.Time
	HospitalizedNonIC    int64
	IntensiveCare        int64
	TotalHospitalized    int64
	HomeConfinement      int64
	TotalActivePositives int64
	DeltaActivePositives int64
	NewInfected          int64
	TotalRecovered       int64
	TotalDeaths          int64
	TotalCases           int64
	TotalTests           int64
}

// Value returns the column f of the record.
func (r Record) Value(f Field) int64 {
	switch f {
	case HospitalizedNonIC:
		return r.HospitalizedNonIC
	case IntensiveCare:
		return r.IntensiveCare
	case TotalHospitalized:
		return r.TotalHospitalized
	case HomeConfinement:
		return r.HomeConfinement
	case TotalActivePositives:
		return r.TotalActivePositives
	case DeltaActivePositives:
		return r.DeltaActivePositives
	case NewInfected:
		return r.NewInfected
	case TotalRecovered:
		return r.TotalRecovered
	case TotalDeaths:
		return r.TotalDeaths
	case TotalCases:
		return r.TotalCases
	case TotalTests:
		return r.TotalTests
	default:
		return 0
	}
}

// rawRecord mirrors the upstream JSON. Pointers let validation tell a missing
// field from a zero.
type rawRecord struct {
	Date                 *string `json:"data" validate:"required"`
	HospitalizedNonIC    *int64  `json:"ricoverati_con_sintomi" validate:"required,gte=0"`
	IntensiveCare        *int64  `json:"terapia_intensiva" validate:"required,gte=0"`
	TotalHospitalized    *int64  `json:"totale_ospedalizzati" validate:"required,gte=0"`
	HomeConfinement      *int64  `json:"isolamento_domiciliare" validate:"required,gte=0"`
	TotalActivePositives *int64  `json:"totale_positivi" validate:"required,gte=0"`
	DeltaActivePositives *int64  `json:"variazione_totale_positivi" validate:"required"`
	NewInfected          *int64  `json:"nuovi_positivi" validate:"required"`
	TotalRecovered       *int64  `json:"dimessi_guariti" validate:"required,gte=0"`
	TotalDeaths          *int64  `json:"deceduti" validate:"required,gte=0"`
	TotalCases           *int64  `json:"totale_casi" validate:"required,gte=0"`
	TotalTests           *int64  `json:"tamponi" validate:"required,gte=0"`
}

var validate = validator.New()

// Dataset is the validated, date-ordered list of daily records.
type Dataset struct {
	records []Record
}

// New wraps already validated records.
func New(records []Record) *Dataset {
	return &Dataset{records: records}
}

// Parse decodes and validates the raw JSON dataset. Dates are read as UTC and
// converted to loc (UTC when nil).
func Parse(raw []byte, loc *time.Location) (*Dataset, error) {
	if loc == nil {
		loc = time.UTC
	}

	var raws []rawRecord
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	records := make([]Record, 0, len(raws))
	for i := range raws {
		r := &raws[i]
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedData, i, err)
		}
		date, err := time.ParseInLocation(DateLayout, *r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: could not parse date %q: %v", ErrMalformedData, i, *r.Date, err)
		}
		if i > 0 && !date.After(records[i-1].Date) {
			return nil, fmt.Errorf("%w: record %d: dates out of order", ErrMalformedData, i)
		}
		records = append(records, Record{
			Date:                 date.In(loc),
			HospitalizedNonIC:    *r.HospitalizedNonIC,
			IntensiveCare:        *r.IntensiveCare,
			TotalHospitalized:    *r.TotalHospitalized,
			HomeConfinement:      *r.HomeConfinement,
			TotalActivePositives: *r.TotalActivePositives,
			DeltaActivePositives: *r.DeltaActivePositives,
			NewInfected:          *r.NewInfected,
			TotalRecovered:       *r.TotalRecovered,
			TotalDeaths:          *r.TotalDeaths,
			TotalCases:           *r.TotalCases,
			TotalTests:           *r.TotalTests,
		})
	}
	return &Dataset{records: records}, nil
}

// Len returns the number of days in the dataset.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns the records in date order.
func (d *Dataset) Records() []Record { return d.records }

// Last returns a dataset of the trailing n records (all of them when n
// exceeds the length).
func (d *Dataset) Last(n int) *Dataset {
	if n >= len(d.records) {
		return d
	}
	if n < 0 {
		n = 0
	}
	return &Dataset{records: d.records[len(d.records)-n:]}
}

// Series returns column f as a numeric sequence.
func (d *Dataset) Series(f Field) indicator.Sequence {
	seq := make(indicator.Sequence, len(d.records))
	for i, r := range d.records {
		seq[i] = float64(r.Value(f))
	}
	return seq
}

// Dates returns the date of every record.
func (d *Dataset) Dates() []time.Time {
	dates := make([]time.Time, len(d.records))
	for i, r := range d.records {
		dates[i] = r.Date
	}
	return dates
}

// LastDate returns the date of the newest record.
func (d *Dataset) LastDate() (time.Time, bool) {
	if len(d.records) == 0 {
		return time.Time{}, false
	}
	return d.records[len(d.records)-1].Date, true
}
