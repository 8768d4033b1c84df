// Package indicator computes per-index derived values over a fixed numeric
// sequence: delta, delta percentage and moving average.
//
// Indicators are pure. They hold a reference to the sequence they were built
// with and never modify it.
package indicator

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Sequence is an ordered list of samples of one quantity over successive
// periods. A nil Sequence is absent; an empty one is valid.
type Sequence []float64

// Indicator evaluates a derived value at an index of its sequence.
type Indicator interface {
	// Calculate returns the value at index i.
	Calculate(i int) (float64, error)
	// All returns the value at every index of the sequence.
	All() []float64
	// Last is Calculate(len-1).
	Last() (float64, error)
}

type series struct {
	data Sequence
}

func newSeries(data Sequence) (series, error) {
	if data == nil {
		return series{}, fmt.Errorf("%w: sequence is nil", ErrInvalidArgument)
	}
	return series{data: data}, nil
}

func (s series) checkRange(i int) error {
	if i < 0 || i >= len(s.data) {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, len(s.data))
	}
	return nil
}

func all(s series, calc func(int) float64) []float64 {
	out := make([]float64, len(s.data))
	for i := range s.data {
		out[i] = calc(i)
	}
	return out
}

// Delta is the change from the previous sample. At index 0 it is the first
// sample itself.
type Delta struct {
	series
}

func NewDelta(data Sequence) (*Delta, error) {
	s, err := newSeries(data)
	if err != nil {
		return nil, err
	}
	return &Delta{series: s}, nil
}

func (d *Delta) calc(i int) float64 {
	if i == 0 {
		return d.data[0]
	}
	return d.data[i] - d.data[i-1]
}

func (d *Delta) Calculate(i int) (float64, error) {
	if err := d.checkRange(i); err != nil {
		return 0, err
	}
	return d.calc(i), nil
}

func (d *Delta) All() []float64 { return all(d.series, d.calc) }

func (d *Delta) Last() (float64, error) { return d.Calculate(len(d.data) - 1) }

// DeltaPercentage is the change from the previous sample relative to it, in
// percent. Index 0 has no reference and yields 0.
type DeltaPercentage struct {
	series
}

func NewDeltaPercentage(data Sequence) (*DeltaPercentage, error) {
	s, err := newSeries(data)
	if err != nil {
		return nil, err
	}
	return &DeltaPercentage{series: s}, nil
}

func (d *DeltaPercentage) calc(i int) float64 {
	if i == 0 {
		return 0
	}
	prev := d.data[i-1]
	return 100 * (d.data[i] - prev) / prev
}

func (d *DeltaPercentage) Calculate(i int) (float64, error) {
	if err := d.checkRange(i); err != nil {
		return 0, err
	}
	return d.calc(i), nil
}

func (d *DeltaPercentage) All() []float64 { return all(d.series, d.calc) }

func (d *DeltaPercentage) Last() (float64, error) { return d.Calculate(len(d.data) - 1) }

// MovingAverage is the simple mean over the trailing window [i-period+1, i].
// Indexes whose window starts before 0 yield NaN.
type MovingAverage struct {
	series
	period int
}

func NewMovingAverage(data Sequence, period int) (*MovingAverage, error) {
	s, err := newSeries(data)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %d", ErrInvalidArgument, period)
	}
	return &MovingAverage{series: s, period: period}, nil
}

// Period returns the window length.
func (m *MovingAverage) Period() int { return m.period }

func (m *MovingAverage) calc(i int) float64 {
	start := i + 1 - m.period
	if start < 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range m.data[start : i+1] {
		sum += v
	}
	return sum / float64(m.period)
}

func (m *MovingAverage) Calculate(i int) (float64, error) {
	if err := m.checkRange(i); err != nil {
		return 0, err
	}
	return m.calc(i), nil
}

func (m *MovingAverage) All() []float64 { return all(m.series, m.calc) }

func (m *MovingAverage) Last() (float64, error) { return m.Calculate(len(m.data) - 1) }

// Defined returns the values of all with the leading NaN warm-up removed.
func Defined(values []float64) []float64 {
	for i, v := range values {
		if !math.IsNaN(v) {
			return values[i:]
		}
	}
	return values[len(values):]
}
