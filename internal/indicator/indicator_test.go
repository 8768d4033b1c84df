package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilSequenceRejected(t *testing.T) {
	_, err := NewDelta(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewDeltaPercentage(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewMovingAverage(nil, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOutOfRange(t *testing.T) {
	seq := Sequence{0, 1, 2}
	d, err := NewDelta(seq)
	require.NoError(t, err)
	dp, err := NewDeltaPercentage(seq)
	require.NoError(t, err)
	ma, err := NewMovingAverage(seq, 2)
	require.NoError(t, err)

	for _, ind := range []Indicator{d, dp, ma} {
		_, err := ind.Calculate(-1)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = ind.Calculate(3)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

func TestEmptySequence(t *testing.T) {
	d, err := NewDelta(Sequence{})
	require.NoError(t, err)
	assert.Empty(t, d.All())
	_, err = d.Last()
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestDelta(t *testing.T) {
	d, err := NewDelta(Sequence{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, d.All())

	d, err = NewDelta(Sequence{10, 20, 30})
	require.NoError(t, err)
	last, err := d.Last()
	require.NoError(t, err)
	assert.Equal(t, 10.0, last)

	d, err = NewDelta(Sequence{-7, 4})
	require.NoError(t, err)
	first, err := d.Calculate(0)
	require.NoError(t, err)
	assert.Equal(t, -7.0, first)
}

func TestDeltaAllIsRestartable(t *testing.T) {
	d, err := NewDelta(Sequence{5, 8, 2})
	require.NoError(t, err)
	assert.Equal(t, d.All(), d.All())
}

func TestDeltaPercentage(t *testing.T) {
	dp, err := NewDeltaPercentage(Sequence{19, 25, 55})
	require.NoError(t, err)

	v, err := dp.Calculate(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, v, 1e-9)

	v, err = dp.Calculate(1)
	require.NoError(t, err)
	assert.InDelta(t, 31.57, v, 0.01)

	v, err = dp.Calculate(2)
	require.NoError(t, err)
	assert.InDelta(t, 120, v, 1e-9)

	dp, err = NewDeltaPercentage(Sequence{15, 20, 5})
	require.NoError(t, err)
	last, err := dp.Last()
	require.NoError(t, err)
	assert.InDelta(t, -75, last, 1e-9)
}

func TestMovingAverage(t *testing.T) {
	t.Run("period 3", func(t *testing.T) {
		ma, err := NewMovingAverage(Sequence{1, 2, 3}, 3)
		require.NoError(t, err)
		v0, _ := ma.Calculate(0)
		v1, _ := ma.Calculate(1)
		v2, err := ma.Calculate(2)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v0))
		assert.True(t, math.IsNaN(v1))
		assert.InDelta(t, 2.0, v2, 1e-9)
	})

	t.Run("period 1 is identity", func(t *testing.T) {
		ma, err := NewMovingAverage(Sequence{3, 4, 5, 6, 7}, 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 4, 5, 6, 7}, ma.All())
	})

	t.Run("last value", func(t *testing.T) {
		ma, err := NewMovingAverage(Sequence{2, 4, 6, 8.5, 10}, 3)
		require.NoError(t, err)
		last, err := ma.Last()
		require.NoError(t, err)
		assert.InDelta(t, 8.16, last, 0.01)
	})

	t.Run("period longer than data", func(t *testing.T) {
		ma, err := NewMovingAverage(Sequence{1, 2, 3}, 4)
		require.NoError(t, err)
		for _, v := range ma.All() {
			assert.True(t, math.IsNaN(v))
		}
	})

	t.Run("invalid periods", func(t *testing.T) {
		_, err := NewMovingAverage(Sequence{1, 2, 3}, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = NewMovingAverage(Sequence{1, 2, 3}, -1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDefined(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, []float64{2, 3}, Defined([]float64{nan, nan, 2, 3}))
	assert.Empty(t, Defined([]float64{nan, nan}))
	assert.Equal(t, []float64{1}, Defined([]float64{1}))
}
