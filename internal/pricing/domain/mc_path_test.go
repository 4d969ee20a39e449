package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrownianBridge_TerminalDependsOnFirstVariate(t *testing.T) {
	grid, err := NewTimeGrid([]float64{0.25, 1.0}, 8)
	require.NoError(t, err)
	bridge, err := NewBrownianBridge(grid)
	require.NoError(t, err)

	terminal := func(input []float64) float64 {
		out := make([]float64, bridge.Size())
		bridge.Transform(input, out)
		w := 0.0
		for i, z := range out {
			w += z * math.Sqrt(grid.Dt(i+1))
		}
		return w
	}

	a := []float64{0.7, 1, -2, 0.3, 0.5, -0.1, 1.2, -0.8}
	b := []float64{0.7, -1, 2, -0.3, 0.1, 0.9, -1.2, 0.4}
	assert.InDelta(t, 0.7, terminal(a), 1e-12)
	assert.InDelta(t, terminal(a), terminal(b), 1e-12)
}

func TestBrownianBridge_SingleIntervalIsIdentity(t *testing.T) {
	grid, err := NewTimeGrid([]float64{0.5}, 1)
	require.NoError(t, err)
	bridge, err := NewBrownianBridge(grid)
	require.NoError(t, err)

	out := make([]float64, 1)
	bridge.Transform([]float64{-1.3}, out)
	assert.InDelta(t, -1.3, out[0], 1e-12)
}

func TestBrownianBridge_PreservesIncrementVariance(t *testing.T) {
	grid, err := NewTimeGrid([]float64{0.3, 1.0}, 6)
	require.NoError(t, err)
	bridge, err := NewBrownianBridge(grid)
	require.NoError(t, err)
	gen, err := SequencePseudoRandom.NewSequenceGenerator(bridge.Size(), 42, 0, 1)
	require.NoError(t, err)

	stats := make([]*SampleAccumulator, bridge.Size())
	for i := range stats {
		stats[i] = &SampleAccumulator{}
	}
	out := make([]float64, bridge.Size())
	for range 20000 {
		bridge.Transform(gen.NextSequence(), out)
		for i, z := range out {
			stats[i].Add(z, 1)
		}
	}
	for i, s := range stats {
		assert.InDelta(t, 0, s.Mean(), 0.05, "increment %d", i)
		assert.InDelta(t, 1, s.Variance(), 0.05, "increment %d", i)
	}
}

func TestPathGenerator_AntitheticMirrorsLogReturns(t *testing.T) {
	process, err := NewBlackScholesProcess(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 100, 0.05, 0.01, 0.3)
	require.NoError(t, err)
	grid, err := NewTimeGrid([]float64{0.5, 1.0}, 4)
	require.NoError(t, err)
	seq, err := SequencePseudoRandom.NewSequenceGenerator(4, 1, 0, 1)
	require.NoError(t, err)
	gen, err := NewPathGenerator(process, grid, seq, false)
	require.NoError(t, err)

	path := gen.Next()
	forward := append([]float64(nil), path.Values...)
	mirror := gen.Antithetic()

	drift := 0.05 - 0.01 - 0.5*0.3*0.3
	for i := range forward {
		sum := math.Log(forward[i]/100) + math.Log(mirror.Values[i]/100)
		assert.InDelta(t, 2*drift*grid.At(i), sum, 1e-12)
	}
	assert.Equal(t, 100.0, mirror.Front())
}

func TestNewPathGenerator_DimensionMismatch(t *testing.T) {
	process, err := NewBlackScholesProcess(time.Now(), 100, 0.05, 0, 0.2)
	require.NoError(t, err)
	grid, err := NewTimeGrid([]float64{1.0}, 4)
	require.NoError(t, err)
	seq, err := SequencePseudoRandom.NewSequenceGenerator(3, 1, 0, 1)
	require.NoError(t, err)
	_, err = NewPathGenerator(process, grid, seq, true)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSequenceGenerators(t *testing.T) {
	a, err := SequencePseudoRandom.NewSequenceGenerator(3, 99, 0, 2)
	require.NoError(t, err)
	b, err := SequencePseudoRandom.NewSequenceGenerator(3, 99, 0, 2)
	require.NoError(t, err)
	c, err := SequencePseudoRandom.NewSequenceGenerator(3, 99, 1, 2)
	require.NoError(t, err)
	first := append([]float64(nil), a.NextSequence()...)
	assert.Equal(t, first, b.NextSequence())
	assert.NotEqual(t, first, c.NextSequence())

	h, err := SequenceLowDiscrepancy.NewSequenceGenerator(2, 0, 0, 1)
	require.NoError(t, err)
	// 下标 1：底 2 → 0.5，底 3 → 1/3
	draw := h.NextSequence()
	assert.InDelta(t, 0, draw[0], 1e-12)
	assert.Less(t, draw[1], 0.0)

	_, err = SequenceLowDiscrepancy.NewSequenceGenerator(0, 0, 0, 1)
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = SequencePseudoRandom.NewSequenceGenerator(2, 0, 2, 2)
	require.ErrorIs(t, err, ErrConfiguration)

	kind, err := ParseSequenceKind("Halton")
	require.NoError(t, err)
	assert.Equal(t, SequenceLowDiscrepancy, kind)
	assert.False(t, kind.AllowsErrorEstimate())
	_, err = ParseSequenceKind("sobol")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRadicalInverse(t *testing.T) {
	assert.InDelta(t, 0.5, radicalInverse(1, 2), 1e-15)
	assert.InDelta(t, 0.25, radicalInverse(2, 2), 1e-15)
	assert.InDelta(t, 0.75, radicalInverse(3, 2), 1e-15)
	assert.InDelta(t, 1.0/3+1.0/9, radicalInverse(4, 3), 1e-15)
	assert.Equal(t, []uint64{2, 3, 5, 7, 11, 13}, firstPrimes(6))
}

func TestHaltonGenerator_LeapfrogPartitionsSequence(t *testing.T) {
	const streams = 3
	whole, err := SequenceLowDiscrepancy.NewSequenceGenerator(2, 0, 0, 1)
	require.NoError(t, err)
	var want [][]float64
	for range 9 {
		want = append(want, append([]float64(nil), whole.NextSequence()...))
	}

	// 工作者 w 依次取第 w+1、w+1+streams、... 个点，合起来不重不漏
	for w := range streams {
		gen, err := SequenceLowDiscrepancy.NewSequenceGenerator(2, 0, w, streams)
		require.NoError(t, err)
		for k := range 3 {
			assert.Equal(t, want[w+k*streams], gen.NextSequence(), "stream %d draw %d", w, k)
		}
	}

	assert.InDelta(t, 0, want[0][0], 1e-12, "first point is the base-2 midpoint")
	assert.Equal(t, 2, whole.Dimension())
}

func TestBlackScholesProcess_TimeAndNotification(t *testing.T) {
	ref := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	p, err := NewBlackScholesProcess(ref, 100, 0.05, 0.01, 0.2)
	require.NoError(t, err)

	assert.InDelta(t, 0, p.Time(ref), 1e-15)
	assert.InDelta(t, 365.0/365, p.Time(time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC)), 1e-15)
	assert.InDelta(t, 91.0/365, p.Time(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)), 1e-15)
	assert.InDelta(t, math.Exp(-0.05*2), p.Discount(2), 1e-15)

	calls := 0
	unsubscribe := p.Subscribe(func() { calls++ })
	p.SetVolatility(0.2)
	assert.Equal(t, 0, calls)
	p.SetVolatility(0.25)
	p.SetSpot(101)
	assert.Equal(t, 2, calls)
	unsubscribe()
	p.SetRiskFreeRate(0.04)
	assert.Equal(t, 2, calls)

	_, err = NewBlackScholesProcess(ref, 0, 0.05, 0, 0.2)
	require.ErrorIs(t, err, ErrInvalidMarketData)
}
