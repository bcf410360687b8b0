package matcher

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramEmpty(t *testing.T) {
	h := NewHistogram(5)
	assert.Equal(t, 0, h.LargestBin())
	assert.Equal(t, int64(0), h.PeakOffset())
	assert.Equal(t, 0, h.Len())
}

func TestHistogramIdenticalDeltas(t *testing.T) {
	h := NewHistogram(5)
	for i := 0; i < 37; i++ {
		h.Add(12)
	}
	assert.Equal(t, 37, h.LargestBin())
	assert.Equal(t, int64(10), h.PeakOffset())
}

func TestHistogramDistinctBins(t *testing.T) {
	h := NewHistogram(5)
	for i := int64(-50); i < 50; i++ {
		h.Add(i * 5)
	}
	assert.Equal(t, 1, h.LargestBin())
	assert.Equal(t, 100, h.Len())
}

func TestHistogramSameBin(t *testing.T) {
	h := NewHistogram(5)
	for _, d := range []int64{10, 11, 12, 13, 14} {
		h.Add(d)
	}
	h.Add(15)
	assert.Equal(t, 5, h.LargestBin())
	assert.Equal(t, int64(10), h.PeakOffset())
}

func TestHistogramNegativeDeltasUseFloor(t *testing.T) {
	h := NewHistogram(5)
	// -1 .. -5 all land in bin -1, 0 lands in bin 0.
	for _, d := range []int64{-1, -2, -3, -4, -5} {
		h.Add(d)
	}
	h.Add(0)
	assert.Equal(t, 5, h.LargestBin())
	assert.Equal(t, int64(-5), h.PeakOffset())
}

func TestHistogramMonotonic(t *testing.T) {
	h := NewHistogram(3)
	r := rand.New(rand.NewSource(7))
	prev := 0
	for i := 0; i < 10000; i++ {
		h.Add(r.Int63n(200) - 100)
		got := h.LargestBin()
		if got < prev {
			t.Fatalf("LargestBin decreased from %d to %d after %d adds", prev, got, i+1)
		}
		if got > prev+1 {
			t.Fatalf("LargestBin grew by more than one bucket increment: %d -> %d", prev, got)
		}
		prev = got
	}

	want := 0
	for _, c := range h.counts {
		if c > want {
			want = c
		}
	}
	assert.Equal(t, want, h.LargestBin())
}

func TestHistogramPeakIgnoresOrder(t *testing.T) {
	a := NewHistogram(5)
	for _, d := range []int64{40, 40, 3, 3} {
		a.Add(d)
	}
	b := NewHistogram(5)
	for _, d := range []int64{3, 40, 3, 40} {
		b.Add(d)
	}
	assert.Equal(t, 2, a.LargestBin())
	assert.Equal(t, int64(0), a.PeakOffset())
	assert.Equal(t, a.PeakOffset(), b.PeakOffset())
}

func TestHistogramPanicsOnBadBinSize(t *testing.T) {
	assert.Panics(t, func() { NewHistogram(0) })
	assert.Panics(t, func() { NewHistogram(-5) })
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{10, 5, 2},
		{14, 5, 2},
		{0, 5, 0},
		{-1, 5, -1},
		{-5, 5, -1},
		{-6, 5, -2},
		{-10, 5, -2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, floorDiv(tt.a, tt.b), "floorDiv(%d, %d)", tt.a, tt.b)
	}
}
