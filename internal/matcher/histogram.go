package matcher

// Histogram counts time deltas in fixed-width bins. Bins are created lazily
// and only the size of the largest bin is tracked, which is all the scoring
// needs.
type Histogram struct {
	binSize int64
	counts  map[int64]int
	max     int
	peak    int64 // lowest bin holding max deltas
	n       int
}

// NewHistogram panics if binSize is not positive.
func NewHistogram(binSize int64) *Histogram {
	if binSize <= 0 {
		panic("matcher: histogram bin size must be positive")
	}
	return &Histogram{
		binSize: binSize,
		counts:  make(map[int64]int),
	}
}

// Add records one delta in bin floor(delta / binSize).
func (h *Histogram) Add(delta int64) {
	bin := floorDiv(delta, h.binSize)
	h.counts[bin]++
	h.n++
	switch c := h.counts[bin]; {
	case c > h.max:
		h.max = c
		h.peak = bin
	case c == h.max && bin < h.peak:
		h.peak = bin
	}
}

// LargestBin returns the number of deltas in the fullest bin, 0 when empty.
func (h *Histogram) LargestBin() int {
	return h.max
}

// PeakOffset returns the lower bound of the fullest bin. Ties go to the
// lowest bin, so the result does not depend on the order of Add calls.
func (h *Histogram) PeakOffset() int64 {
	return h.peak * h.binSize
}

// Len returns the number of deltas added.
func (h *Histogram) Len() int {
	return h.n
}

// floorDiv rounds toward negative infinity so that negative deltas bucket
// the same way positive ones do. b must be positive.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
