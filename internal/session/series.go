package session

// DefaultSeriesLength is the number of samples kept per history series.
const DefaultSeriesLength = 100

// Series is a fixed-length sliding window of samples; the oldest sample is
// dropped once it is full.
type Series struct {
	buf   []float64
	start int
	n     int
}

// NewSeries returns an empty series holding at most length samples.
func NewSeries(length int) *Series {
	if length <= 0 {
		length = DefaultSeriesLength
	}
	return &Series{buf: make([]float64, length)}
}

// Push appends v.
func (s *Series) Push(v float64) {
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = v
		s.n++
		return
	}
	s.buf[s.start] = v
	s.start = (s.start + 1) % len(s.buf)
}

// Values returns the samples oldest first.
func (s *Series) Values() []float64 {
	out := make([]float64, s.n)
	for i := range out {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Len reports the number of samples held.
func (s *Series) Len() int { return s.n }
