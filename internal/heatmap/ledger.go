package heatmap

import "time"

const (
	// DefaultLedgerCapacity bounds the number of points held at once.
	DefaultLedgerCapacity = 1000
	// DefaultWindow is how long a point stays visible.
	DefaultWindow = 5 * time.Second
)

// Point is one qualifying motion event placed on the frame.
type Point struct {
	X, Y      int
	CreatedAt time.Time
}

// Ledger is an insertion-ordered, capacity-bounded store of recent points.
// Expired points are discarded on read, so there is no separate sweep.
// A Ledger is not safe for concurrent use; the session tick loop owns it.
type Ledger struct {
	points   []Point
	capacity int
	window   time.Duration
}

// NewLedger creates a ledger holding at most capacity points, each visible
// for window after creation.
func NewLedger(capacity int, window time.Duration) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		points:   make([]Point, 0, capacity),
		capacity: capacity,
		window:   window,
	}
}

// Insert appends p, dropping the oldest points while over capacity.
func (l *Ledger) Insert(p Point) {
	if len(l.points) == l.capacity {
		copy(l.points, l.points[1:])
		l.points = l.points[:len(l.points)-1]
	}
	l.points = append(l.points, p)
}

// Snapshot compacts the ledger to the points created within the window
// ending at now and returns a copy of them in insertion order.
func (l *Ledger) Snapshot(now time.Time) []Point {
	kept := l.points[:0]
	for _, p := range l.points {
		if now.Sub(p.CreatedAt) <= l.window {
			kept = append(kept, p)
		}
	}
	// clear the tail so dropped points do not linger in the backing array
	for i := len(kept); i < len(l.points); i++ {
		l.points[i] = Point{}
	}
	l.points = kept

	out := make([]Point, len(kept))
	copy(out, kept)
	return out
}

// Len reports how many points are currently held, expired or not.
func (l *Ledger) Len() int { return len(l.points) }

// Capacity reports the configured capacity.
func (l *Ledger) Capacity() int { return l.capacity }

// Window reports the configured visibility window.
func (l *Ledger) Window() time.Duration { return l.window }
