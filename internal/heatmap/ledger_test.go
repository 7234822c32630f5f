package heatmap

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)

func TestLedger_SnapshotDropsExpired(t *testing.T) {
	l := NewLedger(DefaultLedgerCapacity, DefaultWindow)
	l.Insert(Point{X: 1, Y: 1, CreatedAt: t0})
	l.Insert(Point{X: 2, Y: 2, CreatedAt: t0.Add(2 * time.Second)})
	l.Insert(Point{X: 3, Y: 3, CreatedAt: t0.Add(4 * time.Second)})

	// exactly on the window edge is still visible
	got := l.Snapshot(t0.Add(5 * time.Second))
	require.Len(t, got, 3)

	got = l.Snapshot(t0.Add(6 * time.Second))
	want := []Point{
		{X: 2, Y: 2, CreatedAt: t0.Add(2 * time.Second)},
		{X: 3, Y: 3, CreatedAt: t0.Add(4 * time.Second)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// compaction is permanent: rewinding time does not resurrect points
	assert.Len(t, l.Snapshot(t0), 2)
	assert.Equal(t, 2, l.Len())
}

func TestLedger_SnapshotIsIdempotent(t *testing.T) {
	l := NewLedger(50, DefaultWindow)
	for i := 0; i < 40; i++ {
		l.Insert(Point{X: i, Y: i, CreatedAt: t0.Add(time.Duration(i) * 250 * time.Millisecond)})
	}
	now := t0.Add(8 * time.Second)

	first := l.Snapshot(now)
	second := l.Snapshot(now)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second snapshot differs (-first +second):\n%s", diff)
	}
	for _, p := range first {
		assert.LessOrEqual(t, now.Sub(p.CreatedAt), DefaultWindow)
	}
}

func TestLedger_CapacityKeepsMostRecent(t *testing.T) {
	l := NewLedger(1000, DefaultWindow)
	for i := 0; i < 1001; i++ {
		l.Insert(Point{X: i, Y: 0, CreatedAt: t0})
	}

	got := l.Snapshot(t0)
	require.Len(t, got, 1000)
	for i, p := range got {
		assert.Equal(t, i+1, p.X, "point %d out of order", i)
	}
}

func TestLedger_NeverExceedsCapacityUnderBurst(t *testing.T) {
	l := NewLedger(16, DefaultWindow)
	for i := 0; i < 500; i++ {
		l.Insert(Point{X: i, CreatedAt: t0})
		require.LessOrEqual(t, l.Len(), 16)
	}
	got := l.Snapshot(t0.Add(time.Second))
	assert.Len(t, got, 16)
	assert.Equal(t, 484, got[0].X)
}

func TestLedger_SnapshotReturnsCopy(t *testing.T) {
	l := NewLedger(4, DefaultWindow)
	l.Insert(Point{X: 1, CreatedAt: t0})
	got := l.Snapshot(t0)
	got[0].X = 99
	assert.Equal(t, 1, l.Snapshot(t0)[0].X)
}

func TestNewLedger_DefaultsCapacity(t *testing.T) {
	l := NewLedger(0, time.Second)
	assert.Equal(t, DefaultLedgerCapacity, l.Capacity())
	assert.Equal(t, time.Second, l.Window())
}
