package eventlog

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pressure.report/internal/sensor"
)

func testRow(step int) Row {
	return Row{
		Timestamp: time.Date(2026, 2, 3, 4, 5, step%60, 0, time.Local),
		StepCount: step,
		Voltage:   5.5,
		Direction: "LEFT",
	}
}

func TestBuffer_DrainEmptiesBuffer(t *testing.T) {
	b := NewBuffer()
	b.Append(testRow(1))
	b.Append(testRow(2))

	got := b.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestBuffer_RequeueKeepsOrder(t *testing.T) {
	b := NewBuffer()
	b.Append(testRow(1))
	b.Append(testRow(2))
	drained := b.Drain()

	b.Append(testRow(3))
	b.Requeue(drained)

	want := []Row{testRow(1), testRow(2), testRow(3)}
	if diff := cmp.Diff(want, b.Drain()); diff != "" {
		t.Errorf("requeued order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuffer_ConcurrentAppendAndDrain(t *testing.T) {
	b := NewBuffer()
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Append(testRow(i))
		}
	}()

	var seen []Row
	for len(seen) < n {
		seen = append(seen, b.Drain()...)
	}
	wg.Wait()

	require.Len(t, seen, n)
	for i, r := range seen {
		require.Equal(t, i, r.StepCount, "rows lost or reordered")
	}
}

func TestRowFromEvent(t *testing.T) {
	ts := time.Date(2026, 2, 3, 14, 15, 16, 0, time.Local)
	ev, err := sensor.DecodeAt("Step:42,Volt:7.50,Dir:LEFT", ts)
	require.NoError(t, err)

	r := RowFromEvent(ev)
	assert.Equal(t, Row{Timestamp: ts, StepCount: 42, Voltage: 7.5, Direction: "LEFT"}, r)
	assert.Equal(t, "2026-02-03 14:15:16", r.FormattedTime())
}
