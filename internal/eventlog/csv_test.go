package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pressure.report/internal/fsutil"
)

func TestCSVWriter_CreatesWithHeaderThenAppends(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w := NewCSVWriter(mfs, "/logs/sensor_log.csv")
	ctx := context.Background()

	ts := time.Date(2026, 2, 3, 14, 15, 16, 0, time.Local)
	require.NoError(t, w.WriteRows(ctx, []Row{
		{Timestamp: ts, StepCount: 42, Voltage: 7.5, Direction: "LEFT"},
	}))
	require.NoError(t, w.WriteRows(ctx, []Row{
		{Timestamp: ts.Add(time.Second), StepCount: 3, Voltage: 2, Direction: "UNKNOWN"},
	}))

	data, err := mfs.ReadFile("/logs/sensor_log.csv")
	require.NoError(t, err)
	want := "Time,Steps,Voltage,Direction\n" +
		"2026-02-03 14:15:16,42,7.5,LEFT\n" +
		"2026-02-03 14:15:17,3,2,UNKNOWN\n"
	assert.Equal(t, want, string(data))
}

func TestCSVWriter_AppendsToExistingLog(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.WriteFile("/log.csv", []byte("Time,Steps,Voltage,Direction\n2026-01-01 00:00:00,1,6,DOWN\n"))

	w := NewCSVWriter(mfs, "/log.csv")
	require.NoError(t, w.WriteRows(context.Background(), []Row{testRow(2)}))

	data, err := mfs.ReadFile("/log.csv")
	require.NoError(t, err)
	assert.Equal(t,
		"Time,Steps,Voltage,Direction\n2026-01-01 00:00:00,1,6,DOWN\n2026-02-03 04:05:02,2,5.5,LEFT\n",
		string(data))
}

func TestCSVWriter_EmptyBatchIsNoop(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w := NewCSVWriter(mfs, "/log.csv")
	require.NoError(t, w.WriteRows(context.Background(), nil))
	assert.False(t, mfs.Exists("/log.csv"))
}

func TestCSVWriter_WriteFailure(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.FailWrites(true)
	w := NewCSVWriter(mfs, "/log.csv")

	err := w.WriteRows(context.Background(), []Row{testRow(1)})
	assert.ErrorIs(t, err, fsutil.ErrInjected)
}
