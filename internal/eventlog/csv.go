package eventlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/banshee-data/pressure.report/internal/fsutil"
)

// CSVHeader is the first line of every log file.
var CSVHeader = []string{"Time", "Steps", "Voltage", "Direction"}

// CSVWriter appends rows to a CSV file, writing the header when the file is
// new or empty. A write that fails part way may leave some rows on disk;
// the retried batch then duplicates them.
type CSVWriter struct {
	fs   fsutil.FileSystem
	path string
}

// NewCSVWriter returns a writer for path on fsys.
func NewCSVWriter(fsys fsutil.FileSystem, path string) *CSVWriter {
	return &CSVWriter{fs: fsys, path: path}
}

// Path returns the target file path.
func (c *CSVWriter) Path() string { return c.path }

func (c *CSVWriter) WriteRows(_ context.Context, rows []Row) (err error) {
	if len(rows) == 0 {
		return nil
	}
	fresh := true
	if info, statErr := c.fs.Stat(c.path); statErr == nil && info.Size() > 0 {
		fresh = false
	}

	f, err := c.fs.OpenAppend(c.path)
	if err != nil {
		return fmt.Errorf("open csv log %s: %w", c.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv log %s: %w", c.path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, r := range rows {
		rec := []string{
			r.FormattedTime(),
			strconv.Itoa(r.StepCount),
			strconv.FormatFloat(r.Voltage, 'f', -1, 64),
			r.Direction,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv log %s: %w", c.path, err)
	}
	return nil
}
