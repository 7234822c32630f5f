package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := captureLogs(t)
	Logf("hello %d", 1)
	assert.Equal(t, []string{"hello 1"}, *lines)

	SetLogger(nil)
	Logf("muted") // must not panic
	assert.Len(t, *lines, 1)
}

func TestThrottle(t *testing.T) {
	lines := captureLogs(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottle(10 * time.Second)
	th.now = func() time.Time { return now }

	th.Logf("camera", "camera read failed: %v", "eof")
	now = now.Add(time.Second)
	th.Logf("camera", "camera read failed: %v", "eof")
	th.Logf("camera", "camera read failed: %v", "eof")
	th.Logf("decode", "bad record")
	now = now.Add(10 * time.Second)
	th.Logf("camera", "camera read failed: %v", "eof")

	assert.Equal(t, []string{
		"camera read failed: eof",
		"bad record",
		"camera read failed: eof (2 similar suppressed)",
	}, *lines)
}
