package serialmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrPortClosed is returned by reads and writes on a closed test port.
var ErrPortClosed = errors.New("serial port closed")

// ReplayPort plays a fixture of sensor lines on a fixed interval, looping
// forever, so the whole pipeline can run without hardware. Writes are
// discarded.
type ReplayPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	stop chan struct{}
	once sync.Once
}

// NewReplayPort starts replaying lines, one every interval.
func NewReplayPort(lines []string, interval time.Duration) *ReplayPort {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w, stop: make(chan struct{})}
	go p.run(lines, interval)
	return p
}

func (p *ReplayPort) run(lines []string, interval time.Duration) {
	defer p.w.Close()
	if len(lines) == 0 {
		<-p.stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i = (i + 1) % len(lines) {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		if _, err := io.WriteString(p.w, lines[i]+"\r\n"); err != nil {
			return
		}
	}
}

func (p *ReplayPort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *ReplayPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *ReplayPort) Close() error {
	p.once.Do(func() {
		close(p.stop)
		p.r.Close()
	})
	return nil
}

// NewMockSerialMux returns a SerialMux backed by a ReplayPort.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*ReplayPort] {
	return NewSerialMux(NewReplayPort(lines, interval))
}

// ParseFixture splits fixture text into lines, skipping blanks and lines
// starting with '#'.
func ParseFixture(data []byte) []string {
	var lines []string
	scan := bufio.NewScanner(bytes.NewReader(data))
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// TestableSerialPort is a SerialPorter for tests. Reads block until data is
// added or the port is closed.
type TestableSerialPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	readCond *sync.Cond

	// ReadError is returned once by the next Read, if set.
	ReadError error
	// CloseError is returned by Close, if set.
	CloseError error
	// Closed reports whether Close was called.
	Closed bool
}

// NewTestableSerialPort creates an empty port.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.Closed && t.ReadError == nil && t.readBuf.Len() == 0 {
		t.readCond.Wait()
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.readBuf.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, ErrPortClosed
	}
	return len(p), nil
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData queues data for subsequent reads.
func (t *TestableSerialPort) AddReadData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.WriteString(data)
	t.readCond.Broadcast()
}

// FailNextRead makes the next Read return err.
func (t *TestableSerialPort) FailNextRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
	t.readCond.Broadcast()
}
