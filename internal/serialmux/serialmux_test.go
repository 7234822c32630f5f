package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pressure.report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMonitor(t *testing.T, mux *SerialMux[*TestableSerialPort]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestMonitor_FansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()
	startMonitor(t, mux)

	port.AddReadData("Step:1,Volt:6.0,Dir:LEFT\r\n\r\nStep:2,Volt:1.0,Dir:DOWN\n")

	assert.Equal(t, "Step:1,Volt:6.0,Dir:LEFT", recv(t, a))
	assert.Equal(t, "Step:2,Volt:1.0,Dir:DOWN", recv(t, a))
	assert.Equal(t, "Step:1,Volt:6.0,Dir:LEFT", recv(t, b))
	assert.Equal(t, "Step:2,Volt:1.0,Dir:DOWN", recv(t, b))

	require.Eventually(t, func() bool { return mux.Stats().Lines == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, mux.Stats().Subscribers)
}

func TestMonitor_DropsForFullSubscriber(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	mux.bufferSize = 1
	_, ch := mux.Subscribe()
	startMonitor(t, mux)

	port.AddReadData("one\ntwo\nthree\n")
	require.Eventually(t, func() bool { return mux.Stats().Lines == 3 }, time.Second, time.Millisecond)

	assert.Equal(t, "one", recv(t, ch))
	assert.EqualValues(t, 2, mux.Stats().Dropped)
}

func TestMonitor_ReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, done := startMonitor(t, mux)

	boom := errors.New("device unplugged")
	port.FailNextRead(boom)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not return")
	}
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	cancel, done := startMonitor(t, mux)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestClose_ClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed)

	// second close is a no-op
	require.NoError(t, mux.Close())
}

func TestLineSource_TryNext(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	src := NewLineSource(mux)
	startMonitor(t, mux)

	_, ok := src.TryNext()
	assert.False(t, ok, "no line pending")

	port.AddReadData("Step:42,Volt:7.50,Dir:LEFT\n")
	var line string
	require.Eventually(t, func() bool {
		line, ok = src.TryNext()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, "Step:42,Volt:7.50,Dir:LEFT", line)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 0, mux.Stats().Subscribers)
	_, ok = src.TryNext()
	assert.False(t, ok)
}

func TestReplayPort_LoopsFixture(t *testing.T) {
	mux := NewMockSerialMux([]string{"a", "b"}, time.Millisecond)
	_, ch := mux.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	got := []string{recv(t, ch), recv(t, ch), recv(t, ch)}
	assert.Equal(t, []string{"a", "b", "a"}, got)
	require.NoError(t, mux.Close())
}

func TestParseFixture(t *testing.T) {
	data := []byte("# demo walk\nStep:1,Volt:6,Dir:LEFT\n\n  Step:2,Volt:7,Dir:RIGHT  \n")
	assert.Equal(t, []string{"Step:1,Volt:6,Dir:LEFT", "Step:2,Volt:7,Dir:RIGHT"}, ParseFixture(data))
}

func TestAttachAdminRoutes_Stats(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, testutil.NewLocalRequest(http.MethodGet, "/debug/sensor-stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lines":0,"dropped":0,"subscribers":0}`, rec.Body.String())
}

func TestAttachAdminRoutes_TailRejectsPost(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, testutil.NewLocalRequest(http.MethodPost, "/debug/tail", strings.NewReader("")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAttachAdminRoutes_TailStreamsLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	startMonitor(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	req := testutil.NewLocalRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return mux.Stats().Subscribers == 1 }, time.Second, time.Millisecond)
	port.AddReadData("Step:3,Volt:9,Dir:FORWARD\n")
	require.Eventually(t, func() bool { return mux.Stats().Lines == 1 }, time.Second, time.Millisecond)
	// give the handler a moment to write the event before cancelling
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data: Step:3,Volt:9,Dir:FORWARD")
}

func TestPortOptions_Normalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{BaudRate: 115200, Parity: "even", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	_, err = PortOptions{DataBits: 9}.Normalize()
	assert.Error(t, err)
	_, err = PortOptions{StopBits: 3}.Normalize()
	assert.Error(t, err)
	_, err = PortOptions{Parity: "mark"}.Normalize()
	assert.Error(t, err)
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
}
