// Package session runs the live pressure-mapping loop: one tick every
// interval logs every pending sensor record, applies at most one of them to
// the activity ledger, renders the density overlay and zones, and publishes
// an immutable Snapshot for readers.
//
// All mutable engine state lives in a SessionState owned by the goroutine
// calling Run; other goroutines talk to the controller through ToggleMode
// and Stop and read only published snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pressure.report/internal/camera"
	"github.com/banshee-data/pressure.report/internal/eventlog"
	"github.com/banshee-data/pressure.report/internal/heatmap"
	"github.com/banshee-data/pressure.report/internal/monitoring"
	"github.com/banshee-data/pressure.report/internal/sensor"
	"github.com/banshee-data/pressure.report/internal/timeutil"
)

const (
	// DefaultTickInterval is the scheduler period.
	DefaultTickInterval = 500 * time.Millisecond
	// DefaultBacklogLength bounds the decoded records waiting to be applied.
	DefaultBacklogLength = 64

	// maxLinesPerTick bounds how many lines one tick drains from the source.
	maxLinesPerTick = 1024
)

// ErrFatalInit marks failures to open the sensor link or camera. The
// process must exit without entering Running.
var ErrFatalInit = errors.New("session: fatal initialisation error")

// RecordSource yields raw sensor lines without blocking.
type RecordSource interface {
	// TryNext returns the next pending line, or false when none is waiting.
	TryNext() (string, bool)
	Close() error
}

// Flusher performs the final event-log flush on shutdown.
type Flusher interface {
	Close() error
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Width, Height int

	Mapper     *heatmap.Mapper
	Ledger     *heatmap.Ledger
	Rasterizer *heatmap.Rasterizer
	Zones      heatmap.ZoneExtractor
	ZoneCount  int
	Compositor *heatmap.Compositor
	// Annotate draws zone markers onto the composite.
	Annotate bool

	Records RecordSource
	Camera  camera.Source
	// Log receives a row for every decoded record.
	Log *eventlog.Buffer
	// Flusher is closed during shutdown, before Stopped is reached.
	Flusher Flusher

	Clock        timeutil.Clock
	TickInterval time.Duration
	SeriesLength int
	// BacklogLength bounds decoded records waiting to be applied. When
	// full the oldest waiting record is skipped; it has already been logged.
	BacklogLength int
	InitialMode   Mode
}

// SessionState is the engine state carried from tick to tick.
type SessionState struct {
	Mode     Mode
	Frame    *image.RGBA
	Step     int
	Voltage  float64
	Ledger   *heatmap.Ledger
	Voltages *Series
	Steps    *Series
	// Backlog holds logged records not yet applied, oldest first.
	Backlog []sensor.Event

	Tick         uint64
	Records      uint64
	Skipped      uint64
	DecodeErrors uint64
	FrameErrors  uint64
}

// Snapshot is the immutable view published after every tick.
type Snapshot struct {
	Tick         uint64         `json:"tick"`
	Time         time.Time      `json:"time"`
	State        State          `json:"state"`
	Mode         Mode           `json:"mode"`
	Step         int            `json:"step"`
	Voltage      float64        `json:"voltage"`
	ActivePoints int            `json:"active_points"`
	Zones        []heatmap.Zone `json:"zones"`
	Voltages     []float64      `json:"voltages"`
	Steps        []float64      `json:"steps"`
	Records      uint64         `json:"records"`
	Backlog      int            `json:"backlog"`
	Skipped      uint64         `json:"skipped"`
	DecodeErrors uint64         `json:"decode_errors"`
	FrameErrors  uint64         `json:"frame_errors"`
	BufferedRows int            `json:"buffered_rows"`

	// Frame is the composite for this tick. It must not be modified.
	Frame *image.RGBA `json:"-"`
}

type command int

const (
	cmdToggleMode command = iota
)

// Controller owns the session state machine and the per-tick pipeline.
type Controller struct {
	width, height int
	mapper        *heatmap.Mapper
	rasterizer    *heatmap.Rasterizer
	zones         heatmap.ZoneExtractor
	zoneCount     int
	compositor    heatmap.Compositor
	annotate      bool
	records       RecordSource
	cam           camera.Source
	log           *eventlog.Buffer
	flusher       Flusher
	clock         timeutil.Clock
	interval      time.Duration
	backlogLen    int

	state     SessionState
	flat      *image.RGBA
	lifecycle atomic.Int32
	snap      atomic.Pointer[Snapshot]
	cmds      chan command
	stopCh    chan struct{}
	stopOnce  sync.Once
	shutOnce  sync.Once
	shutErr   error
	throttle  *monitoring.Throttle
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// New builds a Controller in the Running state. Records and Camera are
// required.
func New(opts Options) (*Controller, error) {
	if opts.Records == nil || opts.Camera == nil {
		return nil, fmt.Errorf("%w: sensor link and camera are required", ErrFatalInit)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Mapper == nil {
		opts.Mapper = heatmap.NewMapper(globalRandom{}, heatmap.DefaultActivityThreshold, heatmap.DefaultJitterOffset)
	}
	if opts.Ledger == nil {
		opts.Ledger = heatmap.NewLedger(heatmap.DefaultLedgerCapacity, heatmap.DefaultWindow)
	}
	if opts.Rasterizer == nil {
		opts.Rasterizer = heatmap.NewRasterizer(heatmap.DefaultRasterConfig())
	}
	if opts.Zones.Threshold <= 0 {
		opts.Zones.Threshold = heatmap.DefaultZoneThreshold
	}
	if opts.ZoneCount <= 0 {
		opts.ZoneCount = heatmap.DefaultZoneCount
	}
	compositor := heatmap.DefaultCompositor()
	if opts.Compositor != nil {
		compositor = *opts.Compositor
	}
	if opts.Log == nil {
		opts.Log = eventlog.NewBuffer()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.BacklogLength <= 0 {
		opts.BacklogLength = DefaultBacklogLength
	}

	c := &Controller{
		width:      opts.Width,
		height:     opts.Height,
		mapper:     opts.Mapper,
		rasterizer: opts.Rasterizer,
		zones:      opts.Zones,
		zoneCount:  opts.ZoneCount,
		compositor: compositor,
		annotate:   opts.Annotate,
		records:    opts.Records,
		cam:        opts.Camera,
		log:        opts.Log,
		flusher:    opts.Flusher,
		clock:      opts.Clock,
		interval:   opts.TickInterval,
		backlogLen: opts.BacklogLength,
		state: SessionState{
			Mode:     opts.InitialMode,
			Frame:    camera.Blank(opts.Width, opts.Height),
			Ledger:   opts.Ledger,
			Voltages: NewSeries(opts.SeriesLength),
			Steps:    NewSeries(opts.SeriesLength),
		},
		cmds:     make(chan command, 16),
		stopCh:   make(chan struct{}),
		throttle: monitoring.NewThrottle(30 * time.Second),
	}
	c.lifecycle.Store(int32(Running))
	c.publish(opts.Clock.Now(), c.state.Frame, nil)
	return c, nil
}

// State reports the lifecycle state.
func (c *Controller) State() State { return State(c.lifecycle.Load()) }

// Snapshot returns the most recently published view. It is never nil.
func (c *Controller) Snapshot() *Snapshot { return c.snap.Load() }

// Buffer returns the event-log buffer the controller appends to.
func (c *Controller) Buffer() *eventlog.Buffer { return c.log }

// ToggleMode queues a background mode flip for the next tick.
func (c *Controller) ToggleMode() {
	select {
	case c.cmds <- cmdToggleMode:
	default:
		monitoring.Logf("session: command queue full, toggle dropped")
	}
}

// Stop requests shutdown. Run observes it before the next tick.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed once Stop has been requested.
func (c *Controller) Done() <-chan struct{} { return c.stopCh }

// Run ticks every interval until Stop is called or ctx is done, then shuts
// down. It returns the shutdown error, if any.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("session: stopping: %v", ctx.Err())
			return c.Shutdown()
		case <-c.stopCh:
			monitoring.Logf("session: stop requested")
			return c.Shutdown()
		case now := <-ticker.C():
			// a stop racing with a tick wins
			select {
			case <-c.stopCh:
				return c.Shutdown()
			default:
			}
			c.Tick(now)
		}
	}
}

// Tick runs one pipeline pass at now. It does nothing unless Running. Tick
// must not be called concurrently with itself or Run.
func (c *Controller) Tick(now time.Time) {
	if c.State() != Running {
		return
	}
	st := &c.state
	st.Tick++

	c.applyCommands()
	c.acquireFrame()
	c.receive(now)
	if len(st.Backlog) > 0 {
		ev := st.Backlog[0]
		st.Backlog = st.Backlog[1:]
		c.apply(ev, now)
	}
	c.render(now)
}

// receive drains every pending line so the sensor link never backs up.
// Each valid record is logged at once and queued to be applied.
func (c *Controller) receive(now time.Time) {
	st := &c.state
	for range maxLinesPerTick {
		raw, ok := c.records.TryNext()
		if !ok {
			return
		}
		ev, err := c.accept(raw, now)
		if err != nil {
			continue
		}
		if len(st.Backlog) >= c.backlogLen {
			st.Backlog = st.Backlog[1:]
			st.Skipped++
			c.throttle.Logf("backlog", "session: sensor faster than tick rate, %d logged records not mapped", st.Skipped)
		}
		st.Backlog = append(st.Backlog, ev)
	}
}

func (c *Controller) applyCommands() {
	for {
		select {
		case cmd := <-c.cmds:
			if cmd == cmdToggleMode {
				c.state.Mode = c.state.Mode.toggled()
				monitoring.Logf("session: background mode: %s", c.state.Mode)
			}
		default:
			return
		}
	}
}

func (c *Controller) acquireFrame() {
	frame, err := c.cam.Read()
	if err != nil {
		c.state.FrameErrors++
		if !errors.Is(err, camera.ErrNoFrame) {
			c.throttle.Logf("camera", "session: camera read failed, reusing last frame: %v", err)
		}
		return
	}
	c.state.Frame = frame
}

// Ingest decodes one raw record, logs it and applies it immediately,
// bypassing the backlog. A malformed record is logged and returned as a
// *sensor.DecodeError with the ledger, buffer and current readings
// unchanged.
func (c *Controller) Ingest(raw string, now time.Time) (sensor.Event, error) {
	ev, err := c.accept(raw, now)
	if err != nil {
		return sensor.Event{}, err
	}
	c.apply(ev, now)
	return ev, nil
}

// accept decodes raw and appends it to the event log.
func (c *Controller) accept(raw string, now time.Time) (sensor.Event, error) {
	ev, err := sensor.DecodeAt(raw, now)
	if err != nil {
		c.state.DecodeErrors++
		c.throttle.Logf("decode", "session: dropped sensor record: %v", err)
		return sensor.Event{}, err
	}
	c.state.Records++
	monitoring.Logf("sensor: %s", ev)
	c.log.Append(eventlog.RowFromEvent(ev))
	return ev, nil
}

// apply updates the current readings and maps ev into the ledger.
func (c *Controller) apply(ev sensor.Event, now time.Time) {
	st := &c.state
	st.Step = ev.StepCount
	st.Voltage = ev.Voltage

	b := st.Frame.Bounds()
	if pt, ok := c.mapper.MapToPoint(ev.Direction, ev.Voltage, b.Dx(), b.Dy()); ok {
		st.Ledger.Insert(heatmap.Point{X: pt.X, Y: pt.Y, CreatedAt: now})
	}
}

func (c *Controller) render(now time.Time) {
	st := &c.state
	b := st.Frame.Bounds()
	w, h := b.Dx(), b.Dy()

	points := st.Ledger.Snapshot(now)
	layer, field := c.rasterizer.Build(points, w, h)
	zones := c.zones.Extract(field, c.zoneCount)

	var background image.Image = st.Frame
	if st.Mode == ModeFlat {
		background = c.flatBackground(w, h)
	}
	out := c.compositor.Composite(background, layer)
	if c.annotate {
		heatmap.Annotate(out, zones)
	}

	st.Voltages.Push(st.Voltage)
	st.Steps.Push(float64(st.Step))
	c.publish(now, out, zones)
}

func (c *Controller) flatBackground(w, h int) *image.RGBA {
	if c.flat == nil || c.flat.Rect.Dx() != w || c.flat.Rect.Dy() != h {
		c.flat = c.compositor.FlatBackground(w, h)
	}
	return c.flat
}

func (c *Controller) publish(now time.Time, frame *image.RGBA, zones []heatmap.Zone) {
	st := &c.state
	if zones == nil {
		zones = []heatmap.Zone{}
	}
	c.snap.Store(&Snapshot{
		Tick:         st.Tick,
		Time:         now,
		State:        c.State(),
		Mode:         st.Mode,
		Step:         st.Step,
		Voltage:      st.Voltage,
		ActivePoints: st.Ledger.Len(),
		Zones:        zones,
		Voltages:     st.Voltages.Values(),
		Steps:        st.Steps.Values(),
		Records:      st.Records,
		Backlog:      len(st.Backlog),
		Skipped:      st.Skipped,
		DecodeErrors: st.DecodeErrors,
		FrameErrors:  st.FrameErrors,
		BufferedRows: c.log.Len(),
		Frame:        frame,
	})
}

// republish copies the last snapshot with the current lifecycle state.
func (c *Controller) republish() {
	prev := c.snap.Load()
	next := *prev
	next.State = c.State()
	next.BufferedRows = c.log.Len()
	c.snap.Store(&next)
}

// Shutdown moves to Stopping, runs the final flush, releases the camera
// and sensor link, and moves to Stopped. It runs once; later calls return
// the first result.
func (c *Controller) Shutdown() error {
	c.shutOnce.Do(func() {
		c.Stop()
		c.lifecycle.Store(int32(Stopping))
		c.republish()

		var errs []error
		if c.flusher != nil {
			if err := c.flusher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("final flush: %w", err))
			}
		} else if n := c.log.Len(); n > 0 {
			monitoring.Logf("session: no event log configured, discarding %d rows", n)
			c.log.Drain()
		}
		if err := c.cam.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
		if err := c.records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor link: %w", err))
		}

		c.lifecycle.Store(int32(Stopped))
		c.republish()
		c.shutErr = errors.Join(errs...)
		monitoring.Logf("session: stopped")
	})
	return c.shutErr
}

// OpenDevices opens the sensor link and then the camera. Any failure is
// wrapped in ErrFatalInit and whatever was already opened is released.
func OpenDevices(openSensor func() (RecordSource, error), openCamera func() (camera.Source, error)) (RecordSource, camera.Source, error) {
	records, err := openSensor()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sensor link: %w", ErrFatalInit, err)
	}
	cam, err := openCamera()
	if err != nil {
		records.Close()
		return nil, nil, fmt.Errorf("%w: camera: %w", ErrFatalInit, err)
	}
	return records, cam, nil
}
