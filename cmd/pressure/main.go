package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pressure.report/internal/camera"
	"github.com/banshee-data/pressure.report/internal/camera/opencv"
	"github.com/banshee-data/pressure.report/internal/config"
	"github.com/banshee-data/pressure.report/internal/eventlog"
	"github.com/banshee-data/pressure.report/internal/fsutil"
	"github.com/banshee-data/pressure.report/internal/heatmap"
	"github.com/banshee-data/pressure.report/internal/monitor"
	"github.com/banshee-data/pressure.report/internal/report"
	"github.com/banshee-data/pressure.report/internal/serialmux"
	"github.com/banshee-data/pressure.report/internal/session"
	"github.com/banshee-data/pressure.report/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Replay fixtures on the sensor link and use a test-pattern camera")
	listen     = flag.String("listen", ":8080", "Listen address for the monitor")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	cameraDev  = flag.String("camera", "0", "Camera index, video file, or \"pattern\" (ignored in dev mode)")
	configPath = flag.String("config", "", "Optional JSON tuning file")
	dbPath     = flag.String("db", "pressure.db", "SQLite event log path (empty to disable)")
	csvPath    = flag.String("csv", defaultCSVPath(), "CSV event log path")
	display    = flag.Bool("display", false, "Show the composite in a preview window (c toggles, q quits)")
	reportDir  = flag.String("report-dir", "", "Write frame and series charts here on exit (empty to skip)")
	replayRate = flag.Duration("replay-interval", 250*time.Millisecond, "Line interval for --dev replay")
)

//go:embed fixtures.txt
var fixtures []byte

func defaultCSVPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arduino_data_log.csv"
	}
	return filepath.Join(home, "Downloads", "arduino_data_log.csv")
}

// sensorLink is the serial mux surface main needs, for either the real
// port or the dev replay.
type sensorLink interface {
	serialmux.Subscriber
	Monitor(ctx context.Context) error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

// linkRecords ends the subscription and closes the link it reads from.
type linkRecords struct {
	*serialmux.LineSource
	link sensorLink
}

func (r linkRecords) Close() error {
	r.LineSource.Close()
	return r.link.Close()
}

func main() {
	flag.Parse()
	log.Printf("%s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatalf("session ended with error: %v", err)
	}
}

func run(cfg *config.Config) error {
	width, height := cfg.GetFrameWidth(), cfg.GetFrameHeight()

	var link sensorLink
	records, cam, err := session.OpenDevices(
		func() (session.RecordSource, error) {
			l, err := openSensorLink(cfg)
			if err != nil {
				return nil, err
			}
			link = l
			return linkRecords{LineSource: serialmux.NewLineSource(l), link: l}, nil
		},
		func() (camera.Source, error) { return openCamera(width, height) },
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsys := fsutil.OSFileSystem{}
	if dir := filepath.Dir(*csvPath); dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	csvWriter := eventlog.NewCSVWriter(fsys, *csvPath)
	if abs, err := filepath.Abs(csvWriter.Path()); err == nil {
		log.Printf("Saving sensor log to %s", abs)
	}

	sinks := []eventlog.Sink{csvWriter}
	var store *eventlog.Store
	if *dbPath != "" {
		store, err = eventlog.OpenStore(*dbPath)
		if err != nil {
			records.Close()
			cam.Close()
			return fmt.Errorf("open event store: %w", err)
		}
		defer store.Close()
		id, err := store.BeginSession(ctx, time.Now())
		if err != nil {
			records.Close()
			cam.Close()
			return fmt.Errorf("begin session: %w", err)
		}
		log.Printf("Recording session %s to %s", id, store.Path())
		sinks = append(sinks, store)
	}

	buf := eventlog.NewBuffer()
	flusher := eventlog.NewFlusher(eventlog.FlusherConfig{
		Buffer:        buf,
		Sinks:         sinks,
		Fallback:      eventlog.NewCSVWriter(fsys, filepath.Join(os.TempDir(), "pressure-unflushed.csv")),
		Interval:      cfg.GetFlushInterval(),
		FinalAttempts: cfg.GetFinalFlushAttempts(),
	})

	opts, err := engineOptions(cfg)
	if err != nil {
		records.Close()
		cam.Close()
		return err
	}
	opts.Records = records
	opts.Camera = cam
	opts.Log = buf
	opts.Flusher = flusher

	ctrl, err := session.New(opts)
	if err != nil {
		records.Close()
		cam.Close()
		return err
	}

	var wg sync.WaitGroup
	linkCtx, stopLink := context.WithCancel(context.Background())
	defer stopLink()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(linkCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sensor link stopped: %v", err)
		}
	}()

	// the flusher is stopped by the controller's shutdown, not by ctx, so
	// rows ingested late in the session still reach the final flush
	wg.Add(1)
	go func() {
		defer wg.Done()
		flusher.Run(context.Background())
	}()

	srvCtx, stopServer := context.WithCancel(context.Background())
	srvCfg := monitor.Config{Address: *listen, Session: ctrl, Started: time.Now()}
	if store != nil {
		srvCfg.Events = store
	}
	srv := monitor.NewServer(srvCfg)
	link.AttachAdminRoutes(srv.ServeMux())
	if store != nil {
		if err := store.AttachAdminRoutes(srv.ServeMux()); err != nil {
			log.Printf("event store admin routes unavailable: %v", err)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(srvCtx); err != nil {
			log.Printf("monitor server failed: %v", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	if *display {
		previewCtx, cancelPreview := context.WithCancel(ctx)
		go func() {
			<-ctrl.Done()
			cancelPreview()
		}()
		preview := opencv.NewPreview("pressure.report")
		opencv.RunPreview(previewCtx, preview, opts.TickInterval, func() *image.RGBA {
			return ctrl.Snapshot().Frame
		}, ctrl)
		preview.Close()
		cancelPreview()
	}

	sessionErr := <-runErr
	snap := ctrl.Snapshot()
	log.Printf("session stopped after %d ticks: %d records, %d decode errors", snap.Tick, snap.Records, snap.DecodeErrors)

	if *reportDir != "" {
		paths, err := report.WriteSeriesPlots(fsys, *reportDir, snap)
		if err != nil {
			log.Printf("session report incomplete: %v", err)
		}
		for _, p := range paths {
			log.Printf("wrote %s", p)
		}
	}
	if store != nil {
		if err := store.EndSession(context.Background(), time.Now()); err != nil {
			log.Printf("failed to close session record: %v", err)
		}
	}

	stopServer()
	stopLink()
	wg.Wait()
	return sessionErr
}

func openSensorLink(cfg *config.Config) (sensorLink, error) {
	if *devMode {
		lines := serialmux.ParseFixture(fixtures)
		log.Printf("dev mode: replaying %d fixture lines every %v", len(lines), *replayRate)
		return serialmux.NewMockSerialMux(lines, *replayRate), nil
	}
	if *port == "" {
		return nil, errors.New("serial port is required")
	}
	link, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
	if err != nil {
		return nil, err
	}
	log.Printf("opened sensor link %s at %d baud", *port, cfg.GetBaudRate())
	return link, nil
}

func openCamera(width, height int) (camera.Source, error) {
	if *devMode || *cameraDev == "pattern" {
		return camera.NewTestPattern(width, height), nil
	}
	capture, err := opencv.OpenCapture(*cameraDev, width, height)
	if err != nil {
		return nil, err
	}
	log.Printf("opened camera %s at %dx%d", *cameraDev, width, height)
	return capture, nil
}

// engineOptions builds the heatmap pipeline from the tuning config.
func engineOptions(cfg *config.Config) (session.Options, error) {
	ramp, err := heatmap.RampByName(cfg.GetColorMap())
	if err != nil {
		return session.Options{}, fmt.Errorf("color map: %w", err)
	}
	mode := session.ModeCamera
	if cfg.GetInitialMode() == config.ModeFlat {
		mode = session.ModeFlat
	}
	compositor := heatmap.DefaultCompositor()
	compositor.BackgroundWeight = cfg.GetBackgroundWeight()
	compositor.LayerWeight = cfg.GetLayerWeight()

	seed := uint64(time.Now().UnixNano())
	return session.Options{
		Width:  cfg.GetFrameWidth(),
		Height: cfg.GetFrameHeight(),
		Mapper: heatmap.NewMapper(rand.New(rand.NewPCG(seed, seed>>1)), cfg.GetActivityThreshold(), cfg.GetJitterOffset()),
		Ledger: heatmap.NewLedger(cfg.GetLedgerCapacity(), cfg.GetWindow()),
		Rasterizer: heatmap.NewRasterizer(heatmap.RasterConfig{
			StampRadius: cfg.GetStampRadius(),
			BlurSigma:   cfg.GetBlurSigma(),
			AlphaScale:  cfg.GetAlphaScale(),
			Ramp:        ramp,
		}),
		Zones:        heatmap.ZoneExtractor{Threshold: cfg.GetZoneThreshold(), MinPixels: cfg.GetZoneMinPixels()},
		ZoneCount:    cfg.GetZoneCount(),
		Compositor:   &compositor,
		Annotate:     cfg.GetAnnotateZones(),
		TickInterval: cfg.GetTickInterval(),
		SeriesLength: cfg.GetSeriesLength(),
		InitialMode:  mode,
	}, nil
}
