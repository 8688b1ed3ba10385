package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/config"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/eventlog"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ocr"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/webmonitor"
)

var (
	// Command-line flags. Set flags override the config file.
	configPath  = flag.String("config", "", "YAML config file")
	httpAddr    = flag.String("http", "", "HTTP server address")
	metricsAddr = flag.String("metrics", "", "Metrics server address (empty disables)")
	pprofAddr   = flag.String("pprof", "", "pprof server address (empty disables)")
	storeDriver = flag.String("storage", "", "State store driver (json, sqlite)")
	statePath   = flag.String("state", "", "State file path")
	source      = flag.String("source", "", "Frame source (screen, replay)")
	display     = flag.Int("display", 0, "Display index for screen capture")
	replayPath  = flag.String("replay", "", "Recording to replay (implies -source replay)")
	loop        = flag.Bool("loop", false, "Loop the replayed recording")
	ocrEngine   = flag.String("ocr", "", "OCR engine (none, tesseract)")
	recordPath  = flag.String("record-path", "", "Recording output path")
	eventDir    = flag.String("event-log", "", "Credit event log directory (\"-\" disables)")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

// Server is the loot tracker service
type Server struct {
	cfg        config.Config
	metrics    *metrics.Metrics
	store      storage.Store
	source     capture.Source
	engine     ocr.TextEngine
	events     *eventlog.Writer
	recorder   *capture.Recorder
	tracker    *tracker.Tracker
	web        *webmonitor.Server
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)

	logger.Info("Main", "Loot tracker starting...")
	logger.Info("Main", "Log level: %s", level)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	srv.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}
	logger.Info("Main", "Server stopped")
}

// loadConfig reads the optional config file and applies explicitly set flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "storage":
			cfg.Storage.Driver = *storeDriver
		case "state":
			cfg.Storage.Path = *statePath
		case "source":
			cfg.Capture.Source = *source
		case "display":
			cfg.Capture.Display = *display
		case "replay":
			cfg.Capture.Source = "replay"
			cfg.Capture.ReplayPath = *replayPath
		case "loop":
			cfg.Capture.Loop = *loop
		case "ocr":
			cfg.OCR.Engine = *ocrEngine
		case "record-path":
			cfg.RecordDir = *recordPath
		case "event-log":
			cfg.EventLogDir = *eventDir
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})
	if cfg.EventLogDir == "-" {
		cfg.EventLogDir = ""
	}
	return cfg, cfg.Validate()
}

// NewServer opens every component and wires them to a tracker
func NewServer(cfg config.Config) (*Server, error) {
	s := &Server{cfg: cfg, metrics: metrics.New()}

	if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	s.store = store

	state, err := store.Load(context.Background())
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	src, err := capture.Open(cfg.Capture.Source, cfg.Capture.Display, cfg.Capture.ReplayPath, cfg.Capture.Loop)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}
	s.source = src

	engine, err := ocr.Open(cfg.OCR.Engine, cfg.OCR.Language)
	switch {
	case errors.Is(err, ocr.ErrEngineUnavailable):
		logger.Warn("Main", "OCR engine %q unavailable, stack sizes count as one: %v", cfg.OCR.Engine, err)
	case err != nil:
		s.closeAll()
		return nil, fmt.Errorf("failed to open OCR engine: %w", err)
	}
	s.engine = engine

	opts := tracker.Options{
		Source:         src,
		State:          state,
		Metrics:        s.metrics,
		Interval:       cfg.TickInterval,
		Debounce:       cfg.Debounce,
		MatchThreshold: cfg.MatchThreshold,
		GainCooldown:   cfg.GainCooldown,
	}
	if engine != nil {
		opts.Reader = ocr.NewQuantityReader(engine)
		opts.GainReader = ocr.NewGainReader(engine)
	}
	if cfg.EventLogDir != "" {
		s.events = eventlog.NewWriter(cfg.EventLogDir)
		opts.Events = s.events
	}
	if cfg.RecordDir != "" {
		s.recorder = capture.NewRecorder(cfg.RecordDir)
		opts.Recorder = s.recorder
	}
	s.tracker = tracker.New(opts)

	s.web = webmonitor.NewServer(webmonitor.Config{
		Addr:           cfg.HTTPAddr,
		StatusInterval: cfg.StatusInterval,
	}, webmonitor.Deps{
		Tracker:  s.tracker,
		Store:    store,
		Recorder: s.recorder,
		Metrics:  s.metrics,
	})

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.web.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start starts the HTTP, metrics and pprof servers. Runs are started
// through the API.
func (s *Server) Start() {
	logger.Info("Main", "Starting loot tracker...")
	logger.Info("Main", "  HTTP server: %s", s.cfg.HTTPAddr)
	logger.Info("Main", "  Frame source: %s", s.cfg.Capture.Source)
	logger.Info("Main", "  OCR engine: %s (active=%v)", s.cfg.OCR.Engine, s.engine != nil)
	logger.Info("Main", "  State: %s (%s)", s.cfg.Storage.Path, s.cfg.Storage.Driver)
	logger.Info("Main", "  Tick interval: %s", s.cfg.TickInterval)

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", s.cfg.MetricsAddr)
			if err := s.metrics.StartServer(s.cfg.MetricsAddr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	go func() {
		logger.Info("Main", "Starting HTTP server on %s", s.cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()
}

// Shutdown seals any active run, persists state and closes every component
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.web.Close()

	if sealed := s.tracker.Stop(); sealed != nil {
		logger.Info("Main", "Sealed active run %s", sealed.ID)
	}
	if err := s.store.Save(ctx, s.tracker.State()); err != nil {
		errs = append(errs, fmt.Errorf("save state: %w", err))
	}

	errs = append(errs, s.closeAll())
	return errors.Join(errs...)
}

func (s *Server) closeAll() error {
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	if s.events != nil {
		errs = append(errs, s.events.Close())
	}
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	if c, ok := s.source.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
