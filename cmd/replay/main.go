// Command replay runs a frame recording through the tracker offline and
// prints the resulting loot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/config"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/eventlog"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ocr"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// replaySource stops at the first capture error and exposes the timestamp
// of the last frame as the tracker clock.
type replaySource struct {
	src *capture.ReplaySource

	mu   sync.Mutex
	last time.Time
	done bool
	err  error
}

func (r *replaySource) Capture(ctx context.Context) (*types.Frame, error) {
	f, err := r.src.Capture(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.done, r.err = true, err
		return nil, err
	}
	if !f.Timestamp.IsZero() {
		r.last = f.Timestamp
	}
	return f, nil
}

func (r *replaySource) now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last.IsZero() {
		return time.Now()
	}
	return r.last
}

func (r *replaySource) finished() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.err
}

func parseRect(s string) (*types.Rect, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("rect %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = n
	}
	return &types.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func main() {
	def := config.Default()

	var (
		inPath     string
		statePath  string
		stateDrv   string
		invFlag    string
		moneyFlag  string
		engineName string
		eventDir   string
		asJSON     bool
		logLevel   string
		logColor   bool
	)
	flag.StringVar(&inPath, "in", "", "Recording to replay (required)")
	flag.StringVar(&statePath, "state", "", "Read calibration and icon names from this state store")
	flag.StringVar(&stateDrv, "storage", def.Storage.Driver, "State store driver (json, sqlite)")
	flag.StringVar(&invFlag, "region", "", "Inventory region x,y,w,h (overrides -state)")
	flag.StringVar(&moneyFlag, "money", "", "Money pouch region x,y,w,h (overrides -state)")
	flag.StringVar(&engineName, "ocr", def.OCR.Engine, "OCR engine (none, tesseract)")
	flag.StringVar(&eventDir, "event-log", "", "Write credit events to this directory")
	flag.BoolVar(&asJSON, "json", false, "Print the session as JSON")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	if inPath == "" {
		log.Fatalf("-in is required")
	}

	state := storage.NewAppState()
	if statePath != "" {
		store, err := storage.Open(stateDrv, statePath)
		if err != nil {
			log.Fatalf("Failed to open state: %v", err)
		}
		state, err = store.Load(context.Background())
		_ = store.Close()
		if err != nil {
			log.Fatalf("Failed to load state: %v", err)
		}
	}
	inv, err := parseRect(invFlag)
	if err != nil {
		log.Fatalf("Invalid -region: %v", err)
	}
	money, err := parseRect(moneyFlag)
	if err != nil {
		log.Fatalf("Invalid -money: %v", err)
	}

	rs, err := capture.OpenReplay(inPath, false)
	if err != nil {
		log.Fatalf("Failed to open recording: %v", err)
	}
	defer rs.Close()
	src := &replaySource{src: rs}

	opts := tracker.Options{
		Source:       src,
		State:        state,
		Interval:     24 * time.Hour, // ticks are driven below
		Debounce:     def.Debounce,
		GainCooldown: def.GainCooldown,
		Clock:        src.now,
	}
	engine, err := ocr.Open(engineName, def.OCR.Language)
	if err != nil {
		log.Fatalf("Failed to open OCR engine: %v", err)
	}
	if engine != nil {
		defer engine.Close()
		opts.Reader = ocr.NewQuantityReader(engine)
		opts.GainReader = ocr.NewGainReader(engine)
	}
	if eventDir != "" {
		w := eventlog.NewWriter(eventDir)
		defer w.Close()
		opts.Events = w
	}

	t := tracker.New(opts)
	if inv != nil {
		if err := t.SetInventoryRegion(*inv); err != nil {
			log.Fatalf("Invalid -region: %v", err)
		}
	}
	if money != nil {
		if err := t.SetMoneyRegion(*money); err != nil {
			log.Fatalf("Invalid -money: %v", err)
		}
	}

	ctx := context.Background()
	if err := t.Start(ctx, "Replay "+inPath); err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}
	for {
		if done, _ := src.finished(); done {
			break
		}
		if err := t.Tick(ctx); err != nil {
			log.Fatalf("Tick failed: %v", err)
		}
	}
	if _, err := src.finished(); err != nil && !errors.Is(err, capture.ErrEndOfRecording) {
		logger.Warn("Replay", "replay stopped early: %v", err)
	}

	session := t.Stop()
	logger.Info("Replay", "replayed %d frames", rs.Served())

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(session); err != nil {
			log.Fatalf("encode session: %v", err)
		}
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "QTY\tITEM\t\n")
	var total int64
	for _, e := range session.Loot {
		fmt.Fprintf(tw, "%d\t%s\t\n", e.Qty, e.Name)
		total += e.Qty
	}
	fmt.Fprintf(tw, "%d\t%s\t\n", total, "total")
	_ = tw.Flush()
}
