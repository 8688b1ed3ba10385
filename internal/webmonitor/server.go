// Package webmonitor serves the tracker's control API, live status push and
// debug views.
package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
)

var log = logger.For("HTTP")

var (
	errUnknownChannel    = errors.New("unknown channel")
	errUnknownAction     = errors.New("unknown run action")
	errNoFrame           = errors.New("no frame captured yet")
	errRecordingDisabled = errors.New("recording is not configured")
	errBadSlot           = fmt.Errorf("slot index must be 0..%d", grid.SlotCount-1)
)

const maxBodyBytes = 64 << 10

// Deps are the collaborators a Server drives. Only Tracker is required.
type Deps struct {
	Tracker  *tracker.Tracker
	Store    storage.Store
	Recorder *capture.Recorder
	Metrics  *metrics.Metrics
}

// Server serves the tracker over HTTP.
type Server struct {
	cfg      Config
	tracker  *tracker.Tracker
	store    storage.Store
	recorder *capture.Recorder
	metrics  *metrics.Metrics
	calib    *grid.Calibrator
	monitor  *Monitor
	status   *StatusBroadcaster
	upgrader websocket.Upgrader

	saveMu     sync.Mutex
	observerID int
}

// NewServer wires a server to the tracker and starts its status broadcaster.
// Call Close to detach it.
func NewServer(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	calib := grid.NewCalibrator()
	monitor := NewMonitor(deps.Tracker, deps.Recorder, calib, deps.Metrics)

	s := &Server{
		cfg:      cfg,
		tracker:  deps.Tracker,
		store:    deps.Store,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		calib:    calib,
		monitor:  monitor,
		status:   NewStatusBroadcaster(monitor, deps.Metrics, cfg.StatusInterval),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.status.Start()
	s.observerID = s.tracker.Subscribe(s.status.Notify)
	return s
}

// Close stops pushing status and disconnects stream clients.
func (s *Server) Close() {
	s.tracker.Unsubscribe(s.observerID)
	s.status.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/status/stream", s.handleStatusStream)
		r.Get("/loot", s.handleLoot)
		r.Get("/sessions", s.handleSessions)

		r.Post("/run/{action}", s.handleRun)
		r.Post("/clear", s.handleClear)

		r.Put("/regions/{channel}", s.handleSetRegion)
		r.Post("/calibrate/{channel}", s.handleCalibrate)
		r.Delete("/calibrate/{channel}", s.handleCalibrateCancel)

		r.Get("/icons/{sig}.png", s.handleIcon)
		r.Put("/icons/{sig}/name", s.handleRename)

		r.Get("/debug/overlay.jpg", s.handleOverlay)
		r.Get("/debug/slots/{index}/text.png", s.handleSlotText)

		r.Post("/recording/start", s.handleRecordingStart)
		r.Post("/recording/stop", s.handleRecordingStop)
		r.Get("/recording/status", s.handleRecordingStatus)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("%s %s (%s) %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), time.Since(start))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	streamStatusEvents(w, r, s.status.Current(), eventCh, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

func (s *Server) handleLoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"entries": s.tracker.Loot(),
		"session": s.tracker.ActiveSession(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sessions": s.tracker.Sessions()})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	var sealed *storage.Session

	switch action {
	case "start":
		var req StartRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		if err := s.tracker.Start(r.Context(), req.Label); err != nil {
			writeError(w, err, statusFor(err))
			return
		}
	case "pause":
		s.tracker.Pause()
	case "resume":
		s.tracker.Resume()
	case "toggle":
		s.tracker.TogglePause()
	case "stop":
		sealed = s.tracker.Stop()
		s.persist(r.Context())
	case "reset":
		s.tracker.Reset()
	default:
		writeError(w, fmt.Errorf("%w: %q", errUnknownAction, action), http.StatusNotFound)
		return
	}

	payload := map[string]any{"run_state": s.tracker.RunState()}
	if sealed != nil {
		payload["session"] = sealed
	}
	writeJSON(w, payload)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.tracker.ClearAll()
	s.persist(r.Context())
	writeJSON(w, map[string]any{"run_state": s.tracker.RunState()})
}

func (s *Server) setRegion(channel string, rect RegionRequest) error {
	switch channel {
	case ChannelInventory:
		return s.tracker.SetInventoryRegion(rect.Rect())
	case ChannelMoney:
		return s.tracker.SetMoneyRegion(rect.Rect())
	default:
		return fmt.Errorf("%w: %q", errUnknownChannel, channel)
	}
}

func (s *Server) handleSetRegion(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	var req RegionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.setRegion(channel, req); err != nil {
		writeError(w, err, statusFor(err))
		return
	}
	s.calib.Cancel(channel)
	s.persist(r.Context())
	writeJSON(w, map[string]any{"channel": channel, "region": req})
}

// handleCalibrate records one corner click. The second click for the same
// channel sets the region.
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel != ChannelInventory && channel != ChannelMoney {
		writeError(w, fmt.Errorf("%w: %q", errUnknownChannel, channel), http.StatusNotFound)
		return
	}
	var req PointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	rect, done := s.calib.Mark(channel, image.Pt(req.X, req.Y))
	if !done {
		s.status.Notify()
		writeJSON(w, map[string]any{"channel": channel, "pending": true})
		return
	}
	region := RegionRequest{X: rect.X, Y: rect.Y, W: rect.W, H: rect.H}
	if err := s.setRegion(channel, region); err != nil {
		writeError(w, err, statusFor(err))
		return
	}
	s.persist(r.Context())
	writeJSON(w, map[string]any{"channel": channel, "pending": false, "region": region})
}

func (s *Server) handleCalibrateCancel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	s.calib.Cancel(channel)
	s.status.Notify()
	writeJSON(w, map[string]any{"channel": channel, "pending": false})
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	data, ok := s.tracker.IconPNG(chi.URLParam(r, "sig"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	sig := chi.URLParam(r, "sig")
	var req RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.tracker.Rename(sig, req.Name); err != nil {
		writeError(w, err, statusFor(err))
		return
	}
	s.persist(r.Context())
	writeJSON(w, map[string]any{"sig": sig, "name": s.tracker.DisplayName(sig)})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	frame := s.tracker.LastFrame()
	if frame == nil {
		writeError(w, errNoFrame, http.StatusNotFound)
		return
	}
	inv, money := s.tracker.Regions()
	data, err := renderOverlay(frame, inv, money, s.tracker.Slots(), s.cfg.OverlayQuality)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *Server) handleSlotText(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= grid.SlotCount {
		writeError(w, errBadSlot, http.StatusBadRequest)
		return
	}
	frame := s.tracker.LastFrame()
	inv, _ := s.tracker.Regions()
	if frame == nil || inv == nil {
		writeError(w, errNoFrame, http.StatusNotFound)
		return
	}
	data, ok, err := renderTextCrop(frame, *inv, index)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// persist saves the tracker's durable state. Failures are logged; the
// in-memory state stays authoritative.
func (s *Server) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.store.Save(context.WithoutCancel(ctx), s.tracker.State()); err != nil {
		log.Error("save state: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrNoInventoryRegion),
		errors.Is(err, tracker.ErrInvalidRegion),
		errors.Is(err, fingerprint.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownChannel):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := decodeJSON(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
