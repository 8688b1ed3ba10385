package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

var testRegion = RegionRequest{X: 0, Y: 0, W: 160, H: 252}

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	tracker *tracker.Tracker
	store   storage.Store
	metrics *metrics.Metrics
	item    atomic.Bool // slot 0 shows an item
}

// render draws an empty inventory, plus a two-tone item in slot 0 when
// showItem is set.
func render(showItem bool) *types.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 200, 260))
	for y := range 260 {
		for x := range 200 {
			img.SetRGBA(x, y, color.RGBA{40, 36, 30, 255})
		}
	}
	if showItem {
		cell := grid.Cell(testRegion.Rect(), 0)
		for y := range cell.H {
			for x := range cell.W {
				c := color.RGBA{90, 50, 30, 255}
				if x < cell.W/2 {
					c = color.RGBA{220, 180, 60, 255}
				}
				img.SetRGBA(cell.X+x, cell.Y+y, c)
			}
		}
	}
	return types.FrameFromImage(img)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{metrics: metrics.New()}
	var seq atomic.Uint64
	src := capture.Func(func(ctx context.Context) (*types.Frame, error) {
		f := render(env.item.Load())
		f.FrameNum = seq.Add(1)
		return f, nil
	})

	env.tracker = tracker.New(tracker.Options{
		Source:   src,
		Metrics:  env.metrics,
		Interval: time.Hour,
	})
	env.store = storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	env.srv = NewServer(Config{StatusInterval: 50 * time.Millisecond}, Deps{
		Tracker:  env.tracker,
		Store:    env.store,
		Recorder: capture.NewRecorder(t.TempDir()),
		Metrics:  env.metrics,
	})
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(func() {
		env.ts.Close()
		env.srv.Close()
		env.tracker.Reset()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func (e *testEnv) expect(t *testing.T, method, path string, payload any, status int) map[string]any {
	t.Helper()
	resp, body := e.do(t, method, path, payload)
	if resp.StatusCode != status {
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, resp.StatusCode, status, body)
	}
	var out map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
		}
	}
	return out
}

func (e *testEnv) calibrate(t *testing.T) {
	t.Helper()
	e.expect(t, http.MethodPut, "/api/regions/inventory", testRegion, http.StatusOK)
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("GET / = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	for _, needle := range []string{"<title>Loot Tracker</title>", "/api/status/stream", "/api/run/"} {
		if !strings.Contains(string(body), needle) {
			t.Fatalf("index missing %q", needle)
		}
	}

	resp, body = env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestStatusShape(t *testing.T) {
	env := newTestEnv(t)
	out := env.expect(t, http.MethodGet, "/api/status", nil, http.StatusOK)

	tr, ok := out["tracker"].(map[string]any)
	if !ok || tr["run_state"] != "idle" {
		t.Fatalf("tracker = %v", out["tracker"])
	}
	slots, ok := out["slots"].([]any)
	if !ok || len(slots) != grid.SlotCount {
		t.Fatalf("slots = %v", out["slots"])
	}
	if _, ok := out["calibrating"].(map[string]any); !ok {
		t.Fatalf("missing calibrating map")
	}
}

func TestRunLifecycle(t *testing.T) {
	env := newTestEnv(t)

	out := env.expect(t, http.MethodPost, "/api/run/start", nil, http.StatusBadRequest)
	if !strings.Contains(out["error"].(string), "not calibrated") {
		t.Fatalf("error = %v", out["error"])
	}

	env.calibrate(t)
	out = env.expect(t, http.MethodPost, "/api/run/start", StartRequest{Label: "slayer"}, http.StatusOK)
	if out["run_state"] != "running" {
		t.Fatalf("run_state = %v", out["run_state"])
	}
	env.expect(t, http.MethodPost, "/api/run/start", nil, http.StatusConflict)
	env.expect(t, http.MethodPut, "/api/regions/inventory", testRegion, http.StatusConflict)

	out = env.expect(t, http.MethodPost, "/api/run/toggle", nil, http.StatusOK)
	if out["run_state"] != "paused" {
		t.Fatalf("toggle -> %v", out["run_state"])
	}
	out = env.expect(t, http.MethodPost, "/api/run/resume", nil, http.StatusOK)
	if out["run_state"] != "running" {
		t.Fatalf("resume -> %v", out["run_state"])
	}

	out = env.expect(t, http.MethodPost, "/api/run/stop", nil, http.StatusOK)
	session, ok := out["session"].(map[string]any)
	if !ok || session["label"] != "slayer" {
		t.Fatalf("sealed session = %v", out["session"])
	}

	out = env.expect(t, http.MethodGet, "/api/sessions", nil, http.StatusOK)
	if list, _ := out["sessions"].([]any); len(list) != 1 {
		t.Fatalf("sessions = %v", out["sessions"])
	}

	st, err := env.store.Load(context.Background())
	if err != nil {
		t.Fatalf("load persisted state: %v", err)
	}
	if len(st.Sessions) != 1 || st.Settings.InvRegion == nil {
		t.Fatalf("persisted state = %+v", st)
	}

	env.expect(t, http.MethodPost, "/api/run/jump", nil, http.StatusNotFound)

	env.expect(t, http.MethodPost, "/api/clear", nil, http.StatusOK)
	out = env.expect(t, http.MethodGet, "/api/sessions", nil, http.StatusOK)
	if list, _ := out["sessions"].([]any); len(list) != 0 {
		t.Fatalf("sessions after clear = %v", out["sessions"])
	}
}

func TestRegionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.expect(t, http.MethodPut, "/api/regions/inventory", RegionRequest{X: 1, Y: 1, W: 0, H: 5}, http.StatusBadRequest)
	env.expect(t, http.MethodPut, "/api/regions/bank", testRegion, http.StatusNotFound)
	env.expect(t, http.MethodPut, "/api/regions/money", RegionRequest{X: 170, Y: 0, W: 30, H: 20}, http.StatusOK)

	resp, _ := env.do(t, http.MethodPut, "/api/regions/money", map[string]any{"x": 1, "bogus": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field accepted: %d", resp.StatusCode)
	}

	inv, money := env.tracker.Regions()
	if inv != nil || money == nil || money.W != 30 {
		t.Fatalf("regions = %v %v", inv, money)
	}
}

func TestTwoClickCalibration(t *testing.T) {
	env := newTestEnv(t)
	out := env.expect(t, http.MethodPost, "/api/calibrate/inventory", PointRequest{X: 160, Y: 252}, http.StatusOK)
	if out["pending"] != true {
		t.Fatalf("first click = %v", out)
	}
	if st := env.srv.monitor.Snapshot(); !st.Calibrating[ChannelInventory] {
		t.Fatalf("calibration not pending")
	}

	out = env.expect(t, http.MethodPost, "/api/calibrate/inventory", PointRequest{X: 0, Y: 0}, http.StatusOK)
	if out["pending"] != false {
		t.Fatalf("second click = %v", out)
	}
	inv, _ := env.tracker.Regions()
	if inv == nil || *inv != testRegion.Rect() {
		t.Fatalf("inventory region = %v", inv)
	}

	env.expect(t, http.MethodPost, "/api/calibrate/money", PointRequest{X: 5, Y: 5}, http.StatusOK)
	env.expect(t, http.MethodDelete, "/api/calibrate/money", nil, http.StatusOK)
	if env.srv.monitor.Snapshot().Calibrating[ChannelMoney] {
		t.Fatalf("cancel left money calibration pending")
	}
	env.expect(t, http.MethodPost, "/api/calibrate/bank", PointRequest{}, http.StatusNotFound)
}

func TestLootIconsAndRename(t *testing.T) {
	env := newTestEnv(t)
	env.calibrate(t)
	env.expect(t, http.MethodPost, "/api/run/start", nil, http.StatusOK)

	env.item.Store(true)
	for range 2 {
		if err := env.tracker.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	out := env.expect(t, http.MethodGet, "/api/loot", nil, http.StatusOK)
	entries, _ := out["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("loot = %v", out)
	}
	entry := entries[0].(map[string]any)
	sig := entry["key"].(string)
	if entry["qty"] != float64(1) {
		t.Fatalf("qty = %v", entry["qty"])
	}
	if _, err := fingerprint.Parse(sig); err != nil {
		t.Fatalf("key %q is not a signature: %v", sig, err)
	}

	resp, body := env.do(t, http.MethodGet, "/api/icons/"+sig+".png", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("icon = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Fatalf("icon is not a PNG: %v", err)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/icons/0000000000000000.png", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing icon = %d", resp.StatusCode)
	}

	out = env.expect(t, http.MethodPut, "/api/icons/"+sig+"/name", RenameRequest{Name: "Dragon bones"}, http.StatusOK)
	if out["name"] != "Dragon bones" {
		t.Fatalf("rename = %v", out)
	}
	if got := env.tracker.Loot()[0].Name; got != "Dragon bones" {
		t.Fatalf("ledger name = %q", got)
	}
	env.expect(t, http.MethodPut, "/api/icons/zz/name", RenameRequest{Name: "x"}, http.StatusBadRequest)

	st, err := env.store.Load(context.Background())
	if err != nil || st.IconNames[sig] != "Dragon bones" {
		t.Fatalf("persisted names = %v, %v", st.IconNames, err)
	}
}

func TestDebugImages(t *testing.T) {
	env := newTestEnv(t)
	env.expect(t, http.MethodGet, "/api/debug/overlay.jpg", nil, http.StatusNotFound)

	env.calibrate(t)
	env.expect(t, http.MethodPut, "/api/regions/money", RegionRequest{X: 170, Y: 0, W: 30, H: 20}, http.StatusOK)
	env.expect(t, http.MethodPost, "/api/run/start", nil, http.StatusOK)

	resp, body := env.do(t, http.MethodGet, "/api/debug/overlay.jpg", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("overlay = %d", resp.StatusCode)
	}
	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("overlay is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 260 {
		t.Fatalf("overlay bounds = %v", b)
	}

	resp, body = env.do(t, http.MethodGet, "/api/debug/slots/3/text.png", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("text crop = %d", resp.StatusCode)
	}
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Fatalf("text crop is not a PNG: %v", err)
	}
	env.expect(t, http.MethodGet, "/api/debug/slots/28/text.png", nil, http.StatusBadRequest)
	env.expect(t, http.MethodGet, "/api/debug/slots/x/text.png", nil, http.StatusBadRequest)
}

func TestRecordingEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.expect(t, http.MethodPost, "/api/recording/stop", nil, http.StatusBadRequest)

	out := env.expect(t, http.MethodPost, "/api/recording/start", nil, http.StatusOK)
	if out["status"] != "recording" || !strings.HasSuffix(out["file"].(string), ".lfr") {
		t.Fatalf("start = %v", out)
	}
	env.expect(t, http.MethodPost, "/api/recording/start", nil, http.StatusConflict)
	if env.metrics.RecordingActive.Load() != 1 {
		t.Fatalf("recording gauge not set")
	}

	out = env.expect(t, http.MethodGet, "/api/recording/status", nil, http.StatusOK)
	if out["recording"] != true {
		t.Fatalf("status = %v", out)
	}
	out = env.expect(t, http.MethodPost, "/api/recording/stop", nil, http.StatusOK)
	if out["status"] != "stopped" {
		t.Fatalf("stop = %v", out)
	}
}

// readSSEEvent returns the first data line from the status stream.
func readSSEEvent(t *testing.T, url, accept string) (string, http.Header) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			return data, resp.Header
		}
	}
}

func TestStatusStreamJSON(t *testing.T) {
	env := newTestEnv(t)
	data, header := readSSEEvent(t, env.ts.URL+"/api/status/stream", "")
	if header.Get("Content-Type") != "text/event-stream" || header.Get("X-Content-Format") != "application/json" {
		t.Fatalf("headers = %v", header)
	}
	var payload StatusPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if payload.Tracker.RunState != tracker.Idle || len(payload.Slots) != grid.SlotCount {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestStatusStreamProtobuf(t *testing.T) {
	env := newTestEnv(t)
	data, header := readSSEEvent(t, env.ts.URL+"/api/status/stream", "application/x-protobuf")
	if header.Get("X-Content-Format") != "application/protobuf" {
		t.Fatalf("format = %q", header.Get("X-Content-Format"))
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal struct: %v", err)
	}
	tr := st.GetFields()["tracker"].GetStructValue()
	if tr == nil || tr.GetFields()["run_state"].GetStringValue() != "idle" {
		t.Fatalf("tracker field = %v", st.GetFields()["tracker"])
	}
}

func TestWebSocketPushesStatus(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readStatus := func() StatusPayload {
		t.Helper()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var p StatusPayload
		if err := json.Unmarshal(msg, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return p
	}

	if p := readStatus(); p.Tracker.RunState != tracker.Idle {
		t.Fatalf("initial state = %s", p.Tracker.RunState)
	}

	env.calibrate(t)
	env.expect(t, http.MethodPost, "/api/run/start", nil, http.StatusOK)
	for {
		if p := readStatus(); p.Tracker.RunState == tracker.Running {
			break
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"snapshot_request"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if p := readStatus(); p.Tracker.InvRegion == nil {
		t.Fatalf("snapshot without region")
	}
	if env.metrics.StreamClients.Load() < 1 {
		t.Fatalf("stream client not counted")
	}
}
