package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
)

// SerializedEvent is one status snapshot encoded once for every client.
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 google.protobuf.Struct
}

var statusLog = logger.For("Status")

// StatusBroadcaster fans status snapshots out to SSE and WebSocket clients.
// A snapshot is pushed whenever the tracker notifies and at least once per
// interval while clients are connected.
type StatusBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent
	nextID   int
	monitor  *Monitor
	metrics  *metrics.Metrics
	interval time.Duration
	wake     chan struct{}
	stop     chan struct{}
	stopped  bool
}

func NewStatusBroadcaster(monitor *Monitor, m *metrics.Metrics, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  make(map[int]chan *SerializedEvent),
		monitor:  monitor,
		metrics:  m,
		interval: interval,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Subscribe registers a client. The channel closes on Unsubscribe or Stop.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, 2)
	sb.clients[id] = ch
	if sb.metrics != nil {
		sb.metrics.StreamClients.Add(1)
	}

	statusLog.Debug("client %d joined, %d connected", id, len(sb.clients))
	return id, ch
}

func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
		if sb.metrics != nil {
			sb.metrics.StreamClients.Add(-1)
		}
		statusLog.Debug("client %d left, %d connected", id, len(sb.clients))
	}
}

// Notify schedules a push. It never blocks and is safe to register as a
// tracker observer.
func (sb *StatusBroadcaster) Notify() {
	select {
	case sb.wake <- struct{}{}:
	default:
	}
}

func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster and disconnects every client.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.stopped {
		return
	}
	close(sb.stop)
	sb.stopped = true
	for id, ch := range sb.clients {
		close(ch)
		delete(sb.clients, id)
		if sb.metrics != nil {
			sb.metrics.StreamClients.Add(-1)
		}
	}
}

func (sb *StatusBroadcaster) run() {
	statusLog.Info("pushing status every %v and on change", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
		case <-sb.wake:
		}

		if sb.idle() {
			continue
		}

		if event := sb.Current(); event != nil {
			sb.broadcast(event)
		}
	}
}

// Current serializes the present status in both formats.
func (sb *StatusBroadcaster) Current() *SerializedEvent {
	jsonData, err := json.Marshal(sb.monitor.Snapshot())
	if err != nil {
		statusLog.Error("encode status: %v", err)
		return nil
	}

	pbData, err := encodeStruct(jsonData)
	if err != nil {
		statusLog.Error("encode status struct: %v", err)
		return nil
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}
}

// encodeStruct re-encodes a JSON object as a google.protobuf.Struct.
func encodeStruct(jsonData []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (sb *StatusBroadcaster) idle() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.clients) == 0
}

// broadcast drops the event for clients whose buffer is full.
func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.clients {
		select {
		case ch <- event:
		default:
		}
	}
}
