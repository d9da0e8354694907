// Package monitor keeps a rolling history of MonitorSnapshot per
// Frontend, exposes a gonum/stat-smoothed view of it, and optionally fans
// updates out to HTTP subscribers (Server-Sent Events).
package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/mpostema/dvbstreamer/internal/frontenddata"
)

const defaultHistoryLimit = 200

// Sample is one timestamped MonitorSnapshot.
type Sample struct {
	Timestamp time.Time                     `json:"timestamp"`
	Snapshot  frontenddata.MonitorSnapshot `json:"snapshot"`
}

// Buffer is a bounded rolling history of monitor samples for one
// Frontend, plus a smoothed strength/SNR view over the window.
type Buffer struct {
	mu           sync.RWMutex
	history      []Sample
	historyLimit int
	subscribers  map[chan Sample]struct{}
}

// NewBuffer builds a Buffer with the given history limit (defaulted if <= 0).
func NewBuffer(historyLimit int) *Buffer {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Buffer{historyLimit: historyLimit, subscribers: make(map[chan Sample]struct{})}
}

// Report records a new MonitorSnapshot and fans it out to subscribers.
func (b *Buffer) Report(snap frontenddata.MonitorSnapshot) {
	sample := Sample{Timestamp: time.Now(), Snapshot: snap}

	b.mu.Lock()
	b.history = append(b.history, sample)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	for ch := range b.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	b.mu.Unlock()
}

// History returns a copy of the stored samples.
func (b *Buffer) History() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Sample, len(b.history))
	copy(out, b.history)
	return out
}

// Smoothed returns the mean strength and SNR over the current window.
// Returns (0, 0) on an empty buffer rather than panicking.
func (b *Buffer) Smoothed() (strength, snr float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return 0, 0
	}
	strengths := make([]float64, len(b.history))
	snrs := make([]float64, len(b.history))
	for i, s := range b.history {
		strengths[i] = float64(s.Snapshot.Strength0To240)
		snrs[i] = float64(s.Snapshot.SNR0To15)
	}
	return stat.Mean(strengths, nil), stat.Mean(snrs, nil)
}

// Subscribe registers a listener for live updates.
func (b *Buffer) Subscribe() (chan Sample, func()) {
	ch := make(chan Sample, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Hub owns one Buffer per Frontend, keyed by FeID, and serves the optional
// monitor HTTP surface.
type Hub struct {
	mu      sync.RWMutex
	buffers map[int]*Buffer
}

// NewHub builds an empty per-frontend hub.
func NewHub() *Hub {
	return &Hub{buffers: make(map[int]*Buffer)}
}

// Buffer returns (creating if necessary) the Buffer for feID.
func (h *Hub) Buffer(feID int) *Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buffers[feID]
	if !ok {
		b = NewBuffer(defaultHistoryLimit)
		h.buffers[feID] = b
	}
	return b
}

// RegisterHandlers mounts GET /api/frontends/{feid}/history and
// GET /api/frontends/{feid}/live on mux.
func (h *Hub) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/frontends/", h.routeFrontend)
}

func (h *Hub) routeFrontend(w http.ResponseWriter, r *http.Request) {
	feID, rest, ok := parseFrontendPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	buf := h.Buffer(feID)
	switch rest {
	case "history":
		h.handleHistory(w, r, buf)
	case "live":
		h.handleLive(w, r, buf)
	default:
		http.NotFound(w, r)
	}
}

// parseFrontendPath extracts the feID and trailing segment from
// "/api/frontends/{feid}/{rest}".
func parseFrontendPath(path string) (feID int, rest string, ok bool) {
	const prefix = "/api/frontends/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return 0, "", false
	}
	tail := path[len(prefix):]
	slash := -1
	for i, c := range tail {
		if c == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(tail[:slash])
	if err != nil {
		return 0, "", false
	}
	return n, tail[slash+1:], true
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request, buf *Buffer) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(buf.History())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request, buf *Buffer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := buf.Subscribe()
	defer cancel()

	for _, sample := range buf.History() {
		writeSSE(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, sample Sample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
