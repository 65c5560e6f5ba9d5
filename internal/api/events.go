package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ducktap-game/ducktap/internal/engine"
)

// ─── Live Events Feed ───────────────────────────────────────────────────────
// Engine events (credit_earned, level_up, mining_complete) are fanned out
// to subscribed UIs over Server-Sent Events. SSE instead of WebSocket for
// simplicity and HTTP/2 compatibility.

// EventsHub broadcasts engine events to live subscribers.
type EventsHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewEventsHub creates an empty hub.
func NewEventsHub() *EventsHub {
	return &EventsHub{clients: make(map[chan []byte]struct{})}
}

// Publish implements engine.Sink.
func (h *EventsHub) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, drop the event. The feed is cosmetic only.
		}
	}
}

// Subscribe registers a new client. Returns the channel and an unsubscribe func.
func (h *EventsHub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleEventsSSE serves the live event feed.
// GET /api/events/live
func (h *EventsHub) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch, unsub := h.Subscribe()
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
