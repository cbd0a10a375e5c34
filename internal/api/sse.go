package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/miradorstack/pipeline-rca/internal/models"
)

const (
	sseClientBuffer  = 16
	sseKeepAlive     = 15 * time.Second
	defaultSSEClient = 100
)

// Hub fans created notifications out to server-sent event clients. Slow
// clients miss events rather than blocking notification creation.
type Hub struct {
	logger     *slog.Logger
	maxClients int
	keepAlive  time.Duration

	mu      sync.Mutex
	clients map[chan models.Notification]struct{}
}

// NewHub constructs a hub accepting at most maxClients concurrent streams.
func NewHub(logger *slog.Logger, maxClients int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if maxClients <= 0 {
		maxClients = defaultSSEClient
	}
	return &Hub{
		logger:     logger,
		maxClients: maxClients,
		keepAlive:  sseKeepAlive,
		clients:    make(map[chan models.Notification]struct{}),
	}
}

// Publish delivers n to every connected client. It matches notifications.Subscriber.
func (h *Hub) Publish(n models.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- n:
		default:
			h.logger.Debug("sse client lagging, event dropped", slog.String("notification_id", n.ID))
		}
	}
	return nil
}

// Clients returns the number of connected streams.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() (chan models.Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.maxClients {
		return nil, false
	}
	ch := make(chan models.Notification, sseClientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unregister(ch chan models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// ServeHTTP streams notifications as "notification" events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}
	ch, ok := h.register()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "too many event stream clients"})
		return
	}
	defer h.unregister(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n := <-ch:
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Warn("encode sse event failed", slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data)
			flusher.Flush()
		}
	}
}
