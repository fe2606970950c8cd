package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookboard/hookboard/internal/events"
)

// sseConnection tracks one Server-Sent Events client and its filters.
type sseConnection struct {
	w       http.ResponseWriter
	flusher http.Flusher
	types   []string // Event types to deliver; empty means all
	taskID  int64    // Only events for this task; 0 means all
	closeCh chan struct{}
}

// handleEventStream handles GET /events/stream. Query parameters:
//
//	type - comma-separated event types ("hook.started,hook.completed")
//	task - only events for this task ID
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn := &sseConnection{
		w:       w,
		flusher: flusher,
		closeCh: make(chan struct{}),
	}
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		for _, t := range strings.Split(typeParam, ",") {
			if t = strings.TrimSpace(t); t != "" {
				conn.types = append(conn.types, t)
			}
		}
	}
	if taskParam := r.URL.Query().Get("task"); taskParam != "" {
		id, err := strconv.ParseInt(taskParam, 10, 64)
		if err != nil {
			jsonError(w, "Invalid task ID", http.StatusBadRequest)
			return
		}
		conn.taskID = id
	}

	s.mu.Lock()
	s.connections[conn] = true
	s.mu.Unlock()
	defer s.removeConnection(conn)

	subID, eventCh := s.bus.Subscribe(256)
	defer s.bus.Unsubscribe(subID)

	// Tell the client the stream is live
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.closeCh:
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if !conn.matchesFilters(ev) {
				continue
			}
			if err := conn.sendEvent(ev); err != nil {
				return
			}
		}
	}
}

func (c *sseConnection) matchesFilters(ev events.Event) bool {
	if c.taskID != 0 && ev.TaskID != c.taskID {
		return false
	}
	if len(c.types) == 0 {
		return true
	}
	for _, t := range c.types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func (c *sseConnection) sendEvent(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (s *Server) removeConnection(conn *sseConnection) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()
}

// closeSSEConnections unblocks every open stream so shutdown is not held
// hostage by idle clients.
func (s *Server) closeSSEConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		select {
		case <-conn.closeCh:
		default:
			close(conn.closeCh)
		}
	}
}
