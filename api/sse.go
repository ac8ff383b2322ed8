/*
sse.go - Completion events over Server-Sent Events

Bridges bus subscriptions onto a text/event-stream response. Each
completion delivers one "scan" event with a timestamp payload; a
heartbeat comment keeps idle proxies from closing the connection.
Clients that miss events simply re-query; the stream carries no state.
*/
package api

import (
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 30 * time.Second

// ScanEvents streams completion events until the client disconnects.
// GET /api/events/scan
func (h *Handler) ScanEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(sub.ID)

	// Initial comment so the client sees the stream open immediately.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ts, open := <-sub.C:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: scan\ndata: {\"ts\":%q}\n\n", ts.Format(time.RFC3339))
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
