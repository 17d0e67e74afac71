package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zalusdev/zalus/agent"
)

// eventWriter serializes agent events as server-sent events, flushing
// after each frame so the caller sees progress immediately.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: flusher}
}

func (ew *eventWriter) write(ev agent.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		payload = []byte(`{}`)
	}
	if _, err := fmt.Fprintf(ew.w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return err
	}
	if ew.flusher != nil {
		ew.flusher.Flush()
	}
	return nil
}
