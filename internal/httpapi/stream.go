package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Stream отдаёт события маркетплейса как Server-Sent Events.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	ch := a.stream.Subscribe(r.Context())

	_, _ = fmt.Fprint(w, ": stream started\n\n")
	flusher.Flush()

	for evt := range ch {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", evt.ID, payload)
		flusher.Flush()
	}
}
