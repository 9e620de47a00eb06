package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// streamAudit serves a community's audit entries as Server-Sent Events.
func (a *API) streamAudit(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireScope(w, r, scopeFor(r.Method)) {
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx, communityID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	for entry := range ch {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: " + string(entry.Action) + "\n"))
		_, _ = w.Write([]byte("id: " + entry.ID + "\n"))
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
