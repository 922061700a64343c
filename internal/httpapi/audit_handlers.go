package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
)

func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermViewAnalytics); !ok {
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events := a.auditor.Events(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
		"as_of": time.Now().UTC(),
	})
}

func (a *API) handleAuditMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermViewAnalytics); !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.auditor.GetMetrics())
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		Type:     audit.EventType(strings.TrimSpace(q.Get("type"))),
		Severity: audit.Severity(strings.TrimSpace(q.Get("severity"))),
		Actor:    strings.TrimSpace(q.Get("actor")),
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Since = ts
	}
	if raw := strings.TrimSpace(q.Get("until")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Until = ts
	}
	return filter, nil
}

// StreamAlerts handles Server-Sent Events for escalated security
// events.
func (a *API) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	if a.alerts == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermViewAnalytics); !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.alerts.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
