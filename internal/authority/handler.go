package authority

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"broadcast-director/internal/pipeline"

	"github.com/go-chi/chi/v5"
)

const defaultKeepalive = 15 * time.Second

// Handler exposes the authority's thin remote-procedure boundary over HTTP:
// request/release calls routed to the authoritative peer, record changes
// broadcast back as server-sent events.
type Handler struct {
	coord     *Coordinator
	log       *slog.Logger
	peers     *peerTracker
	keepalive time.Duration
}

// NewHandler returns a Handler for the given coordinator. Each event
// connection carries the peer's identity; when a peer's last connection goes
// away its owned slots are released.
func NewHandler(coord *Coordinator, log *slog.Logger) *Handler {
	h := &Handler{coord: coord, log: log, keepalive: defaultKeepalive}
	h.peers = newPeerTracker(func(peerID string) {
		coord.PeerDisconnected(peerID)
	})
	return h
}

type controlRequest struct {
	SourceID    string `json:"source_id"`
	RequesterID string `json:"requester_id"`
}

type controlResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type releaseRequest struct {
	RequesterID string `json:"requester_id"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

// RequestControl handles POST /v1/slots/{slot}/control.
// Body: { "source_id": "camA", "requester_id": "director-1" }.
// A validation rejection is a valid outcome (422), not a failure: the record
// is untouched and the next request re-issues the intent.
func (h *Handler) RequestControl(w http.ResponseWriter, r *http.Request) {
	slot, ok := pipeline.ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		writeJSON(w, http.StatusNotFound, controlResponse{Accepted: false, Reason: "unknown slot"})
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid control body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := h.coord.RequestControl(slot, req.SourceID, req.RequesterID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, controlResponse{Accepted: true})
	case errors.Is(err, ErrUnsupportedSlot),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrMissingSource),
		errors.Is(err, ErrMissingRequester):
		writeJSON(w, http.StatusUnprocessableEntity, controlResponse{Accepted: false, Reason: err.Error()})
	default:
		h.log.Error("control request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// ReleaseControl handles POST /v1/slots/{slot}/release.
// Body: { "requester_id": "director-1" }. A release by a non-owner is
// silently ignored; the response reports whether the record changed.
func (h *Handler) ReleaseControl(w http.ResponseWriter, r *http.Request) {
	slot, ok := pipeline.ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		writeJSON(w, http.StatusNotFound, releaseResponse{Released: false})
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid release body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	released := h.coord.ReleaseControl(slot, req.RequesterID)
	writeJSON(w, http.StatusAccepted, releaseResponse{Released: released})
}

// ForceRelease handles POST /v1/slots/{slot}/force-release, the operator
// override for records whose owner is gone.
func (h *Handler) ForceRelease(w http.ResponseWriter, r *http.Request) {
	slot, ok := pipeline.ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		writeJSON(w, http.StatusNotFound, releaseResponse{Released: false})
		return
	}

	released := h.coord.ForceRelease(slot)
	writeJSON(w, http.StatusAccepted, releaseResponse{Released: released})
}

// ListRecords handles GET /v1/slots.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]Record{"records": h.coord.Records()})
}

// StreamEvents handles GET /v1/events?peer_id=X: a server-sent event stream
// of record changes. Replayed transitions for currently active slots are
// delivered first, then live changes in publish order. The connection doubles
// as the peer's liveness signal.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	peerID := r.URL.Query().Get("peer_id")
	h.peers.connect(peerID)
	defer h.peers.disconnect(peerID)

	sub := h.coord.Subscribe(0, true)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Info("event subscriber connected", slog.String("peer_id", peerID))
	defer h.log.Info("event subscriber disconnected", slog.String("peer_id", peerID))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case c, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				h.log.Error("marshal change", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// peerTracker counts live event connections per peer and fires onGone when a
// peer's last connection closes. Peers with an empty identity are read-only
// observers and are not tracked.
type peerTracker struct {
	mu     sync.Mutex
	counts map[string]int
	onGone func(peerID string)
}

func newPeerTracker(onGone func(string)) *peerTracker {
	return &peerTracker{counts: make(map[string]int), onGone: onGone}
}

func (t *peerTracker) connect(peerID string) {
	if peerID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[peerID]++
}

func (t *peerTracker) disconnect(peerID string) {
	if peerID == "" {
		return
	}
	t.mu.Lock()
	t.counts[peerID]--
	gone := t.counts[peerID] <= 0
	if gone {
		delete(t.counts, peerID)
	}
	t.mu.Unlock()

	if gone && t.onGone != nil {
		t.onGone(peerID)
	}
}
