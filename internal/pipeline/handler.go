package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the local pipeline surface over HTTP: source registration
// for the capture layer and assignment/forward actions for the director UI.
type Handler struct {
	registry *Registry
	table    *Table
	log      *slog.Logger
}

// NewHandler returns a Handler over the given registry and table.
func NewHandler(registry *Registry, table *Table, log *slog.Logger) *Handler {
	return &Handler{registry: registry, table: table, log: log}
}

type sourceRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type assignRequest struct {
	SourceID string `json:"source_id"`
}

type forwardRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RegisterSource handles POST /v1/sources.
// Body: { "id": "camA", "kind": "ndi" }. Kind is one of ndi, texture,
// static; empty defaults to ndi.
func (h *Handler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid source body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	src, ok := newSource(req.Kind, req.ID)
	if !ok {
		h.log.Debug("unknown source kind", slog.String("kind", req.Kind))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.registry.Register(src)
	h.log.Info("source registered", slog.String("source_id", req.ID), slog.String("kind", req.Kind))
	w.WriteHeader(http.StatusCreated)
}

// UnregisterSource handles DELETE /v1/sources/{id}. Existing assignments are
// left untouched.
func (h *Handler) UnregisterSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.registry.Unregister(id)
	h.log.Info("source unregistered", slog.String("source_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// ListSources handles GET /v1/sources.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.IDs()
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string][]string{"sources": ids})
}

// AssignSource handles POST /v1/pipeline/{slot}/source.
// Body: { "source_id": "camA" }. The slot is overwritten regardless of prior
// content.
func (h *Handler) AssignSource(w http.ResponseWriter, r *http.Request) {
	slot, ok := ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	src, ok := h.registry.Get(req.SourceID)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ErrNotEligible.Error()})
		return
	}

	switch err := h.table.Assign(src, slot); {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrUnknownSlot):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrNotEligible):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		h.log.Error("assign failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Forward handles POST /v1/pipeline/forward.
// Body: { "from": "tv_preview", "to": "tv_live" }. Forwarding from an empty
// slot is inert; the response reports whether content moved.
func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	from, ok := ParseSlot(req.From)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	to, ok := ParseSlot(req.To)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	forwarded := h.table.Forward(from, to)
	writeJSON(w, http.StatusOK, map[string]bool{"forwarded": forwarded})
}

// Snapshot handles GET /v1/pipeline.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments":         h.table.Snapshot(),
		"assigned_source_ids": h.table.AssignedSourceIDs(),
	})
}

func newSource(kind, id string) (Source, bool) {
	switch kind {
	case "", "ndi":
		return NDISource{Name: id}, true
	case "texture":
		return TextureSource{Name: id}, true
	case "static":
		return StaticSource{Name: id}, true
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
