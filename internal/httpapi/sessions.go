package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"trafikkarta/core-go/internal/geolocate"
	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/render"
	"trafikkarta/core-go/internal/view"
)

const maxHostMessageBytes = 4 << 10

type createSessionRequest struct {
	Mode *string `json:"mode" validate:"omitempty,oneof=banner expanded"`
}

type selectRegionRequest struct {
	Region *string `json:"region" validate:"required"`
}

type setFiltersRequest struct {
	Accidents *bool `json:"accidents" validate:"required"`
	Roadworks *bool `json:"roadworks" validate:"required"`
	Cameras   *bool `json:"cameras" validate:"required"`
}

// session resolves the {id} path parameter, writing a 404 when it is unknown.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*view.View, bool) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sessions_unavailable", "sessions are not enabled", nil)
		return nil, false
	}
	id := chi.URLParam(r, "id")
	v, err := h.sessions.Get(id)
	if err != nil {
		if errors.Is(err, view.ErrSessionNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
			return nil, false
		}
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load session", nil)
		return nil, false
	}
	return v, true
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sessions_unavailable", "sessions are not enabled", nil)
		return
	}

	// The body is optional.
	var req createSessionRequest
	if r.ContentLength != 0 && !h.decodeAndValidate(w, r, &req) {
		return
	}

	v := h.sessions.Create()
	if req.Mode != nil {
		v.HandleHostMessage(hostframe.SetViewMode(hostframe.Mode(*req.Mode)))
	}

	ctx := r.Context()
	if ip := clientIP(r); ip != nil {
		ctx = geolocate.WithClientIP(ctx, ip)
	}
	snap := v.Mount(ctx)

	w.Header().Set("Location", "/api/v1/sessions/"+v.ID())
	h.writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, v.Snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sessions_unavailable", "sessions are not enabled", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(id); err != nil {
		if errors.Is(err, view.ErrSessionNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete session", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSelectRegion(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectRegionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	snap, err := v.SelectRegion(r.Context(), strings.TrimSpace(*req.Region))
	if err != nil {
		if errors.Is(err, view.ErrUnknownRegion) {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown region", map[string]any{"region": *req.Region})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to select region", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setFiltersRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	snap := v.SetFilters(r.Context(), render.Filters{
		Accidents: *req.Accidents,
		Roadworks: *req.Roadworks,
		Cameras:   *req.Cameras,
	})
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, v.Refresh(r.Context()))
}

func (h *Handler) handleToggleFilterPanel(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	open := v.ToggleFilterPanel()
	h.writeJSON(w, http.StatusOK, map[string]any{"filter_panel_open": open})
}

func (h *Handler) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}

	zoom := -1
	if raw := strings.TrimSpace(r.URL.Query().Get("zoom")); raw != "" {
		z, err := strconv.Atoi(raw)
		if err != nil || z < 0 {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid zoom", map[string]any{"zoom": raw})
			return
		}
		zoom = z
	}

	h.writeJSON(w, http.StatusOK, v.MarkerFeatures(zoom))
}

func (h *Handler) handleMarkerPopup(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}
	markerID := chi.URLParam(r, "markerId")
	html, found := v.Popup(markerID)
	if !found {
		h.writeError(w, http.StatusNotFound, "not_found", "marker not found", map[string]any{"marker_id": markerID})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

func (h *Handler) handleHostMessage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxHostMessageBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "failed to read body", nil)
		return
	}
	msg, err := hostframe.DecodeMessage(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid host message", map[string]any{"error": err.Error()})
		return
	}
	if msg.Action != hostframe.ActionSetViewMode {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unsupported host message", map[string]any{"action": msg.Action})
		return
	}

	changed := v.HandleHostMessage(msg)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"mode":    v.Mode(),
	})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}

	a, err := view.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown action", map[string]any{"action": chi.URLParam(r, "action")})
		return
	}

	msg, requested, err := v.HandleAction(r.Context(), a)
	if err != nil {
		// The message is still returned so a polling host can act on it.
		h.log.Warn().Err(err).Str("session", v.ID()).Msg("sending expand request failed")
	}

	resp := map[string]any{"expand_requested": requested}
	if requested {
		resp["message"] = msg
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	v, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Warn().Err(err).Str("session", v.ID()).Msg("websocket upgrade failed")
		return
	}

	port := hostframe.NewWSPort(h.log, conn)
	defer port.Close()

	log := h.log.With().Str("session", v.ID()).Logger()
	log.Info().Msg("host port attached")
	if err := v.ServePort(r.Context(), port); err != nil {
		log.Warn().Err(err).Msg("host port stopped")
		return
	}
	log.Info().Msg("host port detached")
}
