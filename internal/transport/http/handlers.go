// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/segflow/trackd/internal/domain/session/api"
	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/ratelimit"
)

type handler struct {
	api     *api.SessionAPI
	limiter *ratelimit.Limiter
}

// mapError translates a domain error into the HTTP status and structured
// body a client should see.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
	case errors.Is(err, model.ErrSessionNotFound):
		respondError(w, r, http.StatusNotFound, ErrNotFound)
	case errors.Is(err, model.ErrSessionExpired):
		respondError(w, r, http.StatusConflict, ErrExpired)
	case errors.Is(err, model.ErrBackendFailure):
		respondError(w, r, http.StatusBadGateway, ErrBackend)
	default:
		log.WithContext(r.Context(), *log.L()).Error().Err(err).Msg("unhandled session api error")
		respondError(w, r, http.StatusInternalServerError, ErrInternal)
	}
}

// withSessionContext attaches sessionID to the request context so any log
// line emitted downstream (including mapError on failure) carries it.
func withSessionContext(r *http.Request, sessionID string) *http.Request {
	return r.WithContext(log.ContextWithSessionID(r.Context(), sessionID))
}

type startSessionRequest struct {
	SessionID       string               `json:"session_id,omitempty"`
	VideoPath       string               `json:"video_path"`
	VideoMetadata   *model.VideoMetadata `json:"video_metadata,omitempty"`
	KeepFramesOnGPU bool                 `json:"keep_frames_on_gpu,omitempty"`
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(ratelimit.ClientIP(r)) {
		respondError(w, r, http.StatusTooManyRequests, ErrRateLimited)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}

	result, err := h.api.StartSession(r.Context(), model.StartRequest{
		SessionID:       req.SessionID,
		VideoPath:       req.VideoPath,
		VideoMetadata:   req.VideoMetadata,
		KeepFramesOnGPU: req.KeepFramesOnGPU,
	})
	if err != nil {
		mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	closed, err := h.api.CloseSession(sessionID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if !closed {
		respondError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	status := h.api.QueueStatus(sessionID)
	if status.Status == model.StatusNotFound {
		respondError(w, r, http.StatusNotFound, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type pointsRequest struct {
	FrameIndex     int            `json:"frame_index"`
	ObjectID       int            `json:"object_id"`
	Points         []ports.Point  `json:"points"`
	ClearOldPoints bool           `json:"clear_old_points,omitempty"`
	Mask           *ports.RLEMask `json:"mask,omitempty"`
}

func (h *handler) addPoints(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}

	masks, err := h.api.AddPoints(r.Context(), sessionID, req.FrameIndex, req.ObjectID, req.Points, req.ClearOldPoints)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, masks)
}

func (h *handler) addMask(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mask == nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}

	masks, err := h.api.AddMask(r.Context(), sessionID, req.FrameIndex, req.ObjectID, *req.Mask)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, masks)
}

func (h *handler) clearPointsInFrame(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	frameIndex, err1 := strconv.Atoi(chi.URLParam(r, "frameIndex"))
	objectID, err2 := strconv.Atoi(chi.URLParam(r, "objectID"))
	if err1 != nil || err2 != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}

	masks, err := h.api.ClearPointsInFrame(r.Context(), sessionID, frameIndex, objectID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, masks)
}

func (h *handler) clearPointsInVideo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	if err := h.api.ClearPointsInVideo(r.Context(), sessionID); err != nil {
		mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeObject(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	objectID, err := strconv.Atoi(chi.URLParam(r, "objectID"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrInvalidInput)
		return
	}

	results, callErr := h.api.RemoveObject(r.Context(), sessionID, objectID)
	if callErr != nil {
		mapError(w, r, callErr)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) propagateInVideo(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)

	startFrameIndex := 0
	if v := r.URL.Query().Get("start_frame_index"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			startFrameIndex = parsed
		}
	}
	direction := ports.Direction(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = ports.DirectionForward
	}

	frames, errc, err := h.api.PropagateInVideo(r.Context(), sessionID, startFrameIndex, direction)
	if err != nil {
		mapError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, ErrInternal)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	for frames != nil || errc != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			_ = enc.Encode(frame)
			flusher.Flush()
		case streamErr, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if streamErr != nil {
				_ = enc.Encode(map[string]string{"error": streamErr.Error()})
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *handler) cancelPropagation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	r = withSessionContext(r, sessionID)
	if err := h.api.CancelPropagateInVideo(sessionID); err != nil {
		mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
