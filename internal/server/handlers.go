package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/home"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/voice"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	maxBodySize       = 1 << 20
)

// Request and response types

type errorResponse struct {
	Error string `json:"error"`
}

type devicesResponse struct {
	Devices []device.Device `json:"devices"`
}

type switchRequest struct {
	On *bool `json:"on"`
}

type voiceRequest struct {
	Transcript string `json:"transcript"`
}

type voiceResponse struct {
	Command voice.Command `json:"command"`
}

type landmarksRequest struct {
	Points     []landmark.Point3D `json:"points"`
	Handedness string             `json:"handedness,omitempty"`
	Score      float64            `json:"score,omitempty"`
}

func (r landmarksRequest) hand() landmark.Hand {
	return landmark.Hand{Points: r.Points, Handedness: r.Handedness, Score: r.Score}
}

type facesRequest struct {
	Faces []landmark.Face `json:"faces"`
}

type armedRequest struct {
	Armed *bool `json:"armed"`
}

type enrollRequest struct {
	Name string        `json:"name"`
	Face landmark.Face `json:"face"`
}

type facesListResponse struct {
	Faces []*store.AuthorizedFace `json:"faces"`
}

type eventsResponse struct {
	Events []*store.SecurityEvent `json:"events"`
}

type clearResponse struct {
	Deleted int64 `json:"deleted"`
}

type errUnknownMessage string

func (e errUnknownMessage) Error() string {
	return fmt.Sprintf("unknown message type %q", string(e))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps a domain error onto an HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrUnknownDevice), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, voice.ErrUnrecognized), errors.Is(err, gesture.ErrInvalidLandmarkSet):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, home.ErrInvalidFace):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, home.ErrGesturesDisabled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		monitoring.Logf("server: request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// ignoreFrameError drops errors that only mean a frame was not usable.
func ignoreFrameError(err error) error {
	if errors.Is(err, gesture.ErrInvalidLandmarkSet) || errors.Is(err, home.ErrGesturesDisabled) {
		return nil
	}
	return err
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func deviceID(r *http.Request) int {
	// The route pattern guarantees digits.
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

// listDevices handles GET /api/devices.
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, devicesResponse{Devices: s.ctrl.Devices()})
}

// setDevice handles PUT /api/devices/{id}.
func (s *Server) setDevice(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, "on is required")
		return
	}

	d, err := s.ctrl.SetDevice(r.Context(), deviceID(r), *req.On)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// toggleDevice handles POST /api/devices/{id}/toggle.
func (s *Server) toggleDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.ctrl.ToggleDevice(r.Context(), deviceID(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// setAllDevices handles POST /api/devices/all.
func (s *Server) setAllDevices(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, "on is required")
		return
	}
	writeJSON(w, http.StatusOK, devicesResponse{Devices: s.ctrl.SetAll(r.Context(), *req.On)})
}

// handleVoice handles POST /api/voice with a recognized transcript.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd, err := s.ctrl.HandleVoice(r.Context(), req.Transcript)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{Command: cmd})
}

// handleLandmarks handles POST /api/landmarks with one hand landmark set
// from a browser-side model. An empty set is a frame with no hand.
func (s *Server) handleLandmarks(w http.ResponseWriter, r *http.Request) {
	var req landmarksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Points) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	hand := req.hand()
	ev, err := s.ctrl.ProcessHand(&hand)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleFaces handles POST /api/faces with the faces found in one frame.
func (s *Server) handleFaces(w http.ResponseWriter, r *http.Request) {
	var req facesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.ProcessFaces(r.Context(), req.Faces))
}

// getSettings handles GET /api/settings.
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

// putSettings handles PUT /api/settings. Fields missing from the body keep
// their current values.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.ctrl.Settings()
	if !decodeBody(w, r, &settings) {
		return
	}

	saved, err := s.ctrl.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// getStatus handles GET /api/status.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// setArmed handles PUT /api/security/armed.
func (s *Server) setArmed(w http.ResponseWriter, r *http.Request) {
	var req armedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Armed == nil {
		writeError(w, http.StatusBadRequest, "armed is required")
		return
	}

	if err := s.ctrl.SetArmed(r.Context(), *req.Armed); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// listFaces handles GET /api/security/faces.
func (s *Server) listFaces(w http.ResponseWriter, r *http.Request) {
	faces, err := s.ctrl.ListFaces(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if faces == nil {
		faces = []*store.AuthorizedFace{}
	}
	writeJSON(w, http.StatusOK, facesListResponse{Faces: faces})
}

// enrollFace handles POST /api/security/faces.
func (s *Server) enrollFace(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeBody(w, r, &req) {
		return
	}

	face, err := s.ctrl.EnrollFace(r.Context(), req.Name, req.Face)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, face)
}

// deleteFace handles DELETE /api/security/faces/{id}.
func (s *Server) deleteFace(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.RemoveFace(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listSecurityEvents handles GET /api/security/events?limit=N.
func (s *Server) listSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.ctrl.SecurityEvents(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if events == nil {
		events = []*store.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// clearSecurityEvents handles DELETE /api/security/events. The client must
// pass confirm=true once the user has agreed.
func (s *Server) clearSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusPreconditionRequired, "confirm=true is required to clear security events")
		return
	}

	n, err := s.ctrl.ClearSecurityEvents(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}
