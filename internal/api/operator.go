package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/session"
)

// instanceRoutes maps operator paths to the instance they read and write.
var instanceRoutes = map[string]string{
	"/state":      capability.InstanceOn,
	"/brightness": capability.InstanceBrightness,
	"/program":    capability.InstanceProgram,
	"/color":      capability.InstanceHSV,
}

// maxSeedTTL caps the lifetime of an operator-seeded session.
const maxSeedTTL = 30 * 24 * time.Hour

type instanceResponse struct {
	DeviceID  string           `json:"device_id"`
	Instance  string           `json:"instance"`
	Value     capability.Value `json:"value"`
	Connected bool             `json:"connected"`
}

type setInstanceRequest struct {
	Value json.RawMessage `json:"value"`
}

type setInstanceResponse struct {
	DeviceID  string `json:"device_id"`
	Instance  string `json:"instance"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Command   string `json:"command,omitempty"`
	Delivered bool   `json:"delivered"`
}

type seedSessionRequest struct {
	Token        string `json:"token"`
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// handleListDeviceIDs returns the ids of all known devices.
func (s *Server) handleListDeviceIDs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListIDs())
}

// handleListUserIDs returns the users holding a cached session.
func (s *Server) handleListUserIDs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.UserIDs())
}

// handleSeedSession caches a session handed over by account linking, so the
// first platform request does not need a provider round-trip.
func (s *Server) handleSeedSession(w http.ResponseWriter, r *http.Request) {
	var req seedSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "token and user_id are required")
		return
	}
	ttl := time.Duration(req.ExpiresIn) * time.Second
	if ttl <= 0 || ttl > maxSeedTTL {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "expires_in must be between 1 second and 30 days")
		return
	}

	sess, err := s.sessions.Put(session.Session{
		Token:        req.Token,
		UserID:       req.UserID,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    time.Now().Add(ttl),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	s.logger.Info("session seeded", "user_id", sess.UserID, "expires_at", sess.ExpiresAt)
	writeJSON(w, http.StatusCreated, sess)
}

// deviceIDParam reads the required device_id query parameter.
func deviceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if id == "" {
		writeBadRequest(w, "device_id query parameter is required")
		return "", false
	}
	return id, true
}

// handleGetInstance reads one instance of a device.
func (s *Server) handleGetInstance(instance string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceIDParam(w, r)
		if !ok {
			return
		}

		d, found := s.registry.Find(id)
		if !found {
			writeNotFound(w, "device not found")
			return
		}
		v, err := capability.Read(d.State, instance)
		if err != nil {
			writeInternalError(w, "failed to read state")
			return
		}

		writeJSON(w, http.StatusOK, instanceResponse{
			DeviceID:  id,
			Instance:  instance,
			Value:     v,
			Connected: d.Connected(),
		})
	}
}

// handleSetInstance writes one instance of a device through the registry.
func (s *Server) handleSetInstance(instance string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceIDParam(w, r)
		if !ok {
			return
		}

		var req setInstanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if len(req.Value) == 0 {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "value is required")
			return
		}

		out, err := s.registry.Apply(r.Context(), id, instance, req.Value)
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}

		entry := audit.Entry{
			RequestID: requestIDFrom(r.Context()),
			Source:    audit.SourceOperator,
			DeviceID:  id,
			Instance:  instance,
			Value:     string(req.Value),
		}.WithResult(out, err)
		s.recorder.Record(entry)

		if err != nil {
			writeError(w, http.StatusBadRequest, string(device.CodeOf(err)), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, setInstanceResponse{
			DeviceID:  id,
			Instance:  instance,
			Status:    entry.Status,
			ErrorCode: entry.ErrorCode,
			Command:   out.Command,
			Delivered: out.Delivered,
		})
	}
}

// handleDeviceWebSocket hands a controller connection to the connection
// manager. It blocks until the controller disconnects.
func (s *Server) handleDeviceWebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "device_id"))
	if id == "" {
		writeBadRequest(w, "device id is required")
		return
	}
	if err := s.connections.Serve(w, r, id); err != nil {
		s.logger.Warn("device connection failed", "device_id", id, "error", err)
	}
}
