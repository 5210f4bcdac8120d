package api

import (
	"encoding/json"
	"net/http"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/device"
)

// deviceRef names a device in a platform request. custom_data is accepted
// and ignored.
type deviceRef struct {
	ID         string          `json:"id"`
	CustomData json.RawMessage `json:"custom_data,omitempty"`
}

type queryRequest struct {
	Devices []deviceRef `json:"devices"`
}

type capabilityState struct {
	Instance string `json:"instance"`
	// Value is set in query responses.
	Value *capability.Value `json:"value,omitempty"`
	// ActionResult is set in action responses.
	ActionResult *actionResult `json:"action_result,omitempty"`
}

type capabilityReport struct {
	Type  capability.Type `json:"type"`
	State capabilityState `json:"state"`
}

type deviceReport struct {
	ID           string             `json:"id"`
	Capabilities []capabilityReport `json:"capabilities"`
}

type devicesPayload struct {
	UserID  string `json:"user_id,omitempty"`
	Devices any    `json:"devices"`
}

type platformResponse struct {
	RequestID string         `json:"request_id"`
	Payload   devicesPayload `json:"payload"`
}

type actionCapability struct {
	Type  capability.Type `json:"type"`
	State struct {
		Instance string          `json:"instance"`
		Value    json.RawMessage `json:"value"`
	} `json:"state"`
}

type actionDevice struct {
	ID           string             `json:"id"`
	CustomData   json.RawMessage    `json:"custom_data,omitempty"`
	Capabilities []actionCapability `json:"capabilities"`
}

type actionRequest struct {
	Payload struct {
		Devices []actionDevice `json:"devices"`
	} `json:"payload"`
}

type actionResult struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// handleUserDevices lists every known device with its capability descriptors.
func (s *Server) handleUserDevices(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, platformResponse{
		RequestID: requestIDFrom(r.Context()),
		Payload: devicesPayload{
			UserID:  sess.UserID,
			Devices: s.registry.List(),
		},
	})
}

// handleQuery reports the current value of every retrievable instance of the
// requested devices. Unknown devices and unreadable instances are omitted.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	reports := make([]deviceReport, 0, len(req.Devices))
	for _, ref := range req.Devices {
		d, ok := s.registry.Find(ref.ID)
		if !ok {
			continue
		}
		reports = append(reports, queryDevice(d))
	}

	writeJSON(w, http.StatusOK, platformResponse{
		RequestID: requestIDFrom(r.Context()),
		Payload:   devicesPayload{Devices: reports},
	})
}

// queryDevice reads every descriptor of d from its state snapshot.
func queryDevice(d *device.Device) deviceReport {
	report := deviceReport{ID: d.ID, Capabilities: make([]capabilityReport, 0, len(d.Capabilities))}
	for _, desc := range d.Capabilities {
		instance := desc.Instance()
		if instance == "" {
			continue
		}
		v, err := capability.Read(d.State, instance)
		if err != nil {
			continue
		}
		report.Capabilities = append(report.Capabilities, capabilityReport{
			Type:  desc.Type,
			State: capabilityState{Instance: instance, Value: &v},
		})
	}
	return report
}

// handleAction applies each requested capability independently. A failing
// capability never stops its siblings and nothing is rolled back.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	sess := sessionFrom(ctx)
	requestID := requestIDFrom(ctx)

	reports := make([]deviceReport, 0, len(req.Payload.Devices))
	for _, ad := range req.Payload.Devices {
		if _, ok := s.registry.Find(ad.ID); !ok {
			s.logger.Debug("action for unknown device dropped", "device_id", ad.ID, "request_id", requestID)
			continue
		}

		report := deviceReport{ID: ad.ID, Capabilities: make([]capabilityReport, 0, len(ad.Capabilities))}
		for _, ac := range ad.Capabilities {
			instance := ac.State.Instance
			out, err := s.registry.Apply(ctx, ad.ID, instance, ac.State.Value)

			entry := audit.Entry{
				RequestID: requestID,
				Source:    audit.SourcePlatform,
				UserID:    sess.UserID,
				DeviceID:  ad.ID,
				Instance:  instance,
				Value:     string(ac.State.Value),
			}.WithResult(out, err)
			s.recorder.Record(entry)

			report.Capabilities = append(report.Capabilities, capabilityReport{
				Type: ac.Type,
				State: capabilityState{
					Instance:     instance,
					ActionResult: resultOf(out, err),
				},
			})
		}
		reports = append(reports, report)
	}

	writeJSON(w, http.StatusOK, platformResponse{
		RequestID: requestIDFrom(ctx),
		Payload:   devicesPayload{Devices: reports},
	})
}

// resultOf converts an apply outcome into the platform's action_result.
// An unreachable device is reported as an error although its state changed.
func resultOf(out device.Outcome, err error) *actionResult {
	if err == nil {
		err = out.Err()
	}
	if err == nil {
		return &actionResult{Status: audit.StatusDone}
	}
	code := device.CodeOf(err)
	if code == "" {
		code = capability.CodeInvalidValue
	}
	return &actionResult{
		Status:       audit.StatusError,
		ErrorCode:    string(code),
		ErrorMessage: err.Error(),
	}
}

// handleUnlink evicts the caller's session.
func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if s.sessions.Evict(sess) {
		s.logger.Info("user unlinked", "user_id", sess.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"request_id": requestIDFrom(r.Context()),
	})
}
