package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"testing"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/session"
)

// Platform responses decoded loosely so tests read like the wire format.
type wireState struct {
	Instance     string          `json:"instance"`
	Value        json.RawMessage `json:"value"`
	ActionResult *actionResult   `json:"action_result"`
}

type wireCapability struct {
	Type  string    `json:"type"`
	State wireState `json:"state"`
}

type wireDevice struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         string           `json:"type"`
	Capabilities []wireCapability `json:"capabilities"`
}

type wireResponse struct {
	RequestID string `json:"request_id"`
	Payload   struct {
		UserID  string       `json:"user_id"`
		Devices []wireDevice `json:"devices"`
	} `json:"payload"`
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name     string
		headers  []string
		resolve  error
		wantCode string
	}{
		{"missing header", nil, session.ErrTokenInvalid, string(capability.CodeTokenInvalid)},
		{"unknown token", bearer("nope"), session.ErrTokenInvalid, string(capability.CodeTokenInvalid)},
		{"refresh failed", bearer("stale"), session.ErrTokenRefreshFailed, string(capability.CodeTokenRefreshFailed)},
		{"provider error without code", bearer("nope"), http.ErrHandlerTimeout, string(capability.CodeTokenInvalid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.sessions.err = tt.resolve

			w := env.do(http.MethodGet, BasePath+"/user/devices", nil, tt.headers...)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if got := decode[Error](t, w).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestUserDevices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, BasePath+"/user/devices", nil, bearer(testToken)...)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}

	resp := decode[wireResponse](t, w)
	if resp.Payload.UserID != testUserID {
		t.Errorf("user_id = %q, want %q", resp.Payload.UserID, testUserID)
	}
	if len(resp.Payload.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(resp.Payload.Devices))
	}
	d := resp.Payload.Devices[0]
	if d.ID != testOfflineID || d.Type != "devices.types.light" {
		t.Errorf("first device = %+v", d)
	}
	if len(d.Capabilities) != 4 {
		t.Errorf("capabilities = %d, want 4", len(d.Capabilities))
	}
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{"devices": []map[string]any{
		{"id": testConnectedID, "custom_data": map[string]any{"room": "kitchen"}},
		{"id": "ghost"},
	}}
	w := env.do(http.MethodPost, BasePath+"/user/devices/query", body, bearer(testToken)...)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}

	resp := decode[wireResponse](t, w)
	if len(resp.Payload.Devices) != 1 {
		t.Fatalf("devices = %d, want 1 (unknown omitted)", len(resp.Payload.Devices))
	}

	got := make(map[string]string)
	for _, c := range resp.Payload.Devices[0].Capabilities {
		got[c.State.Instance] = string(c.State.Value)
	}
	want := map[string]string{
		"on":         "true",
		"brightness": "100",
		"program":    `"one"`,
		"hsv":        `{"h":240,"s":100,"v":100}`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
}

func TestQuery_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, BasePath+"/user/devices/query", "{", bearer(testToken)...)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func actionBody(devices ...map[string]any) map[string]any {
	return map[string]any{"payload": map[string]any{"devices": devices}}
}

func actionDeviceBody(id string, caps ...[2]any) map[string]any {
	list := make([]map[string]any, 0, len(caps))
	for _, c := range caps {
		list = append(list, map[string]any{
			"type":  "devices.capabilities.any",
			"state": map[string]any{"instance": c[0], "value": c[1]},
		})
	}
	return map[string]any{"id": id, "capabilities": list}
}

func TestAction(t *testing.T) {
	env := newTestEnv(t)

	body := actionBody(
		actionDeviceBody(testConnectedID,
			[2]any{"on", false},
			[2]any{"brightness", 101},
			[2]any{"program", "three"},
			[2]any{"strobe", 1},
			[2]any{"hsv", map[string]int{"h": 10, "s": 20, "v": 30}},
		),
		actionDeviceBody("ghost", [2]any{"on", true}),
		actionDeviceBody(testOfflineID, [2]any{"brightness", 40}),
	)

	w := env.do(http.MethodPost, BasePath+"/user/devices/action", body,
		append(bearer(testToken), headerRequestID, "req-action")...)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}

	resp := decode[wireResponse](t, w)
	if resp.RequestID != "req-action" {
		t.Errorf("request_id = %q", resp.RequestID)
	}
	if len(resp.Payload.Devices) != 2 {
		t.Fatalf("devices = %d, want 2 (unknown omitted)", len(resp.Payload.Devices))
	}

	type result struct{ status, code string }
	results := func(d wireDevice) map[string]result {
		m := make(map[string]result)
		for _, c := range d.Capabilities {
			m[c.State.Instance] = result{c.State.ActionResult.Status, c.State.ActionResult.ErrorCode}
		}
		return m
	}

	wantConnected := map[string]result{
		"on":         {"DONE", ""},
		"brightness": {"ERROR", "INVALID_VALUE"},
		"program":    {"DONE", ""},
		"strobe":     {"ERROR", "UNSUPPORTED_CAPABILITY"},
		"hsv":        {"DONE", ""},
	}
	if got := results(resp.Payload.Devices[0]); !reflect.DeepEqual(got, wantConnected) {
		t.Errorf("%s results = %v, want %v", testConnectedID, got, wantConnected)
	}
	wantOffline := map[string]result{"brightness": {"ERROR", "DEVICE_UNREACHABLE"}}
	if got := results(resp.Payload.Devices[1]); !reflect.DeepEqual(got, wantOffline) {
		t.Errorf("%s results = %v, want %v", testOfflineID, got, wantOffline)
	}

	// Only valid values reach the wire, in request order.
	wantSent := []string{"STATE:OFF", "MODE:three", "COLOR:10,20,30"}
	if got := env.link.commands(); !reflect.DeepEqual(got, wantSent) {
		t.Errorf("sent = %v, want %v", got, wantSent)
	}

	// The unreachable device still changed state.
	if v, err := env.registry.Query(testOfflineID, "brightness"); err != nil || v.Int() != 40 {
		t.Errorf("offline brightness = %v, %v; want 40", v, err)
	}

	entries := env.flushAudit()
	if len(entries) != 6 {
		t.Fatalf("audit entries = %d, want 6", len(entries))
	}
	for _, e := range entries {
		if e.Source != audit.SourcePlatform || e.UserID != testUserID || e.RequestID != "req-action" {
			t.Errorf("audit entry = %+v", e)
		}
	}
}

func TestAction_ErrorMessage(t *testing.T) {
	env := newTestEnv(t)

	body := actionBody(actionDeviceBody(testConnectedID, [2]any{"on", "yes"}))
	w := env.do(http.MethodPost, BasePath+"/user/devices/action", body, bearer(testToken)...)

	resp := decode[wireResponse](t, w)
	ar := resp.Payload.Devices[0].Capabilities[0].State.ActionResult
	if ar.ErrorMessage == "" {
		t.Error("error_message should describe the rejected value")
	}
	if len(env.link.commands()) != 0 {
		t.Error("invalid value must not be sent")
	}
}

func TestUnlink(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, BasePath+"/user/unlink", nil,
		append(bearer(testToken), headerRequestID, "req-unlink")...)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode[map[string]string](t, w)["request_id"]; got != "req-unlink" {
		t.Errorf("request_id = %q, want req-unlink", got)
	}
	if len(env.sessions.evicted) != 1 || env.sessions.evicted[0] != testUserID {
		t.Errorf("evicted = %v, want [%s]", env.sessions.evicted, testUserID)
	}

	// The token no longer resolves.
	w = env.do(http.MethodGet, BasePath+"/user/devices", nil, bearer(testToken)...)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("after unlink status = %d, want 401", w.Code)
	}
}
