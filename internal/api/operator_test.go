package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
	"github.com/maxsfamily/stripgate/internal/infrastructure/database"
	"github.com/maxsfamily/stripgate/migrations"
)

func TestAPIKeyAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"missing", nil, http.StatusForbidden},
		{"wrong", apiKey("wrong"), http.StatusForbidden},
		{"valid", apiKey(testAPIKey), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, BasePath+"/devices", nil, tt.headers...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestListDeviceIDs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, BasePath+"/devices", nil, apiKey(testAPIKey)...)
	got := decode[[]string](t, w)
	if want := []string{testOfflineID, testConnectedID}; !reflect.DeepEqual(got, want) {
		t.Errorf("devices = %v, want %v", got, want)
	}
}

func TestSeedSessionAndListUsers(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"valid", map[string]any{"token": "linked", "user_id": "user-7", "refresh_token": "r", "expires_in": 3600}, http.StatusCreated},
		{"missing user", map[string]any{"token": "linked", "expires_in": 3600}, http.StatusBadRequest},
		{"zero ttl", map[string]any{"token": "t", "user_id": "u"}, http.StatusBadRequest},
		{"bad json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, BasePath+"/users/sessions", tt.body, apiKey(testAPIKey)...)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
		})
	}

	w := env.do(http.MethodGet, BasePath+"/users", nil, apiKey(testAPIKey)...)
	if got, want := decode[[]string](t, w), []string{testUserID, "user-7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("users = %v, want %v", got, want)
	}

	// The seeded token is usable on the platform surface.
	w = env.do(http.MethodGet, BasePath+"/user/devices", nil, bearer("linked")...)
	if w.Code != http.StatusOK {
		t.Errorf("seeded token status = %d, want 200", w.Code)
	}
}

func TestGetInstance(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path      string
		query     string
		want      int
		wantValue string
	}{
		{"/state", "?device_id=" + testConnectedID, http.StatusOK, "true"},
		{"/brightness", "?device_id=" + testConnectedID, http.StatusOK, "100"},
		{"/program", "?device_id=" + testConnectedID, http.StatusOK, `"one"`},
		{"/color", "?device_id=" + testConnectedID, http.StatusOK, `{"h":240,"s":100,"v":100}`},
		{"/state", "?device_id=ghost", http.StatusNotFound, ""},
		{"/state", "", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path+tt.query, func(t *testing.T) {
			w := env.do(http.MethodGet, BasePath+tt.path+tt.query, nil, apiKey(testAPIKey)...)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.wantValue == "" {
				return
			}
			var body struct {
				Value     json.RawMessage `json:"value"`
				Connected bool            `json:"connected"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(body.Value) != tt.wantValue {
				t.Errorf("value = %s, want %s", body.Value, tt.wantValue)
			}
			if !body.Connected {
				t.Error("connected = false, want true")
			}
		})
	}
}

func TestSetInstance(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		deviceID      string
		body          any
		want          int
		wantStatus    string
		wantDelivered bool
		wantSent      []string
	}{
		{"state off", "/state", testConnectedID, map[string]any{"value": false}, http.StatusOK, "DONE", true, []string{"STATE:OFF"}},
		{"brightness", "/brightness", testConnectedID, map[string]any{"value": 55}, http.StatusOK, "DONE", true, []string{"BRIGHTNESS:55"}},
		{"unreachable", "/program", testOfflineID, map[string]any{"value": "two"}, http.StatusOK, "ERROR", false, nil},
		{"invalid", "/color", testConnectedID, map[string]any{"value": "red"}, http.StatusBadRequest, "", false, nil},
		{"missing value", "/state", testConnectedID, map[string]any{}, http.StatusBadRequest, "", false, nil},
		{"unknown device", "/state", "ghost", map[string]any{"value": true}, http.StatusNotFound, "", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			path := BasePath + tt.path + "?device_id=" + url.QueryEscape(tt.deviceID)
			w := env.do(http.MethodPost, path, tt.body, apiKey(testAPIKey)...)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
			if got := env.link.commands(); !reflect.DeepEqual(got, tt.wantSent) {
				t.Errorf("sent = %v, want %v", got, tt.wantSent)
			}
			if tt.want != http.StatusOK {
				return
			}

			resp := decode[setInstanceResponse](t, w)
			if resp.Status != tt.wantStatus || resp.Delivered != tt.wantDelivered {
				t.Errorf("response = %+v", resp)
			}

			entries := env.flushAudit()
			if len(entries) != 1 || entries[0].Source != audit.SourceOperator {
				t.Errorf("audit = %+v, want one operator entry", entries)
			}
		})
	}
}

func TestRoot_BasicAuth(t *testing.T) {
	env := newTestEnv(t)

	req := func(login, password string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/", nil) //nolint:errcheck // constant request
		if login != "" {
			r.SetBasicAuth(login, password)
		}
		return r
	}

	tests := []struct {
		name     string
		login    string
		password string
		want     int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", testOperator, "nope", http.StatusUnauthorized},
		{"wrong login", "root", testOperatorPw, http.StatusUnauthorized},
		{"valid", testOperator, testOperatorPw, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req(tt.login, tt.password))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			if tt.want == http.StatusOK {
				if got := decode[map[string]string](t, w)["message"]; got != "Hi" {
					t.Errorf("message = %q, want Hi", got)
				}
			}
		})
	}
}

// login returns an operator access token.
func login(t *testing.T, env *testEnv) string {
	t.Helper()
	w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"login": testOperator, "password": testOperatorPw})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body)
	}
	resp := decode[loginResponse](t, w)
	if resp.TokenType != "Bearer" || resp.ExpiresIn <= 0 {
		t.Fatalf("login response = %+v", resp)
	}
	return resp.AccessToken
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	_ = login(t, env)

	w := env.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"login": testOperator, "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", w.Code)
	}

	disabled := newTestEnv(t, func(d *Deps) { d.Operator = nil })
	w = disabled.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"login": testOperator, "password": testOperatorPw})
	if w.Code != http.StatusNotFound {
		t.Errorf("disabled operator status = %d, want 404", w.Code)
	}
}

func TestListAudit_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(repo, 0)

	env := newTestEnv(t, func(d *Deps) {
		d.AuditRepo = repo
		d.Recorder = recorder
	})
	env.recorder = recorder

	body := actionBody(actionDeviceBody(testConnectedID, [2]any{"on", false}, [2]any{"brightness", -1}))
	if w := env.do(http.MethodPost, BasePath+"/user/devices/action", body, bearer(testToken)...); w.Code != http.StatusOK {
		t.Fatalf("action status = %d", w.Code)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	recorder.Run(cancelled)

	token := login(t, env)

	if w := env.do(http.MethodGet, "/api/v1/audit", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("without token status = %d, want 401", w.Code)
	}

	w := env.do(http.MethodGet, "/api/v1/audit?status=ERROR", nil, bearer(token)...)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	result := decode[audit.ListResult](t, w)
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("result = %+v, want one error entry", result)
	}
	if e := result.Entries[0]; e.Instance != "brightness" || e.ErrorCode != "INVALID_VALUE" || e.UserID != testUserID {
		t.Errorf("entry = %+v", e)
	}
}

func TestListAudit_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.AuditRepo = nil })
	token := login(t, env)

	w := env.do(http.MethodGet, "/api/v1/audit", nil, bearer(token)...)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
