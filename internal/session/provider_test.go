package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
)

func newProviderServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "OAuth good":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "12345", "expires_in": 120})
		case "OAuth numeric":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 777})
		default:
			http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "refresh_token" ||
			r.PostForm.Get("client_id") != "cid" ||
			r.PostForm.Get("client_secret") != "secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if r.PostForm.Get("refresh_token") != "rt" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"refresh_token": "rt-next",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *OAuthProvider {
	return NewOAuthProvider(config.ProviderConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/info",
		Timeout:      5,
	}, srv.Client())
}

func TestOAuthProvider_UserInfo(t *testing.T) {
	p := newTestProvider(newProviderServer(t))

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantTTL time.Duration
		wantErr bool
	}{
		{"valid token", "good", "12345", 120 * time.Second, false},
		{"numeric id without ttl", "numeric", "777", 0, false},
		{"rejected token", "bad", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.UserInfo(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrProviderRejected) {
					t.Errorf("error = %v, want ErrProviderRejected", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UserInfo() error: %v", err)
			}
			if id.UserID != tt.wantID || id.TTL != tt.wantTTL {
				t.Errorf("UserInfo() = %+v, want id %s ttl %v", id, tt.wantID, tt.wantTTL)
			}
		})
	}
}

func TestOAuthProvider_Refresh(t *testing.T) {
	p := newTestProvider(newProviderServer(t))

	g, err := p.Refresh(context.Background(), "rt")
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if g.AccessToken != "fresh" || g.RefreshToken != "rt-next" {
		t.Errorf("grant = %+v", g)
	}
	if g.TTL <= 59*time.Minute || g.TTL > time.Hour {
		t.Errorf("TTL = %v, want about 1h", g.TTL)
	}

	if _, err := p.Refresh(context.Background(), "revoked"); !errors.Is(err, ErrProviderRejected) {
		t.Errorf("Refresh(revoked) error = %v, want ErrProviderRejected", err)
	}
}

func TestCache_WithOAuthProvider(t *testing.T) {
	srv := newProviderServer(t)
	c := NewCache(newTestProvider(srv), config.ProviderConfig{Timeout: 5, DefaultTTL: 3600})

	s, err := c.Resolve(context.Background(), "good")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if s.UserID != "12345" {
		t.Errorf("UserID = %q", s.UserID)
	}

	if _, err := c.Resolve(context.Background(), "bad"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve(bad) error = %v, want ErrTokenInvalid", err)
	}
}
