package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/maxsfamily/stripgate/internal/auth"
)

// ticketTTL is how long an event stream ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /api/v1/auth/login.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/v1/auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ticketStore holds pending event stream tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	login     string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue stores a new ticket for login.
func (ts *ticketStore) issue(login string) string {
	ticket := generateTicket()
	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{login: login, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()
	return ticket
}

// consume validates a ticket and removes it (single-use).
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(ts.tickets, ticket)
	return entry, ts.now().Before(entry.expiresAt)
}

// clean removes expired tickets.
func (ts *ticketStore) clean() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// handleLogin authenticates the operator and returns a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, expires, err := s.operator.IssueToken(req.Login, req.Password)
	switch {
	case errors.Is(err, auth.ErrOperatorDisabled):
		writeNotFound(w, "operator login not configured")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.logger.Warn("operator login failed", "remote_addr", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	case err != nil:
		s.logger.Error("operator token issue failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("operator logged in", "login", req.Login)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Round(time.Second).Seconds()),
	})
}

// handleWSTicket issues a single-use ticket for the event stream, so the
// JWT never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(operatorFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketBytes is the number of random bytes used for tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets periodically until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.clean()
		}
	}
}
