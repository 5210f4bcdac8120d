package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/maxsfamily/stripgate/internal/infrastructure/config"
)

// maxUserInfoBody bounds the user-info response we are willing to read.
const maxUserInfoBody = 64 << 10

// OAuthProvider talks to an OAuth 2.0 identity provider: a user-info
// endpoint that accepts "Authorization: OAuth <token>" and a token endpoint
// for the refresh_token grant with client credentials in the form body.
type OAuthProvider struct {
	userInfoURL string
	oauth       *oauth2.Config
	client      *http.Client
}

// NewOAuthProvider creates a provider from cfg. A nil client uses one with
// the configured timeout.
func NewOAuthProvider(cfg config.ProviderConfig, client *http.Client) *OAuthProvider {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	}
	return &OAuthProvider{
		userInfoURL: cfg.UserInfoURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// userInfo is the subset of the user-info response the gateway uses.
type userInfo struct {
	ID        flexibleID `json:"id"`
	ExpiresIn int64      `json:"expires_in"`
}

// flexibleID accepts a user id encoded as a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// UserInfo validates accessToken and returns the user it belongs to.
func (p *OAuthProvider) UserInfo(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("building user-info request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("calling user-info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return Identity{}, fmt.Errorf("reading user-info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: user-info status %d", ErrProviderRejected, resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, fmt.Errorf("decoding user-info: %w", err)
	}

	return Identity{
		UserID: string(info.ID),
		TTL:    time.Duration(info.ExpiresIn) * time.Second,
	}, nil
}

// Refresh exchanges refreshToken for a new access token.
func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}

	var ttl time.Duration
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	return Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TTL:          ttl,
	}, nil
}
