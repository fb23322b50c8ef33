package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcalendar "google.golang.org/api/calendar/v3"
)

// Scope is the OAuth scope needed to read and write calendar events.
const Scope = gcalendar.CalendarEventsScope

// HTTPClient builds an authorized client from a credentials file. A service
// account key acts as subject when one is given (domain-wide delegation) and as
// itself otherwise; an OAuth client secret needs a token file produced by
// AuthorizeURL and Exchange.
func HTTPClient(ctx context.Context, credentialsFile, tokenFile, subject string) (*http.Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if probe.Type == "service_account" && subject != "" {
		jwt, err := google.JWTConfigFromJSON(b, Scope)
		if err != nil {
			return nil, fmt.Errorf("service account credentials: %w", err)
		}
		jwt.Subject = subject
		return jwt.Client(ctx), nil
	}
	if probe.Type == "service_account" {
		creds, err := google.CredentialsFromJSON(ctx, b, Scope)
		if err != nil {
			return nil, fmt.Errorf("service account credentials: %w", err)
		}
		return oauth2.NewClient(ctx, creds.TokenSource), nil
	}

	cfg, err := google.ConfigFromJSON(b, Scope)
	if err != nil {
		return nil, fmt.Errorf("oauth client config: %w", err)
	}
	if tokenFile == "" {
		return nil, errors.New("token file is required for oauth client credentials")
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, err
	}

	ts := &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts)), nil
}

// OAuthConfig loads the client secret for the interactive consent flow.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return google.ConfigFromJSON(b, Scope)
}

func AuthorizeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and stores it in tokenFile.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, tokenFile string) error {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return writeToken(tokenFile, tok)
}

func readToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// savingTokenSource persists refreshed tokens so restarts keep working.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := writeToken(s.path, tok); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
