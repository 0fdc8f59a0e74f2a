package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
)

// authEntryKey is the auth-file entry owned by the OpenAI adapter. The
// enclosing JSON object may contain unrelated entries; they are
// preserved on every write.
const authEntryKey = "openai-codex"

// fallbackClientID is used when the access token carries no client_id
// claim.
const fallbackClientID = "app_hive_codex_cli"

// expiryWarnWindow triggers a non-fatal warning when the token is close
// to expiry.
const expiryWarnWindow = 24 * time.Hour

// Credentials is one auth-file entry.
type Credentials struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	// Expires is a millisecond epoch.
	Expires int64 `json:"expires"`
}

// Expired reports whether the access token is past its expiry.
func (c *Credentials) Expired(now time.Time) bool {
	return c.Expires < now.UnixMilli()
}

// ExpiresSoon reports whether the token expires within the warn window.
func (c *Credentials) ExpiresSoon(now time.Time) bool {
	return time.UnixMilli(c.Expires).Sub(now) < expiryWarnWindow
}

// refreshResponse is the OAuth token endpoint reply.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// inflightRefresh carries a deduplicated refresh result to all waiters.
type inflightRefresh struct {
	done  chan struct{}
	creds *Credentials
	err   error
}

// AuthStore reads and writes the OAuth credentials file and performs
// deduplicated token refresh. An fsnotify watcher invalidates the cache
// when an external login command rewrites the file.
type AuthStore struct {
	path       string
	tokenURL   string
	httpClient *http.Client

	mu       sync.Mutex
	cached   *Credentials
	inflight *inflightRefresh

	watcher *fsnotify.Watcher
}

// NewAuthStore creates an auth store for the given credentials file.
func NewAuthStore(path, tokenURL string) *AuthStore {
	s := &AuthStore{
		path:       path,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	s.startWatcher()
	return s
}

// startWatcher invalidates the credential cache when the auth file
// changes on disk. Watch failures are non-fatal; the store falls back
// to reading the file on each credential miss.
func (s *AuthStore) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[auth] file watcher unavailable: %v", err)
		return
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		log.Printf("[auth] cannot watch %s: %v", filepath.Dir(s.path), err)
		watcher.Close()
		return
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == s.path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.mu.Lock()
					s.cached = nil
					s.mu.Unlock()
					log.Printf("[auth] credentials file changed, cache invalidated")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[auth] watcher error: %v", err)
			}
		}
	}()
}

// Close stops the file watcher.
func (s *AuthStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Token returns a valid access token, refreshing if expired. Concurrent
// refreshes are deduplicated: only one HTTP refresh is in flight and all
// callers share its result.
func (s *AuthStore) Token() (string, error) {
	now := time.Now()

	s.mu.Lock()
	creds := s.cached
	if creds == nil {
		var err error
		creds, err = s.readEntry()
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.cached = creds
	}

	if !creds.Expired(now) {
		if creds.ExpiresSoon(now) {
			log.Printf("[auth] %s token expires at %s; run the login command soon",
				authEntryKey, time.UnixMilli(creds.Expires).Format(time.RFC3339))
		}
		token := creds.Access
		s.mu.Unlock()
		return token, nil
	}

	// Expired: join the in-flight refresh or start one.
	if s.inflight != nil {
		flight := s.inflight
		s.mu.Unlock()
		<-flight.done
		if flight.err != nil {
			return "", flight.err
		}
		return flight.creds.Access, nil
	}

	flight := &inflightRefresh{done: make(chan struct{})}
	s.inflight = flight
	s.mu.Unlock()

	refreshed, err := s.refresh(creds)

	s.mu.Lock()
	s.inflight = nil
	if err == nil {
		s.cached = refreshed
	}
	s.mu.Unlock()

	flight.creds = refreshed
	flight.err = err
	close(flight.done)

	if err != nil {
		return "", err
	}
	return refreshed.Access, nil
}

// readEntry loads the adapter's entry from the auth file.
func (s *AuthStore) readEntry() (*Credentials, error) {
	missing := &AuthMissingError{
		Provider: "openai",
		Guidance: fmt.Sprintf("run the login command to create %s", s.path),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, missing
	}

	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse auth file %s: %w", s.path, err)
	}

	raw, ok := entries[authEntryKey]
	if !ok {
		return nil, missing
	}

	creds := &Credentials{}
	if err := json.Unmarshal(raw, creds); err != nil {
		return nil, fmt.Errorf("parse auth entry %q: %w", authEntryKey, err)
	}
	if creds.Access == "" {
		return nil, missing
	}
	return creds, nil
}

// writeEntry rewrites the adapter's entry, preserving unrelated entries
// in the enclosing object.
func (s *AuthStore) writeEntry(creds *Credentials) error {
	entries := map[string]json.RawMessage{}
	if data, err := os.ReadFile(s.path); err == nil {
		// Keep whatever else lives in the file.
		_ = json.Unmarshal(data, &entries)
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal auth entry: %w", err)
	}
	entries[authEntryKey] = raw

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal auth file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create auth directory: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0600); err != nil {
		return fmt.Errorf("write auth file: %w", err)
	}
	return nil
}

// refresh exchanges the refresh token for a new access token and writes
// the result back to the auth file.
func (s *AuthStore) refresh(creds *Credentials) (*Credentials, error) {
	if creds.Refresh == "" {
		return nil, &AuthRefreshFailedError{Reason: "no refresh token on file"}
	}

	payload, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.Refresh,
		"client_id":     clientIDFromToken(creds.Access),
	})

	resp, err := s.httpClient.Post(s.tokenURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthRefreshFailedError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthRefreshFailedError{Reason: "read token response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthRefreshFailedError{
			Reason: fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode),
		}
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &AuthRefreshFailedError{Reason: "malformed token response", Err: err}
	}
	if parsed.AccessToken == "" || parsed.ExpiresIn <= 0 {
		return nil, &AuthRefreshFailedError{Reason: "token response missing access_token or expires_in"}
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.Refresh
	}

	refreshed := &Credentials{
		Access:  parsed.AccessToken,
		Refresh: refreshToken,
		Expires: time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UnixMilli(),
	}

	if err := s.writeEntry(refreshed); err != nil {
		log.Printf("[auth] refreshed token not persisted: %v", err)
	}

	return refreshed, nil
}

// clientIDFromToken extracts the client_id claim from a JWT access
// token without verifying its signature. Falls back to a fixed id when
// the token is opaque or the claim is absent.
func clientIDFromToken(access string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(access, claims); err != nil {
		return fallbackClientID
	}
	if id, ok := claims["client_id"].(string); ok && id != "" {
		return id
	}
	return fallbackClientID
}
