package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	cacheDirPerm  = 0o700
	cacheFilePerm = 0o600
)

// TokenCache persists a single OAuth token as JSON in a per-user file.
type TokenCache struct {
	mu   sync.Mutex
	path string
}

// NewTokenCache returns a cache backed by the file at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the cache file location.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the cached token, or nil when the cache file does not exist.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token cache: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, nil
	}
	return &tok, nil
}

// Save replaces the cached token.
func (c *TokenCache) Save(tok *oauth2.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), cacheDirPerm); err != nil {
		return fmt.Errorf("create token cache dir: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, cacheFilePerm); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace token cache: %w", err)
	}
	return nil
}

// persistingSource hands out the current token and refreshes it when expired,
// writing each refreshed token back to the cache.
type persistingSource struct {
	ctx     context.Context
	refresh func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
	cache   *TokenCache
	logger  *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token, nil
	}

	tok, err := s.refresh(s.ctx, s.token)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.token.RefreshToken
	}
	s.token = tok

	if err := s.cache.Save(tok); err != nil {
		s.logger.Warn("failed to write refreshed token", zap.String("path", s.cache.Path()), zap.Error(err))
	}
	s.logger.Debug("token refreshed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}
