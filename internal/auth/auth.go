package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pkg/browser"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"knobify/internal/config"
)

const (
	// RedirectURI is registered with the Spotify application.
	RedirectURI = "http://localhost:8888/callback"

	redirectBase = "http://localhost:8888"
	callbackAddr = "127.0.0.1:8888"
)

// Scopes requested during authorization.
var Scopes = []string{
	"streaming",
	"playlist-read-collaborative",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
	"user-follow-read",
	"user-follow-modify",
	"user-library-modify",
	"user-library-read",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-read-playback-state",
	"user-read-playback-position",
	"user-read-private",
	"user-read-recently-played",
}

var (
	// ErrAuthDenied is returned when the user or Spotify refuses the authorization.
	ErrAuthDenied = errors.New("authorization denied")
	// ErrNoCode is returned when the redirect URL carries no authorization code.
	ErrNoCode = errors.New("no authorization code in redirect")
	// ErrStateMismatch is returned when the redirect carries a foreign state value.
	ErrStateMismatch = errors.New("authorization state mismatch")
)

// Authorizer is the subset of *spotifyauth.Authenticator used by the login flow.
type Authorizer interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// Flow runs the authorization-code login against Spotify.
type Flow struct {
	authorizer  Authorizer
	cache       *TokenCache
	logger      *zap.Logger
	openBrowser func(url string) error
	listen      func(network, address string) (net.Listener, error)
	addr        string
	stdin       io.Reader
	stderr      io.Writer
}

// Option customizes a Flow.
type Option func(*Flow)

// WithAuthorizer replaces the Spotify authenticator.
func WithAuthorizer(a Authorizer) Option {
	return func(f *Flow) { f.authorizer = a }
}

// WithBrowser replaces the function used to open the authorize URL.
func WithBrowser(open func(url string) error) Option {
	return func(f *Flow) { f.openBrowser = open }
}

// WithCallbackAddr changes the loopback address the callback listener binds.
func WithCallbackAddr(addr string) Option {
	return func(f *Flow) { f.addr = addr }
}

// WithConsole replaces standard input and standard error for the manual-paste fallback.
func WithConsole(stdin io.Reader, stderr io.Writer) Option {
	return func(f *Flow) {
		f.stdin = stdin
		f.stderr = stderr
	}
}

// NewFlow creates a login flow for the given application credentials.
func NewFlow(creds config.Credentials, cache *TokenCache, logger *zap.Logger, opts ...Option) *Flow {
	f := &Flow{
		authorizer: spotifyauth.New(
			spotifyauth.WithRedirectURL(RedirectURI),
			spotifyauth.WithScopes(Scopes...),
			spotifyauth.WithClientID(creds.ClientID),
			spotifyauth.WithClientSecret(creds.ClientSecret),
		),
		cache:       cache,
		logger:      logger.Named("auth"),
		openBrowser: browser.OpenURL,
		listen:      net.Listen,
		addr:        callbackAddr,
		stdin:       os.Stdin,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login returns a token source for an authorized user. A usable cached token skips the
// browser entirely; otherwise the user authorizes in the browser and the new token is cached.
// Tokens refreshed later through the returned source are written back to the cache.
func (f *Flow) Login(ctx context.Context) (oauth2.TokenSource, error) {
	if tok := f.cachedToken(ctx); tok != nil {
		f.logger.Info("using cached token")
		return f.source(ctx, tok), nil
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}

	code, err := f.requestCode(ctx, f.authorizer.AuthURL(state), state)
	if err != nil {
		return nil, fmt.Errorf("couldn't acquire auth code from the user: %w", err)
	}

	tok, err := f.authorizer.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w: %w", ErrAuthDenied, err)
	}

	if err := f.cache.Save(tok); err != nil {
		f.logger.Warn("failed to write token cache", zap.String("path", f.cache.Path()), zap.Error(err))
	}

	f.logger.Info("login completed")
	return f.source(ctx, tok), nil
}

// cachedToken returns a valid cached token, refreshing it if it has expired.
// Any failure means "no cached token".
func (f *Flow) cachedToken(ctx context.Context) *oauth2.Token {
	tok, err := f.cache.Load()
	if err != nil {
		f.logger.Warn("ignoring unreadable token cache", zap.String("path", f.cache.Path()), zap.Error(err))
		return nil
	}
	if tok == nil {
		return nil
	}
	if tok.Valid() {
		return tok
	}
	if tok.RefreshToken == "" {
		f.logger.Info("cached token expired without refresh token")
		return nil
	}

	refreshed, err := f.authorizer.RefreshToken(ctx, tok)
	if err != nil {
		f.logger.Warn("cached token could not be refreshed", zap.Error(err))
		return nil
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	if err := f.cache.Save(refreshed); err != nil {
		f.logger.Warn("failed to write token cache", zap.String("path", f.cache.Path()), zap.Error(err))
	}
	return refreshed
}

func (f *Flow) source(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return &persistingSource{
		ctx:     context.WithoutCancel(ctx),
		token:   tok,
		refresh: f.authorizer.RefreshToken,
		cache:   f.cache,
		logger:  f.logger,
	}
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
