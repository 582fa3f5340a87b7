package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultUpKey     uint32 = 0x82
	DefaultDownKey   uint32 = 0x81
	DefaultIncrement        = 5

	minIncrement = 1
	maxIncrement = 100
)

// ErrMissingCredentials is returned when the Spotify application credentials are not set.
var ErrMissingCredentials = errors.New("RSPOTIFY_CLIENT_ID and RSPOTIFY_CLIENT_SECRET must be set")

// Credentials holds the Spotify application credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Source is a read-only view over the process environment.
// Every getter reads the environment at call time and is safe for concurrent use.
type Source struct {
	lookup func(key string) (string, bool)
}

// LoadDotenv loads a .env file from the working directory into the environment.
// It reports whether a file was found.
func LoadDotenv() bool {
	return godotenv.Load() == nil
}

// New returns a Source backed by the process environment.
func New() *Source {
	return &Source{lookup: os.LookupEnv}
}

// FromMap returns a Source backed by a fixed set of values.
func FromMap(values map[string]string) *Source {
	return &Source{lookup: func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}}
}

func (s *Source) get(key string) string {
	v, _ := s.lookup(key)
	return strings.TrimSpace(v)
}

// UpKey returns the scancode bound to "volume up".
func (s *Source) UpKey() uint32 {
	return keyOrDefault(s.get("volume_up_key"), DefaultUpKey)
}

// DownKey returns the scancode bound to "volume down".
func (s *Source) DownKey() uint32 {
	return keyOrDefault(s.get("volume_down_key"), DefaultDownKey)
}

// Increment returns the volume step in percent, clamped to [1,100].
func (s *Source) Increment() int {
	raw := s.get("VOLUME_INCREMENT")
	if raw == "" {
		return DefaultIncrement
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultIncrement
	}
	return min(max(n, minIncrement), maxIncrement)
}

// Credentials returns the Spotify application credentials.
func (s *Source) Credentials() (Credentials, error) {
	creds := Credentials{
		ClientID:     s.get("RSPOTIFY_CLIENT_ID"),
		ClientSecret: s.get("RSPOTIFY_CLIENT_SECRET"),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// TokenCachePath returns the location of the OAuth token cache file.
func (s *Source) TokenCachePath() string {
	if p := s.get("KNOBIFY_TOKEN_CACHE"); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "knobify", "token.json")
}

// LogLevel returns the configured log level name.
func (s *Source) LogLevel() string {
	switch lvl := strings.ToLower(s.get("KNOBIFY_LOG_LEVEL")); lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		return "info"
	}
}

// LogFile returns an optional log file path.
func (s *Source) LogFile() string {
	return s.get("KNOBIFY_LOG_FILE")
}

// StatusAddr returns the listen address of the status feed, or "" when disabled.
func (s *Source) StatusAddr() string {
	return s.get("KNOBIFY_STATUS_ADDR")
}

// Validate checks invariants across keys.
func (s *Source) Validate() error {
	if up, down := s.UpKey(), s.DownKey(); up == down {
		return fmt.Errorf("volume_up_key and volume_down_key are both 0x%x", up)
	}
	return nil
}

// ParseKey parses a scancode written in decimal or 0x-prefixed hex.
func ParseKey(raw string) (uint32, error) {
	raw = strings.TrimSpace(raw)
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = raw[2:]
		base = 16
	}
	n, err := strconv.ParseUint(raw, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid scancode %q: %w", raw, err)
	}
	return uint32(n), nil
}

func keyOrDefault(raw string, def uint32) uint32 {
	if raw == "" {
		return def
	}
	k, err := ParseKey(raw)
	if err != nil {
		return def
	}
	return k
}
