package playback

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
)

const (
	// DefaultVolume seeds the local estimate when Spotify reports no device volume.
	DefaultVolume = 50

	minVolume = 0
	maxVolume = 100
)

// ErrNoActiveDevice is returned when Spotify has no device to target.
var ErrNoActiveDevice = errors.New("no active Spotify device")

// Player is the Spotify API surface used for volume control. *API implements it.
type Player interface {
	CurrentDevice(ctx context.Context) (Device, error)
	PlayerDevices(ctx context.Context) ([]spotify.PlayerDevice, error)
	Volume(ctx context.Context, percent int) error
}

// Settings supplies the volume step at each use.
type Settings interface {
	Increment() int
}

// Controller keeps an optimistic local estimate of the active device volume and
// issues absolute volume changes against it. It is not safe for concurrent use.
type Controller struct {
	player   Player
	settings Settings
	logger   *zap.Logger
	volume   int
}

// NewController returns a controller with the local volume at DefaultVolume.
func NewController(player Player, settings Settings, logger *zap.Logger) *Controller {
	return &Controller{
		player:   player,
		settings: settings,
		logger:   logger.Named("playback"),
		volume:   DefaultVolume,
	}
}

// Login returns a controller seeded from the current playback. A missing active device is
// not an error here: the volume stays at DefaultVolume and the first change will fail.
func Login(ctx context.Context, player Player, settings Settings, logger *zap.Logger) (*Controller, error) {
	c := NewController(player, settings, logger)
	err := c.Sync(ctx)
	if errors.Is(err, ErrNoActiveDevice) {
		c.logger.Warn("logged in without an active device", zap.Int("volume", c.volume))
		c.logDevices(ctx)
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Volume returns the last known device volume in percent.
func (c *Controller) Volume() int {
	return c.volume
}

// Sync reloads the local volume from the current playback. A device that reports no
// volume seeds DefaultVolume.
func (c *Controller) Sync(ctx context.Context) error {
	device, err := c.player.CurrentDevice(ctx)
	if err != nil {
		return classify("failed to get playback state", err)
	}
	if device.ID == "" {
		c.volume = DefaultVolume
		return ErrNoActiveDevice
	}

	if device.Volume == nil {
		c.volume = DefaultVolume
		c.logger.Debug("device reports no volume", zap.String("device", device.Name))
		return nil
	}
	c.volume = clamp(*device.Volume)
	c.logger.Debug("playback synced",
		zap.String("device", device.Name),
		zap.Int("volume", c.volume))
	return nil
}

// VolumeUp raises the volume by the configured increment, saturating at 100.
func (c *Controller) VolumeUp(ctx context.Context) error {
	return c.setVolume(ctx, clamp(c.volume+c.settings.Increment()))
}

// VolumeDown lowers the volume by the configured increment, saturating at 0.
func (c *Controller) VolumeDown(ctx context.Context) error {
	return c.setVolume(ctx, clamp(c.volume-c.settings.Increment()))
}

// setVolume applies target on the device and rolls the local estimate back on failure.
func (c *Controller) setVolume(ctx context.Context, target int) error {
	prev := c.volume
	c.volume = target

	if err := c.player.Volume(ctx, target); err != nil {
		c.volume = prev
		return classify("failed to set volume", err)
	}

	c.logger.Debug("volume set", zap.Int("from", prev), zap.Int("to", target))
	return nil
}

// logDevices lists the user's available devices as a hint for activating one.
func (c *Controller) logDevices(ctx context.Context) {
	devices, err := c.player.PlayerDevices(ctx)
	if err != nil {
		c.logger.Debug("failed to list devices", zap.Error(err))
		return
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	c.logger.Info("open Spotify on a device to enable volume keys", zap.Strings("available", names))
}

// classify maps Spotify's "no active device" response onto ErrNoActiveDevice.
func classify(msg string, err error) error {
	if apiStatus(err) == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", msg, ErrNoActiveDevice, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func apiStatus(err error) int {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Status
	}
	return 0
}

func clamp(v int) int {
	return min(max(v, minVolume), maxVolume)
}
