package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap/zaptest"
)

type fakePlayer struct {
	device    Device
	deviceErr error
	devices   []spotify.PlayerDevice
	volumeErr error
	calls     []int
}

func (p *fakePlayer) CurrentDevice(context.Context) (Device, error) {
	return p.device, p.deviceErr
}

func (p *fakePlayer) PlayerDevices(context.Context) ([]spotify.PlayerDevice, error) {
	return p.devices, nil
}

func (p *fakePlayer) Volume(_ context.Context, percent int) error {
	p.calls = append(p.calls, percent)
	return p.volumeErr
}

type fixedIncrement int

func (i fixedIncrement) Increment() int { return int(i) }

func playingAt(volume int) Device {
	return Device{ID: "dev1", Name: "Desk", Volume: &volume}
}

func newTestController(t *testing.T, p *fakePlayer, inc int, volume int) *Controller {
	t.Helper()
	c := NewController(p, fixedIncrement(inc), zaptest.NewLogger(t))
	c.volume = volume
	return c
}

func TestLogin_SeedsVolumeFromPlayback(t *testing.T) {
	p := &fakePlayer{device: playingAt(37)}

	c, err := Login(context.Background(), p, fixedIncrement(5), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 37, c.Volume())
}

func TestLogin_NoActiveDeviceDefaultsTo50(t *testing.T) {
	for name, device := range map[string]Device{
		"no playback":       {},
		"volume unreported": {ID: "dev1", Name: "Speaker"},
	} {
		t.Run(name, func(t *testing.T) {
			p := &fakePlayer{device: device, devices: []spotify.PlayerDevice{{Name: "Phone"}}}

			c, err := Login(context.Background(), p, fixedIncrement(5), zaptest.NewLogger(t))
			require.NoError(t, err)
			assert.Equal(t, DefaultVolume, c.Volume())

			require.NoError(t, c.VolumeUp(context.Background()))
			assert.Equal(t, []int{55}, p.calls)
		})
	}
}

func TestLogin_NetworkErrorFails(t *testing.T) {
	p := &fakePlayer{deviceErr: errors.New("dial tcp: timeout")}

	_, err := Login(context.Background(), p, fixedIncrement(5), zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoActiveDevice)
}

func TestVolumeUp_ClampsAt100(t *testing.T) {
	p := &fakePlayer{}
	c := newTestController(t, p, 5, 98)

	require.NoError(t, c.VolumeUp(context.Background()))
	require.NoError(t, c.VolumeUp(context.Background()))

	assert.Equal(t, []int{100, 100}, p.calls)
	assert.Equal(t, 100, c.Volume())
}

func TestVolumeDown_ClampsAt0(t *testing.T) {
	p := &fakePlayer{}
	c := newTestController(t, p, 5, 3)

	require.NoError(t, c.VolumeDown(context.Background()))

	assert.Equal(t, []int{0}, p.calls)
	assert.Equal(t, 0, c.Volume())
}

func TestVolume_RepeatedSteps(t *testing.T) {
	tests := []struct {
		name  string
		start int
		inc   int
		n     int
		up    bool
		want  int
	}{
		{name: "up within range", start: 10, inc: 7, n: 3, up: true, want: 31},
		{name: "up saturates", start: 60, inc: 100, n: 4, up: true, want: 100},
		{name: "down within range", start: 90, inc: 10, n: 2, up: false, want: 70},
		{name: "down saturates", start: 40, inc: 100, n: 3, up: false, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePlayer{}
			c := newTestController(t, p, tt.inc, tt.start)
			for i := 0; i < tt.n; i++ {
				var err error
				if tt.up {
					err = c.VolumeUp(context.Background())
				} else {
					err = c.VolumeDown(context.Background())
				}
				require.NoError(t, err)
				assert.GreaterOrEqual(t, c.Volume(), 0)
				assert.LessOrEqual(t, c.Volume(), 100)
			}
			assert.Equal(t, tt.want, c.Volume())
			assert.Len(t, p.calls, tt.n)
		})
	}
}

func TestVolume_RollbackOnFailure(t *testing.T) {
	p := &fakePlayer{volumeErr: errors.New("connection reset")}
	c := newTestController(t, p, 5, 40)

	err := c.VolumeUp(context.Background())
	require.Error(t, err)
	assert.Equal(t, 40, c.Volume())
	assert.Equal(t, []int{45}, p.calls)

	p.volumeErr = nil
	require.NoError(t, c.VolumeUp(context.Background()))
	assert.Equal(t, 45, c.Volume())
}

func TestVolume_NoActiveDevice(t *testing.T) {
	p := &fakePlayer{volumeErr: spotify.Error{Message: "Player command failed: No active device found", Status: 404}}
	c := newTestController(t, p, 5, 50)

	err := c.VolumeDown(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveDevice)
	assert.Equal(t, 50, c.Volume())
}

func TestSync_ClampsReportedVolume(t *testing.T) {
	p := &fakePlayer{device: playingAt(140)}
	c := newTestController(t, p, 5, 10)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 100, c.Volume())
}
