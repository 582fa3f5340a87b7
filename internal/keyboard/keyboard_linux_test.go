//go:build linux

package keyboard

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromEvent(t *testing.T) {
	tests := []struct {
		name   string
		ev     inputEvent
		want   Key
		wantOK bool
	}{
		{name: "press unnamed", ev: inputEvent{Type: evKey, Code: 0x82, Value: 1}, want: Unknown(0x82), wantOK: true},
		{name: "press named", ev: inputEvent{Type: evKey, Code: 42, Value: 1}, want: Key{Name: "ShiftLeft", Code: 42}, wantOK: true},
		{name: "release", ev: inputEvent{Type: evKey, Code: 0x82, Value: 0}},
		{name: "autorepeat", ev: inputEvent{Type: evKey, Code: 0x82, Value: 2}},
		{name: "relative axis", ev: inputEvent{Type: 0x02, Code: 0x08, Value: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyFromEvent(tt.ev)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadEvents_FromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	for _, ev := range []inputEvent{
		{Type: evKey, Code: 0x82, Value: 1},
		{Type: evKey, Code: 0x82, Value: 0},
		{Type: evKey, Code: 0x81, Value: 1},
	} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, ev))
	}
	_, err = w.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var got []Key
	err = readEvents([]*os.File{r}, func(k Key) { got = append(got, k) })

	// Closing the write end hangs up the only device, which ends the loop.
	assert.Error(t, err)
	assert.Equal(t, []Key{Unknown(0x82), Unknown(0x81)}, got)
}

func TestOpenDevices_NoneReadable(t *testing.T) {
	_, err := openDevices(filepath.Join(t.TempDir(), "event*"))
	assert.Error(t, err)
}
