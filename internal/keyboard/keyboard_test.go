package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Scancode(t *testing.T) {
	code, ok := Unknown(0x82).Scancode()
	assert.True(t, ok)
	assert.Equal(t, uint32(0x82), code)

	_, ok = Key{Name: "Alt", Code: 0x82}.Scancode()
	assert.False(t, ok, "named keys are never matched by scancode")
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "Unknown(0x81)", Unknown(0x81).String())
	assert.Equal(t, "Shift", Key{Name: "Shift", Code: 0x10}.String())
}

func TestNamed(t *testing.T) {
	table := map[uint32]string{0x10: "Shift"}

	assert.Equal(t, Key{Name: "Shift", Code: 0x10}, named(table, 0x10))
	assert.Equal(t, Unknown(0x90), named(table, 0x90))
}
