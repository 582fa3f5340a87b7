// Package keyboard captures global key presses, independent of which window has focus.
package keyboard

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Listen on platforms without a global keyboard hook.
var ErrUnsupported = errors.New("global keyboard hook is not supported on this platform")

// Key is a key reported by the hook. Keys the platform has a name for carry Name;
// everything else is reported by its raw code only.
type Key struct {
	Name string
	Code uint32
}

// Unknown returns the unnamed form of a key.
func Unknown(code uint32) Key {
	return Key{Code: code}
}

// Scancode returns the raw code of an unnamed key. Named keys report false.
func (k Key) Scancode() (uint32, bool) {
	if k.Name != "" {
		return 0, false
	}
	return k.Code, true
}

func (k Key) String() string {
	if k.Name != "" {
		return k.Name
	}
	return fmt.Sprintf("Unknown(0x%x)", k.Code)
}

// Listener installs a process-wide keyboard hook.
type Listener interface {
	// Listen calls handler once per key press, in the order the OS reports them.
	// It blocks for as long as the hook is installed and cannot be stopped.
	Listen(handler func(Key)) error
}

// New returns the listener for the current platform.
func New() Listener {
	return newPlatformListener()
}

func named(table map[uint32]string, code uint32) Key {
	if name, ok := table[code]; ok {
		return Key{Name: name, Code: code}
	}
	return Unknown(code)
}
