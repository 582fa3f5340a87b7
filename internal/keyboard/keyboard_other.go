//go:build !linux && !windows

package keyboard

type unsupportedListener struct{}

func newPlatformListener() Listener {
	return unsupportedListener{}
}

func (unsupportedListener) Listen(func(Key)) error {
	return ErrUnsupported
}
