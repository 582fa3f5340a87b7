//go:build linux

package keyboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Linux input event types, values and key codes (from <linux/input.h>).
const (
	evKey = 0x01

	evValuePress = 1
)

var evdevNames = map[uint32]string{
	1:   "Escape",
	14:  "Backspace",
	15:  "Tab",
	28:  "Return",
	29:  "ControlLeft",
	42:  "ShiftLeft",
	54:  "ShiftRight",
	56:  "Alt",
	57:  "Space",
	58:  "CapsLock",
	97:  "ControlRight",
	100: "AltGr",
	125: "MetaLeft",
	126: "MetaRight",
}

// inputEvent mirrors struct input_event on 64-bit kernels.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

type evdevListener struct {
	pattern string
}

func newPlatformListener() Listener {
	return &evdevListener{pattern: "/dev/input/event*"}
}

// Listen reads every input device it is allowed to open and waits on all of them with epoll.
// Reading /dev/input usually requires membership in the "input" group.
func (l *evdevListener) Listen(handler func(Key)) error {
	files, err := openDevices(l.pattern)
	if err != nil {
		return err
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	return readEvents(files, handler)
}

func openDevices(pattern string) ([]*os.File, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	var files []*os.File
	var openErr error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			openErr = err
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		if openErr == nil {
			openErr = errors.New("no devices found")
		}
		return nil, fmt.Errorf("open input devices %s: %w", pattern, openErr)
	}
	return files, nil
}

func readEvents(files []*os.File, handler func(Key)) error {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	byFd := make(map[int32]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		byFd[int32(fd)] = f
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", f.Name(), err)
		}
	}

	ready := make([]unix.EpollEvent, 32)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		n, err := unix.EpollWait(epfd, ready, -1)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := ready[i].Fd
			f := byFd[fd]
			if f == nil {
				continue
			}

			if ready[i].Events&unix.EPOLLIN == 0 {
				// Unplugged devices drop out; the rest keep working.
				_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
				delete(byFd, fd)
				if len(byFd) == 0 {
					return errors.New("all input devices went away")
				}
				continue
			}

			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read from %s: %w", f.Name(), err)
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				continue
			}
			if key, ok := keyFromEvent(ev); ok {
				handler(key)
			}
		}
	}
}

// keyFromEvent reports key presses only; releases and autorepeat are dropped.
func keyFromEvent(ev inputEvent) (Key, bool) {
	if ev.Type != evKey || ev.Value != evValuePress {
		return Key{}, false
	}
	return named(evdevNames, uint32(ev.Code)), true
}
