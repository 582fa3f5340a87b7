//go:build windows

package keyboard

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	hcAction     = 0
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
)

// Virtual-key codes the hook reports by name.
var vkNames = map[uint32]string{
	0x08: "Backspace",
	0x09: "Tab",
	0x0D: "Return",
	0x10: "Shift",
	0x11: "Control",
	0x12: "Alt",
	0x14: "CapsLock",
	0x1B: "Escape",
	0x20: "Space",
	0x5B: "MetaLeft",
	0x5C: "MetaRight",
	0xA0: "ShiftLeft",
	0xA1: "ShiftRight",
	0xA2: "ControlLeft",
	0xA3: "ControlRight",
	0xA4: "Alt",
	0xA5: "AltGr",
}

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

// A low-level hook is process-wide, so there is at most one queue. The hook callback only
// pushes onto it: a WH_KEYBOARD_LL callback that blocks stalls keyboard input system-wide.
var (
	hookMu     sync.Mutex
	hookHandle uintptr
	hookQueue  *keyQueue
)

type llHookListener struct{}

func newPlatformListener() Listener {
	return llHookListener{}
}

// Listen installs a WH_KEYBOARD_LL hook. The hook is serviced by the message pump of the
// thread that installed it, so the goroutine stays locked to its OS thread.
func (llHookListener) Listen(handler func(Key)) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hookMu.Lock()
	if hookHandle != 0 {
		hookMu.Unlock()
		return errors.New("keyboard hook already installed")
	}
	hookQueue = newKeyQueue()
	h, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, windows.NewCallback(hookProc), 0, 0)
	if h == 0 {
		hookQueue = nil
		hookMu.Unlock()
		return fmt.Errorf("SetWindowsHookExW: %w", callErr)
	}
	hookHandle = h
	stop := make(chan struct{})
	go hookQueue.drain(handler, stop)
	hookMu.Unlock()

	defer func() {
		close(stop)
		hookMu.Lock()
		procUnhookWindowsHookEx.Call(hookHandle)
		hookHandle = 0
		hookQueue = nil
		hookMu.Unlock()
	}()

	var m msg
	for {
		ret, _, callErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			return fmt.Errorf("GetMessageW: %w", callErr)
		case 0:
			return errors.New("keyboard hook message loop quit")
		}
	}
}

func hookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
		info := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		if q := hookQueue; q != nil {
			q.push(named(vkNames, info.VkCode))
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
