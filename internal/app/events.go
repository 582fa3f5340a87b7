package app

import "knobify/internal/keyboard"

// Event is one input to the router.
type Event interface {
	isEvent()
}

// KeyPress is a key reported by the global keyboard hook.
type KeyPress struct {
	Key keyboard.Key
}

// ClickKind distinguishes tray icon clicks.
type ClickKind int

const (
	LeftClick ClickKind = iota
	DoubleClick
	RightClick
)

func (k ClickKind) String() string {
	switch k {
	case LeftClick:
		return "left"
	case DoubleClick:
		return "double"
	case RightClick:
		return "right"
	default:
		return "unknown"
	}
}

// TrayClick is a click on the tray icon itself. The systray front end in cmd/knobify cannot
// observe icon clicks and never posts it; it is an input seam for other front ends and tests.
type TrayClick struct {
	Kind ClickKind
}

// MenuSelect is a click on a tray menu item.
type MenuSelect struct {
	ID string
}

// WindowClosed reports that the debug window was closed. Like TrayClick, only front ends
// that supply a Window post it.
type WindowClosed struct{}

// loginFinished carries the result of a login helper back into the loop.
type loginFinished struct {
	ctrl VolumeController
	err  error
}

func (KeyPress) isEvent()      {}
func (TrayClick) isEvent()     {}
func (MenuSelect) isEvent()    {}
func (WindowClosed) isEvent()  {}
func (loginFinished) isEvent() {}
