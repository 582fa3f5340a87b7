// Package app routes key, tray and menu events to the Spotify volume controller.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"knobify/internal/keyboard"
	"knobify/internal/status"
	"knobify/internal/tray"
)

// ErrNotLoggedIn is reported for volume keys pressed before a successful login.
var ErrNotLoggedIn = errors.New("not logged in")

const defaultQueueSize = 1024

// State is the lifecycle of the controller cell.
type State int

const (
	Unauthenticated State = iota
	LoggingIn
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoggingIn:
		return "logging_in"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// VolumeController issues volume changes against the active device.
type VolumeController interface {
	VolumeUp(ctx context.Context) error
	VolumeDown(ctx context.Context) error
	Volume() int
}

// LoginFunc runs the whole login and returns an authenticated controller.
type LoginFunc func(ctx context.Context) (VolumeController, error)

// KeyConfig supplies the bound scancodes. It is consulted on every key press.
type KeyConfig interface {
	UpKey() uint32
	DownKey() uint32
}

// Window is the hidden debug window shown on TrayClick(DoubleClick). It is optional: the
// systray front end has no message-pump window and passes none.
type Window interface {
	Show()
}

// Publisher receives state and volume changes.
type Publisher interface {
	Publish(status.Update)
}

// Options configure a Router. Keys and Login are required.
type Options struct {
	Keys      KeyConfig
	Login     LoginFunc
	Window    Window
	Publisher Publisher
	Logger    *zap.Logger
	QueueSize int
}

// Router is the single event loop. All controller state is owned by the goroutine running Run.
type Router struct {
	keys      KeyConfig
	login     LoginFunc
	window    Window
	publisher Publisher
	logger    *zap.Logger

	events chan Event
	done   chan struct{}

	state State
	ctrl  VolumeController
}

// NewRouter returns a router in the Unauthenticated state.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Router{
		keys:      opts.Keys,
		login:     opts.Login,
		window:    opts.Window,
		publisher: opts.Publisher,
		logger:    logger.Named("app"),
		events:    make(chan Event, size),
		done:      make(chan struct{}),
		state:     Unauthenticated,
	}
}

// Post queues ev for the loop. Events are handled in the order posted. Post blocks while
// the queue is full and returns immediately once Run has returned.
func (r *Router) Post(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Run handles events until an exit is requested or ctx is cancelled. Either way it returns nil.
// Run must be called once.
func (r *Router) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(r.done)
	}()

	r.publishState()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("event loop cancelled")
			return nil
		case ev := <-r.events:
			if !r.handle(ctx, ev) {
				return nil
			}
		}
	}
}

// handle dispatches one event and reports whether the loop should continue.
func (r *Router) handle(ctx context.Context, ev Event) bool {
	switch ev := ev.(type) {
	case KeyPress:
		r.handleKey(ctx, ev.Key)
	case MenuSelect:
		switch ev.ID {
		case tray.MenuLogin:
			r.startLogin(ctx)
		case tray.MenuExit:
			r.logger.Info("exit requested")
			return false
		default:
			r.logger.Debug("unknown menu item", zap.String("id", ev.ID))
		}
	case TrayClick:
		if ev.Kind != DoubleClick {
			return true
		}
		if r.window == nil {
			r.logger.Debug("no debug window to show")
			return true
		}
		r.window.Show()
	case WindowClosed:
		r.logger.Info("debug window closed")
		return false
	case loginFinished:
		r.finishLogin(ev)
	}
	return true
}

func (r *Router) handleKey(ctx context.Context, key keyboard.Key) {
	code, ok := key.Scancode()
	if !ok {
		return
	}

	var direction string
	switch code {
	case r.keys.UpKey():
		direction = "up"
	case r.keys.DownKey():
		direction = "down"
	default:
		return
	}

	switch r.state {
	case Unauthenticated:
		r.logger.Info("volume key ignored", zap.String("direction", direction), zap.Error(ErrNotLoggedIn))
		return
	case LoggingIn:
		r.logger.Debug("volume key dropped during login", zap.String("direction", direction))
		return
	}

	step := r.ctrl.VolumeUp
	if direction == "down" {
		step = r.ctrl.VolumeDown
	}
	if err := step(ctx); err != nil {
		r.logger.Warn("volume change failed", zap.String("direction", direction), zap.Error(err))
		return
	}
	r.logger.Debug("volume changed", zap.String("direction", direction), zap.Int("volume", r.ctrl.Volume()))
	r.publish(status.TypeVolume)
}

// startLogin runs the login on a helper goroutine. The result comes back as loginFinished.
func (r *Router) startLogin(ctx context.Context) {
	if r.state == LoggingIn {
		r.logger.Debug("login already in progress")
		return
	}
	r.state = LoggingIn
	r.publishState()

	go func() {
		ctrl, err := r.login(ctx)
		r.Post(loginFinished{ctrl: ctrl, err: err})
	}()
}

func (r *Router) finishLogin(ev loginFinished) {
	switch {
	case ev.err != nil:
		r.logger.Warn("login failed", zap.Error(ev.err))
	case ev.ctrl == nil:
		r.logger.Warn("login returned no controller")
	default:
		r.ctrl = ev.ctrl
		r.logger.Info("logged in", zap.Int("volume", r.ctrl.Volume()))
	}

	if r.ctrl != nil {
		r.state = Authenticated
	} else {
		r.state = Unauthenticated
	}
	r.publishState()
}

func (r *Router) publishState() {
	r.publish(status.TypeState)
}

func (r *Router) publish(kind string) {
	if r.publisher == nil {
		return
	}
	u := status.Update{Type: kind, State: r.state.String()}
	if r.ctrl != nil {
		u.Volume = r.ctrl.Volume()
	}
	r.publisher.Publish(u)
}
