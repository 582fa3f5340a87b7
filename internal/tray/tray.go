// Package tray shows the notification-area icon and its menu.
package tray

import (
	"sync"

	"fyne.io/systray"
)

const (
	// Tooltip is the hover text of the icon.
	Tooltip = "Knobify"

	MenuLogin = "login"
	MenuExit  = "exit"
)

// MenuItem is one entry of the tray menu.
type MenuItem struct {
	ID    string
	Label string
}

// DefaultItems is the Login/Exit menu.
var DefaultItems = []MenuItem{
	{ID: MenuLogin, Label: "Login"},
	{ID: MenuExit, Label: "Exit"},
}

// Options configure the tray icon.
type Options struct {
	Tooltip string
	Items   []MenuItem

	// OnReady runs once the icon is shown.
	OnReady func()
	// OnMenu receives the id of every clicked item.
	OnMenu func(id string)
	// OnExit runs after the UI loop has stopped.
	OnExit func()
}

// Run shows the icon and blocks on the platform UI loop until Quit is called.
// It must be called from the main goroutine.
func Run(opts Options) {
	if opts.Tooltip == "" {
		opts.Tooltip = Tooltip
	}
	if opts.Items == nil {
		opts.Items = DefaultItems
	}

	onExit := opts.OnExit
	if onExit == nil {
		onExit = func() {}
	}

	systray.Run(func() {
		systray.SetIcon(Icon())
		systray.SetTitle(opts.Tooltip)
		systray.SetTooltip(opts.Tooltip)

		clicks := make(map[string]<-chan struct{}, len(opts.Items))
		for _, item := range opts.Items {
			clicks[item.ID] = systray.AddMenuItem(item.Label, item.Label).ClickedCh
		}
		forward(clicks, opts.OnMenu, nil)

		if opts.OnReady != nil {
			opts.OnReady()
		}
	}, onExit)
}

var quitOnce sync.Once

// Quit ends the UI loop started by Run. Extra calls are no-ops.
func Quit() {
	quitOnce.Do(systray.Quit)
}

// forward starts one goroutine per item that passes its clicks to onMenu in order.
// The goroutines stop when done is closed; a nil done keeps them for the process lifetime.
func forward(clicks map[string]<-chan struct{}, onMenu func(string), done <-chan struct{}) *sync.WaitGroup {
	var wg sync.WaitGroup
	if onMenu == nil {
		return &wg
	}
	for id, ch := range clicks {
		id, ch := id, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					onMenu(id)
				}
			}
		}()
	}
	return &wg
}
