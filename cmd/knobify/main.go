// Command knobify binds two global keys to the volume of the active Spotify device.
// It lives in the notification area; use the tray menu to log in and to exit.
//
// On Windows build it with -ldflags -H=windowsgui so no console is allocated.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"knobify/internal/app"
	"knobify/internal/auth"
	"knobify/internal/config"
	"knobify/internal/keyboard"
	"knobify/internal/logging"
	"knobify/internal/playback"
	"knobify/internal/status"
	"knobify/internal/tray"
)

func main() {
	os.Exit(run())
}

func run() int {
	dotenv := config.LoadDotenv()
	cfg := config.New()

	logger, err := logging.New(cfg.LogLevel(), cfg.LogFile())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[✗] Failed to set up logging: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if !dotenv {
		logger.Debug("no .env file loaded")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	cache := auth.NewTokenCache(cfg.TokenCachePath())

	opts := app.Options{
		Keys:   cfg,
		Login:  loginFunc(cfg, cache, logger),
		Logger: logger,
	}
	var hub *status.Hub
	if cfg.StatusAddr() != "" {
		hub = status.NewHub(logger)
		opts.Publisher = hub
	}
	router := app.NewRouter(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{})
	done := make(chan error, 1)
	tray.Run(tray.Options{
		OnReady: func() {
			close(ready)
			go listenKeys(keyboard.New(), router, logger)
			go func() {
				done <- supervise(ctx, router, hub, cfg.StatusAddr(), logger, func() {
					cancel()
					tray.Quit()
				})
			}()
		},
		OnMenu: func(id string) {
			router.Post(app.MenuSelect{ID: id})
		},
	})
	cancel()

	select {
	case <-ready:
	default:
		logger.Error("tray icon could not be created")
		return 1
	}
	if err := <-done; err != nil {
		logger.Error("knobify stopped with an error", zap.Error(err))
		return 1
	}
	logger.Info("bye")
	return 0
}

// supervise runs the event loop and the optional status feed. When the loop ends, by exit or
// signal, stop is called to close everything else. A status feed that fails only logs.
func supervise(ctx context.Context, router *app.Router, hub *status.Hub, addr string, logger *zap.Logger, stop func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return router.Run(gctx)
	})
	if hub != nil {
		g.Go(func() error {
			if err := status.ListenAndServe(gctx, addr, hub); err != nil {
				logger.Error("status feed stopped", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// listenKeys forwards key presses to the router for the lifetime of the process.
// A hook that fails leaves the application running without keys.
func listenKeys(l keyboard.Listener, router *app.Router, logger *zap.Logger) {
	err := l.Listen(func(k keyboard.Key) {
		router.Post(app.KeyPress{Key: k})
	})
	if errors.Is(err, keyboard.ErrUnsupported) {
		logger.Warn("volume keys are unavailable on this platform", zap.Error(err))
		return
	}
	logger.Error("keyboard hook stopped; volume keys are disabled", zap.Error(err))
}

// loginFunc authorizes the user and builds a controller on a single authenticated client.
func loginFunc(cfg *config.Source, cache *auth.TokenCache, logger *zap.Logger) app.LoginFunc {
	return func(ctx context.Context) (app.VolumeController, error) {
		creds, err := cfg.Credentials()
		if err != nil {
			return nil, err
		}

		ts, err := auth.NewFlow(creds, cache, logger).Login(ctx)
		if err != nil {
			return nil, err
		}

		api := playback.NewAPI(oauth2.NewClient(context.WithoutCancel(ctx), ts), playback.DefaultBaseURL)
		ctrl, err := playback.Login(ctx, api, cfg, logger)
		if err != nil {
			return nil, err
		}
		return ctrl, nil
	}
}
