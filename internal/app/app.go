// Package app supervises waterly's long-running workers: the Watering
// Scheduler (sensor polling + the once-daily cycle) and the Weather
// worker (HTTP fetch + upsert on its own cadence), sharing one
// cancellation context and joined at shutdown.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/modbus"
	"github.com/danluca/waterly/internal/pulse"
	"github.com/danluca/waterly/internal/scheduler"
	"github.com/danluca/waterly/internal/weather"
	"github.com/danluca/waterly/internal/zone"
	"github.com/danluca/waterly/pkg/config"
)

// weatherCheckTick is how often the weather worker re-evaluates whether
// a refresh is due; the actual refresh cadence is governed by the
// configured WeatherCheckInterval/PreWateringRefreshWindow.
const weatherCheckTick = 1 * time.Minute

// App wires the Scheduler and the Weather worker to one configuration
// manager, one Measurement Store, and one shared Modbus transport, and
// supervises them for the life of the process.
type App struct {
	cfg       *config.Manager
	scheduler *scheduler.Scheduler
	weather   *weather.Client
	bus       *zone.Bus
	transport *modbus.Transport
	pulses    *pulse.Counter
}

// New returns an App ready to Run. transport may be nil in test/simulator
// builds that construct zones directly over fakes; Run skips closing it
// in that case.
func New(cfg *config.Manager, sched *scheduler.Scheduler, weatherClient *weather.Client, bus *zone.Bus, transport *modbus.Transport, pulses *pulse.Counter) *App {
	return &App{
		cfg:       cfg,
		scheduler: sched,
		weather:   weatherClient,
		bus:       bus,
		transport: transport,
		pulses:    pulses,
	}
}

// Run starts the pulse counter, the Scheduler, and the Weather worker,
// and blocks until a SIGINT/SIGTERM is received, ctx is canceled, or one
// of the workers returns a fatal error - any of which triggers the same
// graceful-shutdown path.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pulses.Start()
	defer a.pulses.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		a.runWeatherWorker(gctx)
		return nil
	})

	log.Info("app: started")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		log.Info("app: shutdown signal received, initiating graceful shutdown...")
	case <-gctx.Done():
		log.Info("app: a worker stopped, shutting down...")
	}

	cancel()

	log.Info("app: waiting for workers to terminate...")
	err := g.Wait()

	if a.transport != nil {
		if cerr := a.transport.Close(); cerr != nil {
			log.Errorf("app: closing modbus transport: %v", cerr)
		}
	}

	log.Info("app: shutdown complete")
	return err
}

// runWeatherWorker ticks once a minute, refreshing the forecast at the
// configured normal cadence, narrowed to at most one refresh inside the
// pre-watering window per spec.md's pre-watering refresh policy.
func (a *App) runWeatherWorker(ctx context.Context) {
	log.Info("weather worker: starting")
	defer log.Info("weather worker: stopped")

	ticker := time.NewTicker(weatherCheckTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.maybeFetchWeather(time.Now())
		}
	}
}

// maybeFetchWeather decides whether a refresh is due and, if so, runs
// one. During the pre-watering window at most one refresh is permitted;
// outside it the normal interval applies.
func (a *App) maybeFetchWeather(now time.Time) {
	last := a.cfg.WeatherLastCheckTimestamp()
	sinceLast := now.Sub(last)

	hour, minute := a.cfg.WateringStartTime()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	window := a.cfg.PreWateringRefreshWindow()
	inPreWateringWindow := window > 0 && !now.Before(startOfDay.Add(-window)) && now.Before(startOfDay)

	if inPreWateringWindow {
		if !last.IsZero() && !last.Before(startOfDay.Add(-window)) {
			log.Debug("weather worker: already updated within the pre-watering window")
			return
		}
	} else if !last.IsZero() && sinceLast < a.cfg.WeatherCheckInterval() {
		return
	}

	fetchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.weather.Fetch(fetchCtx, now); err != nil {
		log.Errorf("weather worker: fetch failed: %v", err)
	}
}

// ReloadConfiguration re-reads settings from the underlying provider,
// picking up operator edits made out of band.
func (a *App) ReloadConfiguration() error {
	log.Info("app: reloading configuration...")
	if err := a.cfg.Reload(); err != nil {
		log.Errorf("app: reloading configuration: %v", err)
		return err
	}
	log.Info("app: configuration reloaded")
	return nil
}
