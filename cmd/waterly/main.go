// Package main is waterly's daemon entrypoint: it wires the Measurement
// Store, the Settings database, the Modbus transport and zones, the
// Weather client, and the Watering Scheduler, then runs until signaled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/danluca/waterly/internal/app"
	"github.com/danluca/waterly/internal/constants"
	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/modbus"
	"github.com/danluca/waterly/internal/platform"
	"github.com/danluca/waterly/internal/pulse"
	"github.com/danluca/waterly/internal/scheduler"
	"github.com/danluca/waterly/internal/store"
	"github.com/danluca/waterly/internal/units"
	"github.com/danluca/waterly/internal/weather"
	"github.com/danluca/waterly/internal/zone"
	"github.com/danluca/waterly/pkg/config"
)

func main() {
	dataDir := flag.String("data-dir", "data", "directory for yearly-rolling measurement databases and weather dumps")
	measurementMigrations := flag.String("measurement-migrations", "db", "directory of measurement-store migration scripts")
	configDBPath := flag.String("config-db", "waterly-config.sqlite", "path to the settings database")
	configMigrations := flag.String("config-migrations", "db/config", "directory of settings-store migration scripts")
	bootstrapYAML := flag.String("bootstrap-yaml", "", "optional YAML file to seed the settings database on first run")
	modbusDevice := flag.String("modbus-device", "/dev/ttyUSB0", "serial device for the shared RS-485 Modbus bus")
	modbusBaud := flag.Int("modbus-baud", 9600, "Modbus serial baud rate")
	pulsePin := flag.String("pulse-pin", "GPIO27", "GPIO pin name wired to the flow meter's pulse output")
	debug := flag.Bool("debug", false, "turn on debug logging")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("waterly %s (%s/%s)\n", constants.Version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := loadConfigManager(*configDBPath, *configMigrations, *bootstrapYAML)
	if err != nil {
		log.Errorf("loading settings: %v", err)
		os.Exit(1)
	}
	defer cfg.Close()

	measurementStore, err := store.Open(*dataDir, *measurementMigrations, time.Now())
	if err != nil {
		log.Errorf("opening measurement store: %v", err)
		os.Exit(1)
	}
	defer measurementStore.Close()

	if err := platform.GPIOHost(); err != nil {
		log.Errorf("initializing GPIO host: %v", err)
		os.Exit(1)
	}

	transport, err := modbus.Open(platform.RealSerialOpener{}, *modbusDevice, *modbusBaud)
	if err != nil {
		log.Errorf("opening modbus transport on %s: %v", *modbusDevice, err)
		os.Exit(1)
	}

	bus := zone.NewBus()
	zones, err := buildZones(cfg, bus, transport)
	if err != nil {
		log.Errorf("building zones: %v", err)
		os.Exit(1)
	}

	edgePin, err := platform.NewEdgePin(*pulsePin, pulse.Debounce)
	if err != nil {
		log.Errorf("configuring pulse pin %s: %v", *pulsePin, err)
		os.Exit(1)
	}
	pulses := pulse.New(edgePin)

	tempUnit, precipUnit := units.Celsius, units.Millimeter
	if !cfg.IsMetric() {
		tempUnit, precipUnit = units.Fahrenheit, units.Inch
	}
	lat, lon := cfg.Location()
	weatherClient := weather.New(weather.Location{Latitude: lat, Longitude: lon}, tempUnit, precipUnit, *dataDir, measurementStore, cfg)

	sched := scheduler.New(zones, bus, measurementStore, pulses, cfg)

	application := app.New(cfg, sched, weatherClient, bus, transport, pulses)
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("application error: %v", err)
		os.Exit(1)
	}
}

// loadConfigManager opens the settings database, applying its migrations,
// importing bootstrapYAML (if given and the database is freshly created)
// before wrapping it in a short-lived read cache.
func loadConfigManager(dbPath, migrationsDir, bootstrapYAML string) (*config.Manager, error) {
	_, statErr := os.Stat(dbPath)
	isFreshDB := os.IsNotExist(statErr)

	provider, err := config.NewSQLiteProvider(dbPath, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("creating settings provider: %w", err)
	}

	if isFreshDB && bootstrapYAML != "" {
		if _, err := os.Stat(bootstrapYAML); err == nil {
			log.Infof("settings database did not exist, importing bootstrap file %s", bootstrapYAML)
			seed, err := config.NewYAMLProvider(bootstrapYAML).Load()
			if err != nil {
				return nil, fmt.Errorf("parsing bootstrap YAML %s: %w", bootstrapYAML, err)
			}
			if errs := config.Validate(seed); len(errs) > 0 {
				var msgs []string
				for _, e := range errs {
					msgs = append(msgs, e.Error())
				}
				return nil, fmt.Errorf("bootstrap settings are invalid:\n  - %s", strings.Join(msgs, "\n  - "))
			}
			if err := provider.Save(seed); err != nil {
				return nil, fmt.Errorf("seeding settings database: %w", err)
			}
		}
	}

	cached := config.NewCachedProvider(provider, 5*time.Second)
	return config.NewManager(cached)
}

func buildZones(cfg *config.Manager, bus *zone.Bus, transport *modbus.Transport) ([]*zone.Zone, error) {
	defs := cfg.Zones()
	if len(defs) == 0 {
		return nil, fmt.Errorf("no zones configured")
	}
	zones := make([]*zone.Zone, 0, len(defs))
	for _, d := range defs {
		relay, err := platform.NewRelayPin(fmt.Sprintf("GPIO%d", d.RelayPin))
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", d.Name, err)
		}
		zones = append(zones, zone.New(d, bus, transport, relay))
	}
	return zones, nil
}
