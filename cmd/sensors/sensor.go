package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/dht20"
	"github.com/mklimuk/dht20/adapter"
	"github.com/mklimuk/dht20/cmd/sensors/console"
	"github.com/mklimuk/dht20/config"
	"github.com/mklimuk/dht20/environment"
	"github.com/mklimuk/dht20/i2c"
)

func sensorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration file",
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   config.AdapterPeriph,
			Usage:   "bus adapter: periph, gobot, mcp2221 or mock",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "periph I2C bus name, first available bus when empty",
		},
		&cli.IntFlag{
			Name:  "bus",
			Value: -1,
			Usage: "gobot I2C bus number, adaptor default when negative",
		},
		&cli.StringFlag{
			Name:  "addr",
			Value: "0x38",
			Usage: "7-bit sensor address",
		},
		&cli.IntFlag{
			Name:  "poll-limit",
			Usage: "give up after this many busy status reads, 0 waits forever",
		},
		&cli.DurationFlag{
			Name:  "poll-timeout",
			Usage: "give up when the sensor is still busy after this long, 0 waits forever",
		},
		&cli.BoolFlag{
			Name:  "precise",
			Usage: "use all temperature bits of the measurement frame",
		},
		&cli.DurationFlag{
			Name:  "power-on-wait",
			Usage: "wait before initialization, use at least 100ms right after powering the sensor",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "output format: text or yaml",
		},
	}
}

// loadConfig reads the optional config file and applies explicitly set flags on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") || c.String("config") == "" {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.Int("bus")
	}
	if c.IsSet("addr") || c.String("config") == "" {
		addr, err := parseAddress(c.String("addr"))
		if err != nil {
			return cfg, err
		}
		cfg.Address = addr
	}
	if c.IsSet("poll-limit") {
		cfg.Measure.PollLimit = c.Int("poll-limit")
	}
	if c.IsSet("poll-timeout") {
		cfg.Measure.PollTimeout = c.Duration("poll-timeout")
	}
	if c.IsSet("precise") {
		cfg.Measure.PreciseTemperature = c.Bool("precise")
	}
	if c.IsSet("power-on-wait") {
		cfg.Measure.PowerOnWait = c.Duration("power-on-wait")
	}
	if c.IsSet("interval") {
		cfg.Measure.Interval = c.Duration("interval")
	}
	return cfg, cfg.Validate()
}

func parseAddress(s string) (uint8, error) {
	addr, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("could not parse address %q: %w", s, err)
	}
	return uint8(addr), nil
}

// openBus returns the bus selected in cfg and a function releasing it.
func openBus(cfg config.Config) (dht20.I2CBus, func(), error) {
	switch cfg.Adapter {
	case config.AdapterPeriph:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("periph bus opened", "bus", bus.String())
		return bus, func() { closeQuietly("periph bus", bus.Close) }, nil
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus)
		return bus, func() {
			closeQuietly("gobot bus", bus.Close)
			closeQuietly("gobot adaptor", npi.I2cBusAdaptor.Finalize)
		}, nil
	case config.AdapterMCP2221:
		mcp2221 := adapter.NewMCP2221()
		if err := mcp2221.Init(); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return mcp2221, func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown adapter %q", config.ErrInvalidConfig, cfg.Adapter)
}

// openSensor initializes the sensor honoring the caller side timing of the datasheet.
func openSensor(ctx context.Context, cfg config.Config) (environment.HumidityTemperatureSensor, func(), error) {
	if cfg.Adapter == config.AdapterMock {
		return mockSensor(), func() {}, nil
	}
	bus, release, err := openBus(cfg)
	if err != nil {
		return nil, nil, err
	}
	sleeper := dht20.ContextSleeper{}
	if cfg.Measure.PowerOnWait > 0 {
		slog.Debug("waiting for sensor power-on", "wait", cfg.Measure.PowerOnWait)
		if err := sleeper.Sleep(ctx, cfg.Measure.PowerOnWait); err != nil {
			release()
			return nil, nil, err
		}
	}
	opts := []environment.DHT20Opt{
		environment.WithAddress(cfg.Address),
		environment.WithSleeper(sleeper),
		environment.WithPollLimit(cfg.Measure.PollLimit),
		environment.WithPollTimeout(cfg.Measure.PollTimeout),
	}
	if cfg.Measure.PreciseTemperature {
		opts = append(opts, environment.WithPreciseTemperature())
	}
	s, err := environment.NewDHT20(ctx, bus, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	slog.Debug("sensor initialized", "adapter", cfg.Adapter, "address", fmt.Sprintf("%#x", s.Address()))
	if err := sleeper.Sleep(ctx, environment.InitSettleDelay); err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

// mockSensor slowly drifts around room conditions.
func mockSensor() *environment.MockDHT20 {
	start := time.Now()
	return environment.NewMockDHT20(func(ctx context.Context) (float64, float64, error) {
		phase := time.Since(start).Seconds() / 60
		return 45 + 5*math.Sin(phase), 21.5 + math.Cos(phase), nil
	})
}

// exitError maps driver errors to distinct exit codes.
func exitError(msg string, err error) cli.ExitCoder {
	code := console.ExitFailure
	var terr *environment.TransportError
	switch {
	case errors.Is(err, environment.ErrDeviceNotReady):
		code = console.ExitNotReady
	case errors.Is(err, environment.ErrMeasurementTimeout):
		code = console.ExitTimeout
	case errors.As(err, &terr):
		code = console.ExitTransport
	}
	return console.Exit(code, "%s: %s", msg, console.Red(err))
}

func closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Warn("could not close", "what", what, "error", err)
	}
}
