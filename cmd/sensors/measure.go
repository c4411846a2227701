package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/dht20/cmd/sensors/console"
	"github.com/mklimuk/dht20/environment"
)

type measurement struct {
	Time        time.Time `yaml:"time"`
	Humidity    float64   `yaml:"humidity"`
	Temperature float64   `yaml:"temperature"`
}

var measureCmd = cli.Command{
	Name:    "measure",
	Aliases: []string{"m"},
	Usage:   "initialize the sensor and take a single measurement",
	Flags:   sensorFlags(),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "configuration error: %s", console.Red(err))
		}
		s, release, err := openSensor(c.Context, cfg)
		if err != nil {
			return exitError("sensor initialization error", err)
		}
		defer release()
		hum, temp, err := s.Measure(c.Context)
		if err != nil {
			return exitError("error getting measurement", err)
		}
		return printMeasurement(c.String("format"), measurement{Time: time.Now(), Humidity: hum, Temperature: temp})
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "measure periodically until interrupted",
	Flags: append(sensorFlags(),
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Value:   2 * time.Second,
			Usage:   "time between measurements",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "stop after this many measurements, 0 runs until interrupted",
		},
	),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "configuration error: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
		defer stop()
		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return exitError("sensor initialization error", err)
		}
		defer release()
		format := c.String("format")
		if format != "yaml" {
			console.PInfof(console.PictoClock, "measuring every %s", cfg.Measure.Interval)
		}
		err = watch(ctx, s, cfg.Measure.Interval, c.Int("count"), func(m measurement) error {
			return printMeasurement(format, m)
		})
		if format != "yaml" {
			console.PInfof(console.PictoStop, "stopped")
		}
		return err
	},
}

var interactiveCmd = cli.Command{
	Name:    "interactive",
	Aliases: []string{"i"},
	Usage:   "measure on demand from a prompt",
	Flags:   sensorFlags(),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(console.ExitFailure, "configuration error: %s", console.Red(err))
		}
		s, release, err := openSensor(c.Context, cfg)
		if err != nil {
			return exitError("sensor initialization error", err)
		}
		defer release()
		format := c.String("format")
		err = interactive(c.Context, s, func() (string, error) {
			return console.YesNoOrQuit("measure?")
		}, func(m measurement) error {
			return printMeasurement(format, m)
		})
		if format != "yaml" {
			console.PInfof(console.PictoStop, "session ended")
		}
		return err
	},
}

// interactive measures once per confirmed prompt until the answer declines or ask fails.
// ask failing on EOF or interrupt ends the session without error.
func interactive(ctx context.Context, s environment.HumidityTemperatureSensor, ask func() (string, error), emit func(measurement) error) error {
	for {
		answer, err := ask()
		if err != nil {
			slog.Debug("prompt closed", "error", err)
			return nil
		}
		if console.Declined(answer) {
			return nil
		}
		hum, temp, err := s.Measure(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			console.Errorf("error getting measurement: %s", console.Red(err))
			continue
		}
		if err := emit(measurement{Time: time.Now(), Humidity: hum, Temperature: temp}); err != nil {
			return err
		}
	}
}

// watch measures every interval until ctx is done or count measurements were emitted.
// Failed measurements are reported and skipped.
func watch(ctx context.Context, s environment.HumidityTemperatureSensor, interval time.Duration, count int, emit func(measurement) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	emitted := 0
	for {
		hum, temp, err := s.Measure(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			slog.Error("measurement failed", "error", err)
		default:
			if err := emit(measurement{Time: time.Now(), Humidity: hum, Temperature: temp}); err != nil {
				return err
			}
			emitted++
			if count > 0 && emitted >= count {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printMeasurement(format string, m measurement) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(console.Writer())
		if err := enc.Encode([]measurement{m}); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return enc.Close()
	case "text", "":
		console.Printf("%s  %s\n%s %s\n",
			console.PictoThermometer, console.White(fmt.Sprintf("%.2f°C", m.Temperature)),
			console.PictoHumidity, console.White(fmt.Sprintf("%.2f%%RH", m.Humidity)))
		return nil
	}
	return console.Exit(console.ExitFailure, "unknown format %q", format)
}
