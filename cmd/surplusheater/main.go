// Surplus heater regulator
//
// Steers a dimmable resistive load (typically a water heater element) so
// that it consumes the PV surplus measured at the grid connection point.
// The meter, the dimmer and the optional override switch are Shelly
// devices reached over their local HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/nerrad567/surplusheater/internal/infrastructure/config"
	"github.com/nerrad567/surplusheater/internal/infrastructure/influxdb"
	"github.com/nerrad567/surplusheater/internal/infrastructure/logging"
	"github.com/nerrad567/surplusheater/internal/infrastructure/mqtt"
	"github.com/nerrad567/surplusheater/internal/regulator"
	"github.com/nerrad567/surplusheater/internal/scheduler"
	"github.com/nerrad567/surplusheater/internal/shelly"
	"github.com/nerrad567/surplusheater/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the process together and blocks until ctx is cancelled.
// Only startup failures are returned; nothing in the control path is fatal.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting surplus heater regulator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"debug", cfg.Logging.Debug,
	)

	runID := uuid.NewString()
	log = log.With("site", cfg.Site.ID, "run_id", runID)

	reporterOpts := telemetry.Options{
		Site:   cfg.Site.ID,
		RunID:  runID,
		Logger: log.Component("telemetry"),
	}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttCfg := cfg.MQTT
		mqttCfg.Broker.ClientID = clientID(cfg.MQTT.Broker.ClientID, runID)

		mqttClient, mqttErr := mqtt.Connect(mqttCfg, mqtt.Topics{Site: cfg.Site.ID})
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttCfg.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		reporterOpts.Publisher = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Tags{Site: cfg.Site.ID, RunID: runID})
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		reporterOpts.Writer = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	loop, err := buildLoop(cfg, log.Component("regulator"), telemetry.NewReporter(reporterOpts))
	if err != nil {
		return err
	}
	defer func() {
		log.Info("waiting for outstanding override probes")
		loop.Close()
	}()
	log.Info("regulator ready",
		"meter", cfg.Meter.Address,
		"actuator", cfg.Actuator.Address,
		"override", cfg.Override.Address,
		"rated_power", cfg.Regulator.RatedPower,
	)

	sched, err := scheduler.New(cfg.GetInterval(), log)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(ctx, func(tickCtx context.Context) {
		loop.Tick(tickCtx)
	}); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred functions run in reverse order: scheduler, loop, InfluxDB, MQTT.
	log.Info("surplus heater regulator stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SURPLUSHEATER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// clientID makes the MQTT client id unique per process so a restarted
// regulator never kicks a lingering session of its predecessor.
func clientID(base, runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return base + "-" + runID
}

// buildLoop creates the Shelly devices and the control loop from configuration.
func buildLoop(cfg *config.Config, log *logging.Logger, observer regulator.Observer) (*regulator.Loop, error) {
	meterCfg, err := shellyConfig(cfg.Meter.DeviceConfig)
	if err != nil {
		return nil, fmt.Errorf("meter: %w", err)
	}
	meter, err := shelly.NewMeter(meterCfg)
	if err != nil {
		return nil, fmt.Errorf("meter: %w", err)
	}

	dimmerCfg, err := shellyConfig(cfg.Actuator.DeviceConfig)
	if err != nil {
		return nil, fmt.Errorf("actuator: %w", err)
	}
	dimmer, err := shelly.NewDimmer(dimmerCfg)
	if err != nil {
		return nil, fmt.Errorf("actuator: %w", err)
	}

	opts := regulator.Options{
		Meter:     meter,
		Aggregate: cfg.Meter.Aggregate,
		Dimmer:    dimmer,
		Tuning: regulator.Tuning{
			RatedPower:           cfg.Regulator.RatedPower,
			TargetMargin:         cfg.Regulator.TargetMargin,
			Damping:              cfg.Regulator.Damping,
			MinStep:              cfg.Regulator.MinStep,
			FastDescentThreshold: cfg.Regulator.FastDescentThreshold,
			FastDescentDecrement: cfg.Regulator.FastDescentDecrement,
		},
		Pause: regulator.PauseConfig{
			ExcessThreshold: cfg.Regulator.ExcessThreshold,
			Duration:        cfg.GetPauseDuration(),
			CacheCycles:     cfg.Regulator.OverrideCacheCycles,
		},
		Observer: observer,
		Logger:   log,
	}

	// Assigned only when configured: a nil *shelly.Switch in the interface
	// would not read as "no override device".
	if cfg.Override.Enabled() {
		switchCfg, switchErr := shellyConfig(cfg.Override.DeviceConfig)
		if switchErr != nil {
			return nil, fmt.Errorf("override: %w", switchErr)
		}
		sw, switchErr := shelly.NewSwitch(switchCfg)
		if switchErr != nil {
			return nil, fmt.Errorf("override: %w", switchErr)
		}
		opts.Override = sw
	}

	loop, err := regulator.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating regulator: %w", err)
	}
	return loop, nil
}

func shellyConfig(dc config.DeviceConfig) (shelly.Config, error) {
	gen, err := shelly.ParseGeneration(dc.Generation)
	if err != nil {
		return shelly.Config{}, err
	}
	return shelly.Config{
		Address:    dc.Address,
		Generation: gen,
		Timeout:    dc.RequestTimeout(),
	}, nil
}
