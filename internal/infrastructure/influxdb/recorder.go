package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/surplusheater/internal/infrastructure/config"
)

// Measurements written by the regulator.
const (
	MeasurementTick  = "regulator"
	MeasurementEvent = "regulator_event"
)

const (
	pingTimeout = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Tags identify the regulator instance. They are attached to every point
// as default tags, so single writes only carry what changes per tick.
type Tags struct {
	Site  string
	RunID string
}

// ControlSample is one control tick as stored in the regulator measurement.
type ControlSample struct {
	Mode string

	// TotalPower is the meter reading at the grid connection in watts.
	TotalPower float64

	// Phases holds the per-phase readings (zero in aggregate mode).
	Phases [3]float64

	// Masked is the number of meter queries substituted with 0 W.
	Masked int

	// RawStep is the proportional step before dead-band and clamping.
	RawStep float64

	// Output is the applied actuator output in percent.
	Output float64

	Time time.Time
}

// Client records the control history of one regulator run.
//
// Writes never block the control loop: points are batched by the
// non-blocking write API and failures arrive on the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	open    bool
	onError func(err error)
}

// Connect pings the server and prepares a batched writer for the
// configured org and bucket, tagged with tags.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, tags Tags) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, tags))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s: server not ready", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		open:     true,
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions maps the batching settings (flush interval in seconds) and
// the run's identity onto client options.
func writeOptions(cfg config.InfluxDBConfig, tags Tags) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
	if tags.Site != "" {
		opts.AddDefaultTag("site", tags.Site)
	}
	if tags.RunID != "" {
		opts.AddDefaultTag("run_id", tags.RunID)
	}
	return opts
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		onError := c.onError
		c.mu.RUnlock()
		if onError != nil {
			onError(err)
		}
	}
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// WriteControlSample queues one tick. No-op after Close.
func (c *Client) WriteControlSample(s ControlSample) {
	c.writePoint(write.NewPoint(
		MeasurementTick,
		map[string]string{"mode": s.Mode},
		map[string]any{
			"total_power": s.TotalPower,
			"phase_a":     s.Phases[0],
			"phase_b":     s.Phases[1],
			"phase_c":     s.Phases[2],
			"masked":      s.Masked,
			"raw_step":    s.RawStep,
			"output":      s.Output,
		},
		s.Time,
	))
}

// WriteTransition queues a pause/resume/probing transition. No-op after Close.
func (c *Client) WriteTransition(kind string, output float64, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementEvent,
		map[string]string{"kind": kind},
		map[string]any{"output": output},
		at,
	))
}

func (c *Client) writePoint(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return
	}
	c.writeAPI.WritePoint(p)
}

// Close flushes queued points and releases the client. Safe to call more
// than once and on a zero Client.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
