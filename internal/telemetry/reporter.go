package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/surplusheater/internal/infrastructure/influxdb"
	"github.com/nerrad567/surplusheater/internal/regulator"
)

// Publisher is the MQTT side. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishState(payload []byte) error
	PublishEvent(kind string, payload []byte) error
}

// PointWriter is the InfluxDB side. Satisfied by *influxdb.Client, which
// tags every point with the site and run itself.
type PointWriter interface {
	WriteControlSample(s influxdb.ControlSample)
	WriteTransition(kind string, output float64, at time.Time)
}

// Logger is the structured logger used by the reporter.
type Logger interface {
	Warn(msg string, args ...any)
}

// Options configures a Reporter. Publisher, Writer and Logger may be nil.
type Options struct {
	Site      string
	RunID     string
	Publisher Publisher
	Writer    PointWriter
	Logger    Logger
}

// StateDocument is the retained JSON document on the state topic.
type StateDocument struct {
	Site       string     `json:"site"`
	RunID      string     `json:"run_id"`
	Mode       string     `json:"mode"`
	Output     float64    `json:"output"`
	TotalPower float64    `json:"total_power"`
	Masked     int        `json:"masked"`
	Degraded   bool       `json:"degraded"`
	ResumeAt   *time.Time `json:"resume_at,omitempty"`
	Time       time.Time  `json:"time"`
}

// EventDocument is published on an event topic for each transition.
type EventDocument struct {
	Site     string     `json:"site"`
	RunID    string     `json:"run_id"`
	Kind     string     `json:"kind"`
	Output   float64    `json:"output"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`
	Time     time.Time  `json:"time"`
}

// stateKey is the part of the state whose change triggers a publish.
type stateKey struct {
	mode   regulator.Mode
	output float64
	masked int
}

// Reporter fans tick reports out to MQTT and InfluxDB.
//
// Thread Safety: Observe may be called from several goroutines.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	last      stateKey
	published bool
}

// NewReporter creates a reporter.
func NewReporter(opts Options) *Reporter {
	return &Reporter{opts: opts}
}

// Observe implements regulator.Observer.
func (r *Reporter) Observe(report regulator.Report) {
	r.writePoint(report)

	if report.Transition != regulator.TransitionNone {
		r.publishEvent(report)
	}

	key := stateKey{mode: report.Mode, output: report.Output, masked: report.Reading.Masked}
	r.mu.Lock()
	changed := !r.published || key != r.last
	if changed {
		r.last = key
		r.published = true
	}
	r.mu.Unlock()

	if changed {
		r.publishState(report)
	}
}

func (r *Reporter) writePoint(report regulator.Report) {
	if r.opts.Writer == nil {
		return
	}

	sample := influxdb.ControlSample{
		Mode:       report.Mode.String(),
		TotalPower: report.Reading.Total,
		Phases:     report.Reading.Phases,
		Masked:     report.Reading.Masked,
		Output:     report.Output,
		Time:       report.Time,
	}
	if report.Decision != nil {
		sample.RawStep = report.Decision.RawStep
	}
	r.opts.Writer.WriteControlSample(sample)

	if report.Transition != regulator.TransitionNone {
		r.opts.Writer.WriteTransition(string(report.Transition), report.Output, report.Time)
	}
}

func (r *Reporter) publishState(report regulator.Report) {
	if r.opts.Publisher == nil {
		return
	}

	doc := StateDocument{
		Site:       r.opts.Site,
		RunID:      r.opts.RunID,
		Mode:       report.Mode.String(),
		Output:     report.Output,
		TotalPower: report.Reading.Total,
		Masked:     report.Reading.Masked,
		Degraded:   report.Reading.Degraded(),
		ResumeAt:   optionalTime(report.ResumeAt),
		Time:       report.Time,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		r.warn("encoding state document failed", err)
		return
	}

	if err := r.opts.Publisher.PublishState(payload); err != nil {
		r.warn("publishing state failed", err)
	}
}

func (r *Reporter) publishEvent(report regulator.Report) {
	if r.opts.Publisher == nil {
		return
	}

	kind := string(report.Transition)
	doc := EventDocument{
		Site:     r.opts.Site,
		RunID:    r.opts.RunID,
		Kind:     kind,
		Output:   report.Output,
		ResumeAt: optionalTime(report.ResumeAt),
		Time:     report.Time,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		r.warn("encoding event document failed", err)
		return
	}

	if err := r.opts.Publisher.PublishEvent(kind, payload); err != nil {
		r.warn("publishing event failed", err)
	}
}

func (r *Reporter) warn(msg string, err error) {
	if r.opts.Logger != nil {
		r.opts.Logger.Warn(msg, "error", err)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
