package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/surplusheater/internal/infrastructure/influxdb"
	"github.com/nerrad567/surplusheater/internal/infrastructure/mqtt"
	"github.com/nerrad567/surplusheater/internal/regulator"
)

type message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *fakePublisher) publish(topic string, payload []byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

var topics = mqtt.Topics{Site: "home"}

func (p *fakePublisher) PublishState(payload []byte) error {
	return p.publish(topics.State(), payload, true)
}

func (p *fakePublisher) PublishEvent(kind string, payload []byte) error {
	return p.publish(topics.Event(kind), payload, false)
}

func (p *fakePublisher) onTopic(topic string) []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []message
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type transitionPoint struct {
	Kind   string
	Output float64
}

type fakeWriter struct {
	samples     []influxdb.ControlSample
	transitions []transitionPoint
}

func (w *fakeWriter) WriteControlSample(s influxdb.ControlSample) {
	w.samples = append(w.samples, s)
}

func (w *fakeWriter) WriteTransition(kind string, output float64, _ time.Time) {
	w.transitions = append(w.transitions, transitionPoint{Kind: kind, Output: output})
}

type fakeLogger struct {
	warns int
}

func (l *fakeLogger) Warn(string, ...any) { l.warns++ }

var tickTime = time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

func activeReport(output, power float64) regulator.Report {
	return regulator.Report{
		Time:     tickTime,
		Reading:  regulator.Reading{Total: power},
		Decision: &regulator.Decision{RawStep: 2.5},
		Mode:     regulator.ModeActive,
		Output:   output,
	}
}

func TestReporter_StatePublishedOnChangeOnly(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(Options{Site: "home", RunID: "run-1", Publisher: pub})

	r.Observe(activeReport(20, -500))
	r.Observe(activeReport(20, -480)) // same output and mode
	r.Observe(activeReport(28, -300))

	states := pub.onTopic("surplusheater/home/state")
	require.Len(t, states, 2)
	assert.True(t, states[0].Retained)

	var doc StateDocument
	require.NoError(t, json.Unmarshal(states[1].Payload, &doc))
	assert.Equal(t, "active", doc.Mode)
	assert.Equal(t, 28.0, doc.Output)
	assert.Equal(t, -300.0, doc.TotalPower)
	assert.Equal(t, "run-1", doc.RunID)
	assert.False(t, doc.Degraded)
	assert.Nil(t, doc.ResumeAt)
}

func TestReporter_MaskedChangeRepublishes(t *testing.T) {
	pub := &fakePublisher{}
	r := NewReporter(Options{Site: "home", Publisher: pub})

	r.Observe(activeReport(50, 0))
	degraded := activeReport(50, 0)
	degraded.Reading.Masked = 2
	r.Observe(degraded)

	states := pub.onTopic("surplusheater/home/state")
	require.Len(t, states, 2)

	var doc StateDocument
	require.NoError(t, json.Unmarshal(states[1].Payload, &doc))
	assert.Equal(t, 2, doc.Masked)
	assert.True(t, doc.Degraded)
}

func TestReporter_TransitionEvent(t *testing.T) {
	pub := &fakePublisher{}
	w := &fakeWriter{}
	r := NewReporter(Options{Site: "home", Publisher: pub, Writer: w})

	resumeAt := tickTime.Add(time.Minute)
	r.Observe(regulator.Report{
		Time:       tickTime,
		Mode:       regulator.ModePaused,
		Transition: regulator.TransitionPaused,
		ResumeAt:   resumeAt,
	})

	events := pub.onTopic("surplusheater/home/event/paused")
	require.Len(t, events, 1)
	assert.False(t, events[0].Retained)

	var doc EventDocument
	require.NoError(t, json.Unmarshal(events[0].Payload, &doc))
	assert.Equal(t, "paused", doc.Kind)
	require.NotNil(t, doc.ResumeAt)
	assert.True(t, resumeAt.Equal(*doc.ResumeAt))

	assert.Equal(t, []transitionPoint{{Kind: "paused", Output: 0}}, w.transitions)
}

func TestReporter_WritesPointPerTick(t *testing.T) {
	w := &fakeWriter{}
	r := NewReporter(Options{Site: "home", RunID: "run-1", Writer: w})

	r.Observe(activeReport(20, -500))
	r.Observe(activeReport(20, -500))
	r.Observe(regulator.Report{Time: tickTime, Mode: regulator.ModeCheckingOverride, Output: 100})

	require.Len(t, w.samples, 3)
	assert.Equal(t, "active", w.samples[0].Mode)
	assert.Equal(t, 2.5, w.samples[0].RawStep)
	assert.Equal(t, "checking_override", w.samples[2].Mode)
	assert.Zero(t, w.samples[2].RawStep)
	assert.Empty(t, w.transitions)
}

func TestReporter_PublishErrorLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	log := &fakeLogger{}
	r := NewReporter(Options{Site: "home", Publisher: pub, Logger: log})

	r.Observe(activeReport(10, -100))
	assert.Equal(t, 1, log.warns)
}

func TestReporter_NoSinks(t *testing.T) {
	r := NewReporter(Options{Site: "home"})
	assert.NotPanics(t, func() {
		r.Observe(activeReport(10, -100))
		r.Observe(regulator.Report{Transition: regulator.TransitionResumed})
	})
}
