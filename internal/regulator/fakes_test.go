package regulator

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errOffline = errors.New("device offline")

// fakeMeter returns fixed values; a nil entry in errs means success.
type fakeMeter struct {
	mu       sync.Mutex
	phases   [phaseCount]float64
	total    float64
	phaseErr [phaseCount]error
	totalErr error
	calls    int
}

func (m *fakeMeter) PhasePower(_ context.Context, phase int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.phaseErr[phase]; err != nil {
		return 0, err
	}
	return m.phases[phase], nil
}

func (m *fakeMeter) TotalPower(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.totalErr != nil {
		return 0, m.totalErr
	}
	return m.total, nil
}

func (m *fakeMeter) setTotal(w float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = w
}

// setCommand is one recorded dimmer command.
type setCommand struct {
	On    bool
	Level int
}

type fakeDimmer struct {
	mu       sync.Mutex
	commands []setCommand
	err      error
}

func (d *fakeDimmer) Set(_ context.Context, on bool, level int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.commands = append(d.commands, setCommand{On: on, Level: level})
	return nil
}

func (d *fakeDimmer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDimmer) sent() []setCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]setCommand(nil), d.commands...)
}

// fakeProbe answers IsOn. With block set, each call waits for release.
type fakeProbe struct {
	mu      sync.Mutex
	on      bool
	err     error
	calls   int
	block   bool
	release chan struct{}
}

func newFakeProbe(on bool) *fakeProbe {
	return &fakeProbe{on: on, release: make(chan struct{}, 16)}
}

func (p *fakeProbe) IsOn(ctx context.Context) (bool, error) {
	p.mu.Lock()
	p.calls++
	block := p.block
	p.mu.Unlock()

	if block {
		select {
		case <-p.release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on, p.err
}

func (p *fakeProbe) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingObserver keeps every report.
type recordingObserver struct {
	mu      sync.Mutex
	reports []Report
}

func (o *recordingObserver) Observe(r Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

func (o *recordingObserver) all() []Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Report(nil), o.reports...)
}

// recordingLogger keeps warn and error messages.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// defaultTuning mirrors the shipped configuration defaults.
func defaultTuning() Tuning {
	return Tuning{
		RatedPower:           3000,
		TargetMargin:         -20,
		Damping:              0.5,
		MinStep:              1,
		FastDescentThreshold: 200,
		FastDescentDecrement: 10,
	}
}

func defaultPause() PauseConfig {
	return PauseConfig{
		ExcessThreshold: -200,
		Duration:        60 * time.Second,
		CacheCycles:     30,
	}
}
