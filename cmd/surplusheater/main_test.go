package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/surplusheater/internal/infrastructure/config"
	"github.com/nerrad567/surplusheater/internal/infrastructure/logging"
	"github.com/nerrad567/surplusheater/internal/shelly"
)

// fakeShelly answers as a Pro 3EM and a Gen2 dimmer on one address.
type fakeShelly struct {
	mu       sync.Mutex
	commands []string
}

func newFakeShelly(t *testing.T, totalPower float64) (*fakeShelly, string) {
	t.Helper()
	f := &fakeShelly{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rpc/EM.GetStatus":
			fmt.Fprintf(w, `{"id":0,"a_act_power":%[1]v,"b_act_power":0,"c_act_power":0,"total_act_power":%[1]v}`, totalPower)
		case "/rpc/Light.Set":
			f.mu.Lock()
			f.commands = append(f.commands, r.URL.RawQuery)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"was_on":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, strings.TrimPrefix(srv.URL, "http://")
}

func (f *fakeShelly) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func writeTestConfig(t *testing.T, content string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	t.Setenv("SURPLUSHEATER_CONFIG", configPath)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SURPLUSHEATER_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

// TestRun_ValidationFailure verifies run refuses a config without devices.
func TestRun_ValidationFailure(t *testing.T) {
	writeTestConfig(t, "site:\n  id: test\n")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actuator.address")
}

// TestRun_RegulatesUntilCancelled runs the whole process against a fake
// device until the context is cancelled.
func TestRun_RegulatesUntilCancelled(t *testing.T) {
	device, addr := newFakeShelly(t, -500)
	writeTestConfig(t, fmt.Sprintf(`
site:
  id: test-site
meter:
  address: %q
  aggregate: true
actuator:
  address: %q
regulator:
  interval: 20
logging:
  level: warn
`, addr, addr))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	assert.Eventually(t, func() bool { return device.commandCount() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SURPLUSHEATER_CONFIG", "")
	assert.Equal(t, defaultConfigPath, getConfigPath())

	t.Setenv("SURPLUSHEATER_CONFIG", "/etc/surplusheater.yaml")
	assert.Equal(t, "/etc/surplusheater.yaml", getConfigPath())
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "surplusheater-1b4e28ba", clientID("surplusheater", "1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Equal(t, "surplusheater-abc", clientID("surplusheater", "abc"))
}

func TestShellyConfig(t *testing.T) {
	got, err := shellyConfig(config.DeviceConfig{Address: "10.0.0.5", Generation: "gen1", Timeout: 1500})
	require.NoError(t, err)
	assert.Equal(t, shelly.Config{Address: "10.0.0.5", Generation: shelly.Gen1, Timeout: 1500 * time.Millisecond}, got)

	_, err = shellyConfig(config.DeviceConfig{Address: "10.0.0.5", Generation: "gen7"})
	assert.ErrorIs(t, err, shelly.ErrUnknownGeneration)
}

func TestBuildLoop_WithoutOverride(t *testing.T) {
	device, addr := newFakeShelly(t, -500)
	cfg := testConfig(addr)

	loop, err := buildLoop(cfg, logging.Default(), nil)
	require.NoError(t, err)
	defer loop.Close()

	report := loop.Tick(context.Background())
	assert.Equal(t, 8.0, report.Output)
	assert.Equal(t, 1, device.commandCount())
}

func TestBuildLoop_InvalidTuning(t *testing.T) {
	_, addr := newFakeShelly(t, 0)
	cfg := testConfig(addr)
	cfg.Regulator.Damping = 0

	_, err := buildLoop(cfg, logging.Default(), nil)
	assert.Error(t, err)
}

func testConfig(addr string) *config.Config {
	dc := config.DeviceConfig{Address: addr, Generation: "gen2", Timeout: 1000}
	return &config.Config{
		Site:     config.SiteConfig{ID: "test-site"},
		Meter:    config.MeterConfig{DeviceConfig: dc, Aggregate: true},
		Actuator: config.ActuatorConfig{DeviceConfig: dc},
		Regulator: config.RegulatorConfig{
			RatedPower:           3000,
			Interval:             2000,
			TargetMargin:         -20,
			ExcessThreshold:      -200,
			PauseDuration:        60000,
			OverrideCacheCycles:  30,
			Damping:              0.5,
			MinStep:              1,
			FastDescentThreshold: 200,
			FastDescentDecrement: 10,
		},
	}
}
