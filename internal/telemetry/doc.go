// Package telemetry publishes what the control loop does.
//
// Reporter implements regulator.Observer. Every tick report becomes an
// InfluxDB point; the retained MQTT state document is refreshed whenever
// the output, the mode or the meter health changes; pause and resume
// transitions are announced as MQTT events and InfluxDB event points.
//
// Both sinks are optional. Publish failures are logged and never reach the
// control loop.
package telemetry
