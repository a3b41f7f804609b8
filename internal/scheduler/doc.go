// Package scheduler runs the control tick at a fixed interval.
//
// It wraps gocron in singleton mode: a tick that overruns the interval
// delays the next one instead of overlapping it.
package scheduler
