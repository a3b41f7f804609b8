// Package influxdb records the regulator's control history in InfluxDB v2.
//
// Two measurements are written, both tagged with the site and the run id:
//
//	regulator        one point per control tick (meter reading, step, output), tag mode
//	regulator_event  one point per transition, tag kind
//
// History is write-only. The regulator never reads it back, so nothing
// about the control state survives a restart.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Tags{Site: "home", RunID: runID})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteControlSample(influxdb.ControlSample{Mode: "active", Output: 42, Time: time.Now()})
package influxdb
