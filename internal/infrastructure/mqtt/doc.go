// Package mqtt publishes the regulator's status, state and transition
// events for one site. It never subscribes.
//
// Topics live under surplusheater/{site}/:
//
//	status       retained online/offline document, offline also set as LWT
//	state        retained JSON snapshot of the control loop
//	event/{kind} non-retained pause and resume transitions
//
// MQTT is optional. The control loop never depends on the broker; publish
// errors are returned to the caller, which logs and drops them.
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Site: cfg.Site.ID})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishState(payload)
package mqtt
