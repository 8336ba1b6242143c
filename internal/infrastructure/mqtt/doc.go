// Package mqtt connects LexGate to an MQTT broker.
//
// It publishes session and authorization events for downstream consumers
// and receives membership revocation commands from external admin tooling.
// The wrapper around paho.mqtt.golang adds a retained online/offline status
// with a last will, validated publish and subscribe calls, and subscription
// restore after an automatic reconnect.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	_ = client.PublishAuthEvent(mqtt.AuthEvent{Action: "logout", UserID: id})
//
// Handlers run on paho goroutines, recover from panics and have their
// errors logged through SetLogger.
package mqtt
