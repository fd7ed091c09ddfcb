// Package mqtt provides the collector's MQTT client, a thin wrapper over
// paho.mqtt.golang.
//
// This package manages:
//   - Connection to the broker with paho's auto-reconnect
//   - A unique client ID per collector (configured ID plus a UUID fragment)
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) plus retained online/offline status
//   - Outage reporting to an Observer, with the measured downtime
//
// The sensor node does not use this package; it keeps its own
// fixed-buffer session in internal/mqtt/session. Topic names and filters
// are still checked with the same rules (internal/mqtt/packet).
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.OptionsFromConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
