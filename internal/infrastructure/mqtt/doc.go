// Package mqtt provides MQTT client connectivity for WardWatch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is WardWatch's bridge to the rest of the hospital: nurse-call
// integrations, corridor displays and building management systems
// subscribe to registry snapshots and alarm state without touching the
// bracelet protocol. The alarm command topic flows the other way,
// letting those systems test or silence the ward alarm.
//
//	WardWatch Core ↔ MQTT Broker ↔ Nurse station / displays / BMS
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Registry snapshots carry patient identifiers; scope broker ACLs
//     to clinical consumers only
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Watch for alarm commands from the nurse station
//	err = client.Subscribe(mqtt.Topics{}.AlarmCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleAlarmCommand(payload)
//	    })
//
//	// Publish alarm state, retained for late subscribers
//	client.PublishRetained(mqtt.Topics{}.AlarmState(), payload)
package mqtt
