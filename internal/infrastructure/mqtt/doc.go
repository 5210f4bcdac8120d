// Package mqtt connects the gateway to an MQTT broker for the optional
// state mirror.
//
// It wraps github.com/eclipse/paho.mqtt.golang with auto-reconnect,
// subscription restore and a retained gateway status topic backed by a last
// will. Topic names are built by Topics; see internal/bridge for what is
// published and consumed.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.DeviceStatus("kitchen"), []byte("online"))
package mqtt
