//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_RetainedRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "stripgate-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	received := make(chan []byte, 1)
	topic := Topics{}.DeviceState("int-test")
	if err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.PublishRetained(topic, []byte(`{"on":true}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != `{"on":true}` {
			t.Errorf("payload = %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}
