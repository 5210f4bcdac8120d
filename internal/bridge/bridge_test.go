package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakeMQTT records publishes and keeps subscribed handlers.
type fakeMQTT struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]mqtt.MessageHandler
	subErr   error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

// last returns the most recent payload published on topic.
func (f *fakeMQTT) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].topic == topic {
			return f.messages[i], true
		}
	}
	return published{}, false
}

func (f *fakeMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[mqtt.Topics{}.AllDeviceCommands()]
	f.mu.Unlock()
	if h == nil {
		t.Fatal("no command subscription")
	}
	return h(topic, []byte(payload))
}

type fakeLink struct {
	mu       sync.Mutex
	commands []string
}

func (l *fakeLink) Send(_ context.Context, command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, command)
	return nil
}

type entryRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *entryRecorder) Record(e audit.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestBridge(t *testing.T) (*Bridge, *fakeMQTT, *device.Registry, *entryRecorder) {
	t.Helper()

	registry := device.NewRegistry()
	client := newFakeMQTT()
	rec := &entryRecorder{}

	b, err := NewBridge(Options{MQTT: client, Registry: registry, Recorder: rec, QoS: 1})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	registry.AddObserver(b)
	t.Cleanup(b.Stop)
	return b, client, registry, rec
}

func TestNewBridge_Validation(t *testing.T) {
	if _, err := NewBridge(Options{Registry: device.NewRegistry()}); err == nil {
		t.Error("NewBridge() without MQTT should fail")
	}
	if _, err := NewBridge(Options{MQTT: newFakeMQTT()}); err == nil {
		t.Error("NewBridge() without registry should fail")
	}
}

func TestBridge_StartSubscribeError(t *testing.T) {
	client := newFakeMQTT()
	client.subErr = errors.New("broker down")

	b, err := NewBridge(Options{MQTT: client, Registry: device.NewRegistry()})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err == nil {
		t.Error("Start() should fail when subscribe fails")
	}
}

func TestBridge_PublishesRegistryChanges(t *testing.T) {
	b, client, registry, _ := newTestBridge(t)

	if err := registry.Register(device.NewStrip("offline", nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topics := mqtt.Topics{}
	waitFor(t, "republished status", func() bool {
		m, ok := client.last(topics.DeviceStatus("offline"))
		return ok && m.payload == StatusOffline && m.retained
	})

	if err := registry.Register(device.NewStrip("kitchen", &fakeLink{})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	waitFor(t, "online status", func() bool {
		m, ok := client.last(topics.DeviceStatus("kitchen"))
		return ok && m.payload == StatusOnline
	})

	if _, err := registry.Apply(context.Background(), "kitchen", "brightness", json.RawMessage("40")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	waitFor(t, "state update", func() bool {
		m, ok := client.last(topics.DeviceState("kitchen"))
		if !ok {
			return false
		}
		var st capability.State
		return json.Unmarshal([]byte(m.payload), &st) == nil && st.Brightness == 40
	})

	registry.Deregister("kitchen")
	waitFor(t, "offline status", func() bool {
		m, ok := client.last(topics.DeviceStatus("kitchen"))
		return ok && m.payload == StatusOffline
	})
}

func TestBridge_HandleCommand(t *testing.T) {
	b, client, registry, rec := newTestBridge(t)

	link := &fakeLink{}
	if err := registry.Register(device.NewStrip("kitchen", link)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(device.NewStrip("garage", nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name       string
		deviceID   string
		payload    string
		wantStatus string
		wantCode   string
	}{
		{"applied", "kitchen", `{"id":"c1","instance":"program","value":"three"}`, audit.StatusDone, ""},
		{"invalid value", "kitchen", `{"id":"c2","instance":"brightness","value":150}`, audit.StatusError, "INVALID_VALUE"},
		{"unsupported", "kitchen", `{"id":"c3","instance":"temperature","value":20}`, audit.StatusError, "UNSUPPORTED_CAPABILITY"},
		{"unknown device", "attic", `{"id":"c4","instance":"on","value":true}`, audit.StatusError, "DEVICE_NOT_FOUND"},
		{"unreachable", "garage", `{"id":"c5","instance":"on","value":false}`, audit.StatusError, "DEVICE_UNREACHABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic := mqtt.Topics{}.DeviceCommand(tt.deviceID)
			if err := client.deliver(t, topic, tt.payload); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			var cmd CommandMessage
			_ = json.Unmarshal([]byte(tt.payload), &cmd) //nolint:errcheck // fixture is valid
			waitFor(t, "ack", func() bool {
				m, ok := client.last(mqtt.Topics{}.DeviceAck(tt.deviceID))
				if !ok {
					return false
				}
				var ack AckMessage
				if json.Unmarshal([]byte(m.payload), &ack) != nil || ack.ID != cmd.ID {
					return false
				}
				if ack.Status != tt.wantStatus || ack.ErrorCode != tt.wantCode {
					t.Errorf("ack = %+v, want status %s code %q", ack, tt.wantStatus, tt.wantCode)
				}
				return true
			})
		})
	}

	link.mu.Lock()
	sent := append([]string(nil), link.commands...)
	link.mu.Unlock()
	if len(sent) != 1 || sent[0] != "MODE:three" {
		t.Errorf("sent = %v, want [MODE:three]", sent)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.entries) != len(tests) {
		t.Fatalf("audit entries = %d, want %d", len(rec.entries), len(tests))
	}
	if rec.entries[0].Source != audit.SourceMQTT || rec.entries[0].RequestID != "c1" || !rec.entries[0].Delivered {
		t.Errorf("first entry = %+v", rec.entries[0])
	}
}

func TestBridge_HandleCommandRejectsMalformed(t *testing.T) {
	b, client, _, rec := newTestBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, payload := range []string{`not json`, `{"value":true}`} {
		err := client.deliver(t, mqtt.Topics{}.DeviceCommand("kitchen"), payload)
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("payload %q: error = %v, want ErrInvalidCommand", payload, err)
		}
	}
	if err := b.handleCommand("stripgate/command/a/b", []byte(`{}`)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("bad topic: error = %v", err)
	}
	if len(rec.entries) != 0 {
		t.Errorf("malformed commands should not be audited, got %d", len(rec.entries))
	}
}

func TestBridge_StopFlushesQueue(t *testing.T) {
	client := newFakeMQTT()
	b, err := NewBridge(Options{MQTT: client, Registry: device.NewRegistry()})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b.StateChanged("hall", capability.DefaultState())
	b.Stop()

	if _, ok := client.last(mqtt.Topics{}.DeviceState("hall")); !ok {
		t.Error("queued state was not published before Stop returned")
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if _, ok := client.handlers[mqtt.Topics{}.AllDeviceCommands()]; ok {
		t.Error("command subscription kept after Stop")
	}
}

func TestBridge_FullQueueDrops(t *testing.T) {
	client := newFakeMQTT()
	b, err := NewBridge(Options{MQTT: client, Registry: device.NewRegistry(), QueueSize: 1})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	// Not started: nothing drains the queue.
	b.DeviceDeregistered("a")
	b.DeviceDeregistered("b")

	if got := len(b.queue); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}
