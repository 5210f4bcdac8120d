package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxsfamily/stripgate/internal/audit"
	"github.com/maxsfamily/stripgate/internal/capability"
	"github.com/maxsfamily/stripgate/internal/device"
	"github.com/maxsfamily/stripgate/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds applying one inbound command.
	commandTimeout = 5 * time.Second

	defaultQueueSize = 256
)

// ErrInvalidCommand is returned for command messages that cannot be parsed.
var ErrInvalidCommand = errors.New("bridge: invalid command")

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registry is the subset of *device.Registry the bridge uses.
type Registry interface {
	Apply(ctx context.Context, id, instance string, raw json.RawMessage) (device.Outcome, error)
	List() []device.Device
}

// Recorder receives one audit entry per applied command.
type Recorder interface {
	Record(e audit.Entry)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	MQTT     MQTTClient
	Registry Registry
	Recorder Recorder // optional
	QoS      byte
	// QueueSize bounds pending publishes; defaults to 256.
	QueueSize int
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge publishes registry changes to MQTT and applies MQTT commands to
// the registry.
//
// Observer callbacks only enqueue; a single goroutine started by Start does
// the publishing so a slow broker never blocks a registry caller. When the
// queue is full the message is dropped and logged; the next change or a
// Republish brings the retained topics back in line.
type Bridge struct {
	mqtt     MQTTClient
	registry Registry
	recorder Recorder
	qos      byte
	topics   mqtt.Topics

	queue chan message

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to begin publishing.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:     opts.MQTT,
		registry: opts.Registry,
		recorder: opts.Recorder,
		qos:      opts.QoS,
		queue:    make(chan message, size),
		ctx:      ctx,
		cancel:   cancel,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to device commands, starts the publisher and publishes
// the current state of every known device.
func (b *Bridge) Start() error {
	topic := b.topics.AllDeviceCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}

	b.wg.Add(1)
	go b.publishLoop()

	b.Republish()
	b.logger.Info("mqtt bridge started", "topic", topic)
	return nil
}

// Stop drops the command subscription, cancels in-flight commands, then
// publishes what is still queued and waits for the publisher to exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(b.topics.AllDeviceCommands()); err != nil {
			b.logger.Warn("unsubscribe from commands failed", "error", err)
		}
		b.cancel()
		b.wg.Wait()
		b.logger.Info("mqtt bridge stopped")
	})
}

// Republish enqueues state and status for every known device. It is run on
// start and after every broker reconnect.
func (b *Bridge) Republish() {
	for _, d := range b.registry.List() {
		b.publishDevice(d)
	}
}

// DeviceRegistered implements device.Observer.
func (b *Bridge) DeviceRegistered(d device.Device) {
	b.publishDevice(d)
}

// DeviceDeregistered implements device.Observer. The last state stays
// retained; only the status flips.
func (b *Bridge) DeviceDeregistered(id string) {
	b.enqueue(b.topics.DeviceStatus(id), []byte(StatusOffline), true)
}

// StateChanged implements device.Observer.
func (b *Bridge) StateChanged(id string, state capability.State) {
	b.publishState(id, state)
}

func (b *Bridge) publishDevice(d device.Device) {
	status := StatusOffline
	if d.Connected() {
		status = StatusOnline
	}
	b.enqueue(b.topics.DeviceStatus(d.ID), []byte(status), true)
	b.publishState(d.ID, d.State)
}

func (b *Bridge) publishState(id string, state capability.State) {
	payload, err := json.Marshal(state)
	if err != nil {
		b.logger.Error("failed to marshal device state", "device_id", id, "error", err)
		return
	}
	b.enqueue(b.topics.DeviceState(id), payload, true)
}

func (b *Bridge) enqueue(topic string, payload []byte, retained bool) {
	select {
	case b.queue <- message{topic: topic, payload: payload, retained: retained}:
	default:
		b.logger.Warn("mqtt publish queue full, dropping message", "topic", topic)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case m := <-b.queue:
			b.publish(m)
		case <-b.ctx.Done():
			for {
				select {
				case m := <-b.queue:
					b.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) publish(m message) {
	if err := b.mqtt.Publish(m.topic, m.payload, b.qos, m.retained); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
	}
}

// handleCommand applies one message from stripgate/command/{id} and
// publishes an ack. Errors returned here are logged by the MQTT client.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	id, ok := b.topics.ParseDeviceCommand(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrInvalidCommand, topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.Instance == "" {
		return fmt.Errorf("%w: missing instance", ErrInvalidCommand)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	out, err := b.registry.Apply(ctx, id, cmd.Instance, cmd.Value)
	entry := audit.Entry{
		RequestID: cmd.ID,
		Source:    audit.SourceMQTT,
		DeviceID:  id,
		Instance:  cmd.Instance,
		Value:     string(cmd.Value),
	}.WithResult(out, err)

	if b.recorder != nil {
		b.recorder.Record(entry)
	}

	b.logger.Debug("mqtt command applied",
		"device_id", id,
		"instance", cmd.Instance,
		"status", entry.Status,
		"error_code", entry.ErrorCode,
	)

	ack, err := json.Marshal(AckMessage{
		ID:        cmd.ID,
		Instance:  cmd.Instance,
		Status:    entry.Status,
		ErrorCode: entry.ErrorCode,
		Delivered: entry.Delivered,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	b.enqueue(b.topics.DeviceAck(id), ack, false)
	return nil
}
