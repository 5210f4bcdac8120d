package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/maxsfamily/stripgate/internal/capability"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sender writes a rendered command to a device link.
// The connection manager implements it; the registry calls it outside its lock.
type Sender interface {
	Send(ctx context.Context, id string, link Link, command string) error
}

// directSender writes straight to the link.
type directSender struct{}

func (directSender) Send(ctx context.Context, _ string, link Link, command string) error {
	return link.Send(ctx, command)
}

// Observer is notified of registry changes. Callbacks run outside the
// registry lock on the goroutine that made the change, one change at a time
// and in the order the changes were made. They must not block or mutate
// the registry.
type Observer interface {
	DeviceRegistered(d Device)
	DeviceDeregistered(id string)
	StateChanged(id string, state capability.State)
}

// Stats is a snapshot of registry size.
type Stats struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
}

// Registry is the in-memory set of known devices and their mirrored state.
//
// A single RWMutex guards the whole map. Register, Deregister, Release and
// the mutate step of Apply take the write lock, so a device can never be
// observed half removed. Sends happen after the lock is released.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	sender    Sender
	observers []Observer
	logger    Logger

	// notifyMu is taken before mu is released after a change, so observers
	// see changes in map order. Lock order: mu, then notifyMu.
	notifyMu sync.Mutex
}

// NewRegistry creates an empty registry that writes commands directly to links.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		sender:  directSender{},
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetSender routes outbound commands through s.
func (r *Registry) SetSender(s Sender) {
	r.mu.Lock()
	r.sender = s
	r.mu.Unlock()
}

// AddObserver subscribes o to registry changes.
func (r *Registry) AddObserver(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Register inserts d, replacing any entry with the same ID. A replaced
// entry's link is dropped without being closed.
func (r *Registry) Register(d *Device) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}

	stored := d.DeepCopy()

	snapshot := *stored.DeepCopy()

	r.mu.Lock()
	prev, replaced := r.devices[d.ID]
	r.devices[d.ID] = stored
	if replaced && prev.link != nil && prev.link != stored.link {
		r.logger.Info("device link superseded", "device_id", d.ID)
	}
	r.logger.Debug("device registered", "device_id", d.ID, "connected", stored.Connected())
	r.unlockAndNotify(func(o Observer) { o.DeviceRegistered(snapshot) })
	return nil
}

// Deregister removes the device entirely. It is a no-op if id is unknown.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	if _, ok := r.devices[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.devices, id)
	r.logger.Debug("device deregistered", "device_id", id)
	r.unlockAndNotify(func(o Observer) { o.DeviceDeregistered(id) })
}

// Release removes the device only if its current link is link. It reports
// whether an entry was removed. A stale link therefore never removes a
// newer registration.
func (r *Registry) Release(id string, link Link) bool {
	if link == nil {
		return false
	}

	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok || d.link != link {
		r.mu.Unlock()
		return false
	}
	delete(r.devices, id)
	r.logger.Debug("device released", "device_id", id)
	r.unlockAndNotify(func(o Observer) { o.DeviceDeregistered(id) })
	return true
}

// unlockAndNotify releases r.mu, which the caller holds after changing the
// map, and delivers the change to every observer before the next change
// can be delivered.
func (r *Registry) unlockAndNotify(event func(Observer)) {
	observers := r.observers
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	for _, o := range observers {
		event(o)
	}
}

// Find returns a copy of the device. Absence is not an error.
func (r *Registry) Find(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// ListIDs returns every known device ID in sorted order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// List returns copies of every known device ordered by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// Query returns the current value of instance on device id.
func (r *Registry) Query(id, instance string) (capability.Value, error) {
	r.mu.RLock()
	d, ok := r.devices[id]
	var state capability.State
	if ok {
		state = d.State
	}
	r.mu.RUnlock()

	if !ok {
		return capability.Value{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return capability.Read(state, instance)
}

// Apply decodes raw for instance and applies it to device id.
// See ApplyValue for the delivery semantics.
func (r *Registry) Apply(ctx context.Context, id, instance string, raw json.RawMessage) (Outcome, error) {
	if !r.exists(id) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	v, err := capability.Decode(instance, raw)
	if err != nil {
		return Outcome{}, err
	}
	return r.ApplyValue(ctx, id, instance, v)
}

// ApplyValue validates v, mutates the device state and sends the rendered
// command over the device's link.
//
// The state change is kept even when nothing is delivered: a device with no
// link reports Outcome.Unreachable, and a failed send releases the device
// and reports Delivered=false. Neither case is returned as an error.
func (r *Registry) ApplyValue(ctx context.Context, id, instance string, v capability.Value) (Outcome, error) {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	cmd, err := capability.Apply(&d.State, instance, v)
	if err != nil {
		r.mu.Unlock()
		return Outcome{}, err
	}
	link := d.link
	state := d.State
	sender := r.sender
	r.unlockAndNotify(func(o Observer) { o.StateChanged(id, state) })

	out := Outcome{Command: cmd}
	if link == nil {
		out.Unreachable = true
		r.logger.Debug("device unreachable, command not sent", "device_id", id, "command", cmd)
		return out, nil
	}

	if err := sender.Send(ctx, id, link, cmd); err != nil {
		r.logger.Warn("command send failed, releasing device", "device_id", id, "command", cmd, "error", err)
		r.Release(id, link)
		return out, nil
	}

	out.Delivered = true
	r.logger.Debug("command sent", "device_id", id, "command", cmd)
	return out, nil
}

// Stats returns the number of known and connected devices.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Total: len(r.devices)}
	for _, d := range r.devices {
		if d.link != nil {
			s.Connected++
		}
	}
	return s
}

func (r *Registry) exists(id string) bool {
	r.mu.RLock()
	_, ok := r.devices[id]
	r.mu.RUnlock()
	return ok
}
