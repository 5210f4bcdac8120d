package audit

import (
	"context"
	"time"
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultQueueSize bounds the number of entries waiting to be written.
const DefaultQueueSize = 256

// writeTimeout bounds each insert so a locked database cannot stall draining.
const writeTimeout = 5 * time.Second

// Recorder queues entries and writes them one at a time on a single
// goroutine, keeping SQLite writes off the request path. A full queue drops
// the entry with a warning.
type Recorder struct {
	repo   Repository
	queue  chan *Entry
	logger Logger
}

// NewRecorder creates a Recorder over repo. A size <= 0 uses DefaultQueueSize.
func NewRecorder(repo Repository, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan *Entry, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record enqueues e without blocking. Safe on a nil Recorder, which is how
// callers run with auditing disabled.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	select {
	case r.queue <- &e:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"device_id", e.DeviceID,
			"instance", e.Instance,
		)
	}
}

// Run drains the queue until ctx is cancelled, then writes whatever is still
// queued and returns.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Error("audit write failed",
			"device_id", e.DeviceID,
			"instance", e.Instance,
			"error", err,
		)
	}
}
