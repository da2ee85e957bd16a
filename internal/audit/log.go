package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one audit record as logged and published.
type Entry struct {
	Time      time.Time      `json:"ts"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// Publisher forwards audit entries to an external sink.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
	Close() error
}

// Recorder writes audit entries to the shared logger and, when configured,
// to a Publisher. Failures are logged and never returned to request handlers.
type Recorder struct {
	logger    *logrus.Logger
	publisher Publisher
	now       func() time.Time
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

func WithPublisher(p Publisher) RecorderOption {
	return func(r *Recorder) { r.publisher = p }
}

func WithLogger(l *logrus.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{logger: obs.Logger(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes an audit entry enriched with request and actor context.
func (r *Recorder) Record(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	e := Entry{
		Time:      r.now().UTC(),
		Event:     event,
		RequestID: RequestIDFromContext(ctx),
		Fields:    make(map[string]any, len(fields)),
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		e.ActorID = actor.ID
	}
	for k, v := range fields {
		e.Fields[k] = v
	}

	log := r.logger.WithFields(logrus.Fields{
		"type":  "audit",
		"event": e.Event,
	})
	if e.RequestID != "" {
		log = log.WithField("request_id", e.RequestID)
	}
	if e.ActorID != "" {
		log = log.WithField("actor_id", e.ActorID)
	}
	log.WithField("fields", e.Fields).Info("audit")

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.logger.WithError(err).WithField("event", e.Event).Warn("audit publish failed")
		}
	}
	return nil
}

// Close releases the publisher, if any.
func (r *Recorder) Close() error {
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}
