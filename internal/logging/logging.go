package logging

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ContextKey defines the context key type.
type ContextKey string

// ContextIDKey holds the key of the context ID.
const ContextIDKey ContextKey = "ctx_id"

// WithContextID adds a new random context ID to the context.
func WithContextID(ctx context.Context) (context.Context, error) {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "new uuid error")
	}
	return context.WithValue(ctx, ContextIDKey, ctxID), nil
}

// ContextID returns the context ID of the context or uuid.Nil.
func ContextID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// FromContext returns a log entry with the ctx_id field set when the
// context holds a context ID.
func FromContext(ctx context.Context) *log.Entry {
	id := ContextID(ctx)
	if id == uuid.Nil {
		return log.NewEntry(log.StandardLogger())
	}
	return log.WithField("ctx_id", id)
}
