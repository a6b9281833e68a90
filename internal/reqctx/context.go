package reqctx

import (
	"context"
	"errors"
)

// Key for request scoped values in context
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	intakeIDKey  contextKey = "intakeID"
)

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// ErrNoIntakeIDInContext is returned when no intake ID is found in context
var ErrNoIntakeIDInContext = errors.New("no intake ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context
func RequestIDFromContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// WithIntakeID adds the intake being processed to the context
func WithIntakeID(ctx context.Context, intakeID string) context.Context {
	return context.WithValue(ctx, intakeIDKey, intakeID)
}

// IntakeIDFromContext extracts the intake ID from the context
func IntakeIDFromContext(ctx context.Context) (string, error) {
	intakeID, ok := ctx.Value(intakeIDKey).(string)
	if !ok || intakeID == "" {
		return "", ErrNoIntakeIDInContext
	}
	return intakeID, nil
}
