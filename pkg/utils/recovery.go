package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"go.uber.org/zap"
)

// ErrPanicRecovered is wrapped by errors returned from WrapWithContextRecovery.
var ErrPanicRecovered = errors.New("panic recovered")

// RecoverFn is a function that handles a recovered panic
type RecoverFn func(r interface{}, stack []byte)

// SafeGo executes the given function in a goroutine with panic recovery
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
					return
				}
				if logger.Log != nil {
					logger.Log.Error("[panic] Recovered from panic in goroutine",
						zap.Any("panic", r),
						zap.ByteString("stack", stack),
					)
				} else {
					fmt.Fprintf(os.Stderr, "[PANIC] Recovered from panic in goroutine: %v\n%s\n", r, stack)
				}
			}
		}()
		fn()
	}()
}

// RecoverWithLog recovers a panic in the calling goroutine and logs it with
// the context logger. Use as `defer utils.RecoverWithLog(ctx, "op")`.
func RecoverWithLog(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		logger.FromContext(ctx).Error(fmt.Sprintf("[panic] Recovered from panic during %s", operation),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
			zap.Time("recovery_time", time.Now()),
		)
	}
}

// WrapWithContextRecovery wraps a function that takes a context with panic
// recovery. A recovered panic is returned as an error.
func WrapWithContextRecovery(fn func(ctx context.Context) error) func(ctx context.Context) (err error) {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(ctx).Error("[panic] Recovered from panic",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = fmt.Errorf("%w: %v", ErrPanicRecovered, r)
			}
		}()
		return fn(ctx)
	}
}
