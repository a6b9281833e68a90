package leadsystem

import (
	"fmt"
	"net/http"
	"strings"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
)

// RemoteError describes a failed Lead System call. It wraps
// apperrors.ErrContractMismatch when the remote rejected the verb or body
// encoding, and apperrors.ErrRemote otherwise.
type RemoteError struct {
	Operation  string
	Method     string
	Encoding   string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body
	Cause      error  // transport error, if any
}

// ContractMismatch reports whether the remote refused the request shape.
func (e *RemoteError) ContractMismatch() bool {
	if e.StatusCode == http.StatusMethodNotAllowed || e.StatusCode == http.StatusUnsupportedMediaType {
		return true
	}
	if strings.Contains(strings.ToLower(e.Body), "method not allowed") {
		return true
	}
	return e.Cause != nil && strings.Contains(strings.ToLower(e.Cause.Error()), "method not allowed")
}

func (e *RemoteError) Error() string {
	kind := apperrors.ErrRemote
	if e.ContractMismatch() {
		kind = apperrors.ErrContractMismatch
	}
	shape := e.Method
	if e.Encoding != "" {
		shape += "+" + e.Encoding
	}
	switch {
	case e.Cause != nil && e.StatusCode == 0:
		return fmt.Sprintf("%s: %s %s: %v", kind, e.Operation, shape, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s %s: status %d: %v", kind, e.Operation, shape, e.StatusCode, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("%s: %s %s: status %d: %s", kind, e.Operation, shape, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: %s %s: status %d", kind, e.Operation, shape, e.StatusCode)
	}
}

// Unwrap exposes the sentinel kind and the transport cause.
func (e *RemoteError) Unwrap() []error {
	kind := apperrors.ErrRemote
	if e.ContractMismatch() {
		kind = apperrors.ErrContractMismatch
	}
	if e.Cause != nil {
		return []error{kind, e.Cause}
	}
	return []error{kind}
}
