package core

import "errors"

// Error codes for call errors.
const (
	ErrCodeIllegalOperation       = "illegal_operation"
	ErrCodeIllegalStatus          = "illegal_status"
	ErrCodeUnregistered           = "unregistered"
	ErrCodeRequireVideoCapability = "require_video_capability"
	ErrCodeServiceFailed          = "service_failed"
	ErrCodeUnsupportedDTMF        = "unsupported_dtmf"
	ErrCodeInvalidDTMF            = "invalid_dtmf"
)

var (
	ErrIllegalOperation       = errors.New("illegal operation")
	ErrIllegalStatus          = errors.New("illegal status")
	ErrUnregistered           = errors.New("unregistered")
	ErrRequireVideoCapability = errors.New("video capability required")
	ErrServiceFailed          = errors.New("service failed")
	ErrUnsupportedDTMF        = errors.New("dtmf not supported")
	ErrInvalidDTMF            = errors.New("invalid dtmf")

	// ErrPhoneStopped is returned for commands sent after Run returned.
	ErrPhoneStopped = errors.New("phone stopped")
)

var sentinels = map[string]error{
	ErrCodeIllegalOperation:       ErrIllegalOperation,
	ErrCodeIllegalStatus:          ErrIllegalStatus,
	ErrCodeUnregistered:           ErrUnregistered,
	ErrCodeRequireVideoCapability: ErrRequireVideoCapability,
	ErrCodeServiceFailed:          ErrServiceFailed,
	ErrCodeUnsupportedDTMF:        ErrUnsupportedDTMF,
	ErrCodeInvalidDTMF:            ErrInvalidDTMF,
}

// CallError wraps a code and human-readable message.
// Call is a snapshot of the call the error concerns, if any.
type CallError struct {
	Code    string
	Message string
	Call    *Call
}

func (e *CallError) Error() string {
	return e.Message
}

// Unwrap returns the sentinel for e.Code so errors.Is works.
func (e *CallError) Unwrap() error {
	return sentinels[e.Code]
}

func callError(code, msg string, call *Call) *CallError {
	return &CallError{Code: code, Message: msg, Call: call.Snapshot()}
}
