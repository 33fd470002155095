package session

import "fmt"

// ErrorKind is the session error taxonomy. Every failure the UI can see is
// tagged with exactly one kind.
type ErrorKind string

// Error kinds.
const (
	KindDeviceUnavailable   ErrorKind = "deviceUnavailable"
	KindConfigurationFailed ErrorKind = "configurationFailed"
	KindSessionInterrupted  ErrorKind = "sessionInterrupted"
	KindLensUnavailable     ErrorKind = "lensUnavailable"
	KindRecordingFailed     ErrorKind = "recordingFailed"
	KindNotRunning          ErrorKind = "notRunning"
)

// Error is a session failure with its taxonomy kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}
