package acquisition

import "errors"

var (
	// ErrDeviceUnavailable is returned by Start when the camera cannot be opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrConfiguration is returned for invalid frame rates and similar parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrShutdownTimeout is returned when the in-flight cycle outlived the stop deadline.
	ErrShutdownTimeout = errors.New("acquisition did not stop within the deadline")

	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("acquisition already running")
)

// Global debug function for acquisition package
var debugMsgFunc func(string, string, ...string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string, ...string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string, sessionID ...string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message, sessionID...)
	}
}
