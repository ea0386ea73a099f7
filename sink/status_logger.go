package sink

import "sync"

// StatusLogger logs the status line whenever it changes
type StatusLogger struct {
	mu   sync.Mutex
	last string
}

// NewStatusLogger creates a status logger
func NewStatusLogger() *StatusLogger {
	return &StatusLogger{}
}

func (l *StatusLogger) Name() string { return "status" }

// Consume implements Consumer
func (l *StatusLogger) Consume(f *Frame) error {
	l.mu.Lock()
	changed := f.Status != l.last
	l.last = f.Status
	l.mu.Unlock()

	if changed {
		debugMsg("STATUS", f.Status, f.SessionID)
	}
	return nil
}

// Last returns the most recently seen status text
func (l *StatusLogger) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
