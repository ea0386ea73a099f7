package tracking

import (
	"image"
)

// Global debug function for tracking package
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

// Direction is the discrete steering signal for the downstream actuator
type Direction int

const (
	DirectionLeft     Direction = -1
	DirectionCentered Direction = 0
	DirectionRight    Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionCentered:
		return "centered"
	case DirectionRight:
		return "right"
	default:
		return "unknown"
	}
}

// Mode represents the logical state of the tracker for the current cycle
type Mode int

const (
	ModeNoObject Mode = iota
	ModeCentered
	ModeOffCenter
)

func (m Mode) String() string {
	switch m {
	case ModeNoObject:
		return "NO_OBJECT"
	case ModeCentered:
		return "CENTERED"
	case ModeOffCenter:
		return "OFF_CENTER"
	default:
		return "UNKNOWN"
	}
}

// Motion is the qualitative displacement between consecutive accepted rectangles
type Motion int

const (
	MotionNone Motion = iota
	MotionLeft
	MotionRight
)

func (m Motion) String() string {
	switch m {
	case MotionLeft:
		return "moving left"
	case MotionRight:
		return "moving right"
	default:
		return "stationary"
	}
}

// Selection picks which candidate sets the direction when several are found
type Selection int

const (
	// SelectLast lets the last candidate in discovery order win.
	SelectLast Selection = iota
	// SelectLargest lets the largest-area candidate win; ties go to the earlier one.
	SelectLargest
)

func (s Selection) String() string {
	switch s {
	case SelectLargest:
		return "largest"
	default:
		return "last"
	}
}

// ParseSelection converts a config string to a Selection
func ParseSelection(s string) (Selection, bool) {
	switch s {
	case "", "last":
		return SelectLast, true
	case "largest":
		return SelectLargest, true
	default:
		return SelectLast, false
	}
}

// TrackerState is carried from one cycle to the next
type TrackerState struct {
	Direction     Direction        `json:"direction"`
	ObjectPresent bool             `json:"object_present"`
	LastAccepted  *image.Rectangle `json:"last_accepted,omitempty"`
	Mode          Mode             `json:"mode"`
	Motion        Motion           `json:"motion"`
}

// Copy returns a deep copy so readers never alias the worker's rectangle
func (s TrackerState) Copy() TrackerState {
	out := s
	if s.LastAccepted != nil {
		r := *s.LastAccepted
		out.LastAccepted = &r
	}
	return out
}

// Decision is the result of one Engine.Decide call
type Decision struct {
	Direction     Direction
	ObjectPresent bool
	Mode          Mode
	Motion        Motion
	Target        image.Rectangle   // Centre target for this frame
	Accepted      []image.Rectangle // Candidates that met the minimum size, for annotation
	Velocity      image.Point       // Estimated px/s of the accepted rect centre
	State         TrackerState
}
