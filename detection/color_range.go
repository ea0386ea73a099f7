package detection

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidColorRange is returned when a colour range fails validation.
var ErrInvalidColorRange = errors.New("invalid color range")

// Channel limits for 8-bit OpenCV HSV: hue is halved to fit a byte.
const (
	MaxHue        = 180
	MaxSaturation = 255
	MaxValue      = 255
)

var channelNames = [3]string{"hue", "saturation", "value"}
var channelMax = [3]float64{MaxHue, MaxSaturation, MaxValue}

// ColorRange is an inclusive HSV band used for thresholding.
type ColorRange struct {
	Lower [3]float64 `json:"lower" yaml:"lower"`
	Upper [3]float64 `json:"upper" yaml:"upper"`
}

// DefaultColorRange matches a green cup under indoor lighting.
func DefaultColorRange() ColorRange {
	return ColorRange{
		Lower: [3]float64{33, 9, 146},
		Upper: [3]float64{88, 255, 255},
	}
}

// Validate checks lower <= upper per channel and that every component is in range.
func (r ColorRange) Validate() error {
	for i := 0; i < 3; i++ {
		lo, hi := r.Lower[i], r.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return fmt.Errorf("%w: %s bound is not a number", ErrInvalidColorRange, channelNames[i])
		}
		if lo < 0 || lo > channelMax[i] || hi < 0 || hi > channelMax[i] {
			return fmt.Errorf("%w: %s bounds %.0f-%.0f outside [0,%.0f]", ErrInvalidColorRange, channelNames[i], lo, hi, channelMax[i])
		}
		if lo > hi {
			return fmt.Errorf("%w: %s lower %.0f exceeds upper %.0f", ErrInvalidColorRange, channelNames[i], lo, hi)
		}
	}
	return nil
}

// String renders the range the way the operator label shows it.
func (r ColorRange) String() string {
	return fmt.Sprintf("Hue range: %.0f-%.0f Saturation range: %.0f-%.0f Value range: %.0f-%.0f",
		r.Lower[0], r.Upper[0], r.Lower[1], r.Upper[1], r.Lower[2], r.Upper[2])
}

// ColorStore publishes the live colour range to the acquisition worker.
// Writers validate before publishing, readers take a whole-range snapshot once per cycle.
type ColorStore struct {
	mu    sync.RWMutex
	value ColorRange
}

// NewColorStore creates a store holding initial, which must be valid.
func NewColorStore(initial ColorRange) (*ColorStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &ColorStore{value: initial}, nil
}

// Set validates and publishes a new range. Invalid ranges are rejected and the old value kept.
func (s *ColorStore) Set(r ColorRange) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.value
	s.value = r
	s.mu.Unlock()

	if old != r {
		debugMsg("COLOR", fmt.Sprintf("Color range updated: %s", r))
	}
	return nil
}

// Snapshot returns a copy of the current range.
func (s *ColorStore) Snapshot() ColorRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}
