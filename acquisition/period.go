package acquisition

import (
	"fmt"
	"math"
	"time"
)

// PeriodFromFPS converts a frame rate into the cycle period, rounded to whole milliseconds
func PeriodFromFPS(fps float64) (time.Duration, error) {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return 0, fmt.Errorf("%w: fps must be a positive number, got %v", ErrConfiguration, fps)
	}
	ms := math.Round(1000 / fps)
	if ms < 1 {
		return 0, fmt.Errorf("%w: fps %v is too high for millisecond scheduling", ErrConfiguration, fps)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
