package tracking

import (
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frame640 = image.Pt(640, 480)

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	e.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 100 * time.Millisecond)
	}
	return e
}

func rectPtr(r image.Rectangle) *image.Rectangle { return &r }

func TestCenterTarget(t *testing.T) {
	target := CenterTarget(frame640, 200, 100)
	assert.Equal(t, image.Rect(220, 190, 420, 290), target)

	odd := CenterTarget(image.Pt(641, 481), 200, 100)
	assert.Equal(t, image.Rect(220, 190, 420, 290), odd)
}

func TestIntersects(t *testing.T) {
	target := image.Rect(220, 190, 420, 290)

	tests := []struct {
		name string
		rect image.Rectangle
		want bool
	}{
		{"inside", image.Rect(300, 200, 320, 220), true},
		{"overlapping left edge", image.Rect(200, 200, 230, 220), true},
		{"containing", image.Rect(0, 0, 640, 480), true},
		{"touching left edge", image.Rect(180, 200, 220, 220), false},
		{"touching right edge", image.Rect(420, 200, 460, 220), false},
		{"above", image.Rect(300, 10, 320, 50), false},
		{"empty", image.Rect(300, 200, 300, 200), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Intersects(tt.rect, target))
		})
	}
}

func TestIntersectsIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randRect := func() image.Rectangle {
		x, y := rng.Intn(600)-50, rng.Intn(400)-50
		return image.Rect(x, y, x+rng.Intn(200), y+rng.Intn(200))
	}

	for i := 0; i < 5000; i++ {
		a, b := randRect(), randRect()
		require.Equal(t, Intersects(a, b), Intersects(b, a), "a=%v b=%v", a, b)
	}
}

func TestDirectionFor(t *testing.T) {
	target := CenterTarget(frame640, 200, 100)

	tests := []struct {
		name string
		rect image.Rectangle
		want Direction
	}{
		{"right of target", image.Rect(500, 200, 560, 260), DirectionRight},
		{"left of target", image.Rect(50, 200, 150, 260), DirectionLeft},
		{"intersecting from the left", image.Rect(150, 200, 250, 260), DirectionCentered},
		{"intersecting from the right", image.Rect(400, 200, 600, 260), DirectionCentered},
		{"centred", image.Rect(300, 220, 340, 260), DirectionCentered},
		// Non-intersecting blobs above or below the target are treated as left.
		{"above target", image.Rect(300, 10, 340, 60), DirectionLeft},
		{"starting exactly at target edge", image.Rect(420, 10, 460, 60), DirectionLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectionFor(tt.rect, target))
		})
	}
}

func TestDecideNoCandidates(t *testing.T) {
	e := newTestEngine(t, nil)
	prev := TrackerState{
		Direction:     DirectionRight,
		ObjectPresent: true,
		LastAccepted:  rectPtr(image.Rect(500, 200, 560, 260)),
		Mode:          ModeOffCenter,
	}

	d := e.Decide(nil, frame640, prev)

	assert.False(t, d.ObjectPresent)
	assert.Equal(t, DirectionCentered, d.Direction, "empty cycle yields the neutral signal")
	assert.Equal(t, ModeNoObject, d.Mode)
	assert.Equal(t, MotionNone, d.Motion)
	assert.Nil(t, d.State.LastAccepted)
	assert.Empty(t, d.Accepted)
}

func TestDecideSingleCandidate(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
		dir  Direction
		mode Mode
	}{
		{"left", image.Rect(50, 200, 150, 260), DirectionLeft, ModeOffCenter},
		{"right", image.Rect(500, 200, 600, 260), DirectionRight, ModeOffCenter},
		{"centered", image.Rect(280, 200, 360, 260), DirectionCentered, ModeCentered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			d := e.Decide([]image.Rectangle{tt.rect}, frame640, TrackerState{})

			want := TrackerState{
				Direction:     tt.dir,
				ObjectPresent: true,
				LastAccepted:  rectPtr(tt.rect),
				Mode:          tt.mode,
			}
			if diff := cmp.Diff(want, d.State); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []image.Rectangle{tt.rect}, d.Accepted)
			assert.Equal(t, image.Rect(220, 190, 420, 290), d.Target)
		})
	}
}

func TestDecideLastCandidateWins(t *testing.T) {
	e := newTestEngine(t, nil)
	big := image.Rect(500, 100, 640, 400)
	small := image.Rect(40, 200, 80, 240)

	d := e.Decide([]image.Rectangle{big, small}, frame640, TrackerState{})
	assert.Equal(t, DirectionLeft, d.Direction)

	d = e.Decide([]image.Rectangle{small, big}, frame640, TrackerState{})
	assert.Equal(t, DirectionRight, d.Direction)
}

func TestDecideLargestCandidateWins(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.Selection = SelectLargest })
	big := image.Rect(500, 100, 640, 400)
	small := image.Rect(40, 200, 80, 240)

	d := e.Decide([]image.Rectangle{big, small}, frame640, TrackerState{})
	assert.Equal(t, DirectionRight, d.Direction)

	d = e.Decide([]image.Rectangle{small, big}, frame640, TrackerState{})
	assert.Equal(t, DirectionRight, d.Direction)

	t.Run("ties go to the earlier candidate", func(t *testing.T) {
		left := image.Rect(0, 0, 50, 50)
		right := image.Rect(500, 0, 550, 50)
		d := e.Decide([]image.Rectangle{left, right}, frame640, TrackerState{})
		assert.Equal(t, DirectionLeft, d.Direction)
	})
}

func TestDecideUndersizedCandidates(t *testing.T) {
	e := newTestEngine(t, nil)
	tiny := image.Rect(500, 200, 515, 215)
	exact := image.Rect(600, 200, 620, 220)

	t.Run("still steer", func(t *testing.T) {
		d := e.Decide([]image.Rectangle{tiny}, frame640, TrackerState{})
		assert.True(t, d.ObjectPresent)
		assert.Equal(t, DirectionRight, d.Direction)
		assert.Empty(t, d.Accepted)
		assert.Nil(t, d.State.LastAccepted)
	})

	t.Run("minimum is exclusive", func(t *testing.T) {
		d := e.Decide([]image.Rectangle{exact}, frame640, TrackerState{})
		assert.Empty(t, d.Accepted)
	})

	t.Run("last accepted skips undersized", func(t *testing.T) {
		good := image.Rect(50, 200, 150, 260)
		d := e.Decide([]image.Rectangle{good, tiny}, frame640, TrackerState{})
		assert.Equal(t, DirectionRight, d.Direction)
		require.NotNil(t, d.State.LastAccepted)
		assert.Equal(t, good, *d.State.LastAccepted)
	})
}

func TestDecideMotionTrend(t *testing.T) {
	prevAt := func(x int) TrackerState {
		return TrackerState{ObjectPresent: true, LastAccepted: rectPtr(image.Rect(x, 200, x+60, 260))}
	}
	at := func(x int) []image.Rectangle {
		return []image.Rectangle{image.Rect(x, 200, x+60, 260)}
	}

	tests := []struct {
		name string
		prev TrackerState
		cur  []image.Rectangle
		want Motion
	}{
		{"moving right", prevAt(100), at(125), MotionRight},
		{"within threshold", prevAt(100), at(110), MotionNone},
		{"exactly at threshold", prevAt(100), at(120), MotionNone},
		{"moving left", prevAt(100), at(75), MotionLeft},
		{"no previous rect", TrackerState{}, at(400), MotionNone},
		{"no current rect", prevAt(100), nil, MotionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, nil)
			d := e.Decide(tt.cur, frame640, tt.prev)
			assert.Equal(t, tt.want, d.Motion)
			assert.Equal(t, tt.want, d.State.Motion)
		})
	}
}

func TestDecideMotionDoesNotAffectDirection(t *testing.T) {
	e := newTestEngine(t, nil)
	prev := TrackerState{LastAccepted: rectPtr(image.Rect(0, 200, 60, 260))}

	d := e.Decide([]image.Rectangle{image.Rect(100, 200, 160, 260)}, frame640, prev)
	assert.Equal(t, MotionRight, d.Motion)
	assert.Equal(t, DirectionLeft, d.Direction)
}

func TestDecideStateIsNotAliased(t *testing.T) {
	e := newTestEngine(t, nil)
	candidates := []image.Rectangle{image.Rect(50, 200, 150, 260)}

	d := e.Decide(candidates, frame640, TrackerState{})
	candidates[0] = image.Rect(0, 0, 1, 1)

	require.NotNil(t, d.State.LastAccepted)
	assert.Equal(t, image.Rect(50, 200, 150, 260), *d.State.LastAccepted)

	cp := d.State.Copy()
	cp.LastAccepted.Min.X = 999
	assert.Equal(t, 50, d.State.LastAccepted.Min.X)
}

func TestDecideVelocityEstimate(t *testing.T) {
	e := newTestEngine(t, nil)
	state := TrackerState{}

	// 10 px per 100 ms tick = 100 px/s to the right
	var d Decision
	for i := 0; i < 40; i++ {
		x := 50 + i*10
		d = e.Decide([]image.Rectangle{image.Rect(x, 200, x+60, 260)}, frame640, state)
		state = d.State
	}
	assert.InDelta(t, 100, d.Velocity.X, 10)
	assert.InDelta(t, 0, d.Velocity.Y, 5)

	d = e.Decide(nil, frame640, state)
	assert.Equal(t, image.Point{}, d.Velocity)
}

func TestEngineConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultEngineConfig().Validate())

	bad := DefaultEngineConfig()
	bad.TargetWidth = 0
	assert.Error(t, bad.Validate())

	bad = DefaultEngineConfig()
	bad.MotionThreshold = -1
	assert.Error(t, bad.Validate())

	_, err := NewEngine(bad)
	assert.Error(t, err)
}

func TestParseSelection(t *testing.T) {
	s, ok := ParseSelection("largest")
	assert.True(t, ok)
	assert.Equal(t, SelectLargest, s)

	s, ok = ParseSelection("")
	assert.True(t, ok)
	assert.Equal(t, SelectLast, s)

	_, ok = ParseSelection("biggest")
	assert.False(t, ok)
}
