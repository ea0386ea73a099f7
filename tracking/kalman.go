package tracking

import (
	"image"
	"time"
)

// axisFilter is a constant-velocity Kalman filter along one image axis.
// State is [position, velocity]; only position is measured.
type axisFilter struct {
	pos, vel float64
	P        [2][2]float64
}

func (f *axisFilter) init(z, r float64) {
	f.pos = z
	f.vel = 0
	f.P = [2][2]float64{
		{r, 0},
		{0, initialVelocityVariance},
	}
}

func (f *axisFilter) step(z, dt, q, r float64) {
	// Predict
	pos := f.pos + f.vel*dt
	dt2 := dt * dt
	p00 := f.P[0][0] + dt*(f.P[1][0]+f.P[0][1]) + dt2*f.P[1][1] + q*dt2*dt2/4
	p01 := f.P[0][1] + dt*f.P[1][1] + q*dt2*dt/2
	p10 := f.P[1][0] + dt*f.P[1][1] + q*dt2*dt/2
	p11 := f.P[1][1] + q*dt2

	// Update
	s := p00 + r
	k0 := p00 / s
	k1 := p10 / s
	innovation := z - pos

	f.pos = pos + k0*innovation
	f.vel = f.vel + k1*innovation
	f.P = [2][2]float64{
		{(1 - k0) * p00, (1 - k0) * p01},
		{p10 - k1*p00, p11 - k1*p01},
	}
}

const (
	initialVelocityVariance = 10000.0 // (px/s)^2
	minTimeStep             = 0.001   // seconds
)

// VelocityEstimator smooths the accepted rectangle centre and estimates its velocity in px/s
type VelocityEstimator struct {
	x, y axisFilter

	ProcessNoise     float64 // Acceleration variance
	MeasurementNoise float64 // Centre measurement variance (px^2)

	lastUpdate  time.Time
	initialized bool
}

// NewVelocityEstimator creates a new estimator
func NewVelocityEstimator() *VelocityEstimator {
	return &VelocityEstimator{
		ProcessNoise:     50.0,
		MeasurementNoise: 10.0,
	}
}

// Update feeds a new centre measured at ts and returns the velocity estimate
func (ve *VelocityEstimator) Update(center image.Point, ts time.Time) (float64, float64) {
	zx, zy := float64(center.X), float64(center.Y)
	if !ve.initialized {
		ve.x.init(zx, ve.MeasurementNoise)
		ve.y.init(zy, ve.MeasurementNoise)
		ve.lastUpdate = ts
		ve.initialized = true
		return 0, 0
	}

	dt := ts.Sub(ve.lastUpdate).Seconds()
	if dt < minTimeStep {
		dt = minTimeStep
	}
	ve.lastUpdate = ts

	ve.x.step(zx, dt, ve.ProcessNoise, ve.MeasurementNoise)
	ve.y.step(zy, dt, ve.ProcessNoise, ve.MeasurementNoise)
	return ve.x.vel, ve.y.vel
}

// Velocity returns the current estimate
func (ve *VelocityEstimator) Velocity() (float64, float64) {
	if !ve.initialized {
		return 0, 0
	}
	return ve.x.vel, ve.y.vel
}

// Position returns the smoothed centre
func (ve *VelocityEstimator) Position() (float64, float64) {
	if !ve.initialized {
		return 0, 0
	}
	return ve.x.pos, ve.y.pos
}

// Reset forgets the track
func (ve *VelocityEstimator) Reset() {
	ve.initialized = false
	ve.x = axisFilter{}
	ve.y = axisFilter{}
}
