// Package clock implements the Sendspin two-dimensional Kalman filter
// that estimates the client-to-server time offset and drift rate from
// NTP-style probe exchanges.
package clock

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

const (
	// MinConverged is the minimum number of applied measurements before
	// the filter may report convergence.
	MinConverged = 12
	// ConvergedErrorUS is the covariance threshold (in microseconds of
	// standard deviation) below which the filter is considered converged.
	ConvergedErrorUS = 5000.0

	// DefaultProcessStdDev is the default process noise std-dev applied
	// to the offset each prediction step.
	DefaultProcessStdDev = 0.01
	// DefaultForgetFactor is the default covariance-inflation factor
	// applied to predicted covariance once adaptive forgetting engages.
	DefaultForgetFactor = 1.001

	forgetThresholdCount = 100
	forgetResidualFactor = 0.75
)

// State is an immutable snapshot of the filter's internal estimate, safe
// to read after Snapshot returns without holding any lock.
type State struct {
	OffsetUS   float64
	Drift      float64 // µs per µs
	Cov        [2][2]float64
	Count      uint32
	LastUpdate int64 // local µs
}

// Filter is a 2-D Kalman filter over (offset, drift). It is safe for
// concurrent use: Update is called from the network context on every
// probe response, Snapshot and the conversion helpers are called from
// the audio context on every tick.
type Filter struct {
	mu            sync.RWMutex
	logger        *zap.Logger
	processStdDev float64
	forgetFactor  float64

	initialized bool
	state       State
}

// Option configures a Filter at construction.
type Option func(*Filter)

// WithProcessStdDev overrides the default process noise std-dev.
func WithProcessStdDev(v float64) Option {
	return func(f *Filter) { f.processStdDev = v }
}

// WithForgetFactor overrides the default adaptive-forgetting inflation factor.
func WithForgetFactor(v float64) Option {
	return func(f *Filter) { f.forgetFactor = v }
}

// WithLogger attaches a structured logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

// New creates a Filter with cov[0][0] initialized to +Inf, per spec.
func New(opts ...Option) *Filter {
	f := &Filter{
		processStdDev: DefaultProcessStdDev,
		forgetFactor:  DefaultForgetFactor,
		logger:        zap.NewNop(),
	}
	f.state.Cov[0][0] = math.Inf(1)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Update applies one (measurement, max_error, time_added) triple. It is a
// no-op when timeAddedLocalUS equals the last applied update's timestamp,
// making repeated application of the same measurement idempotent.
func (f *Filter) Update(measurementUS, maxErrorUS float64, timeAddedLocalUS int64) {
	if maxErrorUS < 0 {
		maxErrorUS = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized && timeAddedLocalUS == f.state.LastUpdate {
		return
	}

	switch {
	case f.state.Count == 0:
		f.state.OffsetUS = measurementUS
		f.state.Cov[0][0] = maxErrorUS * maxErrorUS
		f.state.Drift = 0
		f.state.Count = 1

	case f.state.Count == 1:
		dt := float64(timeAddedLocalUS - f.state.LastUpdate)
		if dt != 0 {
			f.state.Drift = (measurementUS - f.state.OffsetUS) / dt
			f.state.Cov[1][1] = (f.state.Cov[0][0] + maxErrorUS*maxErrorUS) / dt
		}
		f.state.OffsetUS = measurementUS
		f.state.Cov[0][0] = maxErrorUS * maxErrorUS
		f.state.Count = 2

	default:
		f.steadyStateUpdate(measurementUS, maxErrorUS, timeAddedLocalUS)
		f.state.Count++
	}

	f.initialized = true
	f.state.LastUpdate = timeAddedLocalUS

	f.logger.Debug("clock filter updated",
		zap.Float64("measurement_us", measurementUS),
		zap.Float64("max_error_us", maxErrorUS),
		zap.Float64("offset_us", f.state.OffsetUS),
		zap.Float64("drift_ppm", f.state.Drift*1e6),
		zap.Uint32("count", f.state.Count))
}

// steadyStateUpdate runs the predict/update cycle for count >= 2.
func (f *Filter) steadyStateUpdate(measurementUS, maxErrorUS float64, timeAddedLocalUS int64) {
	dt := float64(timeAddedLocalUS - f.state.LastUpdate)

	p00, p01 := f.state.Cov[0][0], f.state.Cov[0][1]
	p10, p11 := f.state.Cov[1][0], f.state.Cov[1][1]

	predictedOffset := f.state.OffsetUS + f.state.Drift*dt

	// Predict: Ppred = F P F^T + Q, F = [[1,dt],[0,1]], Q = diag(dt*sigma^2, 0).
	pred00 := p00 + 2*dt*p01 + dt*dt*p11 + dt*f.processStdDev*f.processStdDev
	pred01 := p01 + dt*p11
	pred10 := pred01
	pred11 := p11

	y := measurementUS - predictedOffset
	r := maxErrorUS * maxErrorUS

	if f.state.Count >= forgetThresholdCount && math.Abs(y) > forgetResidualFactor*maxErrorUS {
		ff2 := f.forgetFactor * f.forgetFactor
		pred00 *= ff2
		pred01 *= ff2
		pred10 *= ff2
		pred11 *= ff2
	}

	s := pred00 + r
	var k0, k1 float64
	if s != 0 {
		k0 = pred00 / s
		k1 = pred10 / s
	}

	f.state.OffsetUS = predictedOffset + k0*y
	f.state.Drift = f.state.Drift + k1*y

	f.state.Cov[0][0] = (1 - k0) * pred00
	f.state.Cov[0][1] = (1 - k0) * pred01
	f.state.Cov[1][0] = pred10 - k1*pred00
	f.state.Cov[1][1] = pred11 - k1*pred01
}

// OnServerTime is the convenience entry point for an NTP-style probe
// round trip: t0 local-transmit, s1 server-receive, s2 server-transmit,
// t3 local-receive, all in microseconds.
func (f *Filter) OnServerTime(t0, s1, s2, t3 int64) {
	rtt := t3 - t0
	if rtt < 0 {
		rtt = 0
	}
	serverProc := s2 - s1
	if serverProc < 0 {
		serverProc = 0
	}
	oneWay := (rtt - serverProc) / 2
	if oneWay < 0 {
		oneWay = 0
	}

	measurement := float64(s1) + float64(serverProc)/2 - (float64(t0) + float64(rtt)/2)
	maxError := float64(oneWay)
	if maxError < 100 {
		maxError = 100
	}

	f.Update(measurement, maxError, t3)
}

// ClientToServer converts a local-domain timestamp to the server domain.
func (f *Filter) ClientToServer(tLocal int64) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v := float64(tLocal) + f.state.OffsetUS + f.state.Drift*float64(tLocal-f.state.LastUpdate)
	return int64(math.Round(v))
}

// ServerToClient converts a server-domain timestamp to the local domain.
func (f *Filter) ServerToClient(tServer int64) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	denom := 1 + f.state.Drift
	if denom == 0 {
		denom = 1
	}
	v := (float64(tServer) - f.state.OffsetUS + f.state.Drift*float64(f.state.LastUpdate)) / denom
	return int64(math.Round(v))
}

// IsReady reports whether the filter has enough measurements to convert
// timestamps at all (count >= 2 and a finite variance estimate).
func (f *Filter) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Count >= 2 && !math.IsInf(f.state.Cov[0][0], 0) && !math.IsNaN(f.state.Cov[0][0])
}

// HasConverged reports whether playout may safely begin.
func (f *Filter) HasConverged() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Count >= MinConverged && math.Sqrt(f.state.Cov[0][0]) < ConvergedErrorUS
}

// EstimatedErrorUS returns sqrt(cov[0][0]), the 1-sigma offset error.
func (f *Filter) EstimatedErrorUS() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return math.Sqrt(f.state.Cov[0][0])
}

// EstimatedOffsetUS returns the current offset estimate.
func (f *Filter) EstimatedOffsetUS() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.OffsetUS
}

// EstimatedDriftPPM returns the current drift estimate in parts per million.
func (f *Filter) EstimatedDriftPPM() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Drift * 1e6
}

// MeasurementCount returns the number of applied measurements.
func (f *Filter) MeasurementCount() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Count
}

// Snapshot returns a consistent copy of the filter's full internal state,
// for BufferStats reporting and diagnostics.
func (f *Filter) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}
