package omnilocation

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// jitterRadius is the per-axis positional noise in degrees, roughly two
// meters, applied per device per step to mimic natural GPS variance.
const jitterRadius = 2e-5

const (
	// defaultStepDelay applies when points carry no timestamps and no target
	// duration was requested.
	defaultStepDelay = time.Second
	// maxStepDelay guards against corrupt timestamp gaps dominating a run:
	// anything above it collapses to cappedStepDelay.
	maxStepDelay    = 300 * time.Second
	cappedStepDelay = 5 * time.Second
)

// PlaybackStatus is the externally observable snapshot of the current run.
// Readers poll it and may observe any point-in-time value.
type PlaybackStatus struct {
	Running         bool     `json:"running"`
	CurrentIndex    int      `json:"current_index"`
	TotalPoints     int      `json:"total_points"`
	SpeedMultiplier float64  `json:"speed_multiplier"`
	Loop            bool     `json:"loop"`
	CurrentLat      *float64 `json:"current_lat"`
	CurrentLon      *float64 `json:"current_lon"`
}

// PlayOptions tune one playback run.
type PlayOptions struct {
	Loop            bool
	SpeedMultiplier float64
	// TargetDuration stretches the whole track over a fixed wall-clock span
	// when the points carry no timestamps. Zero means unset.
	TargetDuration time.Duration
}

// Simulator owns the single-flight playback task: it connects the requested
// devices, then drives a cancellable loop that broadcasts jittered track
// coordinates to all of them in lock-step.
type Simulator struct {
	pool *DevicePool

	mu     sync.Mutex
	active []*DeviceHandle
	cancel context.CancelFunc
	done   chan struct{}
	status PlaybackStatus
}

func NewSimulator(pool *DevicePool) *Simulator {
	return &Simulator{
		pool: pool,
		status: PlaybackStatus{
			SpeedMultiplier: 1.0,
		},
	}
}

// Start connects the requested devices and launches the playback goroutine.
// It returns as soon as the run is launched; it does not block for the
// playback duration. At most one run may exist at a time: starting while one
// is active fails fast with an already-running error.
//
// Unknown udids are skipped with a warning. A connect failure aborts the
// whole call; devices connected earlier in the same call keep their sessions
// open (no rollback).
func (s *Simulator) Start(ctx context.Context, points []TrackPoint, udids []string, opts PlayOptions) error {
	if len(points) == 0 {
		return NewValidationError("points", "track has no points")
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1.0
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		log.Warn().Msg("simulation already running")
		return NewAlreadyRunningError()
	}
	// Claim the single-flight slot before the blocking connect phase so a
	// concurrent Start fails fast instead of double-connecting.
	claimed := make(chan struct{})
	s.done = claimed
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.done = nil
		s.mu.Unlock()
		close(claimed)
	}

	active := make([]*DeviceHandle, 0, len(udids))
	for _, udid := range udids {
		dev := s.pool.Get(udid)
		if dev == nil {
			log.Warn().Str("udid", udid).Msg("device not found in pool, skipping")
			continue
		}
		if !dev.Connected() {
			if err := dev.Connect(ctx); err != nil {
				release()
				return err
			}
		}
		active = append(active, dev)
	}
	if len(active) == 0 {
		release()
		log.Error().Msg("no valid devices available for simulation")
		return NewNoDevicesError()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	first := points[0]
	s.mu.Lock()
	s.active = active
	s.cancel = cancel
	s.status = PlaybackStatus{
		Running:         true,
		CurrentIndex:    0,
		TotalPoints:     len(points),
		SpeedMultiplier: opts.SpeedMultiplier,
		Loop:            opts.Loop,
		CurrentLat:      &first.Lat,
		CurrentLon:      &first.Lon,
	}
	s.mu.Unlock()

	go s.run(runCtx, points, active, opts)
	log.Info().Int("devices", len(active)).Int("points", len(points)).Msg("simulation started")
	return nil
}

// Stop cancels the running playback and waits for the goroutine to exit, so
// no further device writes happen after it returns. Stopping an idle
// simulator is a no-op. Restarting always begins at index 0; there is no
// paused position to resume.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.status.Running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Info().Msg("simulation stopped")
	return nil
}

// Reset stops the playback, sweeps a Disconnect over the devices of the most
// recent run to restore their real locations, and zeroes the status.
func (s *Simulator) Reset(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	active := s.active
	s.active = nil
	s.mu.Unlock()

	log.Info().Int("devices", len(active)).Msg("resetting device locations")
	for _, dev := range active {
		dev.Disconnect()
	}

	s.mu.Lock()
	s.status.CurrentIndex = 0
	s.status.CurrentLat = nil
	s.status.CurrentLon = nil
	s.mu.Unlock()
	log.Info().Msg("simulation reset complete")
	return nil
}

// Status returns a copy of the current snapshot.
func (s *Simulator) Status() PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Simulator) run(ctx context.Context, points []TrackPoint, devices []*DeviceHandle, opts PlayOptions) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("simulation loop panicked")
		}
		s.mu.Lock()
		s.status.Running = false
		s.cancel = nil
		done := s.done
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	timed := allTimestamped(points)
	if !timed && (opts.TargetDuration <= 0 || len(points) < 2) {
		log.Warn().Msg("no timestamps and no target duration, defaulting to 1s per step")
	}

	for {
		for i := range points {
			select {
			case <-ctx.Done():
				return
			default:
			}

			pt := points[i]
			s.mu.Lock()
			s.status.CurrentIndex = i
			s.status.CurrentLat = &pt.Lat
			s.status.CurrentLon = &pt.Lon
			s.mu.Unlock()

			// The fan-out for one step always completes before cancellation
			// is checked again; a failing device is contained by its own
			// handle and stays in the list.
			for _, dev := range devices {
				lat := pt.Lat + jitterOffset()
				lon := pt.Lon + jitterOffset()
				if err := dev.SetLocation(lat, lon); err != nil {
					log.Warn().Err(err).Str("udid", dev.UDID()).Int("index", i).Msg("broadcast failed for device")
				}
			}

			if !sleepCtx(ctx, stepDelay(points, i, timed, opts)) {
				return
			}
		}
		if !opts.Loop {
			return
		}
	}
}

// stepDelay computes the pause after broadcasting points[i].
//
// Every point timestamped: gap to the next point divided by the speed
// multiplier. No timestamps but a target duration and more than one point:
// the constant targetDuration/len(points). Otherwise a constant 1s. The
// result is clamped: negative to 0, anything above 300s to 5s.
func stepDelay(points []TrackPoint, i int, timed bool, opts PlayOptions) time.Duration {
	delay := defaultStepDelay
	if !timed && opts.TargetDuration > 0 && len(points) > 1 {
		delay = opts.TargetDuration / time.Duration(len(points))
	}
	if timed && i < len(points)-1 {
		gap := points[i+1].Time.Sub(points[i].Time)
		delay = time.Duration(float64(gap) / opts.SpeedMultiplier)
	}
	if delay < 0 {
		return 0
	}
	if delay > maxStepDelay {
		return cappedStepDelay
	}
	return delay
}

func allTimestamped(points []TrackPoint) bool {
	for _, p := range points {
		if !p.HasTime() {
			return false
		}
	}
	return len(points) > 0
}

// jitterOffset draws uniform noise in [-jitterRadius, jitterRadius].
func jitterOffset() float64 {
	return (rand.Float64()*2 - 1) * jitterRadius
}

// sleepCtx waits d, returning false when the context was cancelled first.
// Cancellation interrupts mid-delay so Stop takes effect within one delay
// window, not only between full track iterations.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
