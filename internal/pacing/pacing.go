// Package pacing implements the client's adaptive tick scheduler: a
// warp-factor controller that keeps the played tick a configured number of
// ticks behind the most recently received one, and the display
// interpolation fraction used between rendered frames.
package pacing

import (
	"math"

	"github.com/andersfylling/hooksmp/internal/ids"
)

// Timer accumulates wall-clock time against a fixed period and reports
// whole-period triggers, matching tick_timer/receive_snapshot_timer.
type Timer struct {
	Period float64
	accum  float64
}

// NewTimer returns a timer with the given period in seconds.
func NewTimer(period float64) *Timer { return &Timer{Period: period} }

// Advance adds delta seconds to the accumulator.
func (t *Timer) Advance(delta float64) { t.accum += delta }

// Trigger reports whether a full period has accumulated, subtracting it if
// so. Call in a loop to drain multiple pending periods.
func (t *Timer) Trigger() bool {
	if t.accum < t.Period {
		return false
	}
	t.accum -= t.Period
	return true
}

// Progress returns how far into the current period the accumulator sits, in
// [0, 1).
func (t *Timer) Progress() float64 {
	if t.Period <= 0 {
		return 0
	}
	return t.accum / t.Period
}

// TargetLagTicks is how many ticks of buffer the client tries to keep
// between the most recently received tick and the tick it is playing.
const TargetLagTicks = 2

// InputLeadTicks (K) is added on top of estimated one-way travel time when
// computing the tick a sent input should take effect on the server.
const InputLeadTicks = 1

// Scheduler is the per-client pacing state machine.
type Scheduler struct {
	TicksPerSecond   float64
	TicksPerSnapshot float64

	TickTimer            *Timer
	ReceiveSnapshotTimer *Timer

	LastTick             ids.TickNum
	MaxTick              ids.TickNum
	LastSnapshotTick     ids.TickNum
	ServerReceiveAckTick ids.TickNum

	Warp float64
}

// NewScheduler returns a scheduler for a server running at tps ticks/second,
// sending a snapshot every ticksPerSnapshot ticks.
func NewScheduler(tps float64, ticksPerSnapshot float64) *Scheduler {
	return &Scheduler{
		TicksPerSecond:       tps,
		TicksPerSnapshot:     ticksPerSnapshot,
		TickTimer:            NewTimer(1 / tps),
		ReceiveSnapshotTimer: NewTimer(ticksPerSnapshot / tps),
		Warp:                 1.0,
	}
}

func (s *Scheduler) dt() float64 { return 1 / s.TicksPerSecond }

// OnGamePacket records that a new tick (num) has been received, updating
// MaxTick and, when refTick (the delta's reference tick) is non-nil, the
// server's acknowledged receive tick.
func (s *Scheduler) OnGamePacket(num ids.TickNum, refTick *ids.TickNum, hasSnapshot bool) {
	if num > s.MaxTick {
		s.MaxTick = num
	}
	if refTick != nil {
		s.ServerReceiveAckTick = *refTick
	}
	if hasSnapshot {
		s.LastSnapshotTick = num
	}
}

// PruneBoundary returns the tick below which history may be discarded: the
// server's acknowledged receive tick alone (the original implementation's
// choice, simpler than also bounding by last_snapshot_tick).
func (s *Scheduler) PruneBoundary() ids.TickNum {
	return s.ServerReceiveAckTick
}

// Update advances the pacing state by delta wall-clock seconds, recomputing
// the warp factor and triggering zero or more ticks. trigger is invoked once
// per triggered tick with the new LastTick and the target_tick the
// corresponding StartedTick should carry.
func (s *Scheduler) Update(delta float64, pingSecs float32, trigger func(tick, targetTick ids.TickNum)) {
	curTime := float64(s.LastTick)*s.dt() + s.TickTimer.accum
	recvTime := float64(s.MaxTick)*s.dt() + s.ReceiveSnapshotTimer.accum
	curLag := recvTime - curTime
	targetLag := float64(TargetLagTicks) * s.dt()
	errv := targetLag - curLag
	s.Warp = warpFactor(errv)

	s.ReceiveSnapshotTimer.Advance(delta)
	s.TickTimer.Advance(delta * s.Warp)

	for s.LastTick < s.MaxTick && s.TickTimer.Trigger() {
		s.LastTick++
		lead := ids.TickNum(math.Ceil(float64(pingSecs) * s.TicksPerSecond))
		target := s.LastTick + lead + InputLeadTicks
		trigger(s.LastTick, target)
	}
}

// warpFactor is the sigmoid target-lag controller, bounded to ~[0.5, 2.0].
func warpFactor(errSecs float64) float64 {
	return 0.5 + 1.5/(1+2*math.Exp(errSecs/0.05))
}

// NextInterpTick returns the lowest tick strictly greater than
// lastSnapshotTick that carries a snapshot, by probing has(tick) in
// ascending order up to maxTick. Returns ok=false if none is found yet.
func NextInterpTick(lastSnapshotTick, maxTick ids.TickNum, has func(ids.TickNum) bool) (ids.TickNum, bool) {
	for t := lastSnapshotTick + 1; t <= maxTick; t++ {
		if has(t) {
			return t, true
		}
	}
	return 0, false
}

// InterpolationFraction computes t for linearly interpolating an entity's
// interpolable components between lastSnapshotTick and nextInterpTick.
func (s *Scheduler) InterpolationFraction(nextInterpTick ids.TickNum) float64 {
	span := float64(nextInterpTick) - float64(s.LastSnapshotTick)
	if span <= 0 {
		return 1
	}
	t := (float64(s.LastTick) - float64(s.LastSnapshotTick) + s.TickTimer.Progress()) / span
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
