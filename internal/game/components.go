// Package game implements the hook-combat gameplay: physics, the
// charge-and-release fist attack, and the entity classes that tie the
// concrete components to the generic replication stack.
package game

import (
	"math"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/component"
)

// Position component.
type Position struct {
	X, Y float64
}

func (p Position) Encode(w *codec.Writer) { w.WriteFloat64(p.X); w.WriteFloat64(p.Y) }
func (p Position) Equal(other component.Value) bool {
	o, ok := other.(Position)
	return ok && o == p
}
func (p Position) Distance(other component.Value) float64 {
	o, ok := other.(Position)
	if !ok {
		return math.Inf(1)
	}
	dx, dy := p.X-o.X, p.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}
func decodePosition(r *codec.Reader) (component.Value, error) {
	x, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	y, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return Position{X: x, Y: y}, nil
}

// Velocity component.
type Velocity struct {
	X, Y float64
}

func (v Velocity) Encode(w *codec.Writer) { w.WriteFloat64(v.X); w.WriteFloat64(v.Y) }
func (v Velocity) Equal(other component.Value) bool {
	o, ok := other.(Velocity)
	return ok && o == v
}
func (v Velocity) Distance(other component.Value) float64 {
	o, ok := other.(Velocity)
	if !ok {
		return math.Inf(1)
	}
	dx, dy := v.X-o.X, v.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}
func decodeVelocity(r *codec.Reader) (component.Value, error) {
	x, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	y, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return Velocity{X: x, Y: y}, nil
}

// Collider component (AABB bounds relative to position). Not replicated:
// it is static per class and reconstructed by the class constructor.
type Collider struct {
	OffsetX, OffsetY float64
	Width, Height    float64
}

// Sprite component (render hint; renderers map IDs to their native format).
// Static per class, not replicated.
type Sprite struct {
	ID    string
	Color uint32
}

// Player component marks player-controlled entities.
type Player struct {
	ID   int
	Name string
}

func (p Player) Encode(w *codec.Writer) { w.WriteUint32(uint32(p.ID)); w.WriteString(p.Name) }
func (p Player) Equal(other component.Value) bool {
	o, ok := other.(Player)
	return ok && o == p
}
func (p Player) Distance(other component.Value) float64 {
	if o, ok := other.(Player); ok && o == p {
		return 0
	}
	return math.Inf(1)
}
func decodePlayer(r *codec.Reader) (component.Value, error) {
	id, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return Player{ID: int(id), Name: name}, nil
}

// Health component.
type Health struct {
	Current int
	Max     int
}

func (h Health) Encode(w *codec.Writer) { w.WriteUint32(uint32(h.Current)); w.WriteUint32(uint32(h.Max)) }
func (h Health) Equal(other component.Value) bool {
	o, ok := other.(Health)
	return ok && o == h
}
func (h Health) Distance(other component.Value) float64 {
	o, ok := other.(Health)
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(float64(h.Current - o.Current))
}
func decodeHealth(r *codec.Reader) (component.Value, error) {
	cur, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	max, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return Health{Current: int(cur), Max: int(max)}, nil
}

// Damage component (for projectiles, hazards). Not replicated: consumed
// immediately by the hit-resolution system.
type Damage struct {
	Amount int
}

// Gravity component. Static per class, not replicated.
type Gravity struct {
	Scale float64
}

// Grounded component.
type Grounded struct {
	OnGround bool
}

func (g Grounded) Encode(w *codec.Writer) { w.WriteBit(g.OnGround) }
func (g Grounded) Equal(other component.Value) bool {
	o, ok := other.(Grounded)
	return ok && o == g
}
func (g Grounded) Distance(other component.Value) float64 {
	if o, ok := other.(Grounded); ok && o == g {
		return 0
	}
	return 1
}
func decodeGrounded(r *codec.Reader) (component.Value, error) {
	b, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	return Grounded{OnGround: b}, nil
}

// AttackState tracks the charge-and-release fist attack's animation state.
type AttackState struct {
	Attacking   bool // true while the post-fire cooldown is running
	Charging    bool // true while the attack key is held pre-release
	ChargeTicks int  // how long the key has been held so far
	TicksLeft   int  // cooldown ticks remaining
	FacingRight bool
}

func (a AttackState) Encode(w *codec.Writer) {
	w.WriteBit(a.Attacking)
	w.WriteBit(a.Charging)
	w.WriteBit(a.FacingRight)
	w.WriteUint16(uint16(a.ChargeTicks))
	w.WriteUint16(uint16(a.TicksLeft))
}
func (a AttackState) Equal(other component.Value) bool {
	o, ok := other.(AttackState)
	return ok && o == a
}
func (a AttackState) Distance(other component.Value) float64 {
	if o, ok := other.(AttackState); ok && o == a {
		return 0
	}
	return 1
}
func decodeAttackState(r *codec.Reader) (component.Value, error) {
	attacking, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	charging, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	facing, err := r.ReadBit()
	if err != nil {
		return nil, err
	}
	chargeTicks, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	ticksLeft, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return AttackState{
		Attacking: attacking, Charging: charging, FacingRight: facing,
		ChargeTicks: int(chargeTicks), TicksLeft: int(ticksLeft),
	}, nil
}

// Fist is the hook-style attack projectile: it travels out to MaxDistance
// (set by how long the attack key was charged) then despawns.
type Fist struct {
	OwnerPlayer      int
	MaxDistance      float64
	TraveledDistance float64
}

func (f Fist) Encode(w *codec.Writer) {
	w.WriteUint32(uint32(f.OwnerPlayer))
	w.WriteFloat64(f.MaxDistance)
	w.WriteFloat64(f.TraveledDistance)
}
func (f Fist) Equal(other component.Value) bool {
	o, ok := other.(Fist)
	return ok && o == f
}
func (f Fist) Distance(other component.Value) float64 {
	o, ok := other.(Fist)
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(f.TraveledDistance - o.TraveledDistance)
}
func decodeFist(r *codec.Reader) (component.Value, error) {
	owner, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	maxDist, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	traveled, err := r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return Fist{OwnerPlayer: int(owner), MaxDistance: maxDist, TraveledDistance: traveled}, nil
}

const (
	// AttackDuration is how many ticks the post-fire cooldown lasts.
	AttackDuration = 8
	// AttackCooldown is an alias kept for the charge/cooldown tests: the
	// number of ticks a player must wait after a fist fires before they can
	// charge another attack.
	AttackCooldown = AttackDuration
	// MinFistDistance is the distance a quick tap (minimal charge) sends
	// the fist.
	MinFistDistance = 3.0
	// MaxChargeTicks caps how long charging keeps adding distance.
	MaxChargeTicks = 60
	// MaxFistDistance is the distance a fully-charged attack travels.
	MaxFistDistance = 12.0
	// FistSpeed is how far the fist travels per tick while in flight.
	FistSpeed = 0.8
	// PlayerMoveSpeed is the player's horizontal velocity while moving.
	PlayerMoveSpeed = 4.0
	// GravityAccel is applied to ungrounded entities with Gravity each tick.
	GravityAccel = 0.6
	// JumpVelocity is applied once on a jump intent while grounded.
	JumpVelocity = -8.0
	// GroundY is the simple flat ground plane's height.
	GroundY = 200.0
)

// fistDistanceForCharge maps ticks held to a travel distance, linearly
// ramping from MinFistDistance at a quick tap up to MaxFistDistance at
// MaxChargeTicks and beyond.
func fistDistanceForCharge(chargeTicks int) float64 {
	if chargeTicks >= MaxChargeTicks {
		return MaxFistDistance
	}
	t := float64(chargeTicks) / float64(MaxChargeTicks)
	return MinFistDistance + t*(MaxFistDistance-MinFistDistance)
}
