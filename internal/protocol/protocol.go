// Package protocol defines the wire messages exchanged over the three
// replication channels (COMM reliable, GAME unsequenced, TIME unsequenced)
// and their byte-tag-prefixed codec, per the external wire framing rule:
// big-endian, bit-packed, numeric types width-explicit, booleans single
// bits, protocol enums tagged by a leading byte.
package protocol

import (
	"fmt"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/ids"
)

// ChannelID identifies one of the three replication channels.
type ChannelID byte

const (
	ChannelComm ChannelID = iota
	ChannelGame
	ChannelTime
)

// PacketFlag selects the delivery guarantee of a send.
type PacketFlag int

const (
	Reliable PacketFlag = iota
	Unreliable
	Unsequenced
)

// LeaveReason is carried on a transport disconnect.
type LeaveReason byte

const (
	Disconnected LeaveReason = iota
	InvalidMsg
	Lagged
)

func (r LeaveReason) String() string {
	switch r {
	case Disconnected:
		return "Disconnected"
	case InvalidMsg:
		return "InvalidMsg"
	case Lagged:
		return "Lagged"
	default:
		return "Unknown"
	}
}

// Intent is a bitmask of the buttons held during one input sample.
type Intent uint8

const (
	IntentNone   Intent = 0
	IntentLeft   Intent = 1 << 0
	IntentRight  Intent = 1 << 1
	IntentJump   Intent = 1 << 2
	IntentAttack Intent = 1 << 3
	IntentUse    Intent = 1 << 4
)

// PlayerInput is one tick's worth of input sampled on the client.
type PlayerInput struct {
	Intents Intent
}

func (in PlayerInput) encode(w *codec.Writer) { w.WriteBits(uint64(in.Intents), 8) }
func decodePlayerInput(r *codec.Reader) (PlayerInput, error) {
	v, err := r.ReadBits(8)
	if err != nil {
		return PlayerInput{}, err
	}
	return PlayerInput{Intents: Intent(v)}, nil
}

// GameInfo is broadcast by the server on accept.
type GameInfo struct {
	TicksPerSecond   uint32
	TicksPerSnapshot uint32
}

func (g GameInfo) encode(w *codec.Writer) {
	w.WriteUint32(g.TicksPerSecond)
	w.WriteUint32(g.TicksPerSnapshot)
}
func decodeGameInfo(r *codec.Reader) (GameInfo, error) {
	tps, err := r.ReadUint32()
	if err != nil {
		return GameInfo{}, err
	}
	sps, err := r.ReadUint32()
	if err != nil {
		return GameInfo{}, err
	}
	return GameInfo{TicksPerSecond: tps, TicksPerSnapshot: sps}, nil
}

// ---- COMM messages (reliable, ordered) ----

type commTag byte

const (
	tagWishConnect commTag = iota
	tagReady
	tagAcceptConnect
	tagJoinGame
)

// WishConnect is the first message a client must send on COMM.
type WishConnect struct{ Name string }

// Ready transitions a Connected peer to Ready.
type Ready struct{}

// AcceptConnect answers a valid WishConnect.
type AcceptConnect struct{ Info GameInfo }

// JoinGame tells the client its assigned player id.
type JoinGame struct{ PlayerID ids.PlayerID }

// EncodeComm writes any COMM message with its leading tag byte.
func EncodeComm(msg any) ([]byte, error) {
	w := codec.NewWriter()
	switch m := msg.(type) {
	case WishConnect:
		_ = w.WriteByte(byte(tagWishConnect))
		w.WriteString(m.Name)
	case Ready:
		_ = w.WriteByte(byte(tagReady))
	case AcceptConnect:
		_ = w.WriteByte(byte(tagAcceptConnect))
		m.Info.encode(w)
	case JoinGame:
		_ = w.WriteByte(byte(tagJoinGame))
		w.WriteUint32(uint32(m.PlayerID))
	default:
		return nil, fmt.Errorf("protocol: unknown COMM message type %T", msg)
	}
	return w.Bytes(), nil
}

// DecodeComm reads one COMM message.
func DecodeComm(buf []byte) (any, error) {
	r := codec.NewReader(buf)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch commTag(tag) {
	case tagWishConnect:
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return WishConnect{Name: name}, nil
	case tagReady:
		return Ready{}, nil
	case tagAcceptConnect:
		info, err := decodeGameInfo(r)
		if err != nil {
			return nil, err
		}
		return AcceptConnect{Info: info}, nil
	case tagJoinGame:
		pid, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return JoinGame{PlayerID: ids.PlayerID(pid)}, nil
	default:
		return nil, fmt.Errorf("protocol: invalid COMM tag %d", tag)
	}
}

// ---- GAME messages (unsequenced) ----

type gameTag byte

const (
	tagStartedTick gameTag = iota
	tagReceivedTick
	tagTickDelta
)

// StartedTick is sent client -> server each time the client advances a tick.
type StartedTick struct {
	Tick       ids.TickNum
	TargetTick ids.TickNum
	Input      PlayerInput
}

// ReceivedTick acknowledges that the client holds tick Tick.
type ReceivedTick struct{ Tick ids.TickNum }

// EncodeStartedTick writes a client -> server tick announcement.
func EncodeStartedTick(m StartedTick) []byte {
	w := codec.NewWriter()
	_ = w.WriteByte(byte(tagStartedTick))
	w.WriteUint32(uint32(m.Tick))
	w.WriteUint32(uint32(m.TargetTick))
	m.Input.encode(w)
	return w.Bytes()
}

// EncodeReceivedTick writes a client -> server ack.
func EncodeReceivedTick(m ReceivedTick) []byte {
	w := codec.NewWriter()
	_ = w.WriteByte(byte(tagReceivedTick))
	w.WriteUint32(uint32(m.Tick))
	return w.Bytes()
}

// TickDeltaTag is the leading byte of a server -> client delta_write_tick
// payload, letting the receiver distinguish it from other GAME messages.
const TickDeltaTag = byte(tagTickDelta)

// DecodeGame reads a client -> server GAME message. Server -> client tick
// deltas are decoded directly via tickhistory.DeltaRead on the remaining
// bytes after the tag, handled by the caller.
func DecodeGame(buf []byte) (any, []byte, error) {
	r := codec.NewReader(buf)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, nil, err
	}
	switch gameTag(tag) {
	case tagStartedTick:
		tick, err := r.ReadUint32()
		if err != nil {
			return nil, nil, err
		}
		target, err := r.ReadUint32()
		if err != nil {
			return nil, nil, err
		}
		in, err := decodePlayerInput(r)
		if err != nil {
			return nil, nil, err
		}
		return StartedTick{Tick: ids.TickNum(tick), TargetTick: ids.TickNum(target), Input: in}, nil, nil
	case tagReceivedTick:
		tick, err := r.ReadUint32()
		if err != nil {
			return nil, nil, err
		}
		return ReceivedTick{Tick: ids.TickNum(tick)}, nil, nil
	case tagTickDelta:
		return nil, buf[1:], nil
	default:
		return nil, nil, fmt.Errorf("protocol: invalid GAME tag %d", tag)
	}
}

// ---- TIME messages (unsequenced) ----

type timeTag byte

const (
	tagPing timeTag = iota
	tagPong
)

// Ping carries the sender's local send time in seconds.
type Ping struct{ SendTime float32 }

// Pong echoes back the ping's original send time.
type Pong struct{ PingSendTime float32 }

// EncodePing writes a Ping.
func EncodePing(m Ping) []byte {
	w := codec.NewWriter()
	_ = w.WriteByte(byte(tagPing))
	w.WriteFloat32(m.SendTime)
	return w.Bytes()
}

// EncodePong writes a Pong.
func EncodePong(m Pong) []byte {
	w := codec.NewWriter()
	_ = w.WriteByte(byte(tagPong))
	w.WriteFloat32(m.PingSendTime)
	return w.Bytes()
}

// DecodeTime reads a TIME message.
func DecodeTime(buf []byte) (any, error) {
	r := codec.NewReader(buf)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch timeTag(tag) {
	case tagPing:
		t, err := r.ReadFloat32()
		if err != nil {
			return nil, err
		}
		return Ping{SendTime: t}, nil
	case tagPong:
		t, err := r.ReadFloat32()
		if err != nil {
			return nil, err
		}
		return Pong{PingSendTime: t}, nil
	default:
		return nil, fmt.Errorf("protocol: invalid TIME tag %d", tag)
	}
}
