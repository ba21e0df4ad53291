// Package tickhistory implements the ordered tick -> {events, snapshot}
// buffer: append-only growth on the server, out-of-order fill on the client,
// delta_write/delta_read of whole ticks against a reference, and
// acknowledgement-driven pruning.
package tickhistory

import (
	"fmt"
	"sort"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/snapshot"
)

// Data is what is stored for one tick: the order-class events emitted that
// tick and an optional world snapshot. The per-peer "last input tick already
// applied" value is not stored here -- it differs per receiving peer, so
// internal/authority carries it alongside the delta_write_tick payload
// instead of inside the (shared) history entry.
type Data struct {
	Events   []event.Event
	Snapshot *snapshot.WorldSnapshot
}

// History is the ordered tick -> Data map plus the bookkeeping needed for
// delta_write/delta_read.
type History struct {
	events  *event.Registry
	classes *entityclass.Registry

	ticks map[ids.TickNum]Data
	keys  []ids.TickNum // kept sorted ascending
}

// New returns an empty tick history. reg/classes are used to (de)serialize
// events and snapshots during delta_write/delta_read.
func New(reg *event.Registry, classes *entityclass.Registry) *History {
	return &History{
		events:  reg,
		classes: classes,
		ticks:   make(map[ids.TickNum]Data),
	}
}

// MinNum returns the oldest retained tick, or 0 if empty.
func (h *History) MinNum() ids.TickNum {
	if len(h.keys) == 0 {
		return 0
	}
	return h.keys[0]
}

// MaxNum returns the newest retained tick, or 0 if empty.
func (h *History) MaxNum() ids.TickNum {
	if len(h.keys) == 0 {
		return 0
	}
	return h.keys[len(h.keys)-1]
}

// Len reports the number of retained ticks.
func (h *History) Len() int { return len(h.keys) }

// Get looks up a tick's data.
func (h *History) Get(num ids.TickNum) (Data, bool) {
	d, ok := h.ticks[num]
	return d, ok
}

func (h *History) insertKey(num ids.TickNum) {
	i := sort.Search(len(h.keys), func(i int) bool { return h.keys[i] >= num })
	if i < len(h.keys) && h.keys[i] == num {
		return
	}
	h.keys = append(h.keys, 0)
	copy(h.keys[i+1:], h.keys[i:])
	h.keys[i] = num
}

// Push appends data at num. Requires num == max+1 (server-only, append-only
// growth); panics otherwise, matching the documented invariant.
func (h *History) Push(num ids.TickNum, data Data) {
	if len(h.keys) > 0 && num != h.MaxNum()+1 {
		panic(fmt.Sprintf("tickhistory: push requires num=%d, got %d", h.MaxNum()+1, num))
	}
	if len(h.keys) == 0 && num != ids.FirstTick {
		panic(fmt.Sprintf("tickhistory: first push requires num=%d, got %d", ids.FirstTick, num))
	}
	h.ticks[num] = data
	h.insertKey(num)
}

// PruneOlder drops every entry with key < n.
func (h *History) PruneOlder(n ids.TickNum) {
	i := 0
	for i < len(h.keys) && h.keys[i] < n {
		delete(h.ticks, h.keys[i])
		i++
	}
	h.keys = h.keys[i:]
}

// DeltaWrite writes curNum, the event list for curNum, then -- walking
// backward from curNum-1 down to prevNum inclusive -- each intermediate
// tick's event list (continuation-bit prefixed), a terminator bit, and
// finally the snapshot delta of curNum against prevNum (or against an empty
// snapshot if prevNum is nil).
func (h *History) DeltaWrite(w *codec.Writer, prevNum *ids.TickNum, curNum ids.TickNum) error {
	return h.DeltaWriteWithExtra(w, prevNum, curNum, nil)
}

// DeltaWriteWithExtra behaves like DeltaWrite, but appends extra to curNum's
// event list for this send only -- the stored history entry is left
// untouched, so a second peer's send in the same tick sees none of it. Used
// to seed a single newly joined peer with synthesized PlayerJoined events
// without broadcasting them to every peer.
func (h *History) DeltaWriteWithExtra(w *codec.Writer, prevNum *ids.TickNum, curNum ids.TickNum, extra []event.Event) error {
	cur, ok := h.Get(curNum)
	if !ok {
		return fmt.Errorf("tickhistory: no data for cur tick %d", curNum)
	}
	w.WriteUint32(uint32(curNum))
	curEvents := cur.Events
	if len(extra) > 0 {
		curEvents = make([]event.Event, 0, len(cur.Events)+len(extra))
		curEvents = append(curEvents, cur.Events...)
		curEvents = append(curEvents, extra...)
	}
	writeEvents(w, h.events, curEvents)

	if prevNum != nil {
		for n := curNum - 1; n >= *prevNum; n-- {
			d, ok := h.Get(n)
			if !ok {
				return fmt.Errorf("tickhistory: missing intermediate tick %d", n)
			}
			w.WriteBit(true) // continuation
			writeEvents(w, h.events, d.Events)
			if n == *prevNum {
				break
			}
		}
	}
	w.WriteBit(false) // terminator

	var prevSnap *snapshot.WorldSnapshot
	if prevNum != nil {
		prevData, ok := h.Get(*prevNum)
		if !ok || prevData.Snapshot == nil {
			return fmt.Errorf("tickhistory: no snapshot at reference tick %d", *prevNum)
		}
		prevSnap = prevData.Snapshot
	} else {
		prevSnap = snapshot.NewWorldSnapshot(0)
	}
	if cur.Snapshot == nil {
		return fmt.Errorf("tickhistory: no snapshot at cur tick %d", curNum)
	}
	return snapshot.WriteWorldDelta(w, h.classes, prevSnap, cur.Snapshot)
}

// DeltaRead is the inverse of DeltaWrite. It returns (prevNum, curNum, err,
// stale). stale is true, with nothing absorbed, if the packet is stale
// (curNum <= MaxNum()).
func (h *History) DeltaRead(r *codec.Reader) (prevNum *ids.TickNum, curNum ids.TickNum, err error, stale bool) {
	curRaw, err := r.ReadUint32()
	if err != nil {
		return nil, 0, err, false
	}
	curNum = ids.TickNum(curRaw)
	if h.Len() > 0 && curNum <= h.MaxNum() {
		return nil, curNum, nil, true
	}

	curEvents, err := readEvents(r, h.events)
	if err != nil {
		return nil, 0, err, false
	}

	n := curNum
	for {
		more, err := r.ReadBit()
		if err != nil {
			return nil, 0, err, false
		}
		if !more {
			break
		}
		if n == 0 {
			return nil, 0, fmt.Errorf("tickhistory: received too many event lists"), false
		}
		n--
		if h.Len() > 0 && n < h.MinNum() {
			return nil, 0, fmt.Errorf("tickhistory: prev_num for tick delta points beyond our front"), false
		}
		evs, err := readEvents(r, h.events)
		if err != nil {
			return nil, 0, err, false
		}
		if _, exists := h.Get(n); !exists {
			h.ticks[n] = Data{Events: evs}
			h.insertKey(n)
		}
	}

	var ref *ids.TickNum
	if n != curNum {
		ref = &n
	}

	var prevSnap *snapshot.WorldSnapshot
	if ref != nil {
		d, ok := h.Get(*ref)
		if !ok || d.Snapshot == nil {
			return nil, 0, fmt.Errorf("tickhistory: don't have previous snapshot data"), false
		}
		prevSnap = d.Snapshot
	} else {
		prevSnap = snapshot.NewWorldSnapshot(0)
	}

	curSnap, err := snapshot.ReadWorldDelta(r, h.classes, prevSnap, curNum)
	if err != nil {
		return nil, 0, err, false
	}

	existing, _ := h.Get(curNum)
	existing.Events = curEvents
	existing.Snapshot = curSnap
	h.ticks[curNum] = existing
	h.insertKey(curNum)

	return ref, curNum, nil, false
}

func writeEvents(w *codec.Writer, reg *event.Registry, evs []event.Event) {
	w.WriteUint32(uint32(len(evs)))
	for _, e := range evs {
		reg.Write(e, w)
	}
}

func readEvents(r *codec.Reader, reg *event.Registry) ([]event.Event, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, n)
	for i := uint32(0); i < n; i++ {
		e, err := reg.Read(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
