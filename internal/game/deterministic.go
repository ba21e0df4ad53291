package game

import (
	"hash"
	"hash/fnv"
)

// Checksum hashes every physics entity's position into a single uint32, for
// cheap cross-machine determinism checks between an authoritative tick and
// its client-side replay -- a full reconciliation goes through
// internal/snapshot's distance-scored comparison instead, this is only a
// fast "did anything diverge" probe.
func (w *World) Checksum() uint32 {
	h := fnv.New32a()

	query := w.physicsFilter.Query()
	for query.Next() {
		pos, _, _, _ := query.Get()
		writeInt64(h, int64(pos.X*1000))
		writeInt64(h, int64(pos.Y*1000))
	}
	query.Close()

	return h.Sum32()
}

func writeInt64(h hash.Hash32, v int64) {
	h.Write([]byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	})
}
