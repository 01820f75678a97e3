package slot

import "sync/atomic"

// PPS holds the monotonic millisecond time of the latest PPS rising edge.
// The edge watcher writes it, the radio loop reads snapshots.
type PPS struct {
	ms atomic.Int64
}

func (p *PPS) Latch(ms int64) { p.ms.Store(ms) }

// Snapshot returns the last latched edge, 0 if none.
func (p *PPS) Snapshot() int64 { return p.ms.Load() }
