package fragment

import (
	"errors"
	"sync"
	"time"

	"github.com/nodep2p/rudp/pkg/wire"
)

// Reassembly-level errors.
var (
	// ErrFragmentTotalMismatch is returned when two fragments claiming
	// the same (peer, fragment id) disagree on the total chunk count.
	ErrFragmentTotalMismatch = errors.New("fragment: fragment total mismatch")

	// ErrFragmentIndexOutOfRange is returned when a fragment's index is
	// not smaller than its claimed total.
	ErrFragmentIndexOutOfRange = errors.New("fragment: index out of range")

	// ErrReassemblyExpired names a fragment that arrives for an entry
	// already evicted on TTL. Insert does not return it: the Reassembler
	// keeps no record of evicted entries, so such a fragment opens a new
	// pending entry, which Evict drops in turn unless it completes.
	ErrReassemblyExpired = errors.New("fragment: reassembly expired")
)

// defaultMaxBytesPerPeer bounds how much partially-reassembled data a
// single peer may hold in memory before the oldest entry is evicted to
// make room, independent of TTL expiry.
const defaultMaxBytesPerPeer = 16 << 20 // 16 MiB

type reassemblyKey struct {
	peer   string
	fragID uint32
}

type pendingMessage struct {
	total     uint16
	chunks    map[uint16][]byte
	received  int
	bytes     int
	createdAt time.Time
}

// Reassembler accumulates FRAGMENT packets keyed by (peer, fragment id)
// until every chunk has arrived, then hands the caller the reassembled
// message. It is safe for concurrent use by multiple goroutines.
type Reassembler struct {
	mu sync.Mutex

	ttl             time.Duration
	maxBytesPerPeer int

	pending   map[reassemblyKey]*pendingMessage
	peerBytes map[string]int
	peerOrder map[string][]reassemblyKey // insertion order per peer, oldest first
}

// NewReassembler returns a Reassembler that discards incomplete
// messages older than ttl, and evicts the oldest pending message for a
// peer once that peer's buffered bytes exceed the default cap.
func NewReassembler(ttl time.Duration) *Reassembler {
	return &Reassembler{
		ttl:             ttl,
		maxBytesPerPeer: defaultMaxBytesPerPeer,
		pending:         make(map[reassemblyKey]*pendingMessage),
		peerBytes:       make(map[string]int),
		peerOrder:       make(map[string][]reassemblyKey),
	}
}

// Insert feeds one fragment packet into the reassembler. It returns the
// complete message and complete=true once every chunk for that
// (peer, fragment id) pair has arrived; otherwise it returns
// complete=false and a nil message while more fragments are awaited.
func (r *Reassembler) Insert(peer string, p *wire.Packet) (message []byte, complete bool, err error) {
	if !p.IsFragment() {
		return append([]byte(nil), p.Payload...), true, nil
	}
	if p.FragmentIndex >= p.FragmentTotal {
		return nil, false, ErrFragmentIndexOutOfRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := reassemblyKey{peer: peer, fragID: p.FragmentID}
	entry, ok := r.pending[key]
	if !ok {
		entry = &pendingMessage{
			total:     p.FragmentTotal,
			chunks:    make(map[uint16][]byte),
			createdAt: time.Now(),
		}
		r.pending[key] = entry
		r.peerOrder[peer] = append(r.peerOrder[peer], key)
	}
	if entry.total != p.FragmentTotal {
		return nil, false, ErrFragmentTotalMismatch
	}

	if _, dup := entry.chunks[p.FragmentIndex]; !dup {
		chunk := append([]byte(nil), p.Payload...)
		entry.chunks[p.FragmentIndex] = chunk
		entry.received++
		entry.bytes += len(chunk)
		r.peerBytes[peer] += len(chunk)
		r.enforcePeerCapLocked(peer, key)
	}

	if entry.received < int(entry.total) {
		return nil, false, nil
	}

	out := make([]byte, 0, entry.bytes)
	for i := uint16(0); i < entry.total; i++ {
		out = append(out, entry.chunks[i]...)
	}
	r.removeLocked(peer, key)
	return out, true, nil
}

// enforcePeerCapLocked evicts the peer's oldest pending message(s) until
// its buffered byte total is back under the cap. It must be called with
// r.mu already held and never evicts the key just inserted if it is the
// only entry left for that peer.
func (r *Reassembler) enforcePeerCapLocked(peer string, justInserted reassemblyKey) {
	for r.peerBytes[peer] > r.maxBytesPerPeer {
		order := r.peerOrder[peer]
		if len(order) == 0 {
			return
		}
		oldest := order[0]
		if oldest == justInserted && len(order) == 1 {
			return
		}
		r.removeLocked(peer, oldest)
	}
}

// removeLocked deletes a pending entry and updates peer bookkeeping. It
// must be called with r.mu already held.
func (r *Reassembler) removeLocked(peer string, key reassemblyKey) {
	entry, ok := r.pending[key]
	if !ok {
		return
	}
	delete(r.pending, key)
	r.peerBytes[peer] -= entry.bytes
	if r.peerBytes[peer] < 0 {
		r.peerBytes[peer] = 0
	}

	order := r.peerOrder[peer]
	for i, k := range order {
		if k == key {
			r.peerOrder[peer] = append(order[:i], order[i+1:]...)
			break
		}
	}
	if len(r.peerOrder[peer]) == 0 {
		delete(r.peerOrder, peer)
		delete(r.peerBytes, peer)
	}
}

// Evict drops every pending reassembly older than the configured TTL.
// Callers run this from a maintenance tick; it is not triggered
// automatically by Insert.
func (r *Reassembler) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for peer, order := range r.peerOrder {
		remaining := order[:0:0]
		for _, key := range order {
			entry := r.pending[key]
			if entry != nil && now.Sub(entry.createdAt) > r.ttl {
				r.peerBytes[peer] -= entry.bytes
				delete(r.pending, key)
				evicted++
				continue
			}
			remaining = append(remaining, key)
		}
		if len(remaining) == 0 {
			delete(r.peerOrder, peer)
			delete(r.peerBytes, peer)
		} else {
			r.peerOrder[peer] = remaining
		}
	}
	return evicted
}

// Pending reports how many fragment ids currently have incomplete
// reassembly state, across all peers. Intended for stats/metrics
// exposition.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
