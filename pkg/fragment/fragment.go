// Package fragment splits oversize messages into MTU-sized chunks and
// reassembles them on the receiving side, independent of connection
// state: a non-fragment message is delivered to the caller immediately.
package fragment

import (
	"encoding/binary"
	"errors"

	"github.com/rs/xid"

	"github.com/nodep2p/rudp/pkg/wire"
)

// ErrPayloadTooLarge is returned when a message would require more
// fragments than the wire format can address (65535).
var ErrPayloadTooLarge = errors.New("fragment: payload exceeds maximum fragment count")

// MaxFragments is the largest fragment total the wire format can carry.
const MaxFragments = 65535

// Chunk is one piece of a (possibly single-piece) outbound message,
// ready to be assigned a sequence number and sent as a packet.
type Chunk struct {
	FragmentID    uint32
	FragmentIndex uint16
	FragmentTotal uint16
	Payload       []byte
}

// IsFragment reports whether c is part of a multi-chunk message.
func (c Chunk) IsFragment() bool { return c.FragmentTotal > 1 }

// Splitter cuts oversize messages into MTU-bounded chunks.
type Splitter struct {
	mtu int
}

// NewSplitter returns a Splitter that fragments at mtu-wire.HeaderSize
// bytes per chunk.
func NewSplitter(mtu int) *Splitter {
	return &Splitter{mtu: mtu}
}

// MaxSinglePacketPayload is the largest payload that fits in one packet
// without fragmentation.
func (s *Splitter) MaxSinglePacketPayload() int {
	return s.mtu - wire.HeaderSize
}

// Split partitions message into chunks no larger than mtu-headerSize.
// A message that fits in a single packet is returned as one non-fragment
// chunk (FragmentTotal 0, FragmentID 0).
func (s *Splitter) Split(message []byte) ([]Chunk, error) {
	limit := s.MaxSinglePacketPayload()
	if limit <= 0 {
		return nil, ErrPayloadTooLarge
	}

	if len(message) <= limit {
		return []Chunk{{Payload: message}}, nil
	}

	total := (len(message) + limit - 1) / limit
	if total > MaxFragments {
		return nil, ErrPayloadTooLarge
	}

	fragID := newFragmentID()
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * limit
		end := start + limit
		if end > len(message) {
			end = len(message)
		}
		chunks = append(chunks, Chunk{
			FragmentID:    fragID,
			FragmentIndex: uint16(i),
			FragmentTotal: uint16(total),
			Payload:       message[start:end],
		})
	}
	return chunks, nil
}

// newFragmentID mints a fresh fragment identifier from an xid guid,
// folding its 12 bytes down to 32 bits. Collisions are tolerated:
// reassembly scope is bounded by (sender peer, fragment id) and by the
// reassembly TTL.
func newFragmentID() uint32 {
	id := xid.New()
	raw := id.Bytes()
	return binary.BigEndian.Uint32(raw[:4]) ^ binary.BigEndian.Uint32(raw[4:8]) ^ binary.BigEndian.Uint32(raw[8:12])
}
