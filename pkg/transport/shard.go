package transport

import (
	"hash/fnv"
	"sync"

	"github.com/nodep2p/rudp/pkg/conn"
)

// numShards partitions the connection table so that unrelated peers
// don't contend on the same mutex — design note (ii) from the
// connection lifecycle's concurrency model: a sharded lock table keyed
// by peer address hash, each shard covering a disjoint subset of
// connections.
const numShards = 32

type shard struct {
	mu    sync.Mutex
	conns map[string]*conn.Connection
}

type shardTable struct {
	shards [numShards]*shard
}

func newShardTable() *shardTable {
	t := &shardTable{}
	for i := range t.shards {
		t.shards[i] = &shard{conns: make(map[string]*conn.Connection)}
	}
	return t
}

func (t *shardTable) shardFor(peer string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(peer))
	return t.shards[h.Sum32()%numShards]
}

// get returns the existing connection for peer, if any.
func (t *shardTable) get(peer string) (*conn.Connection, bool) {
	s := t.shardFor(peer)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[peer]
	return c, ok
}

// getOrCreate returns the existing connection for peer, creating one
// via newConn if absent.
func (t *shardTable) getOrCreate(peer string, newConn func() *conn.Connection) *conn.Connection {
	s := t.shardFor(peer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[peer]; ok {
		return c
	}
	c := newConn()
	s.conns[peer] = c
	return c
}

func (t *shardTable) delete(peer string) {
	s := t.shardFor(peer)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, peer)
}

// forEach visits every connection currently in the table. The visitor
// must not call back into the shardTable.
func (t *shardTable) forEach(fn func(peer string, c *conn.Connection)) {
	for _, s := range t.shards {
		s.mu.Lock()
		for peer, c := range s.conns {
			fn(peer, c)
		}
		s.mu.Unlock()
	}
}

func (t *shardTable) count() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.conns)
		s.mu.Unlock()
	}
	return n
}
