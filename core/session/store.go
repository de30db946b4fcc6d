// Package session holds per-session pipeline state: the artifact slots,
// the stage state machine and the stage-generation counter used to drop
// stale results.
//
// Entries are only mutated through Claim, the Commit methods and Fail,
// each of which holds the entry lock for a short critical section. Nothing
// here blocks on I/O.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Store is the session artifact store, sharded by session ID.
type Store struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an empty store. now may be nil.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{now: now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	return &s.shards[xxhash.Sum64String(id)%shardCount]
}

// Get returns the entry for id.
func (s *Store) Get(id string) (*Entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[id]
	return e, ok
}

// GetOrCreate returns the entry for id, creating it in AwaitingOutline.
// The second result reports creation.
func (s *Store) GetOrCreate(id string) (*Entry, bool) {
	if e, ok := s.Get(id); ok {
		return e, false
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[id]; ok {
		return e, false
	}
	now := s.now()
	e := &Entry{id: id, state: AwaitingOutline, createdAt: now, updatedAt: now}
	sh.entries[id] = e
	return e, true
}

// Put installs e, replacing any entry with the same ID.
func (s *Store) Put(e *Entry) {
	sh := s.shardFor(e.id)
	sh.mu.Lock()
	sh.entries[e.id] = e
	sh.mu.Unlock()
}

// Delete removes the entry for id and reports whether it existed. It
// returns once in-flight IfLive callbacks on the entry have finished.
func (s *Store) Delete(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.entries[id]
	if ok {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
	if ok {
		e.markRemoved()
	}
	return ok
}

// Sweep removes entries not updated within ttl and returns their IDs,
// sorted. Entries with a stage in flight are kept.
func (s *Store) Sweep(ttl time.Duration) []string {
	cutoff := s.now().Add(-ttl)
	var expired []*Entry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			if e.idleSince(cutoff) {
				delete(sh.entries, id)
				expired = append(expired, e)
			}
		}
		sh.mu.Unlock()
	}
	removed := make([]string, 0, len(expired))
	for _, e := range expired {
		e.markRemoved()
		removed = append(removed, e.id)
	}
	sort.Strings(removed)
	return removed
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// IDs returns all session IDs, sorted.
func (s *Store) IDs() []string {
	var ids []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id := range sh.entries {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}
