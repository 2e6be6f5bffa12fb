// Package memory provides the bounded in-memory vxid store backing the
// record state machine and the correlation layer.
//
// vxids are assigned by the cache from per-worker pools and recycle after
// roughly 1Gi values, so entries cannot be kept forever: the store bounds
// both slot count and age. Age is measured in epochs, a counter advanced on
// every insert, so no wall clock is involved.
package memory

import (
	"math"

	"github.com/rs/zerolog"
)

// Defaults match the expected load of a single busy cache instance.
const (
	DefaultMaxSlots     = 4000
	DefaultEvictFactor  = 0.01
	DefaultMaxEpochDiff = 14410

	// At most this many expiry candidates are examined per insert.
	expireLimit = 10
)

// Config bounds one store instance.
type Config struct {
	// MaxSlots caps the number of live entries.
	MaxSlots int
	// EvictFactor is the fraction of MaxSlots removed in one eviction pass
	// when an insert finds the store full.
	EvictFactor float64
	// MaxEpochDiff is how many inserts old an entry may grow before it is
	// expired.
	MaxEpochDiff uint64
}

func DefaultConfig() Config {
	return Config{
		MaxSlots:     DefaultMaxSlots,
		EvictFactor:  DefaultEvictFactor,
		MaxEpochDiff: DefaultMaxEpochDiff,
	}
}

// Entry is a stored value with the epoch it was inserted at. Dropped entries
// are returned to the caller so they can be flushed downstream as partial
// records instead of vanishing.
type Entry[T any] struct {
	VXID  uint32
	Epoch uint64
	Value T
}

// Store is a bounded vxid-keyed store with insertion-order eviction. It is
// single-threaded by construction: the owning pipeline is its only mutator.
type Store[T any] struct {
	name  string
	items map[uint32]*Entry[T]
	// order holds vxids oldest first; epoch order equals insertion order.
	order []uint32

	epoch        uint64
	maxSlots     int
	nukeCount    int
	maxEpochDiff uint64

	log zerolog.Logger
}

func NewStore[T any](name string, cfg Config, log zerolog.Logger) *Store[T] {
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = DefaultMaxSlots
	}
	if cfg.EvictFactor <= 0 {
		cfg.EvictFactor = DefaultEvictFactor
	}
	if cfg.MaxEpochDiff == 0 {
		cfg.MaxEpochDiff = DefaultMaxEpochDiff
	}
	nuke := int(math.Ceil(cfg.EvictFactor * float64(cfg.MaxSlots)))
	if nuke < 1 {
		nuke = 1
	}
	return &Store[T]{
		name:         name,
		items:        make(map[uint32]*Entry[T], cfg.MaxSlots),
		order:        make([]uint32, 0, cfg.MaxSlots),
		maxSlots:     cfg.MaxSlots,
		nukeCount:    nuke,
		maxEpochDiff: cfg.MaxEpochDiff,
		log:          log.With().Str("store", name).Logger(),
	}
}

// Insert stores value under vxid, advancing the epoch. Entries removed to
// make room (expired or evicted) are returned oldest first.
func (s *Store[T]) Insert(vxid uint32, value T) []Entry[T] {
	s.epoch++

	dropped := s.expire()

	if _, ok := s.items[vxid]; ok {
		s.removeFromOrder(vxid)
	} else if len(s.items) >= s.maxSlots {
		dropped = append(dropped, s.nuke()...)
	}

	s.items[vxid] = &Entry[T]{VXID: vxid, Epoch: s.epoch, Value: value}
	s.order = append(s.order, vxid)
	return dropped
}

// Get returns the value stored under vxid.
func (s *Store[T]) Get(vxid uint32) (T, bool) {
	if e, ok := s.items[vxid]; ok {
		return e.Value, true
	}
	var zero T
	return zero, false
}

func (s *Store[T]) Contains(vxid uint32) bool {
	_, ok := s.items[vxid]
	return ok
}

// Remove deletes and returns the value stored under vxid.
func (s *Store[T]) Remove(vxid uint32) (T, bool) {
	e, ok := s.items[vxid]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.items, vxid)
	s.removeFromOrder(vxid)
	return e.Value, true
}

func (s *Store[T]) Len() int { return len(s.items) }

// Epoch returns the current insert counter.
func (s *Store[T]) Epoch() uint64 { return s.epoch }

// Values returns stored values oldest first.
func (s *Store[T]) Values() []T {
	out := make([]T, 0, len(s.order))
	for _, vxid := range s.order {
		if e, ok := s.items[vxid]; ok {
			out = append(out, e.Value)
		}
	}
	return out
}

// Drain removes and returns all entries oldest first. Used when the stream
// ends and everything left must be flushed as partial.
func (s *Store[T]) Drain() []Entry[T] {
	out := make([]Entry[T], 0, len(s.order))
	for _, vxid := range s.order {
		if e, ok := s.items[vxid]; ok {
			out = append(out, *e)
		}
	}
	s.items = make(map[uint32]*Entry[T], s.maxSlots)
	s.order = s.order[:0]
	return out
}

// expire pops entries from the front that are more than maxEpochDiff inserts
// old. Bounded per call so one insert cannot stall on a cold store.
func (s *Store[T]) expire() []Entry[T] {
	var dropped []Entry[T]
	for i := 0; i < expireLimit && len(s.order) > 0; i++ {
		oldest, ok := s.items[s.order[0]]
		if !ok {
			s.order = s.order[1:]
			continue
		}
		if s.epoch-oldest.Epoch <= s.maxEpochDiff {
			break
		}
		delete(s.items, oldest.VXID)
		s.order = s.order[1:]
		dropped = append(dropped, *oldest)
	}
	if len(dropped) > 0 {
		s.log.Warn().Int("count", len(dropped)).Uint64("epoch", s.epoch).
			Msg("expired records past epoch limit")
	}
	return dropped
}

// nuke evicts the oldest nukeCount entries to make room for an insert.
func (s *Store[T]) nuke() []Entry[T] {
	count := s.nukeCount
	if count > len(s.order) {
		count = len(s.order)
	}
	dropped := make([]Entry[T], 0, count)
	for i := 0; i < count; i++ {
		oldest, ok := s.items[s.order[0]]
		s.order = s.order[1:]
		if !ok {
			continue
		}
		delete(s.items, oldest.VXID)
		dropped = append(dropped, *oldest)
	}
	s.log.Warn().Int("count", len(dropped)).Uint64("epoch", s.epoch).
		Msg("evicted oldest records to stay within slot capacity")
	return dropped
}

func (s *Store[T]) removeFromOrder(vxid uint32) {
	for i, id := range s.order {
		if id == vxid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
