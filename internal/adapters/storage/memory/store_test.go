package memory

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(maxSlots int, maxEpochDiff uint64) *Store[int] {
	return NewStore[int]("test", Config{
		MaxSlots:     maxSlots,
		EvictFactor:  0.01,
		MaxEpochDiff: maxEpochDiff,
	}, zerolog.Nop())
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(10, 100)
	dropped := s.Insert(1, 42)
	require.Empty(t, dropped)

	v, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, s.Len())
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := newTestStore(10, 1000)

	var dropped []Entry[int]
	for i := 0; i < 13; i++ {
		dropped = append(dropped, s.Insert(uint32(i), i)...)
	}

	assert.LessOrEqual(t, s.Len(), 10)
	require.Len(t, dropped, 3)
	// Oldest went first.
	assert.Equal(t, uint32(0), dropped[0].VXID)
	assert.Equal(t, uint32(1), dropped[1].VXID)
	assert.Equal(t, uint32(2), dropped[2].VXID)

	_, ok := s.Get(0)
	assert.False(t, ok)
	_, ok = s.Get(12)
	assert.True(t, ok)
}

func TestEvictionBatchSize(t *testing.T) {
	s := NewStore[int]("test", Config{MaxSlots: 100, EvictFactor: 0.05, MaxEpochDiff: 1000}, zerolog.Nop())

	var dropped []Entry[int]
	for i := 0; i < 101; i++ {
		dropped = append(dropped, s.Insert(uint32(i), i)...)
	}
	// ceil(0.05 * 100) = 5 evicted in one pass.
	assert.Len(t, dropped, 5)
	assert.Equal(t, 96, s.Len())
}

func TestEpochExpiry(t *testing.T) {
	s := newTestStore(100, 10)

	var dropped []Entry[int]
	for i := 0; i < 13; i++ {
		dropped = append(dropped, s.Insert(uint32(i), i)...)
	}

	// Records older than 10 inserts expired on the way.
	require.NotEmpty(t, dropped)
	assert.Equal(t, uint32(0), dropped[0].VXID)
	for _, e := range dropped {
		assert.GreaterOrEqual(t, s.Epoch()-e.Epoch, uint64(10))
	}
}

func TestReinsertKeepsSingleSlot(t *testing.T) {
	s := newTestStore(10, 100)
	s.Insert(5, 1)
	s.Insert(5, 2)

	assert.Equal(t, 1, s.Len())
	v, ok := s.Get(5)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRemove(t *testing.T) {
	s := newTestStore(10, 100)
	s.Insert(1, 11)
	s.Insert(2, 22)

	v, ok := s.Remove(1)
	require.True(t, ok)
	assert.Equal(t, 11, v)
	assert.Equal(t, 1, s.Len())

	_, ok = s.Remove(1)
	assert.False(t, ok)
}

func TestDrainReturnsOldestFirst(t *testing.T) {
	s := newTestStore(10, 100)
	s.Insert(3, 33)
	s.Insert(1, 11)
	s.Insert(2, 22)

	drained := s.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, uint32(3), drained[0].VXID)
	assert.Equal(t, uint32(1), drained[1].VXID)
	assert.Equal(t, uint32(2), drained[2].VXID)
	assert.Equal(t, 0, s.Len())
}

func TestValuesPreserveInsertionOrder(t *testing.T) {
	s := newTestStore(10, 100)
	s.Insert(9, 90)
	s.Insert(4, 40)

	assert.Equal(t, []int{90, 40}, s.Values())
}
