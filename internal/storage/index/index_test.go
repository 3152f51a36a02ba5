package index

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
)

func testID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

// forEachBackend runs fn against the memory and the pebble backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, backend Backend)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryBackend())
	})
	t.Run("pebble", func(t *testing.T) {
		backend, err := OpenPebbleBackend("/index", PebbleOptions{FS: vfs.NewMem()})
		require.NoError(t, err)
		t.Cleanup(func() { backend.Close() })
		fn(t, backend)
	})
}

func newTestIndex(backend Backend) *tableIndex {
	return newTableIndex(backend, "2.5.4.3", "cn", false, KeyString)
}

// =============================================================================
// Add / Drop Tests
// =============================================================================

func TestIndexAddDrop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		key, id := StringKey("alice"), testID(1)

		require.NoError(t, idx.Add(key, id))
		require.NoError(t, idx.Add(key, id), "add is idempotent")

		fwd, err := idx.Forward(key, id)
		require.NoError(t, err)
		rev, err := idx.Reverse(id, key)
		require.NoError(t, err)
		assert.True(t, fwd)
		assert.True(t, rev)

		count, err := idx.ForwardCount(key)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, ok, err := idx.ForwardLookup(key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, got)

		gotKey, ok, err := idx.ReverseLookup(id)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, key, gotKey)

		require.NoError(t, idx.Drop(key, id))
		require.NoError(t, idx.Drop(key, id), "drop is idempotent")

		fwd, _ = idx.Forward(key, id)
		rev, _ = idx.Reverse(id, key)
		assert.False(t, fwd)
		assert.False(t, rev)

		_, ok, err = idx.ForwardLookup(key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestIndexDropID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		id, other := testID(1), testID(2)

		require.NoError(t, idx.Add(StringKey("a"), id))
		require.NoError(t, idx.Add(StringKey("b"), id))
		require.NoError(t, idx.Add(StringKey("a"), other))

		require.NoError(t, idx.DropID(id))

		count, err := idx.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		ok, err := idx.Forward(StringKey("a"), other)
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = idx.ReverseLookup(id)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// TestIndexForwardReverseAgree applies random add/drop sequences and checks
// after every call that forward and reverse membership agree.
func TestIndexForwardReverseAgree(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		rng := rand.New(rand.NewSource(42))
		keys := []Key{StringKey("a"), StringKey("b"), StringKey("c"), StringKey("d")}
		model := make(map[string]bool)

		for i := 0; i < 500; i++ {
			key := keys[rng.Intn(len(keys))]
			id := testID(byte(rng.Intn(8)))
			pair := key.String() + "/" + id.String()

			if rng.Intn(2) == 0 {
				require.NoError(t, idx.Add(key, id))
				model[pair] = true
			} else {
				require.NoError(t, idx.Drop(key, id))
				delete(model, pair)
			}

			fwd, err := idx.Forward(key, id)
			require.NoError(t, err)
			rev, err := idx.Reverse(id, key)
			require.NoError(t, err)
			require.Equal(t, fwd, rev, "step %d: %s", i, pair)
			require.Equal(t, model[pair], fwd, "step %d: %s", i, pair)
		}

		count, err := idx.Count()
		require.NoError(t, err)
		assert.Equal(t, len(model), count)

		violations, err := Verify(idx)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})
}

func TestIndexClosed(t *testing.T) {
	idx := newTestIndex(NewMemoryBackend())
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Add(StringKey("a"), testID(1)), ErrIndexClosed)
	assert.ErrorIs(t, idx.Drop(StringKey("a"), testID(1)), ErrIndexClosed)
	_, err := idx.ForwardCursor(nil)
	assert.ErrorIs(t, err, ErrIndexClosed)
	_, err = idx.Count()
	assert.ErrorIs(t, err, ErrIndexClosed)
	_, err = idx.ForwardCount(StringKey("a"))
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestIndexUnsupportedKey(t *testing.T) {
	idx := newTestIndex(NewMemoryBackend())
	assert.ErrorIs(t, idx.Add(nil, testID(1)), ErrUnsupportedKey)
}

// =============================================================================
// Cursor Tests
// =============================================================================

func TestForwardCursorOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)

		require.NoError(t, idx.Add(StringKey("b"), testID(3)))
		require.NoError(t, idx.Add(StringKey("a"), testID(9)))
		require.NoError(t, idx.Add(StringKey("a"), testID(1)))
		require.NoError(t, idx.Add(StringKey("c"), testID(2)))

		c, err := idx.ForwardCursor(nil)
		require.NoError(t, err)
		defer c.Close()

		got, err := cursor.Collect(c)
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Key: StringKey("a"), ID: testID(9)},
			{Key: StringKey("a"), ID: testID(1)},
			{Key: StringKey("b"), ID: testID(3)},
			{Key: StringKey("c"), ID: testID(2)},
		}, got)

		back, err := cursor.CollectReverse(c)
		require.NoError(t, err)
		assert.Equal(t, []Entry{got[3], got[2], got[1], got[0]}, back)
	})
}

func TestForwardCursorKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)

		require.NoError(t, idx.Add(StringKey("a"), testID(1)))
		require.NoError(t, idx.Add(StringKey("ab"), testID(2)))
		require.NoError(t, idx.Add(StringKey("a"), testID(3)))
		require.NoError(t, idx.Add(StringKey("b"), testID(4)))

		c, err := idx.ForwardCursor(StringKey("a"))
		require.NoError(t, err)
		defer c.Close()

		got, err := cursor.Collect(c)
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Key: StringKey("a"), ID: testID(1)},
			{Key: StringKey("a"), ID: testID(3)},
		}, got)

		from, err := idx.ForwardCursorFrom(StringKey("ab"))
		require.NoError(t, err)
		defer from.Close()

		got, err = cursor.Collect(from)
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Key: StringKey("ab"), ID: testID(2)},
			{Key: StringKey("b"), ID: testID(4)},
		}, got)
	})
}

func TestReverseCursor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		id := testID(5)

		require.NoError(t, idx.Add(StringKey("z"), id))
		require.NoError(t, idx.Add(StringKey("m"), id))
		require.NoError(t, idx.Add(StringKey("m"), testID(6)))

		c, err := idx.ReverseCursor(&id)
		require.NoError(t, err)
		defer c.Close()

		got, err := cursor.Collect(c)
		require.NoError(t, err)
		assert.Equal(t, []Entry{
			{Key: StringKey("z"), ID: id},
			{Key: StringKey("m"), ID: id},
		}, got)

		all, err := idx.ReverseCursor(nil)
		require.NoError(t, err)
		defer all.Close()

		got, err = cursor.Collect(all)
		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Equal(t, testID(6), got[2].ID)
	})
}

// TestCursorContract tests Get before positioning and the first element
// after BeforeFirst and Next.
func TestCursorContract(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		require.NoError(t, idx.Add(StringKey("b"), testID(2)))
		require.NoError(t, idx.Add(StringKey("a"), testID(1)))

		c, err := idx.ForwardCursor(nil)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.Get()
		assert.ErrorIs(t, err, cursor.ErrInvalidPosition)
		assert.False(t, c.Available())

		require.NoError(t, c.BeforeFirst())
		ok, err := c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, c.Available())

		e, err := c.Get()
		require.NoError(t, err)
		assert.Equal(t, Entry{Key: StringKey("a"), ID: testID(1)}, e)

		e2, err := c.Get()
		require.NoError(t, err)
		assert.Equal(t, e, e2, "Get does not move the cursor")

		require.NoError(t, c.Close())
		_, err = c.Next()
		assert.ErrorIs(t, err, cursor.ErrCursorClosed)
	})
}

func TestCursorBeforeAfter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		require.NoError(t, idx.Add(StringKey("a"), testID(1)))
		require.NoError(t, idx.Add(StringKey("b"), testID(2)))
		require.NoError(t, idx.Add(StringKey("b"), testID(3)))
		require.NoError(t, idx.Add(StringKey("d"), testID(4)))

		c, err := idx.ForwardCursor(nil)
		require.NoError(t, err)
		defer c.Close()

		tests := []struct {
			name    string
			after   bool
			element Entry
			next    *Entry
			prev    *Entry
		}{
			{"before duplicate", false, Entry{StringKey("b"), testID(3)},
				&Entry{StringKey("b"), testID(3)}, &Entry{StringKey("b"), testID(2)}},
			{"after duplicate", true, Entry{StringKey("b"), testID(2)},
				&Entry{StringKey("b"), testID(3)}, &Entry{StringKey("b"), testID(2)}},
			{"before missing key", false, Entry{StringKey("c"), testID(9)},
				&Entry{StringKey("d"), testID(4)}, &Entry{StringKey("b"), testID(3)}},
			{"after missing id", true, Entry{StringKey("b"), testID(9)},
				&Entry{StringKey("d"), testID(4)}, &Entry{StringKey("b"), testID(3)}},
			{"after everything", true, Entry{StringKey("z"), testID(1)},
				nil, &Entry{StringKey("d"), testID(4)}},
			{"before everything", false, Entry{StringKey(""), testID(0)},
				&Entry{StringKey("a"), testID(1)}, nil},
		}

		position := func(after bool, e Entry) {
			if after {
				require.NoError(t, c.After(e))
			} else {
				require.NoError(t, c.Before(e))
			}
			assert.False(t, c.Available())
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				position(tt.after, tt.element)
				ok, err := c.Next()
				require.NoError(t, err)
				require.Equal(t, tt.next != nil, ok)
				if ok {
					e, _ := c.Get()
					assert.Equal(t, *tt.next, e)
				}

				position(tt.after, tt.element)
				ok, err = c.Previous()
				require.NoError(t, err)
				require.Equal(t, tt.prev != nil, ok)
				if ok {
					e, _ := c.Get()
					assert.Equal(t, *tt.prev, e)
				}
			})
		}
	})
}

func TestCursorSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		idx := newTestIndex(backend)
		require.NoError(t, idx.Add(StringKey("a"), testID(1)))

		c, err := idx.ForwardCursor(nil)
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, idx.Add(StringKey("b"), testID(2)))
		require.NoError(t, idx.Drop(StringKey("a"), testID(1)))

		got, err := cursor.Collect(c)
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Key: StringKey("a"), ID: testID(1)}}, got)
	})
}

func TestCursorEmptyIndex(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend Backend) {
		c, err := newTestIndex(backend).ForwardCursor(nil)
		require.NoError(t, err)
		defer c.Close()

		ok, err := c.First()
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.Last()
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// =============================================================================
// Verify Tests
// =============================================================================

func TestVerifyDetectsTornPairs(t *testing.T) {
	idx := newTestIndex(NewMemoryBackend())
	require.NoError(t, idx.Add(StringKey("ok"), testID(1)))

	enc, err := encodeKey(StringKey("fwd"))
	require.NoError(t, err)
	id := testID(2)
	require.NoError(t, addPosting(idx.forward, enc, id[:]))

	enc, err = encodeKey(StringKey("rev"))
	require.NoError(t, err)
	id = testID(3)
	require.NoError(t, addPosting(idx.reverse, id[:], enc))

	violations, err := Verify(idx)
	require.NoError(t, err)
	require.Len(t, violations, 2)

	assert.Equal(t, StringKey("fwd"), violations[0].Key)
	assert.True(t, violations[0].Forward)
	assert.False(t, violations[0].Reverse)

	assert.Equal(t, StringKey("rev"), violations[1].Key)
	assert.False(t, violations[1].Forward)
	assert.True(t, violations[1].Reverse)
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestPebbleBackendReopen(t *testing.T) {
	fs := vfs.NewMem()

	backend, err := OpenPebbleBackend("/index", PebbleOptions{FS: fs})
	require.NoError(t, err)

	idx := newTestIndex(backend)
	require.NoError(t, idx.Add(StringKey("persisted"), testID(7)))
	require.NoError(t, backend.Sync())
	require.NoError(t, backend.Close())

	backend, err = OpenPebbleBackend("/index", PebbleOptions{FS: fs})
	require.NoError(t, err)
	defer backend.Close()

	ok, err := newTestIndex(backend).Forward(StringKey("persisted"), testID(7))
	require.NoError(t, err)
	assert.True(t, ok)
}
