package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

func testID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

func listOf(ids ...byte) *cursor.ListCursor[index.Entry] {
	entries := make([]index.Entry, len(ids))
	for i, n := range ids {
		entries[i] = index.Entry{Key: index.IDKey(testID(0)), ID: testID(n)}
	}
	return cursor.NewListCursor(nil, entries...)
}

func idsOf(entries []index.Entry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestScopeCursorForwardDrainsScopeThenDeref(t *testing.T) {
	c := NewScopeCursor(listOf(1, 2), listOf(9))

	entries, err := cursor.Collect[index.Entry](c)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{testID(1), testID(2), testID(9)}, idsOf(entries))
	assert.False(t, c.Available())
}

func TestScopeCursorBackwardIsExactReverse(t *testing.T) {
	c := NewScopeCursor(listOf(1, 2), listOf(9))

	entries, err := cursor.CollectReverse[index.Entry](c)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{testID(9), testID(2), testID(1)}, idsOf(entries))
	assert.False(t, c.Available())
}

func TestScopeCursorWithoutDeref(t *testing.T) {
	c := NewScopeCursor(listOf(5, 6), nil)

	require.NoError(t, c.BeforeFirst())
	for _, want := range []byte{5, 6} {
		ok, err := c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		e, err := c.Get()
		require.NoError(t, err)
		assert.Equal(t, testID(want), e.ID)
	}

	ok, err := c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.Available())
	assert.Equal(t, activeScope, c.active, "no switch without a dereferenced cursor")

	ok, err = c.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopeCursorNoRevisitAfterSwitch(t *testing.T) {
	c := NewScopeCursor(listOf(1), listOf(9))

	require.NoError(t, c.BeforeFirst())
	for i := 0; i < 2; i++ {
		ok, err := c.Next()
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < 3; i++ {
		ok, err := c.Next()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, activeDeref, c.active)
	}
}

func TestScopeCursorImplicitPositioning(t *testing.T) {
	t.Run("next from unpositioned", func(t *testing.T) {
		c := NewScopeCursor(listOf(), listOf(9))
		assert.Equal(t, activeNone, c.active)

		ok, err := c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, c.Available())

		e, err := c.Get()
		require.NoError(t, err)
		assert.Equal(t, testID(9), e.ID)
	})

	t.Run("previous from unpositioned", func(t *testing.T) {
		c := NewScopeCursor(listOf(1, 2), listOf())

		ok, err := c.Previous()
		require.NoError(t, err)
		require.True(t, ok)

		e, err := c.Get()
		require.NoError(t, err)
		assert.Equal(t, testID(2), e.ID)
	})
}

func TestScopeCursorFirstLast(t *testing.T) {
	c := NewScopeCursor(listOf(1, 2), listOf(9))

	ok, err := c.Last()
	require.NoError(t, err)
	require.True(t, ok)
	e, err := c.Get()
	require.NoError(t, err)
	assert.Equal(t, testID(9), e.ID)

	ok, err = c.First()
	require.NoError(t, err)
	require.True(t, ok)
	e, err = c.Get()
	require.NoError(t, err)
	assert.Equal(t, testID(1), e.ID)
}

func TestScopeCursorGetBeforePositioning(t *testing.T) {
	c := NewScopeCursor(listOf(1), nil)

	_, err := c.Get()
	assert.ErrorIs(t, err, cursor.ErrInvalidPosition)

	require.NoError(t, c.BeforeFirst())
	_, err = c.Get()
	assert.ErrorIs(t, err, cursor.ErrInvalidPosition)
	assert.False(t, c.Available())
}

func TestScopeCursorBeforeAfterUnsupported(t *testing.T) {
	c := NewScopeCursor(listOf(1), listOf(2))
	e := index.Entry{Key: index.IDKey(testID(0)), ID: testID(1)}

	assert.ErrorIs(t, c.Before(e), cursor.ErrUnsupportedOperation)
	assert.ErrorIs(t, c.After(e), cursor.ErrUnsupportedOperation)
}

func TestScopeCursorClosed(t *testing.T) {
	c := NewScopeCursor(listOf(1), listOf(2))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Next()
	assert.ErrorIs(t, err, cursor.ErrCursorClosed)
	_, err = c.Get()
	assert.ErrorIs(t, err, cursor.ErrCursorClosed)
	assert.ErrorIs(t, c.BeforeFirst(), cursor.ErrCursorClosed)
	assert.False(t, c.Available())
}
