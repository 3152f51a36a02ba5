package index

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
)

// entryCodec maps between cursor entries and (table key, posting value) pairs.
type entryCodec struct {
	decode func(tableKey, value []byte) (Entry, error)
	encode func(e Entry) (tableKey, value []byte, err error)
}

var forwardCodec = entryCodec{
	decode: func(tableKey, value []byte) (Entry, error) {
		key, err := decodeKey(tableKey)
		if err != nil {
			return Entry{}, err
		}
		id, err := uuid.FromBytes(value)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrCorruptKey, err)
		}
		return Entry{Key: key, ID: id}, nil
	},
	encode: func(e Entry) ([]byte, []byte, error) {
		enc, err := encodeKey(e.Key)
		return enc, e.ID[:], err
	},
}

var reverseCodec = entryCodec{
	decode: func(tableKey, value []byte) (Entry, error) {
		id, err := uuid.FromBytes(tableKey)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrCorruptKey, err)
		}
		key, err := decodeKey(value)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Key: key, ID: id}, nil
	},
	encode: func(e Entry) ([]byte, []byte, error) {
		enc, err := encodeKey(e.Key)
		return e.ID[:], enc, err
	},
}

type edge int

const (
	edgeNone edge = iota
	edgeBefore
	edgeAfter
)

// tableCursor walks the (key, value) pairs of a table. Keys iterate in byte
// order and the values of one key in insertion order.
//
// Away from the edges the underlying iterator sits on key and pos indexes its
// values: the element under the cursor when available, otherwise the element
// Next would return.
type tableCursor struct {
	it        tableIter
	codec     entryCodec
	edge      edge
	key       []byte
	values    [][]byte
	pos       int
	available bool
	closed    bool
}

var _ cursor.Cursor[Entry] = (*tableCursor)(nil)

func newTableCursor(it tableIter, codec entryCodec) *tableCursor {
	return &tableCursor{it: it, codec: codec, edge: edgeBefore}
}

func (c *tableCursor) load() error {
	values, err := c.it.values()
	if err != nil {
		return err
	}
	c.key = bytes.Clone(c.it.key())
	c.values = values
	c.edge = edgeNone
	return nil
}

func (c *tableCursor) park(e edge) (bool, error) {
	c.edge = e
	c.available = false
	c.key, c.values, c.pos = nil, nil, 0
	return false, c.it.error()
}

func (c *tableCursor) Before(element Entry) error {
	return c.seek(element, false)
}

func (c *tableCursor) After(element Entry) error {
	return c.seek(element, true)
}

func (c *tableCursor) seek(element Entry, after bool) error {
	if c.closed {
		return cursor.ErrCursorClosed
	}

	tableKey, value, err := c.codec.encode(element)
	if err != nil {
		return err
	}

	if !c.it.seekGE(tableKey) {
		_, err := c.park(edgeAfter)
		return err
	}
	if err := c.load(); err != nil {
		return err
	}

	c.available = false
	c.pos = 0
	if !bytes.Equal(c.key, tableKey) {
		return nil
	}

	for i, v := range c.values {
		if bytes.Equal(v, value) {
			c.pos = i
			if after {
				c.pos = i + 1
			}
			return nil
		}
	}
	if after {
		c.pos = len(c.values)
	}
	return nil
}

func (c *tableCursor) BeforeFirst() error {
	if c.closed {
		return cursor.ErrCursorClosed
	}
	_, _ = c.park(edgeBefore)
	return nil
}

func (c *tableCursor) AfterLast() error {
	if c.closed {
		return cursor.ErrCursorClosed
	}
	_, _ = c.park(edgeAfter)
	return nil
}

func (c *tableCursor) First() (bool, error) {
	if err := c.BeforeFirst(); err != nil {
		return false, err
	}
	return c.Next()
}

func (c *tableCursor) Last() (bool, error) {
	if err := c.AfterLast(); err != nil {
		return false, err
	}
	return c.Previous()
}

func (c *tableCursor) Next() (bool, error) {
	if c.closed {
		return false, cursor.ErrCursorClosed
	}

	switch c.edge {
	case edgeAfter:
		return false, nil
	case edgeBefore:
		if !c.it.first() {
			return c.park(edgeAfter)
		}
		if err := c.load(); err != nil {
			return false, err
		}
		c.pos = 0
	default:
		if c.available {
			c.pos++
		}
	}

	for c.pos >= len(c.values) {
		if !c.it.next() {
			return c.park(edgeAfter)
		}
		if err := c.load(); err != nil {
			return false, err
		}
		c.pos = 0
	}

	c.available = true
	return true, nil
}

func (c *tableCursor) Previous() (bool, error) {
	if c.closed {
		return false, cursor.ErrCursorClosed
	}

	switch c.edge {
	case edgeBefore:
		return false, nil
	case edgeAfter:
		if !c.it.last() {
			return c.park(edgeBefore)
		}
		if err := c.load(); err != nil {
			return false, err
		}
		c.pos = len(c.values) - 1
	default:
		c.pos--
	}

	for c.pos < 0 {
		if !c.it.prev() {
			return c.park(edgeBefore)
		}
		if err := c.load(); err != nil {
			return false, err
		}
		c.pos = len(c.values) - 1
	}

	c.available = true
	return true, nil
}

func (c *tableCursor) Get() (Entry, error) {
	if c.closed {
		return Entry{}, cursor.ErrCursorClosed
	}
	if !c.available {
		return Entry{}, cursor.ErrInvalidPosition
	}
	return c.codec.decode(c.key, c.values[c.pos])
}

func (c *tableCursor) Available() bool {
	return !c.closed && c.available
}

func (c *tableCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.available = false
	return c.it.close()
}
