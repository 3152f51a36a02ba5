package search

import (
	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// activeCursor identifies the source a ScopeCursor currently reads.
type activeCursor int

const (
	activeNone activeCursor = iota
	activeScope
	activeDeref
)

// ScopeCursor concatenates the ids in scope with the ids brought into
// scope by alias dereferencing. Forward iteration drains the scope cursor
// and then the dereferenced cursor; backward iteration visits the same ids
// in exactly the reverse order. Each source is switched to at most once per
// pass. ScopeCursor is unordered, so Before and After are unsupported.
type ScopeCursor struct {
	scope cursor.Cursor[index.Entry]
	deref cursor.Cursor[index.Entry] // nil when not dereferencing

	active    activeCursor
	available bool
	closed    bool
}

var _ cursor.Cursor[index.Entry] = (*ScopeCursor)(nil)

// NewScopeCursor creates a cursor over scope followed by deref. deref may
// be nil.
func NewScopeCursor(scope, deref cursor.Cursor[index.Entry]) *ScopeCursor {
	return &ScopeCursor{scope: scope, deref: deref}
}

// Before is not supported.
func (c *ScopeCursor) Before(index.Entry) error {
	if c.closed {
		return cursor.ErrCursorClosed
	}
	return cursor.ErrUnsupportedOperation
}

// After is not supported.
func (c *ScopeCursor) After(index.Entry) error {
	if c.closed {
		return cursor.ErrCursorClosed
	}
	return cursor.ErrUnsupportedOperation
}

// BeforeFirst positions the cursor before the first scope id.
func (c *ScopeCursor) BeforeFirst() error {
	if c.closed {
		return cursor.ErrCursorClosed
	}

	c.active = activeScope
	c.available = false
	return c.scope.BeforeFirst()
}

// AfterLast positions the cursor after the last dereferenced id, or after
// the last scope id when not dereferencing.
func (c *ScopeCursor) AfterLast() error {
	if c.closed {
		return cursor.ErrCursorClosed
	}

	c.available = false
	if c.deref != nil {
		c.active = activeDeref
		return c.deref.AfterLast()
	}
	c.active = activeScope
	return c.scope.AfterLast()
}

// First moves to the first id.
func (c *ScopeCursor) First() (bool, error) {
	if err := c.BeforeFirst(); err != nil {
		return false, err
	}
	return c.Next()
}

// Last moves to the last id.
func (c *ScopeCursor) Last() (bool, error) {
	if err := c.AfterLast(); err != nil {
		return false, err
	}
	return c.Previous()
}

// Next advances to the next id, switching from the scope cursor to the
// dereferenced cursor when the former is exhausted.
func (c *ScopeCursor) Next() (bool, error) {
	if c.closed {
		return false, cursor.ErrCursorClosed
	}
	if c.active == activeNone {
		if err := c.BeforeFirst(); err != nil {
			return false, err
		}
	}

	ok, err := c.current().Next()
	if err != nil {
		c.available = false
		return false, err
	}
	c.available = ok

	if ok || c.active == activeDeref || c.deref == nil {
		return ok, nil
	}

	c.active = activeDeref
	if err := c.deref.BeforeFirst(); err != nil {
		return false, err
	}
	if c.available, err = c.deref.Next(); err != nil {
		c.available = false
		return false, err
	}
	return c.available, nil
}

// Previous moves back to the previous id, switching from the dereferenced
// cursor to the scope cursor when the former is exhausted.
func (c *ScopeCursor) Previous() (bool, error) {
	if c.closed {
		return false, cursor.ErrCursorClosed
	}
	if c.active == activeNone {
		if err := c.AfterLast(); err != nil {
			return false, err
		}
	}

	ok, err := c.current().Previous()
	if err != nil {
		c.available = false
		return false, err
	}
	c.available = ok

	if ok || c.active == activeScope {
		return ok, nil
	}

	c.active = activeScope
	if err := c.scope.AfterLast(); err != nil {
		return false, err
	}
	if c.available, err = c.scope.Previous(); err != nil {
		c.available = false
		return false, err
	}
	return c.available, nil
}

// Get returns the entry under the cursor.
func (c *ScopeCursor) Get() (index.Entry, error) {
	if c.closed {
		return index.Entry{}, cursor.ErrCursorClosed
	}
	if !c.available {
		return index.Entry{}, cursor.ErrInvalidPosition
	}
	return c.current().Get()
}

// Available reports whether the cursor is positioned on an id.
func (c *ScopeCursor) Available() bool {
	return !c.closed && c.available
}

// Close closes both source cursors.
func (c *ScopeCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.available = false

	err := c.scope.Close()
	if c.deref != nil {
		if derr := c.deref.Close(); err == nil {
			err = derr
		}
	}
	return err
}

func (c *ScopeCursor) current() cursor.Cursor[index.Entry] {
	if c.active == activeDeref {
		return c.deref
	}
	return c.scope
}
