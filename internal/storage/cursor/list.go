package cursor

// ListCursor is a cursor over an in-memory slice. Elements are expected to be
// sorted by the comparator given to NewListCursor; a nil comparator makes the
// cursor unordered and Before/After unsupported.
type ListCursor[E any] struct {
	elements []E
	compare  func(a, b E) int

	// current is the index of the element under the cursor, or -1.
	current int
	// gap is the index Next would move to while current is -1.
	gap    int
	closed bool
}

// NewListCursor creates a cursor over elements. The slice is not copied.
func NewListCursor[E any](compare func(a, b E) int, elements ...E) *ListCursor[E] {
	return &ListCursor[E]{
		elements: elements,
		compare:  compare,
		current:  -1,
	}
}

// Before positions the cursor just before the first element not less than element.
func (c *ListCursor[E]) Before(element E) error {
	if c.closed {
		return ErrCursorClosed
	}
	if c.compare == nil {
		return ErrUnsupportedOperation
	}

	c.current = -1
	c.gap = c.search(element, false)
	return nil
}

// After positions the cursor just after the last element not greater than element.
func (c *ListCursor[E]) After(element E) error {
	if c.closed {
		return ErrCursorClosed
	}
	if c.compare == nil {
		return ErrUnsupportedOperation
	}

	c.current = -1
	c.gap = c.search(element, true)
	return nil
}

// search returns the index of the first element >= target, or > target when strict.
func (c *ListCursor[E]) search(target E, strict bool) int {
	lo, hi := 0, len(c.elements)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := c.compare(c.elements[mid], target)
		if cmp < 0 || (strict && cmp == 0) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BeforeFirst positions the cursor before the first element.
func (c *ListCursor[E]) BeforeFirst() error {
	if c.closed {
		return ErrCursorClosed
	}
	c.current = -1
	c.gap = 0
	return nil
}

// AfterLast positions the cursor after the last element.
func (c *ListCursor[E]) AfterLast() error {
	if c.closed {
		return ErrCursorClosed
	}
	c.current = -1
	c.gap = len(c.elements)
	return nil
}

// First moves to the first element.
func (c *ListCursor[E]) First() (bool, error) {
	if err := c.BeforeFirst(); err != nil {
		return false, err
	}
	return c.Next()
}

// Last moves to the last element.
func (c *ListCursor[E]) Last() (bool, error) {
	if err := c.AfterLast(); err != nil {
		return false, err
	}
	return c.Previous()
}

// Next advances to the next element.
func (c *ListCursor[E]) Next() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}

	next := c.gap
	if c.current >= 0 {
		next = c.current + 1
	}

	if next >= len(c.elements) {
		c.current = -1
		c.gap = len(c.elements)
		return false, nil
	}

	c.current = next
	return true, nil
}

// Previous moves back to the previous element.
func (c *ListCursor[E]) Previous() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}

	prev := c.gap - 1
	if c.current >= 0 {
		prev = c.current - 1
	}

	if prev < 0 {
		c.current = -1
		c.gap = 0
		return false, nil
	}

	c.current = prev
	return true, nil
}

// Get returns the element under the cursor.
func (c *ListCursor[E]) Get() (E, error) {
	var zero E
	if c.closed {
		return zero, ErrCursorClosed
	}
	if c.current < 0 {
		return zero, ErrInvalidPosition
	}
	return c.elements[c.current], nil
}

// Available reports whether the cursor is on an element.
func (c *ListCursor[E]) Available() bool {
	return !c.closed && c.current >= 0
}

// Close releases the cursor.
func (c *ListCursor[E]) Close() error {
	c.closed = true
	c.elements = nil
	return nil
}
