package cursor

import "errors"

// Cursor errors.
var (
	ErrInvalidPosition      = errors.New("cursor is not positioned on an element")
	ErrUnsupportedOperation = errors.New("operation not supported by cursor")
	ErrCursorClosed         = errors.New("cursor is closed")
)

// Cursor is an ordered, positionable iterator over elements of type E.
// A Cursor is single-owner and must not be used from several goroutines.
type Cursor[E any] interface {
	// Before positions the cursor in the gap just before element, so that
	// Next returns the first element not less than it.
	Before(element E) error

	// After positions the cursor in the gap just after element, so that
	// Next returns the first element greater than it.
	After(element E) error

	// BeforeFirst positions the cursor before the first element.
	BeforeFirst() error

	// AfterLast positions the cursor after the last element.
	AfterLast() error

	// First moves to the first element.
	First() (bool, error)

	// Last moves to the last element.
	Last() (bool, error)

	// Next advances to the next element.
	Next() (bool, error)

	// Previous moves back to the previous element.
	Previous() (bool, error)

	// Get returns the element under the cursor.
	Get() (E, error)

	// Available reports whether the cursor is positioned on an element.
	Available() bool

	// Close releases the cursor. Further calls return ErrCursorClosed.
	Close() error
}

// Collect drains c from the beginning and returns every element in order.
func Collect[E any](c Cursor[E]) ([]E, error) {
	if err := c.BeforeFirst(); err != nil {
		return nil, err
	}

	var out []E
	for {
		ok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		e, err := c.Get()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

// CollectReverse drains c from the end and returns every element in reverse order.
func CollectReverse[E any](c Cursor[E]) ([]E, error) {
	if err := c.AfterLast(); err != nil {
		return nil, err
	}

	var out []E
	for {
		ok, err := c.Previous()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		e, err := c.Get()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}
