// Package cursor defines the positionable iterator contract shared by index
// cursors and scope cursors.
//
// # Positions
//
// A cursor is always in one of three places: before the first element, on an
// element, or after the last element. Element-addressable cursors also support
// the gap positions produced by Before and After, which sit between two
// elements:
//
//	c.BeforeFirst()
//	for {
//	    ok, err := c.Next()
//	    if err != nil || !ok {
//	        break
//	    }
//	    e, _ := c.Get()
//	}
//
// Available reports whether the cursor sits on an element. Get fails with
// ErrInvalidPosition otherwise and never moves the cursor.
//
// # Composite Cursors
//
// Cursors that concatenate several sources have no single ordering and return
// ErrUnsupportedOperation from Before and After.
package cursor
