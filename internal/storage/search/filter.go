package search

import (
	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// filterCursor skips the entries of a source cursor that keep rejects.
type filterCursor struct {
	cursor.Cursor[index.Entry]
	keep func(index.Entry) (bool, error)
}

func newFilterCursor(src cursor.Cursor[index.Entry], keep func(index.Entry) (bool, error)) *filterCursor {
	return &filterCursor{Cursor: src, keep: keep}
}

func (c *filterCursor) First() (bool, error) {
	if err := c.BeforeFirst(); err != nil {
		return false, err
	}
	return c.Next()
}

func (c *filterCursor) Last() (bool, error) {
	if err := c.AfterLast(); err != nil {
		return false, err
	}
	return c.Previous()
}

func (c *filterCursor) Next() (bool, error) {
	return c.advance(c.Cursor.Next)
}

func (c *filterCursor) Previous() (bool, error) {
	return c.advance(c.Cursor.Previous)
}

func (c *filterCursor) advance(step func() (bool, error)) (bool, error) {
	for {
		ok, err := step()
		if err != nil || !ok {
			return false, err
		}

		e, err := c.Cursor.Get()
		if err != nil {
			return false, err
		}
		keep, err := c.keep(e)
		if err != nil {
			return false, err
		}
		if keep {
			return true, nil
		}
	}
}
