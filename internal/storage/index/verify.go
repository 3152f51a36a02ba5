package index

import (
	"fmt"

	"github.com/google/uuid"
)

// Violation is a (key, id) pair present in only one table of an index.
type Violation struct {
	Index   string
	Key     Key
	ID      uuid.UUID
	Forward bool
	Reverse bool
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: (%s, %s) forward=%t reverse=%t", v.Index, v.Key, v.ID, v.Forward, v.Reverse)
}

// Verify scans both tables of idx and returns every pair whose forward and
// reverse membership disagree.
func Verify(idx Index) ([]Violation, error) {
	var violations []Violation

	fwd, err := idx.ForwardCursor(nil)
	if err != nil {
		return nil, err
	}
	defer fwd.Close()

	for ok, err := fwd.First(); ok || err != nil; ok, err = fwd.Next() {
		if err != nil {
			return nil, err
		}
		e, err := fwd.Get()
		if err != nil {
			return nil, err
		}
		present, err := idx.Reverse(e.ID, e.Key)
		if err != nil {
			return nil, err
		}
		if !present {
			violations = append(violations, Violation{Index: idx.Name(), Key: e.Key, ID: e.ID, Forward: true})
		}
	}

	rev, err := idx.ReverseCursor(nil)
	if err != nil {
		return nil, err
	}
	defer rev.Close()

	for ok, err := rev.First(); ok || err != nil; ok, err = rev.Next() {
		if err != nil {
			return nil, err
		}
		e, err := rev.Get()
		if err != nil {
			return nil, err
		}
		present, err := idx.Forward(e.Key, e.ID)
		if err != nil {
			return nil, err
		}
		if !present {
			violations = append(violations, Violation{Index: idx.Name(), Key: e.Key, ID: e.ID, Reverse: true})
		}
	}

	return violations, nil
}
