package search

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// maxAliasHops bounds base dereferencing.
const maxAliasHops = 32

// ResolveBase follows baseID through aliases when mode dereferences the
// base entry and returns the id the search starts from.
func ResolveBase(src Source, baseID uuid.UUID, mode AliasDerefMode) (uuid.UUID, error) {
	if !mode.FindingBase() {
		return baseID, nil
	}

	id := baseID
	for hop := 0; hop < maxAliasHops; hop++ {
		target, ok, err := src.AliasIndex().ReverseLookup(id)
		if err != nil {
			return uuid.Nil, err
		}
		if !ok {
			return id, nil
		}
		if id, err = src.EntryID(target.String()); err != nil {
			return uuid.Nil, fmt.Errorf("dereference alias %s: %w", target, err)
		}
	}
	return uuid.Nil, fmt.Errorf("%w: base %s", ErrAliasLoop, baseID)
}

// NewCursor opens a cursor over the ids within scope of baseID. The base is
// dereferenced first when mode asks for it.
func NewCursor(src Source, scope Scope, baseID uuid.UUID, mode AliasDerefMode) (*ScopeCursor, error) {
	base, err := ResolveBase(src, baseID, mode)
	if err != nil {
		return nil, err
	}

	switch scope {
	case ScopeBase:
		single := cursor.NewListCursor(index.CompareEntries, index.Entry{Key: index.IDKey(base), ID: base})
		return NewScopeCursor(single, nil), nil
	case ScopeOneLevel:
		return openLevelCursor(src, src.OneLevelIndex(), src.OneAliasIndex(), base, mode.InScope())
	case ScopeSubtree:
		return openLevelCursor(src, src.SubLevelIndex(), src.SubAliasIndex(), base, mode.InScope())
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidScope, scope)
	}
}

func openLevelCursor(src Source, level, alias index.Index, base uuid.UUID, deref bool) (*ScopeCursor, error) {
	key := index.IDKey(base)

	scope, err := level.ForwardCursor(key)
	if err != nil {
		return nil, err
	}
	if !deref {
		return NewScopeCursor(scope, nil), nil
	}

	derefCursor, err := alias.ForwardCursor(key)
	if err != nil {
		scope.Close()
		return nil, err
	}

	notAlias := func(e index.Entry) (bool, error) {
		aliased, err := isAlias(src, e.ID)
		return !aliased, err
	}
	return NewScopeCursor(newFilterCursor(scope, notAlias), derefCursor), nil
}

// CollectIDs drains c from the beginning and returns the entry ids in order.
func CollectIDs(c cursor.Cursor[index.Entry]) ([]uuid.UUID, error) {
	entries, err := cursor.Collect(c)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}
