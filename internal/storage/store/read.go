package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/dn"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/master"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/search"
)

// Lookup returns the entry with id.
func (s *Store) Lookup(id uuid.UUID) (*Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.lookup(id)
}

func (s *Store) lookup(id uuid.UUID) (*Entry, error) {
	payload, err := s.master.Get(id)
	if errors.Is(err, master.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	e, err := decodeEntry(payload)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	return e, nil
}

// LookupDN returns the entry named by name.
func (s *Store) LookupDN(name string) (*Entry, error) {
	id, err := s.EntryID(name)
	if err != nil {
		return nil, err
	}
	return s.lookup(id)
}

// EntryID resolves a DN to its entry id through the RDN index.
func (s *Store) EntryID(name string) (uuid.UUID, error) {
	if err := s.checkOpen(); err != nil {
		return uuid.Nil, err
	}

	comps, err := dn.Parse(name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	path, err := s.resolvePath(comps)
	if err != nil {
		return uuid.Nil, err
	}
	return path[0].id, nil
}

// Search returns the entries within scope of baseDN in cursor order.
func (s *Store) Search(baseDN string, scope search.Scope, mode search.AliasDerefMode) (entries []*Entry, err error) {
	defer observe("search", time.Now(), &err)

	ids, err := s.SearchIDs(baseDN, scope, mode)
	if err != nil {
		return nil, err
	}

	entries = make([]*Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.lookup(id)
		if errors.Is(err, ErrEntryNotFound) {
			// Deleted since the cursor yielded it.
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SearchIDs returns the ids within scope of baseDN in cursor order.
func (s *Store) SearchIDs(baseDN string, scope search.Scope, mode search.AliasDerefMode) ([]uuid.UUID, error) {
	c, err := s.OpenCursor(baseDN, scope, mode)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return search.CollectIDs(c)
}

// OpenCursor opens a scope cursor rooted at baseDN. The caller closes it.
func (s *Store) OpenCursor(baseDN string, scope search.Scope, mode search.AliasDerefMode) (*search.ScopeCursor, error) {
	baseID, err := s.EntryID(baseDN)
	if err != nil {
		return nil, err
	}
	return search.NewCursor(s, scope, baseID, mode)
}

// Evaluator returns an evaluator for scope rooted at baseDN.
func (s *Store) Evaluator(baseDN string, scope search.Scope, mode search.AliasDerefMode) (search.Evaluator, error) {
	baseID, err := s.EntryID(baseDN)
	if err != nil {
		return nil, err
	}
	base, err := search.ResolveBase(s, baseID, mode)
	if err != nil {
		return nil, err
	}
	return search.NewEvaluator(s, scope, base, mode)
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.master.Count()
}
