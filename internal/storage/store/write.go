package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/dn"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

// Add stores e below its parent and returns the id assigned to it. The
// entry's index pairs and master record are logged as one transaction
// before they are applied.
func (s *Store) Add(e *Entry) (id uuid.UUID, err error) {
	defer observe("add", time.Now(), &err)

	if err := s.checkOpen(); err != nil {
		return uuid.Nil, err
	}
	if e == nil {
		return uuid.Nil, fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}

	comps, err := dn.Parse(e.DN)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}

	entry := &Entry{
		DN:         dn.Join(comps),
		Attributes: normalizeAttributes(e.Attributes),
	}
	if !entry.HasAttribute(AttrObjectClass) {
		return uuid.Nil, fmt.Errorf("%w: %s has no objectClass", ErrInvalidEntry, entry.DN)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(); err != nil {
		return uuid.Nil, err
	}

	var ancestors []node
	if !s.isContext(comps) {
		if s.contextLen(comps) == 0 {
			return uuid.Nil, fmt.Errorf("%w: %s is outside the suffix %s", ErrNoSuchParent, entry.DN, s.Suffix())
		}
		ancestors, err = s.resolvePath(comps[1:])
		if errors.Is(err, ErrEntryNotFound) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrNoSuchParent, dn.Join(comps[1:]))
		}
		if err != nil {
			return uuid.Nil, err
		}
		entry.ParentID = ancestors[0].id

		if _, parentIsAlias, err := s.alias.ReverseLookup(entry.ParentID); err != nil {
			return uuid.Nil, err
		} else if parentIsAlias {
			return uuid.Nil, fmt.Errorf("%w: parent %s is an alias", ErrInvalidEntry, ancestors[0].dn)
		}
	}

	_, exists, err := s.rdn.ForwardLookup(s.rdnKey(comps, entry.ParentID))
	if err != nil {
		return uuid.Nil, err
	}
	if exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrEntryExists, entry.DN)
	}

	entry.ID = uuid.New()

	pairs, err := s.entryPairs(entry, ancestors)
	if err != nil {
		return uuid.Nil, err
	}
	edits := pairEdits(pairs, entry.ID, txlog.OpAdd)

	if entry.IsAlias() {
		aliasEd, err := s.prepareAlias(entry, ancestors)
		if err != nil {
			return uuid.Nil, err
		}
		edits = append(edits, aliasEd...)
	}

	payload, err := encodeEntry(entry)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.commit(&txlog.EntryEdit{ID: entry.ID, Op: txlog.EntryPut, Payload: payload}, edits); err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug("entry added", "dn", entry.DN, "id", entry.ID, "index_edits", len(edits))
	return entry.ID, nil
}

// prepareAlias validates the alias target of entry, records it in
// AliasTarget and returns the alias index edits.
func (s *Store) prepareAlias(entry *Entry, ancestors []node) ([]txlog.Edit, error) {
	target := entry.GetFirstAttribute(AttrAliasedObjectName)
	if target == "" {
		return nil, fmt.Errorf("%w: alias %s has no %s", ErrInvalidEntry, entry.DN, AttrAliasedObjectName)
	}

	targetDN, err := dn.Normalize(target)
	if err != nil {
		return nil, fmt.Errorf("%w: alias target: %w", ErrInvalidEntry, err)
	}
	if targetDN == entry.DN {
		return nil, fmt.Errorf("%w: alias %s points to itself", ErrInvalidEntry, entry.DN)
	}
	if above, err := dn.IsDescendantOf(entry.DN, targetDN); err != nil {
		return nil, err
	} else if above {
		return nil, fmt.Errorf("%w: alias %s points to its ancestor %s", ErrInvalidEntry, entry.DN, targetDN)
	}

	targetComps, err := dn.Parse(targetDN)
	if err != nil {
		return nil, err
	}
	path, err := s.resolvePath(targetComps)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAliasTargetMissing, targetDN)
	}
	if err != nil {
		return nil, err
	}
	targetID := path[0].id

	if _, chained, err := s.alias.ReverseLookup(targetID); err != nil {
		return nil, err
	} else if chained {
		return nil, fmt.Errorf("%w: alias %s points to another alias %s", ErrInvalidEntry, entry.DN, targetDN)
	}

	entry.AliasTarget = targetDN

	pairs, err := aliasPairs(entry, ancestors)
	if err != nil {
		return nil, err
	}
	return aliasEdits(pairs, entry.ID, targetID, txlog.OpAdd), nil
}

// Delete removes a leaf entry.
func (s *Store) Delete(id uuid.UUID) (err error) {
	defer observe("delete", time.Now(), &err)

	if err := s.checkOpen(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}

	entry, err := s.lookup(id)
	if err != nil {
		return err
	}

	children, err := s.oneLevel.ForwardCount(index.IDKey(id))
	if err != nil {
		return err
	}
	if children > 0 {
		return fmt.Errorf("%w: %s has %d children", ErrNotLeaf, entry.DN, children)
	}

	referrers, err := s.alias.ForwardCount(index.StringKey(entry.DN))
	if err != nil {
		return err
	}
	if referrers > 0 {
		return fmt.Errorf("%w: %s", ErrAliasReferenced, entry.DN)
	}

	ancestors, err := s.ancestorsOf(entry)
	if err != nil {
		return err
	}

	pairs, err := s.entryPairs(entry, ancestors)
	if err != nil {
		return err
	}
	edits := pairEdits(pairs, id, txlog.OpDelete)

	if entry.IsAlias() && entry.AliasTarget != "" {
		aliasEd, err := s.dropAlias(entry, ancestors)
		if err != nil {
			return err
		}
		edits = append(edits, aliasEd...)
	}

	if err := s.commit(&txlog.EntryEdit{ID: id, Op: txlog.EntryDelete}, edits); err != nil {
		return err
	}

	s.logger.Debug("entry deleted", "dn", entry.DN, "id", id, "index_edits", len(edits))
	return nil
}

// dropAlias returns the edits removing the alias pairs of entry. One-alias
// and sub-alias pairs still produced by another alias to the same target
// are kept.
func (s *Store) dropAlias(entry *Entry, ancestors []node) ([]txlog.Edit, error) {
	targetComps, err := dn.Parse(entry.AliasTarget)
	if err != nil {
		return nil, err
	}
	path, err := s.resolvePath(targetComps)
	if err != nil {
		return nil, fmt.Errorf("alias target %s: %w", entry.AliasTarget, err)
	}
	targetID := path[0].id

	pairs, err := aliasPairs(entry, ancestors)
	if err != nil {
		return nil, err
	}

	shared, err := s.sharedAliasPairs(entry.AliasTarget, entry.ID)
	if err != nil {
		return nil, err
	}

	kept := pairs[:0]
	for _, p := range pairs {
		if p.oid != index.OIDAlias && shared[p.String()] {
			continue
		}
		kept = append(kept, p)
	}
	return aliasEdits(kept, entry.ID, targetID, txlog.OpDelete), nil
}

// sharedAliasPairs collects the alias pairs of every other alias to target.
func (s *Store) sharedAliasPairs(target string, exclude uuid.UUID) (map[string]bool, error) {
	c, err := s.alias.ForwardCursor(index.StringKey(target))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	shared := make(map[string]bool)
	for ok, err := c.First(); ok || err != nil; ok, err = c.Next() {
		if err != nil {
			return nil, err
		}
		ie, err := c.Get()
		if err != nil {
			return nil, err
		}
		if ie.ID == exclude {
			continue
		}

		other, err := s.lookup(ie.ID)
		if err != nil {
			return nil, err
		}
		ancestors, err := s.ancestorsOf(other)
		if err != nil {
			return nil, err
		}
		pairs, err := aliasPairs(other, ancestors)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			shared[p.String()] = true
		}
	}
	return shared, nil
}

// Modify applies mods to the entry with id. Only the index pairs that
// change are logged.
func (s *Store) Modify(id uuid.UUID, mods []Modification) (err error) {
	defer observe("modify", time.Now(), &err)

	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(mods) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}

	old, err := s.lookup(id)
	if err != nil {
		return err
	}

	updated := old.Clone()
	for _, mod := range mods {
		if err := mod.apply(updated); err != nil {
			return err
		}
	}
	updated.Attributes = normalizeAttributes(updated.Attributes)

	if !updated.HasAttribute(AttrObjectClass) {
		return fmt.Errorf("%w: %s would have no objectClass", ErrInvalidEntry, old.DN)
	}
	if err := checkAliasUnchanged(old, updated); err != nil {
		return err
	}

	ancestors, err := s.ancestorsOf(old)
	if err != nil {
		return err
	}

	oldPairs, err := s.entryPairs(old, ancestors)
	if err != nil {
		return err
	}
	newPairs, err := s.entryPairs(updated, ancestors)
	if err != nil {
		return err
	}
	drops, adds := diffPairs(oldPairs, newPairs)

	edits := pairEdits(drops, id, txlog.OpDelete)
	edits = append(edits, pairEdits(adds, id, txlog.OpAdd)...)

	payload, err := encodeEntry(updated)
	if err != nil {
		return err
	}

	if err := s.commit(&txlog.EntryEdit{ID: id, Op: txlog.EntryPut, Payload: payload}, edits); err != nil {
		return err
	}

	s.logger.Debug("entry modified", "dn", old.DN, "id", id, "index_edits", len(edits))
	return nil
}

// checkAliasUnchanged rejects modifications that turn an entry into an
// alias, turn an alias into a plain entry or retarget an alias.
func checkAliasUnchanged(old, updated *Entry) error {
	if old.IsAlias() != updated.IsAlias() {
		return fmt.Errorf("%w: alias object class of %s cannot be modified", ErrInvalidEntry, old.DN)
	}
	if !updated.IsAlias() {
		return nil
	}

	target, err := dn.Normalize(updated.GetFirstAttribute(AttrAliasedObjectName))
	if err != nil || target != old.AliasTarget {
		return fmt.Errorf("%w: alias target of %s cannot be modified", ErrInvalidEntry, old.DN)
	}
	return nil
}

// ancestorsOf resolves the path from the parent of e up to its context
// entry. It is empty for a context entry.
func (s *Store) ancestorsOf(e *Entry) ([]node, error) {
	if e.ParentID == uuid.Nil {
		return nil, nil
	}
	comps, err := dn.Parse(e.DN)
	if err != nil {
		return nil, err
	}
	return s.resolvePath(comps[1:])
}

// commit logs the entry edit and the index edits as one transaction and
// then applies them. A stored entry becomes visible before its index pairs
// and disappears after them. entryEdit may be nil.
func (s *Store) commit(entryEdit *txlog.EntryEdit, indexEdits []txlog.Edit) error {
	edits := make([]txlog.Edit, 0, len(indexEdits)+1)
	if entryEdit != nil {
		edits = append(edits, entryEdit)
	}
	edits = append(edits, indexEdits...)

	txID := s.log.NextTxID()
	if _, err := s.log.AppendTxn(txID, edits); err != nil {
		return fmt.Errorf("log transaction %d: %w", txID, err)
	}

	if entryEdit != nil && entryEdit.Op == txlog.EntryPut {
		if err := entryEdit.Apply(s.master); err != nil {
			return s.applyFailed(txID, err)
		}
	}

	for _, edit := range indexEdits {
		if err := edit.(*txlog.IndexEdit).Apply(s.indexes, false); err != nil {
			return s.applyFailed(txID, err)
		}
	}

	if entryEdit != nil && entryEdit.Op == txlog.EntryDelete {
		if err := entryEdit.Apply(s.master); err != nil {
			return s.applyFailed(txID, err)
		}
	}
	return nil
}

// applyFailed puts the store into the needs-recovery state. The transaction
// is already in the log, so no checkpoint may truncate it before the next
// open replays it.
func (s *Store) applyFailed(txID uint64, err error) error {
	err = fmt.Errorf("apply transaction %d: %w", txID, err)
	s.failed = err
	storeFailures.Inc()
	s.logger.Error("applying logged transaction failed; store needs recovery",
		"tx_id", txID,
		"error", err,
	)
	return err
}
