package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/dn"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

// node is an entry on the path from an entry up to its context entry.
type node struct {
	id uuid.UUID
	dn string
}

// contextLen returns how many trailing components of comps form the
// context entry DN, or 0 when comps is outside the suffix.
func (s *Store) contextLen(comps []string) int {
	if len(s.suffix) == 0 {
		return 1
	}
	if len(comps) < len(s.suffix) {
		return 0
	}
	offset := len(comps) - len(s.suffix)
	for i, c := range s.suffix {
		if comps[offset+i] != c {
			return 0
		}
	}
	return len(s.suffix)
}

// rdnKey returns the RDN index key of the entry named by comps under parent.
func (s *Store) rdnKey(comps []string, parent uuid.UUID) index.ParentIDAndRDN {
	if parent == uuid.Nil {
		ctx := comps[len(comps)-s.contextLen(comps):]
		return index.ParentIDAndRDN{ParentID: uuid.Nil, RDNs: append([]string(nil), ctx...)}
	}
	return index.ParentIDAndRDN{ParentID: parent, RDNs: []string{comps[0]}}
}

// resolvePath resolves every entry from the context entry down to the
// entry named by comps. The result is leaf first.
func (s *Store) resolvePath(comps []string) ([]node, error) {
	n := s.contextLen(comps)
	if n == 0 || n > len(comps) {
		return nil, fmt.Errorf("%w: %s is outside the suffix", ErrEntryNotFound, dn.Join(comps))
	}

	path := make([]node, len(comps)-n+1)
	parent := uuid.Nil
	for i := len(comps) - n; i >= 0; i-- {
		id, ok, err := s.rdn.ForwardLookup(s.rdnKey(comps[i:], parent))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, dn.Join(comps[i:]))
		}
		path[i] = node{id: id, dn: dn.Join(comps[i:])}
		parent = id
	}
	return path, nil
}

// isContext reports whether comps names a context entry.
func (s *Store) isContext(comps []string) bool {
	n := s.contextLen(comps)
	return n > 0 && n == len(comps)
}

// pair is an index (key, id) pair derived from an entry.
type pair struct {
	oid string
	key index.Key
}

func (p pair) String() string {
	return fmt.Sprintf("%s\x00%d\x00%s", p.oid, p.key.Kind(), p.key)
}

// entryPairs derives every index pair of e. ancestors lists the parent
// first, up to the context entry.
func (s *Store) entryPairs(e *Entry, ancestors []node) ([]pair, error) {
	comps, err := dn.Parse(e.DN)
	if err != nil {
		return nil, err
	}

	pairs := []pair{
		{index.OIDRDN, s.rdnKey(comps, e.ParentID)},
		{index.OIDOneLevel, index.IDKey(e.ParentID)},
		{index.OIDSubLevel, index.IDKey(e.ID)},
	}
	for _, a := range ancestors {
		pairs = append(pairs, pair{index.OIDSubLevel, index.IDKey(a.id)})
	}

	for _, oc := range e.GetAttribute(AttrObjectClass) {
		pairs = append(pairs, pair{index.OIDObjectClass, index.StringKey(normalizeValue(oc))})
	}

	for _, idx := range s.indexes.UserIndexes() {
		user, err := userPairs(e, idx)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, user...)
	}

	return dedupe(pairs), nil
}

// userPairs derives the pairs of e in the user index idx and its presence
// pair. It is empty when e has no value for the attribute.
func userPairs(e *Entry, idx index.Index) ([]pair, error) {
	values := e.GetAttribute(idx.Name())
	if len(values) == 0 {
		return nil, nil
	}

	pairs := []pair{{index.OIDPresence, index.StringKey(idx.AttributeID())}}
	for _, v := range values {
		key, err := userKey(idx.KeyType(), v)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %s: %w", ErrInvalidEntry, idx.Name(), err)
		}
		pairs = append(pairs, pair{idx.AttributeID(), key})
	}
	return pairs, nil
}

// aliasPairs derives the alias index pairs of an alias entry. The alias
// index maps the target DN to the alias; the one-alias and sub-alias
// indexes map the alias's ancestors to the target, skipping ancestors the
// target is already below.
func aliasPairs(e *Entry, ancestors []node) ([]pair, error) {
	pairs := []pair{{index.OIDAlias, index.StringKey(e.AliasTarget)}}

	sibling, err := dn.IsSiblingOf(e.AliasTarget, e.DN)
	if err != nil {
		return nil, err
	}
	if !sibling && len(ancestors) > 0 {
		pairs = append(pairs, pair{index.OIDOneAlias, index.IDKey(ancestors[0].id)})
	}

	for _, a := range ancestors {
		below, err := dn.IsDescendantOf(e.AliasTarget, a.dn)
		if err != nil {
			return nil, err
		}
		if !below {
			pairs = append(pairs, pair{index.OIDSubAlias, index.IDKey(a.id)})
		}
	}
	return pairs, nil
}

// aliasEdits returns the edits for the alias pairs of e. Only the alias
// index is keyed by the alias id; the others carry the target id.
func aliasEdits(pairs []pair, aliasID, targetID uuid.UUID, op txlog.Op) []txlog.Edit {
	edits := make([]txlog.Edit, 0, len(pairs))
	for _, p := range pairs {
		id := targetID
		if p.oid == index.OIDAlias {
			id = aliasID
		}
		edits = append(edits, txlog.NewIndexEdit(p.oid, p.key, id, op))
	}
	return edits
}

func pairEdits(pairs []pair, id uuid.UUID, op txlog.Op) []txlog.Edit {
	edits := make([]txlog.Edit, 0, len(pairs))
	for _, p := range pairs {
		edits = append(edits, txlog.NewIndexEdit(p.oid, p.key, id, op))
	}
	return edits
}

// diffPairs returns the pairs only in a and the pairs only in b.
func diffPairs(a, b []pair) (onlyA, onlyB []pair) {
	inA := make(map[string]bool, len(a))
	for _, p := range a {
		inA[p.String()] = true
	}
	inB := make(map[string]bool, len(b))
	for _, p := range b {
		inB[p.String()] = true
		if !inA[p.String()] {
			onlyB = append(onlyB, p)
		}
	}
	for _, p := range a {
		if !inB[p.String()] {
			onlyA = append(onlyA, p)
		}
	}
	return onlyA, onlyB
}

func dedupe(pairs []pair) []pair {
	seen := make(map[string]bool, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		k := p.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// normalizeValue folds a string value for indexing.
func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

var errNotANumber = errors.New("value is not an integer")

// userKey converts an attribute value to the key type of a user index.
func userKey(kt index.KeyType, value string) (index.Key, error) {
	switch kt {
	case index.KeyString:
		return index.StringKey(normalizeValue(value)), nil
	case index.KeyLong:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errNotANumber, value)
		}
		return index.LongKey(n), nil
	case index.KeyBytes:
		return index.BytesKey(value), nil
	default:
		return nil, fmt.Errorf("%w: %s", index.ErrUnsupportedKey, kt)
	}
}
