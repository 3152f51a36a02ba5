package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/cursor"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

// RebuildResult describes what RebuildIndex changed.
type RebuildResult struct {
	Index   string
	Entries int
	Added   int
	Dropped int
}

type idPair struct {
	pair
	id uuid.UUID
}

func (p idPair) String() string {
	return p.pair.String() + "\x00" + p.id.String()
}

// RebuildIndex recomputes the user index attr and its presence pairs from
// the master table. Entries stored before the index was configured get
// their pairs; stale pairs are dropped. The difference is logged as one
// transaction before it is applied.
func (s *Store) RebuildIndex(attr string) (res RebuildResult, err error) {
	defer observe("rebuild_index", time.Now(), &err)

	if err := s.checkOpen(); err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(); err != nil {
		return res, err
	}

	idx, err := s.indexes.IndexByName(attr)
	if err != nil {
		return res, err
	}
	if idx.IsSystem() {
		return res, fmt.Errorf("%w: %s is a system index", index.ErrInvalidAttribute, idx.Name())
	}
	res.Index = idx.Name()

	current, err := s.currentUserPairs(idx)
	if err != nil {
		return res, err
	}

	wanted := make(map[string]idPair)
	err = s.master.ForEach(func(id uuid.UUID, payload []byte) error {
		e, err := decodeEntry(payload)
		if err != nil {
			return fmt.Errorf("entry %s: %w", id, err)
		}
		res.Entries++

		pairs, err := userPairs(e, idx)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.DN, err)
		}
		for _, p := range pairs {
			ip := idPair{p, id}
			wanted[ip.String()] = ip
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	var edits []txlog.Edit
	for k, ip := range current {
		if _, ok := wanted[k]; !ok {
			edits = append(edits, txlog.NewIndexEdit(ip.oid, ip.key, ip.id, txlog.OpDelete))
			res.Dropped++
		}
	}
	for k, ip := range wanted {
		if _, ok := current[k]; !ok {
			edits = append(edits, txlog.NewIndexEdit(ip.oid, ip.key, ip.id, txlog.OpAdd))
			res.Added++
		}
	}

	if len(edits) == 0 {
		return res, nil
	}
	if err := s.commit(nil, edits); err != nil {
		return res, err
	}

	s.logger.Info("index rebuilt",
		"index", res.Index,
		"entries", res.Entries,
		"added", res.Added,
		"dropped", res.Dropped,
	)
	return res, nil
}

// currentUserPairs collects the pairs of idx and the presence pairs keyed
// by its OID.
func (s *Store) currentUserPairs(idx index.Index) (map[string]idPair, error) {
	out := make(map[string]idPair)

	collect := func(oid string, c cursor.Cursor[index.Entry], err error) error {
		if err != nil {
			return err
		}
		entries, err := cursor.Collect(c)
		c.Close()
		if err != nil {
			return err
		}
		for _, e := range entries {
			ip := idPair{pair{oid, e.Key}, e.ID}
			out[ip.String()] = ip
		}
		return nil
	}

	c, err := idx.ForwardCursor(nil)
	if err := collect(idx.AttributeID(), c, err); err != nil {
		return nil, err
	}
	c, err = s.presence.ForwardCursor(index.StringKey(idx.AttributeID()))
	if err := collect(index.OIDPresence, c, err); err != nil {
		return nil, err
	}
	return out, nil
}
