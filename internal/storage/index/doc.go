// Package index implements the attribute indexes of the directory store.
//
// # Overview
//
// Every index keeps two coupled ordered tables over the same (key, id)
// pairs:
//
//	forward: key -> ids   (duplicates in insertion order)
//	reverse: id  -> keys
//
// Add and Drop write the forward table first and the reverse table second,
// each side idempotent, under a per-index lock. A crash between the two
// writes leaves a torn pair that transaction log recovery heals.
//
// # Keys
//
// Keys are typed (StringKey, LongKey, BytesKey, ParentIDAndRDN, IDKey,
// OpaqueKey) and ordered by Compare. Tables store them through an
// order-preserving encoding so that byte order equals Compare order.
//
// # Backends
//
// Two table backends are available:
//
//	index.NewMemoryBackend()                       // google/btree, snapshot cursors
//	index.OpenPebbleBackend(dir, index.PebbleOptions{})  // one pebble DB, prefix per table
//
// # Index Manager
//
// The Manager opens the system indexes the store maintains for every entry
// (RDN, presence, one-level, one-alias, sub-level, sub-alias, alias and
// objectClass) and any configured user indexes:
//
//	manager, err := index.NewManager(backend, []index.Definition{
//	    {Attribute: "uid", KeyType: index.KeyString},
//	})
//	idx, err := manager.Index(index.OIDOneLevel)
//	c, err := idx.ForwardCursor(index.IDKey(parentID))
package index
