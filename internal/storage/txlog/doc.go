// Package txlog implements the durable transaction log of the store.
//
// Every structural change is written as one transaction: a Begin record,
// one IndexChange record per index edit, an EntryChange record for the
// master table and a Commit record. Records are length-prefixed and carry
// a CRC32 checksum. A torn tail left by a crash is dropped when the log is
// opened.
//
// IndexChange payloads use a fixed big-endian layout:
//
//	UTF(oid) | key type tag | key payload | UTF(entry id) | int32 op
//
// On startup the Replayer re-applies the committed transactions found after
// the last checkpoint. Index deletes are applied in recovery mode, which
// heals a forward/reverse pair left torn by an interrupted write before
// dropping it.
package txlog
