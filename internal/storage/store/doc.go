// Package store ties the directory store together: the index manager, the
// master table of entries and the transaction log.
//
// Every structural change is written to the log as one transaction before
// it touches an index or the master table. Open replays the transactions
// committed since the last checkpoint, so a crash between logging and
// applying leaves nothing behind that recovery cannot finish. Removal of
// index pairs during replay tolerates pairs that were only half written.
//
// Entries are addressed by DN through the RDN index and by a random id
// everywhere else. Search scopes are evaluated by package search against
// the system indexes maintained here.
package store
