// Package backup exports the entries of a store to LDIF and imports them
// back.
//
// # LDIF Export
//
// Export a subtree of the store:
//
//	exporter := backup.NewExporter(s)
//	n, err := exporter.Export(w, "dc=example,dc=com")
//
// Entries are written parents first, so the output can be imported into an
// empty store without reordering. Aliases are written after every other
// entry because their targets must exist when they are added.
//
// # LDIF Import
//
//	importer := backup.NewImporter(s)
//	n, err := importer.Import(r)
//
// Values that are not printable ASCII are base64 encoded as described in
// RFC 2849. Change records are not supported.
package backup
