package backup

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/dn"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/search"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/store"
)

// Export and import errors.
var (
	ErrExportFailed = errors.New("export failed")
	ErrImportFailed = errors.New("import failed")
)

// Source is the store an export reads from.
type Source interface {
	Search(baseDN string, scope search.Scope, mode search.AliasDerefMode) ([]*store.Entry, error)
}

// Target is the store an import adds entries to.
type Target interface {
	Add(e *store.Entry) (uuid.UUID, error)
}

// Exporter writes a subtree of a store as LDIF.
type Exporter struct {
	src Source
}

// NewExporter creates an Exporter reading from src.
func NewExporter(src Source) *Exporter {
	return &Exporter{src: src}
}

// Export writes every entry under baseDN, baseDN included, and returns the
// number of entries written.
func (x *Exporter) Export(w io.Writer, baseDN string) (int, error) {
	if w == nil {
		return 0, fmt.Errorf("%w: nil writer", ErrExportFailed)
	}

	entries, err := x.src.Search(baseDN, search.ScopeSubtree, search.DerefNever)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	orderForImport(entries)
	if err := WriteLDIF(w, entries); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return len(entries), nil
}

// Importer adds LDIF entries to a store.
type Importer struct {
	dst Target
}

// NewImporter creates an Importer adding to dst.
func NewImporter(dst Target) *Importer {
	return &Importer{dst: dst}
}

// Import parses r and adds every entry, parents before children and
// aliases last. It stops at the first entry the store rejects and returns
// the number of entries added before it.
func (im *Importer) Import(r io.Reader) (int, error) {
	entries, err := ParseLDIF(r)
	if err != nil {
		return 0, err
	}

	orderForImport(entries)

	for i, e := range entries {
		if _, err := im.dst.Add(e); err != nil {
			return i, fmt.Errorf("%w: %s: %w", ErrImportFailed, e.DN, err)
		}
	}
	return len(entries), nil
}

// orderForImport sorts entries so that parents precede children and
// aliases follow every other entry.
func orderForImport(entries []*store.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ai, aj := entries[i].IsAlias(), entries[j].IsAlias()
		if ai != aj {
			return aj
		}
		di, dj := depth(entries[i].DN), depth(entries[j].DN)
		if di != dj {
			return di < dj
		}
		return entries[i].DN < entries[j].DN
	})
}

func depth(name string) int {
	n, err := dn.Depth(name)
	if err != nil {
		return 0
	}
	return n
}
