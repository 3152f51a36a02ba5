package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// System index OIDs. These are fixed and identify the indexes the store
// maintains for every entry.
const (
	OIDPresence    = "1.3.6.1.4.1.18060.0.4.1.2.3"
	OIDOneLevel    = "1.3.6.1.4.1.18060.0.4.1.2.4"
	OIDOneAlias    = "1.3.6.1.4.1.18060.0.4.1.2.5"
	OIDSubAlias    = "1.3.6.1.4.1.18060.0.4.1.2.6"
	OIDAlias       = "1.3.6.1.4.1.18060.0.4.1.2.7"
	OIDSubLevel    = "1.3.6.1.4.1.18060.0.4.1.2.43"
	OIDRDN         = "1.3.6.1.4.1.18060.0.4.1.2.50"
	OIDObjectClass = "2.5.4.0"
)

// Index Manager errors.
var (
	ErrInvalidAttribute = errors.New("invalid attribute name")
	ErrManagerClosed    = errors.New("index manager is closed")
)

// MaxAttributeNameLength is the maximum length of an attribute name.
const MaxAttributeNameLength = 256

// Definition declares an index.
type Definition struct {
	Attribute string
	OID       string
	KeyType   KeyType
}

var systemDefinitions = []Definition{
	{Attribute: "apachePresence", OID: OIDPresence, KeyType: KeyString},
	{Attribute: "apacheOneLevel", OID: OIDOneLevel, KeyType: KeyID},
	{Attribute: "apacheOneAlias", OID: OIDOneAlias, KeyType: KeyID},
	{Attribute: "apacheSubAlias", OID: OIDSubAlias, KeyType: KeyID},
	{Attribute: "apacheAlias", OID: OIDAlias, KeyType: KeyString},
	{Attribute: "apacheSubLevel", OID: OIDSubLevel, KeyType: KeyID},
	{Attribute: "apacheRdn", OID: OIDRDN, KeyType: KeyComposite},
	{Attribute: "objectClass", OID: OIDObjectClass, KeyType: KeyString},
}

// IsSystemOID reports whether oid names one of the system indexes.
func IsSystemOID(oid string) bool {
	for _, def := range systemDefinitions {
		if def.OID == oid {
			return true
		}
	}
	return false
}

// Manager owns the system and user indexes of a store.
type Manager struct {
	backend Backend

	// indexes maps OIDs to indexes.
	indexes map[string]Index

	// names maps lowercased attribute names to OIDs.
	names map[string]string

	mu     sync.RWMutex
	closed bool
}

// NewManager opens the system indexes and the given user indexes on backend.
func NewManager(backend Backend, user []Definition) (*Manager, error) {
	m := &Manager{
		backend: backend,
		indexes: make(map[string]Index),
		names:   make(map[string]string),
	}

	for _, def := range systemDefinitions {
		if err := m.createIndexInternal(def, true); err != nil {
			return nil, err
		}
	}

	for _, def := range user {
		if err := m.createIndexInternal(def, false); err != nil {
			return nil, fmt.Errorf("index %q: %w", def.Attribute, err)
		}
	}

	return m, nil
}

// Backend returns the table backend shared by every index.
func (m *Manager) Backend() Backend {
	return m.backend
}

// createIndexInternal creates an index without locking (caller must hold lock).
func (m *Manager) createIndexInternal(def Definition, system bool) error {
	attr := strings.TrimSpace(def.Attribute)
	if attr == "" || len(attr) > MaxAttributeNameLength {
		return ErrInvalidAttribute
	}

	oid := def.OID
	if oid == "" {
		oid = strings.ToLower(attr)
	}

	if !system && IsSystemOID(oid) {
		return ErrIndexExists
	}

	name := strings.ToLower(attr)
	if _, exists := m.indexes[oid]; exists {
		return ErrIndexExists
	}
	if _, exists := m.names[name]; exists {
		return ErrIndexExists
	}

	m.indexes[oid] = newTableIndex(m.backend, oid, attr, system, def.KeyType)
	m.names[name] = oid
	return nil
}

// Index returns the index for oid.
// Returns ErrIndexNotFound if no index exists for it.
func (m *Manager) Index(oid string) (Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	idx, exists := m.indexes[oid]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, oid)
	}
	return idx, nil
}

// IndexByName returns the index for an attribute name or OID.
func (m *Manager) IndexByName(attr string) (Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	return m.lookupLocked(attr)
}

func (m *Manager) lookupLocked(attrOrOID string) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(attrOrOID))
	if oid, ok := m.names[key]; ok {
		return m.indexes[oid], nil
	}
	if idx, ok := m.indexes[attrOrOID]; ok {
		return idx, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, attrOrOID)
}

// HasIndex reports whether an index exists for an attribute name or OID.
func (m *Manager) HasIndex(attrOrOID string) bool {
	_, err := m.IndexByName(attrOrOID)
	return err == nil
}

// ListIndexes returns every index ordered by OID.
func (m *Manager) ListIndexes() []Index {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Index, 0, len(m.indexes))
	for _, idx := range m.indexes {
		list = append(list, idx)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].AttributeID() < list[j].AttributeID()
	})
	return list
}

// UserIndexes returns the user indexes ordered by OID.
func (m *Manager) UserIndexes() []Index {
	var user []Index
	for _, idx := range m.ListIndexes() {
		if !idx.IsSystem() {
			user = append(user, idx)
		}
	}
	return user
}

// IndexCount returns the number of indexes.
func (m *Manager) IndexCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes)
}

// Sync makes every index write durable.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrManagerClosed
	}
	return m.backend.Sync()
}

// Close closes every index and the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	m.closed = true

	for _, idx := range m.indexes {
		idx.Close()
	}
	return m.backend.Close()
}
