package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Well-known attribute names, lowercased.
const (
	AttrObjectClass       = "objectclass"
	AttrAliasedObjectName = "aliasedobjectname"
	ObjectClassAlias      = "alias"
)

// Entry is a stored directory entry.
type Entry struct {
	// ID is assigned by the store when the entry is added.
	ID uuid.UUID `json:"id"`

	// DN is the normalized distinguished name.
	DN string `json:"dn"`

	// ParentID is the id of the parent entry, uuid.Nil for the context entry.
	ParentID uuid.UUID `json:"parentId"`

	// AliasTarget is the normalized DN an alias entry points at.
	AliasTarget string `json:"aliasTarget,omitempty"`

	// Attributes maps lowercased attribute names to their values.
	Attributes map[string][]string `json:"attributes"`
}

// NewEntry creates a new Entry with the given DN.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: make(map[string][]string),
	}
}

// GetAttribute returns the values for the given attribute name.
func (e *Entry) GetAttribute(name string) []string {
	if e.Attributes == nil {
		return nil
	}
	return e.Attributes[strings.ToLower(name)]
}

// GetFirstAttribute returns the first value for the given attribute name.
func (e *Entry) GetFirstAttribute(name string) string {
	values := e.GetAttribute(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HasAttribute returns true if the entry has the given attribute.
func (e *Entry) HasAttribute(name string) bool {
	return len(e.GetAttribute(name)) > 0
}

// SetAttribute sets the values for the given attribute name.
func (e *Entry) SetAttribute(name string, values ...string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][]string)
	}
	e.Attributes[strings.ToLower(name)] = values
}

// AddAttributeValue adds a value to the given attribute.
func (e *Entry) AddAttributeValue(name string, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][]string)
	}
	name = strings.ToLower(name)
	e.Attributes[name] = append(e.Attributes[name], value)
}

// DeleteAttribute removes an attribute from the entry.
func (e *Entry) DeleteAttribute(name string) {
	if e.Attributes == nil {
		return
	}
	delete(e.Attributes, strings.ToLower(name))
}

// DeleteAttributeValue removes a specific value from an attribute.
// If the attribute has no more values after removal, the attribute is deleted.
func (e *Entry) DeleteAttributeValue(name string, value string) {
	if e.Attributes == nil {
		return
	}
	name = strings.ToLower(name)
	values := e.Attributes[name]
	if len(values) == 0 {
		return
	}

	newValues := make([]string, 0, len(values))
	for _, v := range values {
		if !strings.EqualFold(v, value) {
			newValues = append(newValues, v)
		}
	}

	if len(newValues) == 0 {
		delete(e.Attributes, name)
	} else {
		e.Attributes[name] = newValues
	}
}

// IsAlias reports whether the entry has the alias object class.
func (e *Entry) IsAlias() bool {
	for _, oc := range e.GetAttribute(AttrObjectClass) {
		if strings.EqualFold(strings.TrimSpace(oc), ObjectClassAlias) {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Attributes = make(map[string][]string, len(e.Attributes))
	for k, v := range e.Attributes {
		values := make([]string, len(v))
		copy(values, v)
		clone.Attributes[k] = values
	}
	return &clone
}

// normalizeAttributes lowercases attribute names, merging duplicates and
// dropping attributes without values.
func normalizeAttributes(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for name, values := range attrs {
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		out[key] = append(out[key], values...)
	}
	return out
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(payload []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

// Modification is a single change applied by Modify.
type Modification struct {
	// Type is the type of modification (add, delete, replace).
	Type ModificationType

	// Attribute is the name of the attribute to modify.
	Attribute string

	// Values are the values to add, delete, or replace.
	Values []string
}

// ModificationType represents the type of modification operation.
type ModificationType int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModificationType = iota
	// ModDelete removes values, or the whole attribute when no values are given.
	ModDelete
	// ModReplace replaces all values of an attribute.
	ModReplace
)

// String returns the string representation of the modification type.
func (m ModificationType) String() string {
	switch m {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// NewModification creates a new Modification.
func NewModification(modType ModificationType, attr string, values ...string) Modification {
	return Modification{
		Type:      modType,
		Attribute: attr,
		Values:    values,
	}
}

// apply applies mod to e.
func (m Modification) apply(e *Entry) error {
	attr := strings.ToLower(strings.TrimSpace(m.Attribute))
	if attr == "" {
		return fmt.Errorf("%w: empty attribute name", ErrInvalidEntry)
	}

	switch m.Type {
	case ModAdd:
		for _, value := range m.Values {
			e.AddAttributeValue(attr, value)
		}
	case ModDelete:
		if len(m.Values) == 0 {
			e.DeleteAttribute(attr)
		}
		for _, value := range m.Values {
			e.DeleteAttributeValue(attr, value)
		}
	case ModReplace:
		if len(m.Values) == 0 {
			e.DeleteAttribute(attr)
		} else {
			e.SetAttribute(attr, m.Values...)
		}
	default:
		return fmt.Errorf("%w: unknown modification type %d", ErrInvalidEntry, m.Type)
	}
	return nil
}
