package search

import (
	"fmt"
	"strings"
)

// Scope represents the search scope.
type Scope int

const (
	// ScopeBase returns only the base entry itself.
	ScopeBase Scope = iota
	// ScopeOneLevel returns only the immediate children of the base entry.
	ScopeOneLevel
	// ScopeSubtree returns the base entry and all its descendants.
	ScopeSubtree
)

// String returns the string representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "onelevel"
	case ScopeSubtree:
		return "subtree"
	default:
		return "unknown"
	}
}

// ParseScope parses a scope name.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel":
		return ScopeOneLevel, nil
	case "sub", "subtree":
		return ScopeSubtree, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// AliasDerefMode controls when aliases are followed during a search.
type AliasDerefMode int

const (
	// DerefNever never follows aliases.
	DerefNever AliasDerefMode = iota
	// DerefInSearching follows aliases found below the base.
	DerefInSearching
	// DerefFindingBase follows an alias only when it is the base entry.
	DerefFindingBase
	// DerefAlways follows aliases everywhere.
	DerefAlways
)

// String returns the string representation of the mode.
func (m AliasDerefMode) String() string {
	switch m {
	case DerefNever:
		return "never"
	case DerefInSearching:
		return "searching"
	case DerefFindingBase:
		return "finding"
	case DerefAlways:
		return "always"
	default:
		return "unknown"
	}
}

// InScope reports whether aliases inside the scope are dereferenced.
func (m AliasDerefMode) InScope() bool {
	return m == DerefInSearching || m == DerefAlways
}

// FindingBase reports whether an alias base entry is dereferenced.
func (m AliasDerefMode) FindingBase() bool {
	return m == DerefFindingBase || m == DerefAlways
}
