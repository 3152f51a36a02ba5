// Package dn parses and normalizes Distinguished Names for the directory store.
package dn

import (
	"errors"
	"sort"
	"strings"
)

// DN parsing errors.
var (
	ErrEmptyDN           = errors.New("DN cannot be empty")
	ErrInvalidDN         = errors.New("invalid DN format")
	ErrInvalidRDN        = errors.New("invalid RDN format")
	ErrEmptyRDNComponent = errors.New("empty RDN component")
)

// Parse parses a Distinguished Name into its normalized RDN components, leaf first.
//
// Example:
//
//	"UID=Alice, ou=users,dc=example,dc=com" -> ["uid=alice", "ou=users", "dc=example", "dc=com"]
func Parse(dn string) ([]string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, ErrEmptyDN
	}

	components := split(dn, ',')
	if len(components) == 0 {
		return nil, ErrInvalidDN
	}

	result := make([]string, len(components))
	for i, comp := range components {
		normalized, err := NormalizeRDN(comp)
		if err != nil {
			return nil, err
		}
		result[i] = normalized
	}

	return result, nil
}

// split splits s on sep, honouring backslash escapes and dropping empty parts.
func split(s string, sep byte) []string {
	var components []string
	var current strings.Builder
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			current.WriteByte(c)
			escaped = false
			continue
		}

		if c == '\\' {
			current.WriteByte(c)
			escaped = true
			continue
		}

		if c == sep {
			comp := strings.TrimSpace(current.String())
			if comp != "" {
				components = append(components, comp)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	comp := strings.TrimSpace(current.String())
	if comp != "" {
		components = append(components, comp)
	}

	return components
}

// NormalizeRDN normalizes a single RDN. Attribute types and values are
// lowercased and multi-valued RDNs are sorted by attribute assertion.
func NormalizeRDN(rdn string) (string, error) {
	rdn = strings.TrimSpace(rdn)
	if rdn == "" {
		return "", ErrEmptyRDNComponent
	}

	avas := split(rdn, '+')
	for i, ava := range avas {
		eqIdx := strings.Index(ava, "=")
		if eqIdx == -1 {
			return "", ErrInvalidRDN
		}

		attrType := strings.TrimSpace(ava[:eqIdx])
		attrValue := strings.TrimSpace(ava[eqIdx+1:])
		if attrType == "" {
			return "", ErrInvalidRDN
		}

		avas[i] = strings.ToLower(attrType) + "=" + strings.ToLower(attrValue)
	}

	if len(avas) > 1 {
		sort.Strings(avas)
	}

	return strings.Join(avas, "+"), nil
}

// Join joins RDN components, leaf first, into a DN string.
func Join(components []string) string {
	return strings.Join(components, ",")
}

// Normalize parses and rejoins a DN.
func Normalize(dn string) (string, error) {
	components, err := Parse(dn)
	if err != nil {
		return "", err
	}
	return Join(components), nil
}

// Split returns the normalized RDN and the normalized parent DN of dn.
// The parent is empty for a single-component DN.
//
// Example:
//
//	"uid=alice,ou=users,dc=example,dc=com" -> "uid=alice", "ou=users,dc=example,dc=com"
func Split(dn string) (rdn, parent string, err error) {
	components, err := Parse(dn)
	if err != nil {
		return "", "", err
	}
	return components[0], Join(components[1:]), nil
}

// Parent returns the parent DN of dn, or "" for a single-component DN.
func Parent(dn string) (string, error) {
	_, parent, err := Split(dn)
	return parent, err
}

// RDN returns the leaf RDN of dn.
func RDN(dn string) (string, error) {
	rdn, _, err := Split(dn)
	return rdn, err
}

// Depth returns the number of RDN components in dn.
func Depth(dn string) (int, error) {
	components, err := Parse(dn)
	if err != nil {
		return 0, err
	}
	return len(components), nil
}

// Equal reports whether two DNs are equal after normalization.
func Equal(dn1, dn2 string) (bool, error) {
	norm1, err := Normalize(dn1)
	if err != nil {
		return false, err
	}

	norm2, err := Normalize(dn2)
	if err != nil {
		return false, err
	}

	return norm1 == norm2, nil
}

// IsDescendantOf checks if childDN is a strict descendant of parentDN.
//
// Example:
//
//	IsDescendantOf("uid=alice,ou=users,dc=example,dc=com", "dc=example,dc=com") -> true
func IsDescendantOf(childDN, parentDN string) (bool, error) {
	childComps, parentComps, err := parsePair(childDN, parentDN)
	if err != nil {
		return false, err
	}

	if len(childComps) <= len(parentComps) {
		return false, nil
	}

	return hasSuffix(childComps, parentComps), nil
}

// IsDirectChildOf checks if childDN is an immediate child of parentDN.
//
// Example:
//
//	IsDirectChildOf("ou=users,dc=example,dc=com", "dc=example,dc=com") -> true
//	IsDirectChildOf("uid=alice,ou=users,dc=example,dc=com", "dc=example,dc=com") -> false
func IsDirectChildOf(childDN, parentDN string) (bool, error) {
	childComps, parentComps, err := parsePair(childDN, parentDN)
	if err != nil {
		return false, err
	}

	if len(childComps) != len(parentComps)+1 {
		return false, nil
	}

	return hasSuffix(childComps, parentComps), nil
}

// IsSiblingOf checks if two DNs share the same parent.
func IsSiblingOf(dn1, dn2 string) (bool, error) {
	comps1, comps2, err := parsePair(dn1, dn2)
	if err != nil {
		return false, err
	}

	if len(comps1) != len(comps2) || len(comps1) < 2 {
		return false, nil
	}

	return hasSuffix(comps1, comps2[1:]), nil
}

func parsePair(a, b string) ([]string, []string, error) {
	compsA, err := Parse(a)
	if err != nil {
		return nil, nil, err
	}

	compsB, err := Parse(b)
	if err != nil {
		return nil, nil, err
	}

	return compsA, compsB, nil
}

// hasSuffix reports whether the trailing components of comps equal suffix.
func hasSuffix(comps, suffix []string) bool {
	offset := len(comps) - len(suffix)
	for i, comp := range suffix {
		if comps[offset+i] != comp {
			return false
		}
	}
	return true
}
