// Package search evaluates search scopes against the system indexes.
//
// A scope is one of base, one-level or subtree. Evaluators answer whether a
// single entry id falls inside the scope of a base entry. Scope cursors
// enumerate every id in scope: they drain the one-level or sub-level index
// first and, when aliases are dereferenced, continue with the one-alias or
// sub-alias index.
//
// Basic usage:
//
//	c, err := search.NewCursor(st, search.ScopeSubtree, baseID, search.DerefAlways)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	ids, err := search.CollectIDs(c)
package search
