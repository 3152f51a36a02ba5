package search

import (
	"errors"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
)

// Search errors.
var (
	ErrInvalidScope = errors.New("invalid search scope")
	ErrAliasLoop    = errors.New("alias dereferencing does not terminate")
)

// Source exposes the system indexes a search runs against.
type Source interface {
	OneLevelIndex() index.Index
	OneAliasIndex() index.Index
	SubLevelIndex() index.Index
	SubAliasIndex() index.Index
	AliasIndex() index.Index

	// EntryID resolves a normalized DN to its entry id.
	EntryID(dn string) (uuid.UUID, error)
}

// Evaluator decides whether an entry id is within a scope.
type Evaluator interface {
	Evaluate(id uuid.UUID) (bool, error)
}

// isAlias reports whether id is an alias entry.
func isAlias(src Source, id uuid.UUID) (bool, error) {
	_, ok, err := src.AliasIndex().ReverseLookup(id)
	return ok, err
}

// BaseEvaluator accepts only the base entry.
type BaseEvaluator struct {
	BaseID uuid.UUID
}

// Evaluate implements Evaluator.
func (e BaseEvaluator) Evaluate(id uuid.UUID) (bool, error) {
	return id == e.BaseID, nil
}

// OneLevelEvaluator accepts the immediate children of the base entry.
// When dereferencing, alias children are rejected and the targets of
// aliases directly below the base are accepted.
type OneLevelEvaluator struct {
	src           Source
	BaseID        uuid.UUID
	Dereferencing bool
}

// NewOneLevelEvaluator creates a one-level evaluator rooted at baseID.
func NewOneLevelEvaluator(src Source, baseID uuid.UUID, dereferencing bool) *OneLevelEvaluator {
	return &OneLevelEvaluator{src: src, BaseID: baseID, Dereferencing: dereferencing}
}

// Evaluate implements Evaluator.
func (e *OneLevelEvaluator) Evaluate(id uuid.UUID) (bool, error) {
	return evaluateLevel(e.src, e.src.OneLevelIndex(), e.src.OneAliasIndex(), e.BaseID, e.Dereferencing, id)
}

// SubtreeEvaluator accepts the base entry and all its descendants. When
// dereferencing, alias descendants are rejected and the targets of aliases
// anywhere below the base are accepted.
type SubtreeEvaluator struct {
	src           Source
	BaseID        uuid.UUID
	Dereferencing bool
}

// NewSubtreeEvaluator creates a subtree evaluator rooted at baseID.
func NewSubtreeEvaluator(src Source, baseID uuid.UUID, dereferencing bool) *SubtreeEvaluator {
	return &SubtreeEvaluator{src: src, BaseID: baseID, Dereferencing: dereferencing}
}

// Evaluate implements Evaluator.
func (e *SubtreeEvaluator) Evaluate(id uuid.UUID) (bool, error) {
	return evaluateLevel(e.src, e.src.SubLevelIndex(), e.src.SubAliasIndex(), e.BaseID, e.Dereferencing, id)
}

func evaluateLevel(src Source, level, alias index.Index, baseID uuid.UUID, deref bool, id uuid.UUID) (bool, error) {
	key := index.IDKey(baseID)

	if !deref {
		return level.Forward(key, id)
	}

	aliased, err := isAlias(src, id)
	if err != nil || aliased {
		return false, err
	}

	inScope, err := level.Forward(key, id)
	if err != nil || inScope {
		return inScope, err
	}

	return alias.Forward(key, id)
}

// NewEvaluator returns the evaluator for scope rooted at baseID.
func NewEvaluator(src Source, scope Scope, baseID uuid.UUID, mode AliasDerefMode) (Evaluator, error) {
	switch scope {
	case ScopeBase:
		return BaseEvaluator{BaseID: baseID}, nil
	case ScopeOneLevel:
		return NewOneLevelEvaluator(src, baseID, mode.InScope()), nil
	case ScopeSubtree:
		return NewSubtreeEvaluator(src, baseID, mode.InScope()), nil
	default:
		return nil, ErrInvalidScope
	}
}
