// Package binder resolves identifiers to symbols across hierarchical
// scopes in two passes: hoisting top-level declarations, then resolving
// every reference against the resulting symbol table.
package binder

import (
	"github.com/atlas-lang/atlas/position"
	"github.com/atlas-lang/atlas/types"
)

// SymbolKind classifies what a Symbol names.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymConst
	SymFunc
	SymParam
	SymStruct
	SymTrait
	SymImport
)

// Symbol is a named, typed binding in some scope.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	Type     *types.Type
	Span     position.Span
	Used     bool
	Exported bool
}
