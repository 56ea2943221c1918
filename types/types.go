// Package types implements Atlas's structural type system: the Type sum,
// assignability rules, and the trait/impl registries used by the checker.
package types

import "fmt"

// Kind discriminates the Type sum.
type Kind int

const (
	Never Kind = iota
	Number
	StringType
	Bool
	Void
	Null
	Array
	Function
	Record
	Alias
	Union
	Intersection
	Generic
	TypeParameter
	Extern
	Unknown
)

// Type is Atlas's structural type representation. Only one of the
// kind-specific fields is meaningful for a given Kind.
type Type struct {
	Kind Kind

	// Array
	Elem *Type

	// Function
	Params []*Type
	Ret    *Type

	// Record
	Name   string
	Fields map[string]*Type

	// Alias
	AliasName   string
	AliasTarget *Type

	// Union / Intersection
	Members []*Type

	// Generic / TypeParameter
	TypeArgs []*Type
	ParamBound *Type

	// Extern (host-registered, opaque to structural comparison)
	ExternName string
}

var (
	NeverT  = &Type{Kind: Never}
	NumberT = &Type{Kind: Number}
	StringT = &Type{Kind: StringType}
	BoolT   = &Type{Kind: Bool}
	VoidT   = &Type{Kind: Void}
	NullT   = &Type{Kind: Null}
	UnknownT = &Type{Kind: Unknown}
)

// NewArray builds an array type with the given element type.
func NewArray(elem *Type) *Type { return &Type{Kind: Array, Elem: elem} }

// NewFunction builds a function type.
func NewFunction(params []*Type, ret *Type) *Type {
	return &Type{Kind: Function, Params: params, Ret: ret}
}

// NewRecord builds a named record (struct) type.
func NewRecord(name string, fields map[string]*Type) *Type {
	return &Type{Kind: Record, Name: name, Fields: fields}
}

// NewAlias builds a type alias.
func NewAlias(name string, target *Type) *Type {
	return &Type{Kind: Alias, AliasName: name, AliasTarget: target}
}

// NewUnion builds a union type.
func NewUnion(members ...*Type) *Type { return &Type{Kind: Union, Members: members} }

// NewIntersection builds an intersection type.
func NewIntersection(members ...*Type) *Type { return &Type{Kind: Intersection, Members: members} }

// NewExtern builds an opaque host-registered type, e.g. an intrinsic
// container (hashmap, channel, future) exposed by the VM.
func NewExtern(name string) *Type { return &Type{Kind: Extern, ExternName: name} }

// Resolve follows Alias chains to the underlying non-alias type. Aliases are
// transparent for all structural purposes (assignability, Copy-ness).
func Resolve(t *Type) *Type {
	for t != nil && t.Kind == Alias {
		t = t.AliasTarget
	}
	return t
}

// String renders a human-readable type name, used in diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Never:
		return "never"
	case Number:
		return "number"
	case StringType:
		return "string"
	case Bool:
		return "bool"
	case Void:
		return "void"
	case Null:
		return "null"
	case Array:
		return fmt.Sprintf("%s[]", t.Elem)
	case Function:
		return fmt.Sprintf("fn(%d args) -> %s", len(t.Params), t.Ret)
	case Record:
		return t.Name
	case Alias:
		return t.AliasName
	case Union:
		return join(t.Members, " | ")
	case Intersection:
		return join(t.Members, " & ")
	case Generic:
		return fmt.Sprintf("%s<%d>", t.Name, len(t.TypeArgs))
	case TypeParameter:
		return t.Name
	case Extern:
		return t.ExternName
	default:
		return "unknown"
	}
}

func join(ts []*Type, sep string) string {
	s := ""
	for i, m := range ts {
		if i > 0 {
			s += sep
		}
		s += m.String()
	}
	return s
}

// IsCopy reports whether values of t are implicitly copied rather than
// ownership-tracked. Primitives, strings, and arrays are Copy types;
// records and every other kind are not.
func IsCopy(t *Type) bool {
	t = Resolve(t)
	if t == nil {
		return true
	}
	switch t.Kind {
	case Number, StringType, Bool, Void, Null, Array, Never:
		return true
	default:
		return false
	}
}

// AssignableTo reports whether a value of type src may be assigned where
// dst is expected, under Atlas's structural rules: aliases are transparent,
// null is only assignable to null or to a union containing null, arrays are
// covariant in their element type, unions require src to match at least one
// member, and intersections require src to satisfy every member.
func AssignableTo(src, dst *Type) bool {
	src = Resolve(src)
	dst = Resolve(dst)
	if src == nil || dst == nil {
		return false
	}
	if dst.Kind == Unknown || src.Kind == Never {
		return true
	}
	if dst.Kind == Union {
		for _, m := range dst.Members {
			if AssignableTo(src, m) {
				return true
			}
		}
		return false
	}
	if src.Kind == Union {
		for _, m := range src.Members {
			if !AssignableTo(m, dst) {
				return false
			}
		}
		return true
	}
	if dst.Kind == Intersection {
		for _, m := range dst.Members {
			if !AssignableTo(src, m) {
				return false
			}
		}
		return true
	}
	if src.Kind == Null {
		return dst.Kind == Null
	}
	switch dst.Kind {
	case Number, StringType, Bool, Void, Null:
		return src.Kind == dst.Kind
	case Array:
		return src.Kind == Array && AssignableTo(src.Elem, dst.Elem)
	case Function:
		if src.Kind != Function || len(src.Params) != len(dst.Params) {
			return false
		}
		for i := range src.Params {
			// parameters are contravariant: dst's param must be assignable
			// to src's param for dst to safely stand in for src.
			if !AssignableTo(dst.Params[i], src.Params[i]) {
				return false
			}
		}
		return AssignableTo(src.Ret, dst.Ret)
	case Record:
		return src.Kind == Record && src.Name == dst.Name
	case Extern:
		return src.Kind == Extern && src.ExternName == dst.ExternName
	case TypeParameter:
		return src.Kind == TypeParameter && src.Name == dst.Name
	default:
		return false
	}
}

// Equal reports structural equality, used for exact-match contexts like
// trait method signature conformance.
func Equal(a, b *Type) bool {
	return AssignableTo(a, b) && AssignableTo(b, a)
}
