// Package schema holds the declarative type catalog that drives block
// conversion: basic types, enums, structs, and block/object types with
// single inheritance. A catalog is immutable once built; the resolved field
// list of an object (ancestor fields first, mirroring on-disk layout) is
// computed lazily and memoized.
package schema

import (
	"sync"
)

// TemplatePlaceholder is the type name a field uses to stand for the
// enclosing template substitution.
const TemplatePlaceholder = "T"

// Field describes one serialized field of a struct or object.
type Field struct {
	// Name of the field. Captured values are keyed by this name.
	Name string

	// Type is the field's type name, or TemplatePlaceholder.
	Type string

	// Template names the element type substituted while walking into a
	// templated struct value.
	Template string

	// Length is the array length expression; empty for a scalar field. It
	// may be a numeric literal, the name of a previously captured field, or
	// a full expression over captured values.
	Length string

	// Width is the second-dimension width expression. If it names a
	// previously captured per-row length list, the array is jagged and rows
	// are sized individually.
	Width string

	// Cond gates the field on previously captured values.
	Cond string

	// VerCond gates the field on the file's version numbers.
	VerCond string

	// Since and Until bound the versions the field exists in. Zero means
	// unbounded.
	Since uint32
	Until uint32

	// Only restricts the field to blocks that are instances of the named
	// type or one of its subtypes.
	Only string

	// Arg is the template-argument expression made available to the walked
	// value as the "Arg" capture.
	Arg string
}

// Basic is a fixed-width primitive type.
type Basic struct {
	Name     string
	Size     uint32
	Integral bool
	// Ref marks a 4-byte block-table index subject to reference remapping.
	Ref bool
}

// Enum is a named set stored as one of the basic types.
type Enum struct {
	Name    string
	Storage string
}

// Struct is a compound value embedded inline in its owner.
type Struct struct {
	Name   string
	Size   uint32
	Sized  bool
	Atomic bool // bit-packed unit: swapped whole, never walked field-by-field
	Fields []Field
}

// Object is a block type. Objects form a single-inheritance tree; abstract
// objects never appear in a file's block table themselves.
type Object struct {
	Name     string
	Parent   string
	Abstract bool
	Fields   []Field
}

// Decl is implemented by the type declarations accepted by New.
type Decl interface {
	declare(c *Catalog)
}

func (b Basic) declare(c *Catalog)  { c.basics[b.Name] = b }
func (e Enum) declare(c *Catalog)   { c.enums[e.Name] = e }
func (s Struct) declare(c *Catalog) { c.structs[s.Name] = s }
func (o Object) declare(c *Catalog) { c.objects[o.Name] = o }

// Catalog indexes a set of type declarations. Safe for concurrent use.
type Catalog struct {
	basics  map[string]Basic
	enums   map[string]Enum
	structs map[string]Struct
	objects map[string]Object

	mu       sync.Mutex
	resolved map[string][]Field
}

// New builds a catalog from declarations. Later declarations of the same
// name take precedence.
func New(decls ...Decl) *Catalog {
	c := &Catalog{
		basics:   map[string]Basic{},
		enums:    map[string]Enum{},
		structs:  map[string]Struct{},
		objects:  map[string]Object{},
		resolved: map[string][]Field{},
	}
	for _, d := range decls {
		d.declare(c)
	}
	return c
}

func (c *Catalog) LookupBasic(name string) (Basic, bool) {
	b, ok := c.basics[name]
	return b, ok
}

func (c *Catalog) LookupEnum(name string) (Enum, bool) {
	e, ok := c.enums[name]
	return e, ok
}

func (c *Catalog) LookupStruct(name string) (Struct, bool) {
	s, ok := c.structs[name]
	return s, ok
}

func (c *Catalog) LookupObject(name string) (Object, bool) {
	o, ok := c.objects[name]
	return o, ok
}

// IsBlockType reports whether name is a declared object type.
func (c *Catalog) IsBlockType(name string) bool {
	_, ok := c.objects[name]
	return ok
}

// TypeSize returns the fixed byte size of a type, when it has one: basic
// types, enums via their storage type, and structs with a declared size.
// The second result is false for variable-size and unknown types; callers
// must treat that as "unknown", never as zero.
func (c *Catalog) TypeSize(name string) (uint32, bool) {
	if b, ok := c.basics[name]; ok {
		return b.Size, true
	}
	if e, ok := c.enums[name]; ok {
		if b, ok := c.basics[e.Storage]; ok {
			return b.Size, true
		}
		return 0, false
	}
	if s, ok := c.structs[name]; ok && s.Sized {
		return s.Size, true
	}
	return 0, false
}

// ResolvedFields returns the full serialized field list of an object:
// ancestor fields first, own fields last. Results are memoized per name. A
// cycle in the declared parent chain yields the partial chain gathered
// before the repeat.
func (c *Catalog) ResolvedFields(name string) []Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fields, ok := c.resolved[name]; ok {
		return fields
	}

	var chain []Object
	seen := map[string]bool{}
	for cur := name; cur != "" && !seen[cur]; {
		seen[cur] = true
		o, ok := c.objects[cur]
		if !ok {
			break
		}
		chain = append(chain, o)
		cur = o.Parent
	}

	var fields []Field
	for i := len(chain) - 1; i >= 0; i-- {
		fields = append(fields, chain[i].Fields...)
	}
	c.resolved[name] = fields
	return fields
}

// IsSubtypeOf reports whether name is ancestor or declared below it in the
// inheritance chain.
func (c *Catalog) IsSubtypeOf(name, ancestor string) bool {
	seen := map[string]bool{}
	for cur := name; cur != "" && !seen[cur]; {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
		o, ok := c.objects[cur]
		if !ok {
			return false
		}
		cur = o.Parent
	}
	return false
}
