// Declarative builders for catalog entries. Each builder returns a value
// implementing Decl; std.go shows the intended usage.

package schema

// BasicType declares a fixed-width primitive.
func BasicType(name string, size uint32, integral bool) Basic {
	return Basic{Name: name, Size: size, Integral: integral}
}

// RefType declares a 4-byte block-table index remapped during conversion.
func RefType(name string) Basic {
	return Basic{Name: name, Size: 4, Integral: true, Ref: true}
}

// EnumType declares an enum stored as the named basic type.
func EnumType(name, storage string) Enum {
	return Enum{Name: name, Storage: storage}
}

// StructType declares a compound with a fixed serialized size.
func StructType(name string, size uint32, fields ...Field) Struct {
	return Struct{Name: name, Size: size, Sized: true, Fields: fields}
}

// VarStructType declares a compound whose size depends on its contents.
func VarStructType(name string, fields ...Field) Struct {
	return Struct{Name: name, Fields: fields}
}

// AtomicType declares a fixed-size bit-packed unit that is byte-swapped
// whole rather than walked field-by-field.
func AtomicType(name string, size uint32) Struct {
	return Struct{Name: name, Size: size, Sized: true, Atomic: true}
}

// ObjectType declares a concrete block type.
func ObjectType(name, parent string, fields ...Field) Object {
	return Object{Name: name, Parent: parent, Fields: fields}
}

// AbstractType declares an object type that only contributes inherited
// fields and never appears in a block table.
func AbstractType(name, parent string, fields ...Field) Object {
	return Object{Name: name, Parent: parent, Abstract: true, Fields: fields}
}

// F starts a field declaration. Attributes are added with the chained
// methods below; each returns the modified field by value.
func F(name, typ string) Field {
	return Field{Name: name, Type: typ}
}

// Len makes the field an array with the given length expression.
func (f Field) Len(expr string) Field {
	f.Length = expr
	return f
}

// Dim adds a second dimension. If expr names a captured per-row length
// list, the array is jagged.
func (f Field) Dim(expr string) Field {
	f.Width = expr
	return f
}

// If gates the field on a runtime condition over captured values.
func (f Field) If(cond string) Field {
	f.Cond = cond
	return f
}

// VerIf gates the field on a version condition.
func (f Field) VerIf(cond string) Field {
	f.VerCond = cond
	return f
}

// SinceV bounds the field to file versions at or above v, given as a packed
// version number.
func (f Field) SinceV(v uint32) Field {
	f.Since = v
	return f
}

// UntilV bounds the field to file versions at or below v.
func (f Field) UntilV(v uint32) Field {
	f.Until = v
	return f
}

// OnlyFor restricts the field to instances of the named type.
func (f Field) OnlyFor(name string) Field {
	f.Only = name
	return f
}

// Tmpl sets the template element type substituted while walking the value.
func (f Field) Tmpl(name string) Field {
	f.Template = name
	return f
}

// WithArg sets the template-argument expression.
func (f Field) WithArg(expr string) Field {
	f.Arg = expr
	return f
}
