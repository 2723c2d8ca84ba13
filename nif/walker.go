package nif

import (
	"encoding/binary"
	"strings"

	"nif360/errors"
	"nif360/expr"
	"nif360/schema"
)

// maxWalkDepth caps struct recursion to guard against self-referential
// schema data.
const maxWalkDepth = 20

// defaultMaxArray caps evaluated array lengths.
const defaultMaxArray = 1 << 24

// String forms handled outside the catalog: a length prefix followed by
// raw bytes, where only the prefix is swapped.
const (
	typeSizedString   = "SizedString"
	typeSizedString16 = "SizedString16"
)

// compoundSizes gives byte widths and swap units for well-known compound
// types a catalog may reference without declaring.
var compoundSizes = map[string]struct{ size, unit int }{
	"Vector3":    {12, 4},
	"Vector4":    {16, 4},
	"Color3":     {12, 4},
	"Color4":     {16, 4},
	"TexCoord":   {8, 4},
	"Triangle":   {6, 2},
	"Matrix33":   {36, 4},
	"Quaternion": {16, 4},
}

// walkContext is the conversion state for one block instance. It lives for
// exactly one conversion call and is never shared.
type walkContext struct {
	cat     *schema.Catalog
	version expr.VersionCtx

	// buf is the block's backing buffer; pos and end bound the walk. In
	// mutate mode values are rewritten little-endian in place.
	buf    []byte
	pos    int
	end    int
	src    binary.ByteOrder
	mutate bool

	// remap is the file-wide old-index to new-index table consulted by
	// reference fields. nil leaves references unremapped (identity).
	remap []int32

	blockIndex int
	blockType  string
	template   string

	// captured maps a field name to its last-parsed scalar value, for later
	// array-length and condition lookups. rowLens holds captured per-row
	// length lists for jagged arrays. refs records the source values of
	// every reference field, keyed by field name.
	captured map[string]interface{}
	rowLens  map[string][]int64
	refs     map[string][]int32

	maxArray int64
	warns    errors.Errors
}

func newWalkContext(cat *schema.Catalog, v expr.VersionCtx, buf []byte, start, end int, src binary.ByteOrder) *walkContext {
	return &walkContext{
		cat:      cat,
		version:  v,
		buf:      buf,
		pos:      start,
		end:      end,
		src:      src,
		captured: map[string]interface{}{},
		rowLens:  map[string][]int64{},
		refs:     map[string][]int32{},
		maxArray: defaultMaxArray,
	}
}

// need reports whether n more bytes fit inside the block.
func (ctx *walkContext) need(n int) bool {
	return n >= 0 && ctx.pos+n <= ctx.end && ctx.pos+n <= len(ctx.buf)
}

func (ctx *walkContext) bounds(field string) error {
	return BoundsGuardError{Block: ctx.blockIndex, Field: field, Offset: ctx.pos}
}

// loadUint reads an unsigned value of the given width at the cursor in
// source order without advancing.
func (ctx *walkContext) loadUint(width int) uint64 {
	b := ctx.buf[ctx.pos:]
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(ctx.src.Uint16(b))
	case 4:
		return uint64(ctx.src.Uint32(b))
	default:
		return ctx.src.Uint64(b)
	}
}

// storeUint writes a value little-endian at the cursor without advancing.
func (ctx *walkContext) storeUint(width int, v uint64) {
	b := ctx.buf[ctx.pos:]
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// coarseSwap flips b as 4-byte units. A trailing remainder shorter than one
// unit is left untouched.
func coarseSwap(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		reverseBytes(b[i : i+4])
	}
}

// coarseSwapTail abandons fine-grained interpretation and flips the rest of
// the block from the cursor. Mutate mode only; a scan leaves bytes alone.
func (ctx *walkContext) coarseSwapTail() {
	if !ctx.mutate {
		return
	}
	end := ctx.end
	if end > len(ctx.buf) {
		end = len(ctx.buf)
	}
	if ctx.pos < end {
		coarseSwap(ctx.buf[ctx.pos:end])
	}
}

// remapRef translates an old block index through the remap table. Indices
// out of range and removed blocks both become NoRef.
func (ctx *walkContext) remapRef(old int32) int32 {
	if old < 0 {
		return NoRef
	}
	if ctx.remap == nil {
		return old
	}
	if int(old) >= len(ctx.remap) {
		return NoRef
	}
	return ctx.remap[old]
}

// shouldCapture reports whether a field's freshly parsed scalar value is
// kept for later conditions and array lengths: count fields, flag fields,
// has-X booleans, and type-selector fields.
func shouldCapture(name string) bool {
	return strings.HasPrefix(name, "Num") ||
		strings.HasPrefix(name, "Has") ||
		strings.HasSuffix(name, "Flags") ||
		strings.HasSuffix(name, "Count") ||
		strings.HasSuffix(name, "Type")
}

// isRowLengths recognizes per-row length lists captured for jagged arrays.
func isRowLengths(name string) bool {
	return strings.HasSuffix(name, "Lengths")
}

// evalLength resolves an array-length expression against captured values.
func (ctx *walkContext) evalLength(src string) (int64, bool) {
	n, ok := expr.EvalNumber(src, ctx.captured)
	if !ok {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	return n, true
}

// walkFields interprets one resolved field list against the block's byte
// range. It returns a non-nil error only when fine-grained interpretation
// must be abandoned; the caller coarse-swaps the tail.
func (ctx *walkContext) walkFields(fields []schema.Field, depth int) error {
	if depth > maxWalkDepth {
		return ctx.bounds("recursion depth")
	}
	for i := range fields {
		f := &fields[i]

		if f.Only != "" && !ctx.cat.IsSubtypeOf(ctx.blockType, f.Only) {
			continue
		}
		if f.Since != 0 && ctx.version.File < f.Since {
			continue
		}
		if f.Until != 0 && ctx.version.File > f.Until {
			continue
		}
		if !expr.EvalVersion(f.VerCond, ctx.version) {
			continue
		}
		if f.Cond != "" && !expr.EvalCond(f.Cond, ctx.captured) {
			continue
		}

		if f.Length == "" {
			v, hasV, err := ctx.walkScalar(f, f.Name, depth)
			if err != nil {
				return err
			}
			if hasV && shouldCapture(f.Name) {
				ctx.captured[f.Name] = float64(v)
			}
			continue
		}
		if err := ctx.walkArray(f, depth); err != nil {
			return err
		}
	}
	return nil
}

// walkArray handles array fields, including two-dimensional and jagged
// shapes. An undeterminable length skips the field rather than aborting the
// block; a pathological length aborts.
func (ctx *walkContext) walkArray(f *schema.Field, depth int) error {
	count, ok := ctx.evalLength(f.Length)
	if !ok {
		ctx.warns = append(ctx.warns, errors.New("block "+ctx.blockType+": length of "+f.Name+" cannot be determined, field skipped"))
		return nil
	}
	if count > ctx.maxArray {
		return ctx.bounds(f.Name)
	}

	var rows []int64
	total := count
	if f.Width != "" {
		if lens, jagged := ctx.rowLens[f.Width]; jagged {
			rows = lens
			total = 0
			for i := int64(0); i < count && i < int64(len(rows)); i++ {
				total += rows[i]
			}
		} else {
			width, ok := ctx.evalLength(f.Width)
			if !ok {
				ctx.warns = append(ctx.warns, errors.New("block "+ctx.blockType+": width of "+f.Name+" cannot be determined, field skipped"))
				return nil
			}
			if width > ctx.maxArray {
				return ctx.bounds(f.Name)
			}
			total = count * width
		}
	}
	if total > ctx.maxArray {
		return ctx.bounds(f.Name)
	}

	captureLens := isRowLengths(f.Name)
	var lens []int64

	walkElems := func(n int64) error {
		for i := int64(0); i < n; i++ {
			v, hasV, err := ctx.walkScalar(f, f.Name, depth)
			if err != nil {
				return err
			}
			if captureLens && hasV {
				lens = append(lens, v)
			}
		}
		return nil
	}

	if rows != nil {
		for i := int64(0); i < count && i < int64(len(rows)); i++ {
			if err := walkElems(rows[i]); err != nil {
				return err
			}
		}
	} else if err := walkElems(total); err != nil {
		return err
	}

	if captureLens {
		ctx.rowLens[f.Name] = lens
	}
	return nil
}

// walkScalar consumes exactly one value of the field's type: swap by size
// class for basics, remap for references, storage type for enums, recursion
// for structs, whole-unit swap for bit-packed structs, and a width-table
// swap for undeclared compound names. An unknown width signals a
// block-level fallback.
func (ctx *walkContext) walkScalar(f *schema.Field, name string, depth int) (val int64, hasVal bool, err error) {
	typeName := f.Type
	if typeName == schema.TemplatePlaceholder {
		if ctx.template == "" {
			return 0, false, UnknownBlockTypeError{Block: ctx.blockIndex, TypeName: typeName}
		}
		typeName = ctx.template
	}

	switch typeName {
	case typeSizedString, typeSizedString16:
		width := 4
		if typeName == typeSizedString16 {
			width = 2
		}
		if !ctx.need(width) {
			return 0, false, ctx.bounds(name)
		}
		length := ctx.loadUint(width)
		if ctx.mutate {
			ctx.storeUint(width, length)
		}
		ctx.pos += width
		if length > uint64(ctx.maxArray) || !ctx.need(int(length)) {
			return 0, false, ctx.bounds(name)
		}
		ctx.pos += int(length)
		return 0, false, nil
	}

	if b, ok := ctx.cat.LookupBasic(typeName); ok {
		return ctx.walkBasic(b, name)
	}
	if e, ok := ctx.cat.LookupEnum(typeName); ok {
		b, ok := ctx.cat.LookupBasic(e.Storage)
		if !ok {
			return 0, false, UnknownBlockTypeError{Block: ctx.blockIndex, TypeName: e.Storage}
		}
		return ctx.walkBasic(b, name)
	}
	if s, ok := ctx.cat.LookupStruct(typeName); ok {
		if s.Atomic {
			// Bit-packed unit: swapped whole instead of field-by-field.
			if !ctx.need(int(s.Size)) {
				return 0, false, ctx.bounds(name)
			}
			if ctx.mutate {
				reverseBytes(ctx.buf[ctx.pos : ctx.pos+int(s.Size)])
			}
			ctx.pos += int(s.Size)
			return 0, false, nil
		}
		savedTmpl := ctx.template
		if f.Template != "" && f.Template != schema.TemplatePlaceholder {
			ctx.template = f.Template
		}
		if f.Arg != "" {
			if v, ok := ctx.evalLength(f.Arg); ok {
				ctx.captured["Arg"] = float64(v)
			}
		}
		err := ctx.walkFields(s.Fields, depth+1)
		ctx.template = savedTmpl
		return 0, false, err
	}

	if w, ok := compoundSizes[typeName]; ok {
		if !ctx.need(w.size) {
			return 0, false, ctx.bounds(name)
		}
		if ctx.mutate {
			for off := 0; off+w.unit <= w.size; off += w.unit {
				reverseBytes(ctx.buf[ctx.pos+off : ctx.pos+off+w.unit])
			}
		}
		ctx.pos += w.size
		return 0, false, nil
	}

	return 0, false, UnknownBlockTypeError{Block: ctx.blockIndex, TypeName: typeName}
}

func (ctx *walkContext) walkBasic(b schema.Basic, name string) (val int64, hasVal bool, err error) {
	width := int(b.Size)
	if !ctx.need(width) {
		return 0, false, ctx.bounds(name)
	}

	if b.Ref && width == 4 {
		old := int32(ctx.loadUint(4))
		ctx.refs[name] = append(ctx.refs[name], old)
		if ctx.mutate {
			ctx.storeUint(4, uint64(uint32(ctx.remapRef(old))))
		}
		ctx.pos += 4
		return int64(old), true, nil
	}

	raw := ctx.loadUint(width)
	if ctx.mutate {
		ctx.storeUint(width, raw)
	}
	ctx.pos += width
	if b.Integral && width <= 8 {
		return int64(raw), true, nil
	}
	return 0, false, nil
}
