package nif

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/anaminus/parse"
	"golang.org/x/crypto/blake2b"

	"nif360/errors"
	"nif360/expr"
	"nif360/schema"
)

// Converter drives a whole-file conversion from console byte order to
// little-endian. The zero value is usable.
type Converter struct {
	// Catalog overrides the default type catalog.
	Catalog *schema.Catalog

	// MaxArrayLen overrides the cap on evaluated array lengths.
	MaxArrayLen int64

	// LenientSize downgrades block size mismatches from hard failures to
	// warnings, patching the size table to the written sizes.
	LenientSize bool
}

// Summary describes one conversion.
type Summary struct {
	Version       uint32
	UserVersion   uint32
	StreamVersion uint32

	BlocksIn  int
	BlocksOut int

	// Dropped and Expanded hold source block indices.
	Dropped  []int
	Expanded []int

	// FastPath is set when no block was dropped or resized, so the output
	// is a same-size in-place flip of the input.
	FastPath bool

	// Digest is the BLAKE2b-256 digest of the output bytes.
	Digest [32]byte
}

// Result is the product of a conversion.
type Result struct {
	Data    []byte
	Summary Summary
}

// geomPlans gathers the per-block growth decided during planning.
type geomPlans struct {
	drop map[int]bool
	geom map[int]*geomExpansion
	skin map[int]*skinExpansion
}

func (p *geomPlans) resized() bool {
	return len(p.geom) > 0 || len(p.skin) > 0
}

// Convert transcodes one file. Recoverable defects accumulate into warn;
// err is non-nil only when no output could be produced. A source that is
// already little-endian comes back unchanged with a warning.
func (c *Converter) Convert(data []byte) (res *Result, warn, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, warn = nil, nil
			err = ConvertError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	cat := c.Catalog
	if cat == nil {
		cat = schema.Gamebryo()
	}

	var warns errors.Errors
	m, pwarn, err := ParseModel(data)
	if pwarn != nil {
		warns = warns.Append(pwarn)
	}
	if err != nil {
		return nil, warns.Return(), err
	}

	sum := Summary{
		Version:       m.Header.Version,
		UserVersion:   m.Header.UserVersion,
		StreamVersion: m.Header.StreamVersion,
		BlocksIn:      len(m.Blocks),
	}
	if m.Header.LittleEndian {
		warns = warns.Append(ErrAlreadyLittleEndian)
		sum.BlocksOut = len(m.Blocks)
		sum.Digest = blake2b.Sum256(data)
		return &Result{Data: data, Summary: sum}, warns.Return(), nil
	}

	v := expr.VersionCtx{
		File:   m.Header.Version,
		User:   m.Header.UserVersion,
		Stream: m.Header.StreamVersion,
	}

	plans := c.plan(cat, v, m, &sum, &warns)

	remap := make([]int32, len(m.Blocks))
	next := int32(0)
	for i := range m.Blocks {
		if plans.drop[i] {
			remap[i] = NoRef
		} else {
			remap[i] = next
			next++
		}
	}
	sum.BlocksOut = int(next)

	var out []byte
	if len(plans.drop) == 0 && !plans.resized() {
		out = c.convertInPlace(cat, v, m, &warns)
		sum.FastPath = true
	} else {
		out, err = c.reassemble(cat, v, m, plans, remap, &warns)
		if err != nil {
			return nil, warns.Return(), err
		}
	}

	sum.Digest = blake2b.Sum256(out)
	return &Result{Data: out, Summary: sum}, warns.Return(), nil
}

// plan walks the block graph: packed-geometry carriers are marked for
// removal, their contents are extracted, and the owning geometry and skin
// partition blocks get expansion plans.
func (c *Converter) plan(cat *schema.Catalog, v expr.VersionCtx, m *Model, sum *Summary, warns *errors.Errors) *geomPlans {
	plans := &geomPlans{
		drop: map[int]bool{},
		geom: map[int]*geomExpansion{},
		skin: map[int]*skinExpansion{},
	}
	order := m.order()

	for i, b := range m.Blocks {
		if cat.IsSubtypeOf(b.TypeName, typeAdditionalData) || b.TypeName == typePackedData {
			plans.drop[i] = true
			sum.Dropped = append(sum.Dropped, i)
		}
	}
	if len(plans.drop) == 0 {
		return plans
	}

	for i, b := range m.Blocks {
		if !cat.IsSubtypeOf(b.TypeName, typeGeometry) {
			continue
		}
		refs := scanRefs(cat, v, m, i)
		di := firstRef(refs["Data"])
		if di < 0 || di >= len(m.Blocks) {
			continue
		}
		db := m.Blocks[di]
		var shape bool
		switch db.TypeName {
		case typeTriShapeData:
			shape = true
		case typeTriStripsData:
			shape = false
		default:
			continue
		}

		gd := parseGeomData(m.Body(di), order, shape)
		if gd == nil {
			*warns = warns.Append(errors.New(fmt.Sprintf("block %d: geometry data not interpretable, left unexpanded", di)))
			continue
		}
		pi := int(gd.additionalData)
		if pi < 0 || pi >= len(m.Blocks) || !plans.drop[pi] {
			continue
		}
		rec := extractPacked(m.Body(pi), order)
		if rec == nil {
			*warns = warns.Append(errors.New(fmt.Sprintf("block %d: packed geometry not decodable, block %d left unexpanded", pi, di)))
			continue
		}

		var (
			vmap  []uint16
			synth [][3]uint16
		)
		if si := firstRef(refs["SkinInstance"]); rec.Skinned && si >= 0 && si < len(m.Blocks) {
			srefs := scanRefs(cat, v, m, si)
			if spi := firstRef(srefs["SkinPartition"]); spi >= 0 && spi < len(m.Blocks) &&
				m.Blocks[spi].TypeName == typeSkinPartition {
				sp := parseSkinPartition(m.Body(spi), order)
				if sp == nil {
					*warns = warns.Append(errors.New(fmt.Sprintf("block %d: skin partition not interpretable", spi)))
				} else {
					vmap = sp.firstVertexMap()
					synth = sp.meshTriangles()
					if e := planSkinPartition(spi, int64(m.Blocks[spi].Size), sp, rec); e != nil {
						plans.skin[spi] = e
						sum.Expanded = append(sum.Expanded, spi)
					}
				}
			}
		}

		e := planGeometry(di, pi, int64(db.Size), gd, rec, rec.Skinned, vmap)
		if e == nil && gd.shape && !gd.hasTriangles && len(synth) > 0 {
			e = &geomExpansion{
				block: di, packed: pi,
				oldSize: int64(db.Size), newSize: int64(db.Size),
				gd: gd, rec: rec, skinned: rec.Skinned, vertexMap: vmap,
			}
		}
		if e != nil {
			e.addTriangles(synth)
			plans.geom[di] = e
			sum.Expanded = append(sum.Expanded, di)
		}
	}
	return plans
}

// scanRefs interprets one block without mutating it, collecting the values
// of its reference fields by name. Walk failures yield whatever was
// collected before the abort.
func scanRefs(cat *schema.Catalog, v expr.VersionCtx, m *Model, i int) map[string][]int32 {
	b := m.Blocks[i]
	if !cat.IsBlockType(b.TypeName) {
		return nil
	}
	ctx := newWalkContext(cat, v, m.Data, b.Offset, b.Offset+int(b.Size), m.order())
	ctx.blockIndex = i
	ctx.blockType = b.TypeName
	_ = ctx.walkFields(cat.ResolvedFields(b.TypeName), 0)
	return ctx.refs
}

func firstRef(refs []int32) int {
	for _, r := range refs {
		if r >= 0 {
			return int(r)
		}
	}
	return -1
}

// swapBlock flips one block's body in place inside buf, where the body
// occupies [start, end). Unknown block types get a coarse 4-byte swap; a
// walk abort coarse-swaps the unconsumed tail.
func (c *Converter) swapBlock(cat *schema.Catalog, v expr.VersionCtx, buf []byte, start, end, index int, typeName string, remap []int32, warns *errors.Errors) {
	if !cat.IsBlockType(typeName) {
		*warns = warns.Append(UnknownBlockTypeError{Block: index, TypeName: typeName})
		coarseSwap(buf[start:end])
		return
	}
	ctx := newWalkContext(cat, v, buf, start, end, binary.BigEndian)
	ctx.mutate = true
	ctx.remap = remap
	ctx.blockIndex = index
	ctx.blockType = typeName
	if c.MaxArrayLen > 0 {
		ctx.maxArray = c.MaxArrayLen
	}
	if err := ctx.walkFields(cat.ResolvedFields(typeName), 0); err != nil {
		*warns = warns.Append(err)
		ctx.coarseSwapTail()
	}
	*warns = warns.Append(ctx.warns...)
}

// convertInPlace is the fast path: the file keeps its exact shape, so the
// output is a copy with the marker forced, the recorded header and footer
// fields flipped, and each block swapped in place.
func (c *Converter) convertInPlace(cat *schema.Catalog, v expr.VersionCtx, m *Model, warns *errors.Errors) []byte {
	out := make([]byte, len(m.Data))
	copy(out, m.Data)
	out[m.markerOffset] = markerLittle
	for _, s := range m.swapSpans {
		reverseBytes(out[s.off : s.off+s.width])
	}
	for i, b := range m.Blocks {
		c.swapBlock(cat, v, out, b.Offset, b.Offset+int(b.Size), i, b.TypeName, nil, warns)
	}
	return out
}

// reassemble is the general path: every surviving block body is rendered
// to its own buffer, sizes are accounted, and the header, bodies, and
// footer are emitted in sequence.
func (c *Converter) reassemble(cat *schema.Catalog, v expr.VersionCtx, m *Model, plans *geomPlans, remap []int32, warns *errors.Errors) ([]byte, error) {
	var (
		bodies      [][]byte
		typeIndices []uint16
		sizes       []uint32
		bodyTotal   int
	)
	for i, b := range m.Blocks {
		if plans.drop[i] {
			continue
		}

		var body []byte
		planned := int64(b.Size)
		switch {
		case plans.geom[i] != nil:
			e := plans.geom[i]
			newAdd := NoRef
			if e.gd.additionalData >= 0 && int(e.gd.additionalData) < len(remap) {
				newAdd = remap[e.gd.additionalData]
			}
			var buf bytes.Buffer
			fw := parse.NewBinaryWriter(&buf)
			writeGeomData(fw, e, newAdd)
			if _, werr := fw.End(); werr != nil {
				return nil, ConvertError{Cause: werr}
			}
			body = buf.Bytes()
			planned = e.newSize

		case plans.skin[i] != nil:
			e := plans.skin[i]
			var buf bytes.Buffer
			fw := parse.NewBinaryWriter(&buf)
			writeSkinPartition(fw, e)
			if _, werr := fw.End(); werr != nil {
				return nil, ConvertError{Cause: werr}
			}
			body = buf.Bytes()
			planned = e.newSize

		default:
			body = make([]byte, b.Size)
			copy(body, m.Body(i))
			c.swapBlock(cat, v, body, 0, len(body), i, b.TypeName, remap, warns)
		}

		if int64(len(body)) != planned {
			err := SizeMismatchError{Block: i, Planned: planned, Written: int64(len(body))}
			if !c.LenientSize {
				return nil, err
			}
			*warns = warns.Append(err)
		}

		bodies = append(bodies, body)
		typeIndices = append(typeIndices, b.TypeIndex)
		sizes = append(sizes, uint32(len(body)))
		bodyTotal += len(body)
	}

	roots := make([]int32, len(m.Roots))
	for i, r := range m.Roots {
		if r >= 0 && int(r) < len(remap) {
			roots[i] = remap[r]
		} else {
			roots[i] = NoRef
		}
	}

	total := m.headerSize(len(bodies), m.Strings) + bodyTotal + m.footerSize()
	var buf bytes.Buffer
	buf.Grow(total)
	fw := parse.NewBinaryWriter(&buf)
	m.writeHeaderTo(fw, typeIndices, sizes, m.Strings)
	for _, body := range bodies {
		fw.Bytes(body)
	}
	writeFooterTo(fw, roots)
	n, werr := fw.End()
	if werr != nil {
		return nil, ConvertError{Cause: werr}
	}
	if n != int64(total) {
		err := SizeMismatchError{Block: -1, Planned: int64(total), Written: n}
		if !c.LenientSize {
			return nil, err
		}
		*warns = warns.Append(err)
	}
	return buf.Bytes(), nil
}
