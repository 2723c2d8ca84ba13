package nif

import (
	"encoding/binary"
	"sort"

	"github.com/x448/float16"

	"nif360/internal/vec"
)

// Packed stream classification. Streams are identified by their semantic
// tag and unit size: 8-byte half-float quads, 4-byte half-float pairs, and
// 4-byte byte quads.
const (
	packedTagHalf = 1
	packedTagByte = 2
)

// Bytes per vertex distinguish the three interleaved layouts.
const (
	packedStrideBare    = 36 // unskinned, no color
	packedStrideColor   = 40 // unskinned, with color
	packedStrideSkinned = 48 // skinned: weights at 8, bone indices at 16
)

// Vertex-byte offsets with fixed meaning in the skinned layout.
const (
	packedWeightOffset = 8
	packedBoneOffset   = 16
)

// packedSampleCount is how many vertices are sampled when classifying a
// quad stream as unit-length.
const packedSampleCount = 10

// PackedRecord is the decoded content of one console packed-geometry
// block: standard per-attribute arrays recovered from the interleaved
// half-float vertex stream. Produced once, consumed read-only.
type PackedRecord struct {
	VertexCount int
	Skinned     bool

	Positions  [][3]float32
	Normals    [][3]float32
	Tangents   [][3]float32
	Bitangents [][3]float32
	UVs        [][2]float32

	// Colors holds byte quads in source channel order A,R,G,B.
	Colors [][4]byte

	BoneWeights [][4]float32
	BoneIndices [][4]byte
}

type packedStream struct {
	tag         int32
	unitSize    int32
	totalSize   int32
	stride      int32
	blockIndex  int32
	blockOffset int32
}

type packedBlock struct {
	hasData    bool
	data       []byte
	subOffsets []int32
}

// byteCursor is a bounds-checked cursor over one block body.
type byteCursor struct {
	b     []byte
	pos   int
	order binary.ByteOrder
	ok    bool
}

func (c *byteCursor) u8() byte {
	if !c.ok || c.pos+1 > len(c.b) {
		c.ok = false
		return 0
	}
	v := c.b[c.pos]
	c.pos++
	return v
}

func (c *byteCursor) u16() uint16 {
	if !c.ok || c.pos+2 > len(c.b) {
		c.ok = false
		return 0
	}
	v := c.order.Uint16(c.b[c.pos:])
	c.pos += 2
	return v
}

func (c *byteCursor) i32() int32 {
	if !c.ok || c.pos+4 > len(c.b) {
		c.ok = false
		return 0
	}
	v := int32(c.order.Uint32(c.b[c.pos:]))
	c.pos += 4
	return v
}

func (c *byteCursor) take(n int) []byte {
	if !c.ok || n < 0 || c.pos+n > len(c.b) {
		c.ok = false
		return nil
	}
	v := c.b[c.pos : c.pos+n]
	c.pos += n
	return v
}

// extractPacked decodes one packed-geometry block body. Any truncation or
// short read yields nil and the owning geometry block stays unexpanded.
func extractPacked(body []byte, order binary.ByteOrder) *PackedRecord {
	c := &byteCursor{b: body, order: order, ok: true}

	n := int(c.u16())
	numInfos := c.i32()
	if !c.ok || numInfos < 0 || numInfos > 64 {
		return nil
	}
	streams := make([]packedStream, numInfos)
	for i := range streams {
		streams[i] = packedStream{
			tag:         c.i32(),
			unitSize:    c.i32(),
			totalSize:   c.i32(),
			stride:      c.i32(),
			blockIndex:  c.i32(),
			blockOffset: c.i32(),
		}
	}

	numBlocks := c.i32()
	if !c.ok || numBlocks < 0 || numBlocks > 64 {
		return nil
	}
	blocks := make([]packedBlock, numBlocks)
	for i := range blocks {
		if c.u8() == 0 {
			continue
		}
		blocks[i].hasData = true
		blockSize := c.i32()
		numSub := c.i32()
		if !c.ok || blockSize < 0 || numSub < 0 || numSub > 256 {
			return nil
		}
		blocks[i].subOffsets = make([]int32, numSub)
		for j := range blocks[i].subOffsets {
			blocks[i].subOffsets[j] = c.i32()
		}
		numAtoms := c.i32()
		if !c.ok || numAtoms < 0 || numAtoms > 4096 {
			return nil
		}
		for j := int32(0); j < numAtoms; j++ {
			c.i32()
		}
		blocks[i].data = c.take(int(blockSize))
	}
	if !c.ok {
		return nil
	}

	// The first quad stream at vertex offset 0 is always position; its
	// stride selects the layout.
	var pos *packedStream
	for i := range streams {
		s := &streams[i]
		if s.tag == packedTagHalf && s.unitSize == 8 && s.blockOffset == 0 {
			pos = s
			break
		}
	}
	if pos == nil {
		return nil
	}
	stride := int(pos.stride)
	skinned := stride == packedStrideSkinned

	rec := &PackedRecord{VertexCount: n, Skinned: skinned}

	vertexBase := func(s *packedStream) ([]byte, bool) {
		if s.blockIndex < 0 || int(s.blockIndex) >= len(blocks) {
			return nil, false
		}
		blk := blocks[s.blockIndex]
		if !blk.hasData {
			return nil, false
		}
		base := 0
		if len(blk.subOffsets) > 0 {
			base = int(blk.subOffsets[0])
		}
		last := base + (n-1)*stride + int(s.blockOffset) + int(s.unitSize)
		if base < 0 || n > 0 && (last < 0 || last > len(blk.data)) {
			return nil, false
		}
		return blk.data[base:], true
	}

	halfQuads := func(s *packedStream) [][4]float32 {
		raw, ok := vertexBase(s)
		if !ok {
			return nil
		}
		out := make([][4]float32, n)
		for i := 0; i < n; i++ {
			at := i*stride + int(s.blockOffset)
			for k := 0; k < 4; k++ {
				out[i][k] = float16.Frombits(order.Uint16(raw[at+2*k:])).Float32()
			}
		}
		return out
	}
	halfPairs := func(s *packedStream) [][2]float32 {
		raw, ok := vertexBase(s)
		if !ok {
			return nil
		}
		out := make([][2]float32, n)
		for i := 0; i < n; i++ {
			at := i*stride + int(s.blockOffset)
			out[i][0] = float16.Frombits(order.Uint16(raw[at:])).Float32()
			out[i][1] = float16.Frombits(order.Uint16(raw[at+2:])).Float32()
		}
		return out
	}
	byteQuads := func(s *packedStream) [][4]byte {
		raw, ok := vertexBase(s)
		if !ok {
			return nil
		}
		out := make([][4]byte, n)
		for i := 0; i < n; i++ {
			at := i*stride + int(s.blockOffset)
			copy(out[i][:], raw[at:at+4])
		}
		return out
	}

	xyz := func(q [][4]float32) [][3]float32 {
		if q == nil {
			return nil
		}
		out := make([][3]float32, len(q))
		for i := range q {
			out[i] = [3]float32{q[i][0], q[i][1], q[i][2]}
		}
		return out
	}

	if rec.Positions = xyz(halfQuads(pos)); rec.Positions == nil && n > 0 {
		return nil
	}

	var candidates []*packedStream
	for i := range streams {
		s := &streams[i]
		switch {
		case s == pos:
		case s.tag == packedTagHalf && s.unitSize == 8:
			if skinned && s.blockOffset == packedWeightOffset {
				if q := halfQuads(s); q != nil {
					rec.BoneWeights = q
				}
			} else {
				candidates = append(candidates, s)
			}
		case s.tag == packedTagHalf && s.unitSize == 4:
			if rec.UVs == nil {
				rec.UVs = halfPairs(s)
			}
		case s.tag == packedTagByte && s.unitSize == 4:
			if skinned {
				// In the skinned layout the byte quad holds bone indices,
				// not color.
				if s.blockOffset == packedBoneOffset {
					rec.BoneIndices = byteQuads(s)
				}
			} else if rec.Colors == nil {
				rec.Colors = byteQuads(s)
			}
		}
	}

	// The remaining quad streams carry unit-length basis vectors. Sample
	// the first few vertices; streams whose mean magnitude is near 1 are
	// assigned normal, tangent, bitangent in ascending offset order.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].blockOffset < candidates[j].blockOffset
	})
	var units [][][3]float32
	for _, s := range candidates {
		q := halfQuads(s)
		if q == nil {
			continue
		}
		if isUnitStream(q) {
			units = append(units, xyz(q))
		}
	}
	switch len(units) {
	case 3:
		rec.Normals, rec.Tangents, rec.Bitangents = units[0], units[1], units[2]
	case 2:
		rec.Normals, rec.Tangents = units[0], units[1]
		rec.Bitangents = crossArrays(rec.Normals, rec.Tangents)
	case 1:
		rec.Normals = units[0]
	}

	return rec
}

// isUnitStream samples up to packedSampleCount vertices and reports whether
// the mean vector magnitude lands in [0.9, 1.1].
func isUnitStream(q [][4]float32) bool {
	count := len(q)
	if count > packedSampleCount {
		count = packedSampleCount
	}
	if count == 0 {
		return false
	}
	var sum float32
	for i := 0; i < count; i++ {
		v := vec.Vec3{X: q[i][0], Y: q[i][1], Z: q[i][2]}
		sum += v.Length()
	}
	mean := sum / float32(count)
	return mean >= 0.9 && mean <= 1.1
}

// crossArrays synthesizes the third basis vector per vertex as normal
// cross tangent.
func crossArrays(normals, tangents [][3]float32) [][3]float32 {
	out := make([][3]float32, len(normals))
	for i := range normals {
		c := vec.Cross(vec.VFromA(normals[i]), vec.VFromA(tangents[i]))
		out[i] = c.Array()
	}
	return out
}
