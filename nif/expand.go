package nif

import (
	"encoding/binary"
	"math"

	"github.com/anaminus/parse"
)

func (c *byteCursor) f32() float32 {
	return math.Float32frombits(uint32(c.i32()))
}

func (c *byteCursor) vec3() [3]float32 {
	return [3]float32{c.f32(), c.f32(), c.f32()}
}

// tangentSpaceFlag marks the presence of tangent and bitangent arrays in
// the vector flags word; the low bits count UV sets.
const (
	uvSetMask        = 63
	tangentSpaceFlag = 4096
)

// geomData is the structured form of a geometry-data block, parsed from
// the source order and re-emitted little-endian by the expansion writer.
type geomData struct {
	shape bool // triangle-list data rather than strip data

	groupID       int32
	numVertices   int
	keepFlags     byte
	compressFlags byte

	hasVertices bool
	vertices    [][3]float32
	vectorFlags uint16
	hasNormals  bool
	normals     [][3]float32
	tangents    [][3]float32
	bitangents  [][3]float32
	center      [3]float32
	radius      float32

	hasVertexColors bool
	colors          [][4]float32
	uvSets          [][][2]float32
	consistency     uint16
	additionalData  int32

	numTriangles int

	// Triangle-list variant.
	numTrianglePoints uint32
	hasTriangles      bool
	triangles         [][3]uint16
	matchGroups       [][]uint16

	// Strip variant.
	stripLengths []uint16
	hasPoints    bool
	strips       [][]uint16
}

// parseGeomData interprets a geometry-data block body. It returns nil when
// the body is truncated or leaves unconsumed bytes, in which case the block
// is not expandable and stays on the generic walker path.
func parseGeomData(body []byte, order binary.ByteOrder, shape bool) *geomData {
	c := &byteCursor{b: body, order: order, ok: true}
	gd := &geomData{shape: shape}

	gd.groupID = c.i32()
	gd.numVertices = int(c.u16())
	gd.keepFlags = c.u8()
	gd.compressFlags = c.u8()
	n := gd.numVertices

	gd.hasVertices = c.u8() != 0
	if gd.hasVertices {
		gd.vertices = make([][3]float32, n)
		for i := range gd.vertices {
			gd.vertices[i] = c.vec3()
		}
	}
	gd.vectorFlags = c.u16()
	gd.hasNormals = c.u8() != 0
	if gd.hasNormals {
		gd.normals = make([][3]float32, n)
		for i := range gd.normals {
			gd.normals[i] = c.vec3()
		}
		if gd.vectorFlags&tangentSpaceFlag != 0 {
			gd.tangents = make([][3]float32, n)
			for i := range gd.tangents {
				gd.tangents[i] = c.vec3()
			}
			gd.bitangents = make([][3]float32, n)
			for i := range gd.bitangents {
				gd.bitangents[i] = c.vec3()
			}
		}
	}
	gd.center = c.vec3()
	gd.radius = c.f32()

	gd.hasVertexColors = c.u8() != 0
	if gd.hasVertexColors {
		gd.colors = make([][4]float32, n)
		for i := range gd.colors {
			gd.colors[i] = [4]float32{c.f32(), c.f32(), c.f32(), c.f32()}
		}
	}
	uvCount := int(gd.vectorFlags & uvSetMask)
	gd.uvSets = make([][][2]float32, 0, uvCount)
	for s := 0; s < uvCount; s++ {
		set := make([][2]float32, n)
		for i := range set {
			set[i] = [2]float32{c.f32(), c.f32()}
		}
		gd.uvSets = append(gd.uvSets, set)
	}
	gd.consistency = c.u16()
	gd.additionalData = c.i32()

	gd.numTriangles = int(c.u16())
	if shape {
		gd.numTrianglePoints = uint32(c.i32())
		gd.hasTriangles = c.u8() != 0
		if gd.hasTriangles {
			gd.triangles = make([][3]uint16, gd.numTriangles)
			for i := range gd.triangles {
				gd.triangles[i] = [3]uint16{c.u16(), c.u16(), c.u16()}
			}
		}
		numGroups := int(c.u16())
		if !c.ok || numGroups > len(body) {
			return nil
		}
		gd.matchGroups = make([][]uint16, 0, numGroups)
		for g := 0; g < numGroups; g++ {
			count := int(c.u16())
			if !c.ok || count > len(body) {
				return nil
			}
			group := make([]uint16, count)
			for i := range group {
				group[i] = c.u16()
			}
			gd.matchGroups = append(gd.matchGroups, group)
		}
	} else {
		numStrips := int(c.u16())
		if !c.ok || numStrips > len(body) {
			return nil
		}
		gd.stripLengths = make([]uint16, numStrips)
		for i := range gd.stripLengths {
			gd.stripLengths[i] = c.u16()
		}
		gd.hasPoints = c.u8() != 0
		if gd.hasPoints {
			gd.strips = make([][]uint16, numStrips)
			for i := range gd.strips {
				row := make([]uint16, gd.stripLengths[i])
				for j := range row {
					row[j] = c.u16()
				}
				gd.strips[i] = row
			}
		}
	}

	if !c.ok || c.pos != len(body) {
		return nil
	}
	return gd
}

// geomAdds records which attribute arrays the expansion writer must emit
// from packed data.
type geomAdds struct {
	positions bool
	basis     bool // normals, plus tangents/bitangents when present
	colors    bool
	uvs       bool
	triangles bool
}

func (a geomAdds) any() bool {
	return a.positions || a.basis || a.colors || a.uvs || a.triangles
}

// geomExpansion plans the growth of one geometry-data block.
type geomExpansion struct {
	block   int // owning block index
	packed  int // referenced packed-data block index
	oldSize int64
	newSize int64

	gd   *geomData
	rec  *PackedRecord
	adds geomAdds

	// vertexMap scatters partition-local packed data into mesh order for
	// skinned meshes. nil for unskinned meshes.
	vertexMap []uint16
	skinned   bool

	// synthTris is the triangle list synthesized from skin-partition
	// strips when the block has none of its own.
	synthTris [][3]uint16
}

// planGeometry decides which packed attributes a geometry block must
// absorb and the byte cost of each. A nil result means no expansion.
func planGeometry(blockIndex, packedIndex int, oldSize int64, gd *geomData, rec *PackedRecord, skinned bool, vertexMap []uint16) *geomExpansion {
	n := gd.numVertices
	if rec == nil || n == 0 {
		return nil
	}
	if skinned {
		if vertexMap == nil || rec.VertexCount != len(vertexMap) {
			return nil
		}
	} else if rec.VertexCount != n {
		return nil
	}

	e := &geomExpansion{
		block:     blockIndex,
		packed:    packedIndex,
		oldSize:   oldSize,
		newSize:   oldSize,
		gd:        gd,
		rec:       rec,
		skinned:   skinned,
		vertexMap: vertexMap,
	}

	if !gd.hasVertices && rec.Positions != nil {
		e.adds.positions = true
		e.newSize += int64(n) * 12
	}
	if !gd.hasNormals && rec.Normals != nil {
		e.adds.basis = true
		e.newSize += int64(n) * 12
		if rec.Tangents != nil {
			e.newSize += int64(n) * 12
		}
		if rec.Bitangents != nil {
			e.newSize += int64(n) * 12
		}
	}
	// A skinned mesh's byte stream is bone indices, never color.
	if !gd.hasVertexColors && rec.Colors != nil && !skinned {
		e.adds.colors = true
		e.newSize += int64(n) * 16
	}
	if len(gd.uvSets) == 0 && rec.UVs != nil {
		e.adds.uvs = true
		e.newSize += int64(n) * 8
	}

	if !e.adds.any() {
		return nil
	}
	return e
}

// addTriangles folds strip-derived triangles into an existing plan. Only
// triangle-list blocks without their own triangle data take them.
func (e *geomExpansion) addTriangles(tris [][3]uint16) {
	if e == nil || !e.gd.shape || e.gd.hasTriangles || len(tris) == 0 {
		return
	}
	e.adds.triangles = true
	e.synthTris = tris
	e.newSize += int64(len(tris)) * 6
}

// scatter3 places partition-local vectors into mesh order through the
// vertex map, zero-filling mesh vertices the map never touches.
func scatter3(src [][3]float32, vmap []uint16, n int) [][3]float32 {
	out := make([][3]float32, n)
	for pi, mi := range vmap {
		if pi < len(src) && int(mi) < n {
			out[mi] = src[pi]
		}
	}
	return out
}

func scatter2(src [][2]float32, vmap []uint16, n int) [][2]float32 {
	out := make([][2]float32, n)
	for pi, mi := range vmap {
		if pi < len(src) && int(mi) < n {
			out[mi] = src[pi]
		}
	}
	return out
}

func scatter4b(src [][4]byte, vmap []uint16, n int) [][4]byte {
	out := make([][4]byte, n)
	for pi, mi := range vmap {
		if pi < len(src) && int(mi) < n {
			out[mi] = src[pi]
		}
	}
	return out
}

// argbToRGBA converts a packed byte quad in channel order A,R,G,B to the
// destination float layout R,G,B,A with each channel divided by 255.
func argbToRGBA(c [4]byte) [4]float32 {
	return [4]float32{
		float32(c[1]) / 255,
		float32(c[2]) / 255,
		float32(c[3]) / 255,
		float32(c[0]) / 255,
	}
}

// stripTriangles converts one triangle strip into a triangle list. A strip
// of length L yields up to L-2 triangles; degenerate candidates are
// dropped, and winding alternates with strip position parity.
func stripTriangles(strip []uint16) [][3]uint16 {
	var out [][3]uint16
	for i := 0; i+2 < len(strip); i++ {
		a, b, c := strip[i], strip[i+1], strip[i+2]
		if i%2 == 1 {
			b, c = c, b
		}
		if a == b || b == c || a == c {
			continue
		}
		out = append(out, [3]uint16{a, b, c})
	}
	return out
}

// writeGeomData emits the expanded little-endian geometry block. Attribute
// arrays either come from the source (copied and swapped) or from the
// packed record, scattered through the vertex map for skinned meshes. The
// has-X flags and the vector-flags word are recomputed to match what was
// actually written, and the reference to the removed packed block becomes
// newAdditional (normally NoRef).
func writeGeomData(fw *parse.BinaryWriter, e *geomExpansion, newAdditional int32) (failed bool) {
	gd, rec := e.gd, e.rec
	n := gd.numVertices

	fromPacked3 := func(src [][3]float32) [][3]float32 {
		if e.skinned {
			return scatter3(src, e.vertexMap, n)
		}
		return src
	}

	vertices := gd.vertices
	if e.adds.positions {
		vertices = fromPacked3(rec.Positions)
	}
	normals, tangents, bitangents := gd.normals, gd.tangents, gd.bitangents
	if e.adds.basis {
		normals = fromPacked3(rec.Normals)
		if rec.Tangents != nil {
			tangents = fromPacked3(rec.Tangents)
		}
		if rec.Bitangents != nil {
			bitangents = fromPacked3(rec.Bitangents)
		}
	}
	colors := gd.colors
	if e.adds.colors {
		raw := rec.Colors
		if e.skinned {
			raw = scatter4b(raw, e.vertexMap, n)
		}
		colors = make([][4]float32, len(raw))
		for i, c := range raw {
			colors[i] = argbToRGBA(c)
		}
	}
	uvSets := gd.uvSets
	if e.adds.uvs {
		set := rec.UVs
		if e.skinned {
			set = scatter2(set, e.vertexMap, n)
		}
		uvSets = [][][2]float32{set}
	}

	hasTangents := tangents != nil && bitangents != nil
	vectorFlags := gd.vectorFlags &^ uint16(uvSetMask|tangentSpaceFlag)
	vectorFlags |= uint16(len(uvSets)) & uvSetMask
	if hasTangents {
		vectorFlags |= tangentSpaceFlag
	}

	num := func(v interface{}) bool { return fw.Number(v) }
	writeBool := func(b bool) bool {
		var v uint8
		if b {
			v = 1
		}
		return fw.Number(v)
	}
	write3 := func(arr [][3]float32) bool {
		for _, v := range arr {
			if num(v[0]) || num(v[1]) || num(v[2]) {
				return true
			}
		}
		return false
	}

	if num(e.gd.groupID) || num(uint16(n)) || num(gd.keepFlags) || num(gd.compressFlags) {
		return true
	}
	if writeBool(vertices != nil) {
		return true
	}
	if write3(vertices) {
		return true
	}
	if num(vectorFlags) {
		return true
	}
	if writeBool(normals != nil) {
		return true
	}
	if write3(normals) {
		return true
	}
	if hasTangents {
		if write3(tangents) || write3(bitangents) {
			return true
		}
	}
	if num(gd.center[0]) || num(gd.center[1]) || num(gd.center[2]) || num(gd.radius) {
		return true
	}
	if writeBool(colors != nil) {
		return true
	}
	for _, c := range colors {
		if num(c[0]) || num(c[1]) || num(c[2]) || num(c[3]) {
			return true
		}
	}
	for _, set := range uvSets {
		for _, uv := range set {
			if num(uv[0]) || num(uv[1]) {
				return true
			}
		}
	}
	if num(gd.consistency) || num(newAdditional) {
		return true
	}

	triangles := gd.triangles
	if e.adds.triangles {
		triangles = e.synthTris
	}
	if gd.shape {
		if num(uint16(len(triangles))) || num(uint32(len(triangles)*3)) {
			return true
		}
		if writeBool(len(triangles) > 0) {
			return true
		}
		for _, t := range triangles {
			if num(t[0]) || num(t[1]) || num(t[2]) {
				return true
			}
		}
		if num(uint16(len(gd.matchGroups))) {
			return true
		}
		for _, g := range gd.matchGroups {
			if num(uint16(len(g))) {
				return true
			}
			for _, v := range g {
				if num(v) {
					return true
				}
			}
		}
	} else {
		if num(uint16(gd.numTriangles)) || num(uint16(len(gd.stripLengths))) {
			return true
		}
		for _, l := range gd.stripLengths {
			if num(l) {
				return true
			}
		}
		if writeBool(gd.hasPoints) {
			return true
		}
		for _, row := range gd.strips {
			for _, v := range row {
				if num(v) {
					return true
				}
			}
		}
	}
	return false
}

// skinPartitionPart is one bone-set partition of a skin-partition block.
type skinPartitionPart struct {
	numVertices         int
	numTriangles        int
	numBones            int
	numStrips           int
	numWeightsPerVertex int

	bones []uint16

	hasVertexMap bool
	vertexMap    []uint16

	hasWeights bool
	weights    [][]float32

	stripLengths []uint16
	hasFaces     bool
	strips       [][]uint16
	triangles    [][3]uint16

	hasBoneIndices bool
	boneIndices    [][]byte
}

type skinPartitionData struct {
	parts []skinPartitionPart
}

// parseSkinPartition interprets a skin-partition block body. Nil on a
// truncated body or unconsumed bytes, as with parseGeomData.
func parseSkinPartition(body []byte, order binary.ByteOrder) *skinPartitionData {
	c := &byteCursor{b: body, order: order, ok: true}

	numParts := int(c.i32())
	if !c.ok || numParts < 0 || numParts > 4096 {
		return nil
	}
	sp := &skinPartitionData{parts: make([]skinPartitionPart, numParts)}
	for pi := range sp.parts {
		p := &sp.parts[pi]
		p.numVertices = int(c.u16())
		p.numTriangles = int(c.u16())
		p.numBones = int(c.u16())
		p.numStrips = int(c.u16())
		p.numWeightsPerVertex = int(c.u16())

		p.bones = make([]uint16, p.numBones)
		for i := range p.bones {
			p.bones[i] = c.u16()
		}

		p.hasVertexMap = c.u8() != 0
		if p.hasVertexMap {
			p.vertexMap = make([]uint16, p.numVertices)
			for i := range p.vertexMap {
				p.vertexMap[i] = c.u16()
			}
		}

		p.hasWeights = c.u8() != 0
		if p.hasWeights {
			p.weights = make([][]float32, p.numVertices)
			for i := range p.weights {
				row := make([]float32, p.numWeightsPerVertex)
				for k := range row {
					row[k] = c.f32()
				}
				p.weights[i] = row
			}
		}

		p.stripLengths = make([]uint16, p.numStrips)
		for i := range p.stripLengths {
			p.stripLengths[i] = c.u16()
		}

		p.hasFaces = c.u8() != 0
		if p.hasFaces {
			if p.numStrips != 0 {
				p.strips = make([][]uint16, p.numStrips)
				for i := range p.strips {
					row := make([]uint16, p.stripLengths[i])
					for j := range row {
						row[j] = c.u16()
					}
					p.strips[i] = row
				}
			} else {
				p.triangles = make([][3]uint16, p.numTriangles)
				for i := range p.triangles {
					p.triangles[i] = [3]uint16{c.u16(), c.u16(), c.u16()}
				}
			}
		}

		p.hasBoneIndices = c.u8() != 0
		if p.hasBoneIndices {
			p.boneIndices = make([][]byte, p.numVertices)
			for i := range p.boneIndices {
				p.boneIndices[i] = c.take(p.numWeightsPerVertex)
			}
		}

		if !c.ok {
			return nil
		}
	}
	if c.pos != len(body) {
		return nil
	}
	return sp
}

// meshTriangles collects the partition's faces as mesh-global triangles:
// strips are converted to lists first, then every index is translated
// through the vertex map.
func (sp *skinPartitionData) meshTriangles() [][3]uint16 {
	var out [][3]uint16
	for pi := range sp.parts {
		p := &sp.parts[pi]
		local := p.triangles
		for _, strip := range p.strips {
			local = append(local, stripTriangles(strip)...)
		}
		for _, t := range local {
			if p.hasVertexMap {
				mapped := t
				bad := false
				for k, v := range t {
					if int(v) >= len(p.vertexMap) {
						bad = true
						break
					}
					mapped[k] = p.vertexMap[v]
				}
				if bad {
					continue
				}
				t = mapped
			}
			out = append(out, t)
		}
	}
	return out
}

// firstVertexMap returns the vertex map used to scatter packed data. Only
// single-partition meshes are scattered; a multi-partition mesh cannot be
// reassembled from one partition-local stream.
func (sp *skinPartitionData) firstVertexMap() []uint16 {
	if len(sp.parts) != 1 || !sp.parts[0].hasVertexMap {
		return nil
	}
	return sp.parts[0].vertexMap
}

// partPlan records the synthesized arrays one partition gains.
type partPlan struct {
	addWeights bool
	addIndices bool
	newWPV     int
}

// skinExpansion plans the growth of one skin-partition block.
type skinExpansion struct {
	block   int
	oldSize int64
	newSize int64

	sp    *skinPartitionData
	rec   *PackedRecord
	plans []partPlan
}

// planSkinPartition sizes the per-vertex bone-weight and bone-index arrays
// synthesized from extracted bone data. A nil result means no expansion.
func planSkinPartition(blockIndex int, oldSize int64, sp *skinPartitionData, rec *PackedRecord) *skinExpansion {
	if rec == nil || rec.BoneWeights == nil {
		return nil
	}
	e := &skinExpansion{block: blockIndex, oldSize: oldSize, newSize: oldSize, sp: sp, rec: rec}
	e.plans = make([]partPlan, len(sp.parts))
	var any bool
	for i := range sp.parts {
		p := &sp.parts[i]
		if !p.hasVertexMap || p.numVertices != rec.VertexCount {
			continue
		}
		plan := &e.plans[i]
		plan.newWPV = p.numWeightsPerVertex
		// Widening to four weights per vertex must not contradict an
		// existing bone-index array of a different width.
		if p.hasBoneIndices && p.numWeightsPerVertex != 4 {
			continue
		}
		// Synthesized indices come four to a vertex; an existing weight
		// array wider than that cannot take them.
		if p.hasWeights && p.numWeightsPerVertex > 4 {
			continue
		}
		if !p.hasWeights {
			plan.addWeights = true
			plan.newWPV = 4
			e.newSize += int64(p.numVertices) * 4 * 4
			any = true
		}
		if !p.hasBoneIndices && rec.BoneIndices != nil {
			plan.addIndices = true
			if plan.newWPV == 0 {
				plan.newWPV = 4
			}
			e.newSize += int64(p.numVertices) * int64(plan.newWPV)
			any = true
		}
	}
	if !any {
		return nil
	}
	return e
}

// writeSkinPartition emits the expanded little-endian skin-partition
// block, filling in synthesized weight and bone-index arrays. Packed bone
// indices are mesh-global; they are translated to partition-local
// positions in the partition's bone list.
func writeSkinPartition(fw *parse.BinaryWriter, e *skinExpansion) (failed bool) {
	num := func(v interface{}) bool { return fw.Number(v) }
	writeBool := func(b bool) bool {
		var v uint8
		if b {
			v = 1
		}
		return fw.Number(v)
	}

	if num(uint32(len(e.sp.parts))) {
		return true
	}
	for pi := range e.sp.parts {
		p := &e.sp.parts[pi]
		plan := e.plans[pi]

		wpv := p.numWeightsPerVertex
		if plan.addWeights || plan.addIndices {
			wpv = plan.newWPV
		}

		if num(uint16(p.numVertices)) || num(uint16(p.numTriangles)) ||
			num(uint16(p.numBones)) || num(uint16(p.numStrips)) || num(uint16(wpv)) {
			return true
		}
		for _, b := range p.bones {
			if num(b) {
				return true
			}
		}
		if writeBool(p.hasVertexMap) {
			return true
		}
		for _, v := range p.vertexMap {
			if num(v) {
				return true
			}
		}

		if writeBool(p.hasWeights || plan.addWeights) {
			return true
		}
		if plan.addWeights {
			for i := 0; i < p.numVertices; i++ {
				w := e.rec.BoneWeights[i]
				for k := 0; k < wpv && k < len(w); k++ {
					if num(w[k]) {
						return true
					}
				}
			}
		} else {
			for _, row := range p.weights {
				for _, w := range row {
					if num(w) {
						return true
					}
				}
			}
		}

		for _, l := range p.stripLengths {
			if num(l) {
				return true
			}
		}
		if writeBool(p.hasFaces) {
			return true
		}
		for _, row := range p.strips {
			for _, v := range row {
				if num(v) {
					return true
				}
			}
		}
		for _, t := range p.triangles {
			if num(t[0]) || num(t[1]) || num(t[2]) {
				return true
			}
		}

		if writeBool(p.hasBoneIndices || plan.addIndices) {
			return true
		}
		if plan.addIndices {
			local := map[byte]byte{}
			for li, g := range p.bones {
				local[byte(g)] = byte(li)
			}
			for i := 0; i < p.numVertices; i++ {
				g := e.rec.BoneIndices[i]
				for k := 0; k < wpv && k < len(g); k++ {
					if num(local[g[k]]) {
						return true
					}
				}
			}
		} else {
			for _, row := range p.boneIndices {
				if fw.Bytes(row) {
					return true
				}
			}
		}
	}
	return false
}
