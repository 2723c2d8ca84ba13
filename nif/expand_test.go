package nif

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/anaminus/parse"
)

func TestStripTriangles(t *testing.T) {
	cases := []struct {
		strip []uint16
		want  [][3]uint16
	}{
		// A repeated leading index produces one degenerate candidate; the
		// second candidate flips winding for odd parity.
		{[]uint16{5, 5, 7, 9}, [][3]uint16{{5, 9, 7}}},
		{[]uint16{0, 1, 2, 3}, [][3]uint16{{0, 1, 2}, {1, 3, 2}}},
		{[]uint16{0, 1, 2}, [][3]uint16{{0, 1, 2}}},
		{[]uint16{0, 1}, nil},
		{nil, nil},
		{[]uint16{4, 4, 4, 4}, nil},
	}
	for _, c := range cases {
		got := stripTriangles(c.strip)
		if len(got) != len(c.want) {
			t.Errorf("stripTriangles(%v) = %v, want %v", c.strip, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("stripTriangles(%v)[%d] = %v, want %v", c.strip, i, got[i], c.want[i])
			}
		}
	}
}

func TestScatter3(t *testing.T) {
	src := [][3]float32{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}}
	vmap := []uint16{2, 0, 1}
	out := scatter3(src, vmap, 3)
	want := [][3]float32{{2, 2, 2}, {3, 3, 3}, {1, 1, 1}}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	// Unmapped mesh slots stay zero.
	out = scatter3(src[:2], []uint16{0, 3}, 4)
	if out[0] != (src[0]) || out[3] != (src[1]) {
		t.Errorf("partial scatter = %v", out)
	}
	if out[1] != ([3]float32{}) || out[2] != ([3]float32{}) {
		t.Errorf("untouched slots not zero: %v", out)
	}
}

func TestArgbToRGBA(t *testing.T) {
	got := argbToRGBA([4]byte{255, 10, 20, 30})
	want := [4]float32{10.0 / 255, 20.0 / 255, 30.0 / 255, 1}
	if got != want {
		t.Errorf("argbToRGBA = %v, want %v", got, want)
	}
	if c := argbToRGBA([4]byte{0, 0, 0, 0}); c != ([4]float32{0, 0, 0, 0}) {
		t.Errorf("argbToRGBA(zero) = %v", c)
	}
}

// minimalShapeBody builds a triangle-list geometry body holding only two
// vertex positions, referencing the packed block at addl.
func minimalShapeBody(w *fixtureWriter, addl int32) []byte {
	w.i32(0) // GroupID
	w.u16(2)
	w.u8(0).u8(0)
	w.u8(1)
	w.f32(1).f32(0).f32(0)
	w.f32(0).f32(1).f32(0)
	w.u16(0) // VectorFlags
	w.u8(0)  // HasNormals
	w.f32(0).f32(0).f32(0).f32(0)
	w.u8(0)     // HasVertexColors
	w.u16(0)    // ConsistencyFlags
	w.i32(addl) // AdditionalData
	w.u16(0)    // NumTriangles
	w.u32(0)
	w.u8(0)  // HasTriangles
	w.u16(0) // NumMatchGroups
	return w.b
}

func TestParseGeomData(t *testing.T) {
	body := minimalShapeBody(newBE(), 2)
	gd := parseGeomData(body, binary.BigEndian, true)
	if gd == nil {
		t.Fatal("parseGeomData returned nil")
	}
	if gd.numVertices != 2 || !gd.hasVertices || gd.hasNormals || gd.hasVertexColors {
		t.Errorf("parsed shape: %+v", gd)
	}
	if gd.vertices[1] != ([3]float32{0, 1, 0}) {
		t.Errorf("vertices[1] = %v", gd.vertices[1])
	}
	if gd.additionalData != 2 {
		t.Errorf("additionalData = %d, want 2", gd.additionalData)
	}

	// Unconsumed bytes disqualify the block.
	if parseGeomData(append(body, 0), binary.BigEndian, true) != nil {
		t.Error("trailing byte should disqualify")
	}
	if parseGeomData(body[:len(body)-1], binary.BigEndian, true) != nil {
		t.Error("truncated body should disqualify")
	}
}

func TestWriteGeomDataPassthrough(t *testing.T) {
	// With nothing to add, the writer reproduces the block little-endian
	// at the same size.
	body := minimalShapeBody(newBE(), 2)
	gd := parseGeomData(body, binary.BigEndian, true)
	if gd == nil {
		t.Fatal("parseGeomData returned nil")
	}
	e := &geomExpansion{gd: gd, oldSize: int64(len(body)), newSize: int64(len(body))}

	var buf bytes.Buffer
	fw := parse.NewBinaryWriter(&buf)
	if writeGeomData(fw, e, 2) {
		t.Fatal("writeGeomData failed")
	}
	if _, err := fw.End(); err != nil {
		t.Fatal(err)
	}
	want := minimalShapeBody(newLE(), 2)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("out = % x\nwant % x", buf.Bytes(), want)
	}
}

func TestPlanGeometry(t *testing.T) {
	body := minimalShapeBody(newBE(), 2)
	gd := parseGeomData(body, binary.BigEndian, true)
	rec := extractPacked(buildPackedBody(), binary.BigEndian)
	if gd == nil || rec == nil {
		t.Fatal("fixture decode failed")
	}

	e := planGeometry(1, 2, int64(len(body)), gd, rec, false, nil)
	if e == nil {
		t.Fatal("expected an expansion")
	}
	if e.adds.positions {
		t.Error("positions already present, must not be re-added")
	}
	if !e.adds.basis || !e.adds.colors || !e.adds.uvs {
		t.Errorf("adds = %+v", e.adds)
	}
	// Per vertex: 3 basis vectors (36), one color (16), one UV pair (8).
	want := int64(len(body)) + 2*(36+16+8)
	if e.newSize != want {
		t.Errorf("newSize = %d, want %d", e.newSize, want)
	}

	// Mismatched vertex counts rule out expansion.
	rec.VertexCount = 3
	if planGeometry(1, 2, int64(len(body)), gd, rec, false, nil) != nil {
		t.Error("vertex count mismatch should not expand")
	}
}

func TestWriteGeomDataExpansion(t *testing.T) {
	body := minimalShapeBody(newBE(), 2)
	gd := parseGeomData(body, binary.BigEndian, true)
	rec := extractPacked(buildPackedBody(), binary.BigEndian)
	if gd == nil || rec == nil {
		t.Fatal("fixture decode failed")
	}

	e := planGeometry(1, 2, int64(len(body)), gd, rec, false, nil)
	if e == nil {
		t.Fatal("expected an expansion")
	}
	e.addTriangles([][3]uint16{{0, 1, 0}})
	if !e.adds.triangles {
		t.Fatal("triangles not planned")
	}

	var buf bytes.Buffer
	fw := parse.NewBinaryWriter(&buf)
	if writeGeomData(fw, e, NoRef) {
		t.Fatal("writeGeomData failed")
	}
	if _, err := fw.End(); err != nil {
		t.Fatal(err)
	}
	out := buf.Bytes()
	if int64(len(out)) != e.newSize {
		t.Fatalf("wrote %d bytes, planned %d", len(out), e.newSize)
	}

	got := parseGeomData(out, binary.LittleEndian, true)
	if got == nil {
		t.Fatal("expanded block does not parse")
	}
	if !got.hasNormals || got.normals[0] != ([3]float32{0, 0, 1}) {
		t.Errorf("normals = %v", got.normals)
	}
	if got.tangents == nil || got.bitangents == nil {
		t.Fatal("tangent space missing")
	}
	if got.bitangents[0] != ([3]float32{0, 1, 0}) {
		t.Errorf("bitangents[0] = %v", got.bitangents[0])
	}
	if got.vectorFlags&tangentSpaceFlag == 0 || got.vectorFlags&uvSetMask != 1 {
		t.Errorf("vectorFlags = %#x", got.vectorFlags)
	}
	if !got.hasVertexColors {
		t.Fatal("colors missing")
	}
	if got.colors[0] != ([4]float32{10.0 / 255, 20.0 / 255, 30.0 / 255, 1}) {
		t.Errorf("colors[0] = %v", got.colors[0])
	}
	if len(got.uvSets) != 1 || got.uvSets[0][0] != ([2]float32{0.5, 1}) {
		t.Errorf("uvSets = %v", got.uvSets)
	}
	if got.additionalData != NoRef {
		t.Errorf("additionalData = %d, want %d", got.additionalData, NoRef)
	}
	if !got.hasTriangles || len(got.triangles) != 1 || got.triangles[0] != ([3]uint16{0, 1, 0}) {
		t.Errorf("triangles = %v", got.triangles)
	}
	if got.numTrianglePoints != 3 {
		t.Errorf("numTrianglePoints = %d, want 3", got.numTrianglePoints)
	}
	if !got.hasVertices || got.vertices[0] != ([3]float32{1, 0, 0}) {
		t.Errorf("vertices = %v", got.vertices)
	}
}

func TestParseSkinPartition(t *testing.T) {
	w := newBE()
	w.u32(1)
	w.u16(2).u16(1).u16(2).u16(0).u16(0)
	w.u16(4).u16(9)       // bones
	w.u8(1).u16(1).u16(0) // vertex map
	w.u8(0)               // no weights
	w.u8(1)               // has faces, triangles since no strips
	w.u16(0).u16(1).u16(0)
	w.u8(0) // no bone indices

	sp := parseSkinPartition(w.b, binary.BigEndian)
	if sp == nil {
		t.Fatal("parseSkinPartition returned nil")
	}
	p := &sp.parts[0]
	if p.numVertices != 2 || p.numBones != 2 || p.hasWeights || p.hasBoneIndices {
		t.Errorf("partition: %+v", p)
	}
	if p.vertexMap[0] != 1 || p.vertexMap[1] != 0 {
		t.Errorf("vertexMap = %v", p.vertexMap)
	}

	// Faces translate to mesh-global triangles through the vertex map.
	tris := sp.meshTriangles()
	if len(tris) != 1 || tris[0] != ([3]uint16{1, 0, 1}) {
		t.Errorf("meshTriangles = %v", tris)
	}

	if vm := sp.firstVertexMap(); len(vm) != 2 {
		t.Errorf("firstVertexMap = %v", vm)
	}
}

func TestPlanAndWriteSkinPartition(t *testing.T) {
	w := newBE()
	w.u32(1)
	w.u16(2).u16(0).u16(2).u16(0).u16(4)
	w.u16(4).u16(9)
	w.u8(1).u16(0).u16(1)
	w.u8(0) // no weights
	w.u8(0) // no faces
	w.u8(0) // no bone indices

	sp := parseSkinPartition(w.b, binary.BigEndian)
	if sp == nil {
		t.Fatal("parseSkinPartition returned nil")
	}

	rec := &PackedRecord{
		VertexCount: 2,
		Skinned:     true,
		BoneWeights: [][4]float32{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}},
		BoneIndices: [][4]byte{{4, 4, 4, 4}, {9, 4, 4, 4}},
	}
	e := planSkinPartition(3, int64(len(w.b)), sp, rec)
	if e == nil {
		t.Fatal("expected an expansion")
	}
	// Per vertex: four float weights (16) and four byte indices (4).
	want := int64(len(w.b)) + 2*(16+4)
	if e.newSize != want {
		t.Fatalf("newSize = %d, want %d", e.newSize, want)
	}

	var buf bytes.Buffer
	fw := parse.NewBinaryWriter(&buf)
	if writeSkinPartition(fw, e) {
		t.Fatal("writeSkinPartition failed")
	}
	if _, err := fw.End(); err != nil {
		t.Fatal(err)
	}
	out := buf.Bytes()
	if int64(len(out)) != e.newSize {
		t.Fatalf("wrote %d bytes, planned %d", len(out), e.newSize)
	}

	got := parseSkinPartition(out, binary.LittleEndian)
	if got == nil {
		t.Fatal("expanded partition does not parse")
	}
	p := &got.parts[0]
	if !p.hasWeights || !p.hasBoneIndices || p.numWeightsPerVertex != 4 {
		t.Fatalf("partition: %+v", p)
	}
	if p.weights[1][0] != 0.5 || p.weights[1][1] != 0.5 {
		t.Errorf("weights[1] = %v", p.weights[1])
	}
	// Global bone 9 is local slot 1 in the partition's bone list.
	if p.boneIndices[1][0] != 1 || p.boneIndices[0][0] != 0 {
		t.Errorf("boneIndices = %v", p.boneIndices)
	}
}

func TestPlanSkinPartitionWideWeights(t *testing.T) {
	w := newBE()
	w.u32(1)
	w.u16(2).u16(0).u16(2).u16(0).u16(5)
	w.u16(4).u16(9)
	w.u8(1).u16(0).u16(1)
	w.u8(1) // weights, five per vertex
	for i := 0; i < 10; i++ {
		w.f32(0.2)
	}
	w.u8(0) // no faces
	w.u8(0) // no bone indices

	sp := parseSkinPartition(w.b, binary.BigEndian)
	if sp == nil {
		t.Fatal("parseSkinPartition returned nil")
	}
	rec := &PackedRecord{
		VertexCount: 2,
		Skinned:     true,
		BoneWeights: [][4]float32{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}},
		BoneIndices: [][4]byte{{4, 4, 4, 4}, {9, 4, 4, 4}},
	}
	// Extracted indices come four to a vertex; a five-weight partition
	// cannot take them and stays as it is.
	if e := planSkinPartition(3, int64(len(w.b)), sp, rec); e != nil {
		t.Fatalf("expected no expansion, planned %d over %d", e.newSize, e.oldSize)
	}
}
