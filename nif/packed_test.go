package nif

import (
	"encoding/binary"
	"testing"
)

func TestExtractPacked(t *testing.T) {
	rec := extractPacked(buildPackedBody(), binary.BigEndian)
	if rec == nil {
		t.Fatal("extractPacked returned nil")
	}
	if rec.VertexCount != 2 {
		t.Fatalf("VertexCount = %d, want 2", rec.VertexCount)
	}
	if rec.Skinned {
		t.Error("stride 40 should not classify as skinned")
	}

	wantPos := [][3]float32{{1, 2, 3}, {4, 5, 6}}
	for i, p := range wantPos {
		if rec.Positions[i] != p {
			t.Errorf("Positions[%d] = %v, want %v", i, rec.Positions[i], p)
		}
	}
	for i := 0; i < 2; i++ {
		if rec.Normals[i] != ([3]float32{0, 0, 1}) {
			t.Errorf("Normals[%d] = %v, want {0 0 1}", i, rec.Normals[i])
		}
		if rec.Tangents[i] != ([3]float32{1, 0, 0}) {
			t.Errorf("Tangents[%d] = %v, want {1 0 0}", i, rec.Tangents[i])
		}
		// Two unit streams: the third basis vector is synthesized.
		if rec.Bitangents[i] != ([3]float32{0, 1, 0}) {
			t.Errorf("Bitangents[%d] = %v, want {0 1 0}", i, rec.Bitangents[i])
		}
	}

	wantUV := [][2]float32{{0.5, 1}, {0.25, 0.75}}
	for i, uv := range wantUV {
		if rec.UVs[i] != uv {
			t.Errorf("UVs[%d] = %v, want %v", i, rec.UVs[i], uv)
		}
	}
	wantColor := [][4]byte{{255, 10, 20, 30}, {128, 1, 2, 3}}
	for i, c := range wantColor {
		if rec.Colors[i] != c {
			t.Errorf("Colors[%d] = %v, want %v", i, rec.Colors[i], c)
		}
	}
	if rec.BoneWeights != nil || rec.BoneIndices != nil {
		t.Error("unskinned record should carry no bone data")
	}
}

func TestExtractPackedHalfBits(t *testing.T) {
	// Raw half-float bit patterns in the position stream.
	const n = 1
	const stride = packedStrideBare
	data := newBE()
	data.u16(0x3C00).u16(0x0000).u16(0xC000).u16(0) // 1.0, 0.0, -2.0
	for len(data.b) < stride {
		data.u8(0)
	}

	w := newBE()
	w.u16(n)
	w.i32(1)
	w.i32(packedTagHalf).i32(8).i32(n * stride).i32(stride).i32(0).i32(0)
	w.i32(1)
	w.u8(1)
	w.i32(int32(len(data.b)))
	w.i32(1)
	w.i32(0)
	w.i32(0)
	w.raw(data.b)

	rec := extractPacked(w.b, binary.BigEndian)
	if rec == nil {
		t.Fatal("extractPacked returned nil")
	}
	if rec.Positions[0] != ([3]float32{1, 0, -2}) {
		t.Errorf("Positions[0] = %v, want {1 0 -2}", rec.Positions[0])
	}
}

func TestExtractPackedSkinned(t *testing.T) {
	const n = 2
	const stride = packedStrideSkinned

	data := newBE()
	for i := 0; i < n; i++ {
		data.half(float32(i)).half(0).half(0).half(0) // position
		data.half(0.5).half(0.5).half(0).half(0)      // weights at 8
		data.raw([]byte{7, 9, 0, 0})                  // bone indices at 16
		data.half(0).half(1).half(0).half(0)          // normal at 20
		for len(data.b)%stride != 0 {
			data.u8(0)
		}
	}

	w := newBE()
	w.u16(n)
	w.i32(4)
	streams := []struct{ tag, unit, offset int32 }{
		{packedTagHalf, 8, 0},
		{packedTagHalf, 8, packedWeightOffset},
		{packedTagByte, 4, packedBoneOffset},
		{packedTagHalf, 8, 20},
	}
	for _, s := range streams {
		w.i32(s.tag).i32(s.unit).i32(int32(n * stride)).i32(stride).i32(0).i32(s.offset)
	}
	w.i32(1)
	w.u8(1)
	w.i32(int32(len(data.b)))
	w.i32(1)
	w.i32(0)
	w.i32(0)
	w.raw(data.b)

	rec := extractPacked(w.b, binary.BigEndian)
	if rec == nil {
		t.Fatal("extractPacked returned nil")
	}
	if !rec.Skinned {
		t.Fatal("stride 48 should classify as skinned")
	}
	if rec.BoneWeights == nil || rec.BoneWeights[0] != ([4]float32{0.5, 0.5, 0, 0}) {
		t.Errorf("BoneWeights[0] = %v", rec.BoneWeights)
	}
	if rec.BoneIndices == nil || rec.BoneIndices[1] != ([4]byte{7, 9, 0, 0}) {
		t.Errorf("BoneIndices = %v", rec.BoneIndices)
	}
	// The skinned byte quad is bone indices, not color.
	if rec.Colors != nil {
		t.Error("skinned record should carry no colors")
	}
	if rec.Normals == nil || rec.Normals[0] != ([3]float32{0, 1, 0}) {
		t.Errorf("Normals = %v", rec.Normals)
	}
}

func TestExtractPackedTruncated(t *testing.T) {
	body := buildPackedBody()
	for _, cut := range []int{0, 1, 6, len(body) / 2, len(body) - 1} {
		if rec := extractPacked(body[:cut], binary.BigEndian); rec != nil {
			t.Errorf("truncated body (%d bytes) should not decode", cut)
		}
	}
}
