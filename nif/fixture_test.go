package nif

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// fixtureWriter builds test bodies and files in a chosen byte order.
type fixtureWriter struct {
	order binary.ByteOrder
	b     []byte
}

func newBE() *fixtureWriter { return &fixtureWriter{order: binary.BigEndian} }
func newLE() *fixtureWriter { return &fixtureWriter{order: binary.LittleEndian} }

func (w *fixtureWriter) u8(v byte) *fixtureWriter {
	w.b = append(w.b, v)
	return w
}

func (w *fixtureWriter) u16(v uint16) *fixtureWriter {
	var buf [2]byte
	w.order.PutUint16(buf[:], v)
	w.b = append(w.b, buf[:]...)
	return w
}

func (w *fixtureWriter) u32(v uint32) *fixtureWriter {
	var buf [4]byte
	w.order.PutUint32(buf[:], v)
	w.b = append(w.b, buf[:]...)
	return w
}

func (w *fixtureWriter) i32(v int32) *fixtureWriter {
	return w.u32(uint32(v))
}

func (w *fixtureWriter) f32(v float32) *fixtureWriter {
	return w.u32(math.Float32bits(v))
}

func (w *fixtureWriter) half(v float32) *fixtureWriter {
	return w.u16(float16.Fromfloat32(v).Bits())
}

func (w *fixtureWriter) raw(p []byte) *fixtureWriter {
	w.b = append(w.b, p...)
	return w
}

// str32 writes a 4-byte-length-prefixed string.
func (w *fixtureWriter) str32(s string) *fixtureWriter {
	w.u32(uint32(len(s)))
	return w.raw([]byte(s))
}

// exportStr writes a 1-byte-length-prefixed string.
func (w *fixtureWriter) exportStr(s string) *fixtureWriter {
	w.u8(byte(len(s)))
	return w.raw([]byte(s))
}

const fixtureHeaderLine = "Gamebryo File Format, Version 20.2.0.7"

// buildFile assembles a complete big-endian file around the given block
// bodies. typeIndex[i] selects the type of block i from typeNames.
func buildFile(typeNames []string, typeIndex []uint16, bodies [][]byte, roots []int32) []byte {
	// Pre-marker fields are little-endian regardless of the marker.
	w := newLE()
	w.raw([]byte(fixtureHeaderLine)).u8('\n')
	w.u32(0x14020007)
	w.u8(0) // big-endian marker
	w.u32(11)
	w.u32(uint32(len(bodies)))
	w.u32(34) // stream version
	w.exportStr("").exportStr("").exportStr("")

	// Everything after the marker follows it.
	t := newBE()
	t.u16(uint16(len(typeNames)))
	for _, s := range typeNames {
		t.str32(s)
	}
	for _, ti := range typeIndex {
		t.u16(ti)
	}
	for _, body := range bodies {
		t.u32(uint32(len(body)))
	}
	t.u32(0) // string count
	t.u32(0) // max string length
	t.u32(0) // group count
	for _, body := range bodies {
		t.raw(body)
	}
	t.u32(uint32(len(roots)))
	for _, r := range roots {
		t.i32(r)
	}

	return append(w.b, t.b...)
}

// buildPackedBody assembles an unskinned packed-geometry block with
// position, normal, tangent, UV, and color streams for two vertices.
func buildPackedBody() []byte {
	const n = 2
	const stride = packedStrideColor

	// Interleaved vertex data: quads at 0 (position), 8 (normal), 16
	// (tangent), a half pair at 24 (UV), a byte quad at 28 (color), then
	// padding to the stride.
	positions := [n][3]float32{{1, 2, 3}, {4, 5, 6}}
	uvs := [n][2]float32{{0.5, 1}, {0.25, 0.75}}
	colors := [n][4]byte{{255, 10, 20, 30}, {128, 1, 2, 3}}

	data := newBE()
	for i := 0; i < n; i++ {
		data.half(positions[i][0]).half(positions[i][1]).half(positions[i][2]).half(0)
		data.half(0).half(0).half(1).half(0) // normal +Z
		data.half(1).half(0).half(0).half(0) // tangent +X
		data.half(uvs[i][0]).half(uvs[i][1])
		data.raw(colors[i][:])
		for len(data.b)%stride != 0 {
			data.u8(0)
		}
	}

	w := newBE()
	w.u16(n)
	w.i32(5)
	streams := []struct{ tag, unit, offset int32 }{
		{packedTagHalf, 8, 0},
		{packedTagHalf, 8, 8},
		{packedTagHalf, 8, 16},
		{packedTagHalf, 4, 24},
		{packedTagByte, 4, 28},
	}
	for _, s := range streams {
		w.i32(s.tag).i32(s.unit).i32(int32(n * stride)).i32(stride).i32(0).i32(s.offset)
	}
	w.i32(1) // block count
	w.u8(1)  // has data
	w.i32(int32(len(data.b)))
	w.i32(1) // sub blocks
	w.i32(0) // sub offset
	w.i32(0) // atoms
	w.raw(data.b)
	return w.b
}
