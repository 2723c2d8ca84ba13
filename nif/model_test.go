package nif

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseModel(t *testing.T) {
	body := newBE().i32(5).u32(3).raw([]byte("abc")).b
	data := buildFile([]string{"NiBinaryExtraData"}, []uint16{0}, [][]byte{body}, []int32{0})

	m, warn, err := ParseModel(data)
	if err != nil {
		t.Fatal(err)
	}
	if warn != nil {
		t.Errorf("unexpected warning: %s", warn)
	}
	if m.Header.Line != fixtureHeaderLine {
		t.Errorf("Line = %q", m.Header.Line)
	}
	if m.Header.Version != 0x14020007 || m.Header.UserVersion != 11 || m.Header.StreamVersion != 34 {
		t.Errorf("versions = %#x %d %d", m.Header.Version, m.Header.UserVersion, m.Header.StreamVersion)
	}
	if m.Header.LittleEndian {
		t.Error("marker 0 should parse as big-endian")
	}
	if !m.Header.HasVendor {
		t.Error("user version 11 carries the vendor sub-header")
	}
	if len(m.Blocks) != 1 || m.Blocks[0].TypeName != "NiBinaryExtraData" || m.Blocks[0].Size != uint32(len(body)) {
		t.Errorf("blocks = %+v", m.Blocks)
	}
	if !bytes.Equal(m.Body(0), body) {
		t.Error("Body(0) mismatch")
	}
	if len(m.Roots) != 1 || m.Roots[0] != 0 {
		t.Errorf("roots = %v", m.Roots)
	}
}

func TestParseModelHighTypeIndexBit(t *testing.T) {
	body := newBE().i32(5).u32(3).raw([]byte("abc")).b
	data := buildFile([]string{"NiBinaryExtraData"}, []uint16{0x8000}, [][]byte{body}, nil)

	m, _, err := ParseModel(data)
	if err != nil {
		t.Fatal(err)
	}
	if m.Blocks[0].TypeIndex != 0 || m.Blocks[0].TypeName != "NiBinaryExtraData" {
		t.Errorf("block = %+v", m.Blocks[0])
	}
}

func TestParseModelTrailingBytes(t *testing.T) {
	body := newBE().i32(5).u32(3).raw([]byte("abc")).b
	data := buildFile([]string{"NiBinaryExtraData"}, []uint16{0}, [][]byte{body}, nil)
	data = append(data, 0xEE)

	_, warn, err := ParseModel(data)
	if err != nil {
		t.Fatal(err)
	}
	if warn == nil {
		t.Error("expected a trailing-bytes warning")
	}
}

func TestParseModelErrors(t *testing.T) {
	body := newBE().i32(5).u32(3).raw([]byte("abc")).b
	good := buildFile([]string{"NiBinaryExtraData"}, []uint16{0}, [][]byte{body}, nil)
	markerAt := len(fixtureHeaderLine) + 1 + 4

	t.Run("bad signature", func(t *testing.T) {
		data := append([]byte(nil), good...)
		copy(data, "Gummybear")
		_, _, err := ParseModel(data)
		if !errors.Is(err, ErrInvalidSig) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("no terminator", func(t *testing.T) {
		_, _, err := ParseModel(bytes.Repeat([]byte{'G'}, 200))
		if !errors.Is(err, ErrNoHeaderTerminator) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("bad marker", func(t *testing.T) {
		data := append([]byte(nil), good...)
		data[markerAt] = 2
		_, _, err := ParseModel(data)
		if !errors.Is(err, ErrBadEndianMarker) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("unsupported version", func(t *testing.T) {
		data := append([]byte(nil), good...)
		// Version field sits right after the newline, little-endian.
		at := len(fixtureHeaderLine) + 1
		data[at] = 0
		data[at+1] = 0
		data[at+2] = 0
		data[at+3] = 0x15
		_, _, err := ParseModel(data)
		var uv UnsupportedVersionError
		if !errors.As(err, &uv) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("block runs past buffer", func(t *testing.T) {
		data := buildFile([]string{"NiBinaryExtraData"}, []uint16{0}, [][]byte{body}, nil)
		_, _, err := ParseModel(data[:len(data)-8])
		var se StructuralError
		if !errors.As(err, &se) {
			t.Errorf("err = %v", err)
		}
	})
}
