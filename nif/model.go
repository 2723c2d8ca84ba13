package nif

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/anaminus/parse"

	"nif360/errors"
)

// Sanity caps on parsed counts. A malformed file is rejected rather than
// allowed to drive unbounded allocation.
const (
	maxBlockCount  = 1 << 20
	maxTableString = 1 << 20
	maxGroupCount  = 1 << 20
)

// Header holds the fields preceding the block-type table. Everything up to
// and including the block count is little-endian regardless of the marker.
type Header struct {
	// Line is the ASCII header line, without the terminating newline.
	Line string

	Version      uint32
	LittleEndian bool
	UserVersion  uint32
	BlockCount   uint32

	// Vendor sub-header, present when the version/user-version pair matches
	// the vendor profile.
	HasVendor     bool
	StreamVersion uint32
	Author        string
	ProcessScript string
	ExportScript  string
	MaxFilepath   string
}

// Block locates one serialized object instance in the file.
type Block struct {
	Index     int
	TypeIndex uint16
	TypeName  string
	Size      uint32
	Offset    int
}

// span marks a multi-byte numeric field that follows the endianness marker,
// so the fast path can flip it in place.
type span struct {
	off   int
	width int
}

// Model is the parsed shape of one file: header fields, type and size
// tables, string table, group table, block directory, and footer roots. The
// block bodies stay in Data.
type Model struct {
	Header       Header
	TypeNames    []string
	Blocks       []Block
	Strings      []string
	MaxStringLen uint32
	Groups       []uint32
	Roots        []int32

	// Data is the whole source buffer.
	Data []byte

	markerOffset int
	bodyOffset   int
	footerOffset int
	swapSpans    []span
}

// tableReader reads the endian-sensitive region after the marker, decoding
// with the source byte order and recording each numeric field for the
// in-place fast path.
type tableReader struct {
	fr    *parse.BinaryReader
	order binary.ByteOrder
	m     *Model
}

func (r *tableReader) u16(v *uint16) (failed bool) {
	var b [2]byte
	if r.fr.Bytes(b[:]) {
		return true
	}
	r.m.swapSpans = append(r.m.swapSpans, span{int(r.fr.N()) - 2, 2})
	*v = r.order.Uint16(b[:])
	return false
}

func (r *tableReader) u32(v *uint32) (failed bool) {
	var b [4]byte
	if r.fr.Bytes(b[:]) {
		return true
	}
	r.m.swapSpans = append(r.m.swapSpans, span{int(r.fr.N()) - 4, 4})
	*v = r.order.Uint32(b[:])
	return false
}

// str reads a 4-byte-length-prefixed string. Only the length field is
// endian-sensitive.
func (r *tableReader) str(v *string) (failed bool) {
	var length uint32
	if r.u32(&length) {
		return true
	}
	if length > maxTableString {
		r.fr.Add(0, fmt.Errorf("string length %d exceeds sanity cap", length))
		return true
	}
	s := make([]byte, length)
	if r.fr.Bytes(s) {
		return true
	}
	*v = string(s)
	return false
}

func readExportString(fr *parse.BinaryReader, v *string) (failed bool) {
	var length uint8
	if fr.Number(&length) {
		return true
	}
	s := make([]byte, length)
	if fr.Bytes(s) {
		return true
	}
	*v = string(s)
	return false
}

func writeExportString(fw *parse.BinaryWriter, s string) (failed bool) {
	if len(s) > 255 {
		s = s[:255]
	}
	if fw.Number(uint8(len(s))) {
		return true
	}
	return fw.Bytes([]byte(s))
}

func writeString32(fw *parse.BinaryWriter, s string) (failed bool) {
	if fw.Number(uint32(len(s))) {
		return true
	}
	return fw.Bytes([]byte(s))
}

func structuralError(fr *parse.BinaryReader, err error) error {
	fr.Add(0, err)
	if err := fr.Err(); err != nil {
		return StructuralError{Offset: fr.N(), Cause: err}
	}
	return nil
}

// order returns the byte order of the endian-sensitive region.
func (m *Model) order() binary.ByteOrder {
	if m.Header.LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ParseModel parses the container structure of data without interpreting
// block bodies. Non-fatal oddities are returned as warn.
func ParseModel(data []byte) (m *Model, warn, err error) {
	var warns errors.Errors
	m = &Model{Data: data}

	term := bytes.IndexByte(data, '\n')
	if term < 0 || term > maxHeaderLine {
		return nil, nil, StructuralError{Offset: 0, Cause: ErrNoHeaderTerminator}
	}
	m.Header.Line = string(data[:term])
	if !bytes.HasPrefix(data, []byte(gamebryoSig)) && !bytes.HasPrefix(data, []byte(netImmerseSig)) {
		return nil, nil, StructuralError{Offset: 0, Cause: ErrInvalidSig}
	}

	fr := parse.NewBinaryReader(bytes.NewReader(data))
	skip := make([]byte, term+1)
	if fr.Bytes(skip) {
		return nil, nil, structuralError(fr, ErrTruncatedHeader)
	}

	// The version, endianness marker, user version, and block count are
	// little-endian regardless of the marker.
	if fr.Number(&m.Header.Version) {
		return nil, nil, structuralError(fr, ErrTruncatedHeader)
	}
	if m.Header.Version < minVersion || m.Header.Version > maxVersion {
		return nil, nil, StructuralError{Offset: fr.N(), Cause: UnsupportedVersionError(m.Header.Version)}
	}

	m.markerOffset = int(fr.N())
	var marker uint8
	if fr.Number(&marker) {
		return nil, nil, structuralError(fr, ErrTruncatedHeader)
	}
	switch marker {
	case markerBig:
		m.Header.LittleEndian = false
	case markerLittle:
		m.Header.LittleEndian = true
	default:
		return nil, nil, StructuralError{Offset: fr.N() - 1, Cause: ErrBadEndianMarker}
	}

	if fr.Number(&m.Header.UserVersion) {
		return nil, nil, structuralError(fr, ErrTruncatedHeader)
	}
	if fr.Number(&m.Header.BlockCount) {
		return nil, nil, structuralError(fr, ErrTruncatedHeader)
	}
	if m.Header.BlockCount > maxBlockCount {
		return nil, nil, StructuralError{Offset: fr.N(), Cause: fmt.Errorf("block count %d exceeds sanity cap", m.Header.BlockCount)}
	}

	if m.Header.UserVersion >= vendorMinUser {
		m.Header.HasVendor = true
		if fr.Number(&m.Header.StreamVersion) {
			return nil, nil, structuralError(fr, ErrTruncatedHeader)
		}
		if readExportString(fr, &m.Header.Author) ||
			readExportString(fr, &m.Header.ProcessScript) ||
			readExportString(fr, &m.Header.ExportScript) {
			return nil, nil, structuralError(fr, ErrTruncatedHeader)
		}
		if m.Header.StreamVersion >= vendorFourthStringV {
			if readExportString(fr, &m.Header.MaxFilepath) {
				return nil, nil, structuralError(fr, ErrTruncatedHeader)
			}
		}
	}

	// Everything from here on follows the endianness marker.
	tr := &tableReader{fr: fr, order: m.order(), m: m}

	var typeCount uint16
	if tr.u16(&typeCount) {
		return nil, nil, structuralError(fr, nil)
	}
	m.TypeNames = make([]string, typeCount)
	for i := range m.TypeNames {
		if tr.str(&m.TypeNames[i]) {
			return nil, nil, structuralError(fr, nil)
		}
	}

	m.Blocks = make([]Block, m.Header.BlockCount)
	for i := range m.Blocks {
		var ti uint16
		if tr.u16(&ti) {
			return nil, nil, structuralError(fr, nil)
		}
		if ti&0x8000 != 0 {
			// Console writers set the high bit on some entries; it carries
			// no meaning for the block's type.
			ti &^= 0x8000
		}
		m.Blocks[i].Index = i
		m.Blocks[i].TypeIndex = ti
		if int(ti) < len(m.TypeNames) {
			m.Blocks[i].TypeName = m.TypeNames[ti]
		} else {
			warns = append(warns, fmt.Errorf("block %d: type index %d out of range", i, ti))
		}
	}
	for i := range m.Blocks {
		if tr.u32(&m.Blocks[i].Size) {
			return nil, nil, structuralError(fr, nil)
		}
	}

	var stringCount uint32
	if tr.u32(&stringCount) {
		return nil, nil, structuralError(fr, nil)
	}
	if stringCount > maxTableString {
		return nil, nil, StructuralError{Offset: fr.N(), Cause: fmt.Errorf("string count %d exceeds sanity cap", stringCount)}
	}
	if tr.u32(&m.MaxStringLen) {
		return nil, nil, structuralError(fr, nil)
	}
	m.Strings = make([]string, stringCount)
	for i := range m.Strings {
		if tr.str(&m.Strings[i]) {
			return nil, nil, structuralError(fr, nil)
		}
	}

	var groupCount uint32
	if tr.u32(&groupCount) {
		return nil, nil, structuralError(fr, nil)
	}
	if groupCount > maxGroupCount {
		return nil, nil, StructuralError{Offset: fr.N(), Cause: fmt.Errorf("group count %d exceeds sanity cap", groupCount)}
	}
	m.Groups = make([]uint32, groupCount)
	for i := range m.Groups {
		if tr.u32(&m.Groups[i]) {
			return nil, nil, structuralError(fr, nil)
		}
	}

	// Block bodies are concatenated in order; the footer follows the last
	// one. Offsets come from the size table alone.
	m.bodyOffset = int(fr.N())
	off := m.bodyOffset
	for i := range m.Blocks {
		m.Blocks[i].Offset = off
		end := off + int(m.Blocks[i].Size)
		if end < off || end > len(data) {
			return nil, nil, StructuralError{Offset: int64(off), Cause: fmt.Errorf("block %d: size %d runs past the buffer", i, m.Blocks[i].Size)}
		}
		off = end
	}
	m.footerOffset = off

	order := m.order()
	if off+4 > len(data) {
		return nil, nil, StructuralError{Offset: int64(off), Cause: errors.New("missing footer")}
	}
	rootCount := order.Uint32(data[off:])
	m.swapSpans = append(m.swapSpans, span{off, 4})
	off += 4
	if rootCount > maxBlockCount || off+int(rootCount)*4 > len(data) {
		return nil, nil, StructuralError{Offset: int64(off), Cause: fmt.Errorf("root count %d runs past the buffer", rootCount)}
	}
	m.Roots = make([]int32, rootCount)
	for i := range m.Roots {
		m.Roots[i] = int32(order.Uint32(data[off:]))
		m.swapSpans = append(m.swapSpans, span{off, 4})
		off += 4
	}
	if off != len(data) {
		warns = append(warns, fmt.Errorf("%d trailing bytes after footer", len(data)-off))
	}

	return m, warns.Return(), nil
}

// Body returns the byte range of one block.
func (m *Model) Body(i int) []byte {
	b := m.Blocks[i]
	return m.Data[b.Offset : b.Offset+int(b.Size)]
}

// headerSize is the byte length of everything before the first block body,
// given the count of surviving blocks and the final string table.
func (m *Model) headerSize(blockCount int, strings []string) int {
	n := len(m.Header.Line) + 1 // line + newline
	n += 4 + 1 + 4 + 4          // version, marker, user version, block count
	if m.Header.HasVendor {
		n += 4
		n += 1 + len(m.Header.Author)
		n += 1 + len(m.Header.ProcessScript)
		n += 1 + len(m.Header.ExportScript)
		if m.Header.StreamVersion >= vendorFourthStringV {
			n += 1 + len(m.Header.MaxFilepath)
		}
	}
	n += 2
	for _, s := range m.TypeNames {
		n += 4 + len(s)
	}
	n += blockCount * 2 // type indices
	n += blockCount * 4 // size table
	n += 4 + 4          // string count, max length
	for _, s := range strings {
		n += 4 + len(s)
	}
	n += 4 + len(m.Groups)*4
	return n
}

// footerSize is the byte length of the footer.
func (m *Model) footerSize() int {
	return 4 + len(m.Roots)*4
}

// writeHeaderTo emits the header and every table preceding the block
// bodies, little-endian, with the endianness marker forced to 1. The block
// count, type indices, size table, and string table reflect the rewritten
// block graph rather than the source's.
func (m *Model) writeHeaderTo(fw *parse.BinaryWriter, typeIndices []uint16, sizes []uint32, strings []string) (failed bool) {
	if fw.Bytes([]byte(m.Header.Line)) {
		return true
	}
	if fw.Number(uint8('\n')) {
		return true
	}
	if fw.Number(m.Header.Version) {
		return true
	}
	if fw.Number(uint8(markerLittle)) {
		return true
	}
	if fw.Number(m.Header.UserVersion) {
		return true
	}
	if fw.Number(uint32(len(typeIndices))) {
		return true
	}
	if m.Header.HasVendor {
		if fw.Number(m.Header.StreamVersion) {
			return true
		}
		if writeExportString(fw, m.Header.Author) ||
			writeExportString(fw, m.Header.ProcessScript) ||
			writeExportString(fw, m.Header.ExportScript) {
			return true
		}
		if m.Header.StreamVersion >= vendorFourthStringV {
			if writeExportString(fw, m.Header.MaxFilepath) {
				return true
			}
		}
	}

	if fw.Number(uint16(len(m.TypeNames))) {
		return true
	}
	for _, s := range m.TypeNames {
		if writeString32(fw, s) {
			return true
		}
	}
	for _, ti := range typeIndices {
		if fw.Number(ti) {
			return true
		}
	}
	for _, size := range sizes {
		if fw.Number(size) {
			return true
		}
	}

	var maxLen uint32
	for _, s := range strings {
		if uint32(len(s)) > maxLen {
			maxLen = uint32(len(s))
		}
	}
	if fw.Number(uint32(len(strings))) {
		return true
	}
	if fw.Number(maxLen) {
		return true
	}
	for _, s := range strings {
		if writeString32(fw, s) {
			return true
		}
	}

	if fw.Number(uint32(len(m.Groups))) {
		return true
	}
	for _, g := range m.Groups {
		if fw.Number(g) {
			return true
		}
	}
	return false
}

// writeFooterTo emits the footer with the given root indices.
func writeFooterTo(fw *parse.BinaryWriter, roots []int32) (failed bool) {
	if fw.Number(uint32(len(roots))) {
		return true
	}
	for _, r := range roots {
		if fw.Number(r) {
			return true
		}
	}
	return false
}
