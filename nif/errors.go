package nif

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// Indicates a header line without a recognized format prefix.
	ErrInvalidSig = errors.New("invalid header line")
	// Indicates a header line with no terminating newline in range.
	ErrNoHeaderTerminator = errors.New("header line terminator not found")
	// Indicates a buffer shorter than the minimum header.
	ErrTruncatedHeader = errors.New("buffer shorter than minimum header")
	// Indicates an endianness marker that is neither 0 nor 1.
	ErrBadEndianMarker = errors.New("unrecognized endianness marker")
	// Indicates a source that is already little-endian; the conversion is a
	// no-op and the input is returned unchanged.
	ErrAlreadyLittleEndian = errors.New("source is already little-endian")
)

// UnsupportedVersionError indicates a stream version outside the range the
// schema describes.
type UnsupportedVersionError uint32

func (err UnsupportedVersionError) Error() string {
	v := uint32(err)
	return fmt.Sprintf("unsupported version %d.%d.%d.%d",
		v>>24, v>>16&0xFF, v>>8&0xFF, v&0xFF)
}

// StructuralError indicates the file's header, tables, or footer could not
// be parsed. No output is produced.
type StructuralError struct {
	// Offset is the byte offset where parsing failed.
	Offset int64

	Cause error
}

func (err StructuralError) Error() string {
	var s strings.Builder
	s.WriteString("structural error")
	if err.Offset >= 0 {
		s.WriteString(" at ")
		s.Write(strconv.AppendInt(nil, err.Offset, 10))
	}
	if err.Cause != nil {
		s.WriteString(": ")
		s.WriteString(err.Cause.Error())
	}
	return s.String()
}

func (err StructuralError) Unwrap() error {
	return err.Cause
}

// UnknownBlockTypeError reports a block whose type name has no schema
// entry. The block degrades to a coarse 4-byte swap; non-fatal.
type UnknownBlockTypeError struct {
	Block    int
	TypeName string
}

func (err UnknownBlockTypeError) Error() string {
	return fmt.Sprintf("block %d: no schema entry for type %q, coarse swap applied", err.Block, err.TypeName)
}

// BoundsGuardError reports a field or array that would read past its
// block's end. Fine-grained interpretation of the block is abandoned and
// the tail is coarse-swapped; non-fatal.
type BoundsGuardError struct {
	Block  int
	Field  string
	Offset int
}

func (err BoundsGuardError) Error() string {
	return fmt.Sprintf("block %d: field %q at offset %d would read past the block end, coarse swap applied to tail",
		err.Block, err.Field, err.Offset)
}

// SizeMismatchError reports a block whose written byte count differs from
// its planned size. The conversion fails rather than emit an inconsistent
// size table, unless the converter is configured lenient.
type SizeMismatchError struct {
	Block   int // -1 for the whole-file accounting check
	Planned int64
	Written int64
}

func (err SizeMismatchError) Error() string {
	if err.Block < 0 {
		return fmt.Sprintf("output size %d differs from computed total %d", err.Written, err.Planned)
	}
	return fmt.Sprintf("block %d: wrote %d bytes, planned %d", err.Block, err.Written, err.Planned)
}

// ConvertError wraps any failure trapped at the conversion entry point.
type ConvertError struct {
	Cause error
}

func (err ConvertError) Error() string {
	if err.Cause == nil {
		return "conversion failed"
	}
	return "conversion failed: " + err.Cause.Error()
}

func (err ConvertError) Unwrap() error {
	return err.Cause
}
