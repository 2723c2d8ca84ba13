package nif

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"unicode"

	"nif360/errors"
)

// Dump writes to w a readable representation of the file in data, without
// converting it.
func Dump(w io.Writer, data []byte) (warn, err error) {
	if w == nil {
		return nil, errors.New("nil writer")
	}

	m, ws, err := ParseModel(data)
	warn = errors.Union(warn, ws)
	if err != nil {
		return warn, err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Header: %s", strconv.Quote(m.Header.Line))
	v := m.Header.Version
	fmt.Fprintf(bw, "\nVersion: %d.%d.%d.%d", v>>24, v>>16&0xFF, v>>8&0xFF, v&0xFF)
	if m.Header.LittleEndian {
		fmt.Fprint(bw, "\nEndianness: little")
	} else {
		fmt.Fprint(bw, "\nEndianness: big")
	}
	fmt.Fprintf(bw, "\nUserVersion: %d", m.Header.UserVersion)
	if m.Header.HasVendor {
		fmt.Fprintf(bw, "\nStreamVersion: %d", m.Header.StreamVersion)
		fmt.Fprint(bw, "\nAuthor: ")
		dumpString(bw, 0, m.Header.Author)
		fmt.Fprint(bw, "\nProcessScript: ")
		dumpString(bw, 0, m.Header.ProcessScript)
		fmt.Fprint(bw, "\nExportScript: ")
		dumpString(bw, 0, m.Header.ExportScript)
		if m.Header.StreamVersion >= vendorFourthStringV {
			fmt.Fprint(bw, "\nMaxFilepath: ")
			dumpString(bw, 0, m.Header.MaxFilepath)
		}
	}

	fmt.Fprintf(bw, "\nTypes: (count:%d) {", len(m.TypeNames))
	for i, s := range m.TypeNames {
		dumpNewline(bw, 1)
		fmt.Fprintf(bw, "%d: ", i)
		dumpString(bw, 1, s)
	}
	fmt.Fprint(bw, "\n}")

	fmt.Fprintf(bw, "\nStrings: (count:%d) {", len(m.Strings))
	for i, s := range m.Strings {
		dumpNewline(bw, 1)
		fmt.Fprintf(bw, "%d: ", i)
		dumpString(bw, 1, s)
	}
	fmt.Fprint(bw, "\n}")

	if len(m.Groups) > 0 {
		fmt.Fprintf(bw, "\nGroups: (count:%d) {", len(m.Groups))
		for i, g := range m.Groups {
			dumpNewline(bw, 1)
			fmt.Fprintf(bw, "%d: %d", i, g)
		}
		fmt.Fprint(bw, "\n}")
	}

	fmt.Fprintf(bw, "\nBlocks: (count:%d) {", len(m.Blocks))
	for i, b := range m.Blocks {
		dumpNewline(bw, 1)
		fmt.Fprintf(bw, "#%d: %s (size:%d) (offset:%d) {", i, b.TypeName, b.Size, b.Offset)
		body := m.Body(i)
		const preview = 64
		if len(body) > preview {
			dumpNewline(bw, 2)
			fmt.Fprintf(bw, "Bytes (first %d of %d): ", preview, len(body))
			dumpBytes(bw, 2, body[:preview])
		} else {
			dumpNewline(bw, 2)
			fmt.Fprint(bw, "Bytes: ")
			dumpBytes(bw, 2, body)
		}
		dumpNewline(bw, 1)
		fmt.Fprint(bw, "}")
	}
	fmt.Fprint(bw, "\n}")

	fmt.Fprintf(bw, "\nRoots: (count:%d) {", len(m.Roots))
	for i, r := range m.Roots {
		dumpNewline(bw, 1)
		fmt.Fprintf(bw, "%d: %d", i, r)
	}
	fmt.Fprint(bw, "\n}\n")

	bw.Flush()
	return warn, nil
}

func dumpNewline(w *bufio.Writer, indent int) {
	w.WriteByte('\n')
	for i := 0; i < indent; i++ {
		w.WriteByte('\t')
	}
}

func dumpString(w *bufio.Writer, indent int, s string) {
	for _, r := range s {
		if !unicode.IsGraphic(r) {
			dumpBytes(w, indent, []byte(s))
			return
		}
	}
	fmt.Fprintf(w, "(len:%d) ", len(s))
	w.WriteString(strconv.Quote(s))
}

func dumpBytes(w *bufio.Writer, indent int, b []byte) {
	fmt.Fprintf(w, "(len:%d)", len(b))
	const width = 16
	for j := 0; j < len(b); j += width {
		dumpNewline(w, indent+1)
		w.WriteString("| ")
		for i := j; i < j+width; {
			if i < len(b) {
				s := strconv.FormatUint(uint64(b[i]), 16)
				if len(s) == 1 {
					w.WriteString("0")
				}
				w.WriteString(s)
			} else if len(b) < width {
				break
			} else {
				w.WriteString("  ")
			}
			i++
			if i%8 == 0 && i < j+width {
				w.WriteString("  ")
			} else {
				w.WriteString(" ")
			}
		}
		w.WriteString("|")
		n := len(b)
		if j+width < n {
			n = j + width
		}
		for i := j; i < n; i++ {
			if 32 <= b[i] && b[i] <= 126 {
				w.WriteRune(rune(b[i]))
			} else {
				w.WriteByte('.')
			}
		}
		w.WriteByte('|')
	}
}
