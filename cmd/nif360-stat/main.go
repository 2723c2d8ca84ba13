// The nif360-stat command displays stats for a NIF file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"nif360/nif"
)

const usage = `usage: nif360-stat [FLAGS] [INPUT] [OUTPUT]

Reads a NIF file from INPUT, and writes to OUTPUT statistics for the file.

INPUT and OUTPUT are paths to files. If INPUT is "-" or unspecified, then stdin
is used. If OUTPUT is "-" or unspecified, then stdout is used. Warnings and
errors are written to stderr.
`

type Stats struct {
	// Header line as written in the file.
	Header string

	Version       string
	UserVersion   uint32
	StreamVersion uint32

	LittleEndian bool

	// Number of blocks overall.
	BlockCount int

	// Number of blocks per type.
	TypeCount map[string]int

	// Total block body bytes.
	BodyBytes int64

	StringCount int
	RootCount   int
}

func fill(s *Stats, m *nif.Model) {
	s.Header = m.Header.Line
	v := m.Header.Version
	s.Version = fmt.Sprintf("%d.%d.%d.%d", v>>24, v>>16&0xFF, v>>8&0xFF, v&0xFF)
	s.UserVersion = m.Header.UserVersion
	s.StreamVersion = m.Header.StreamVersion
	s.LittleEndian = m.Header.LittleEndian
	s.BlockCount = len(m.Blocks)
	s.TypeCount = map[string]int{}
	for _, b := range m.Blocks {
		s.TypeCount[b.TypeName]++
		s.BodyBytes += int64(b.Size)
	}
	s.StringCount = len(m.Strings)
	s.RootCount = len(m.Roots)
}

func main() {
	var input io.Reader = os.Stdin
	var output io.Writer = os.Stdout

	var dump bool
	flag.BoolVar(&dump, "dump", false, "Write a full block dump instead of summary statistics.")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) >= 1 && args[0] != "-" {
		in, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("open input: %w", err))
			return
		}
		input = in
		defer in.Close()
	}
	if len(args) >= 2 && args[1] != "-" {
		out, err := os.Create(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("create output: %w", err))
			return
		}
		defer out.Close()
		output = out
	}

	data, err := io.ReadAll(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("read input: %w", err))
		return
	}

	if dump {
		warn, err := nif.Dump(output, data)
		if warn != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("warning: %w", warn))
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("error: %w", err))
		}
		return
	}

	m, warn, err := nif.ParseModel(data)
	if warn != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("warning: %w", warn))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("error: %w", err))
		return
	}

	var stats Stats
	fill(&stats, m)

	je := json.NewEncoder(output)
	je.SetEscapeHTML(false)
	je.SetIndent("", "\t")
	if err := je.Encode(stats); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("encode stats: %w", err))
		return
	}
}
