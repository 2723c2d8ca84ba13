// The nif360 command rewrites a big-endian console scene file as a
// little-endian PC file.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"nif360/nif"
)

const usage = `usage: nif360 [FLAGS] [INPUT] [OUTPUT]

Reads a big-endian NIF file from INPUT, and writes to OUTPUT the same scene
in little-endian byte order. Packed console geometry is unpacked into the
regular geometry blocks.

INPUT and OUTPUT are paths to files. If INPUT is "-" or unspecified, then stdin
is used. If OUTPUT is "-" or unspecified, then stdout is used. Warnings and
errors are written to stderr.
`

func main() {
	var input io.Reader = os.Stdin
	var output io.Writer = os.Stdout

	var lenient bool
	var verbose bool
	flag.BoolVar(&lenient, "lenient", false, "Patch over block size mismatches instead of failing.")
	flag.BoolVar(&verbose, "v", false, "Write a conversion summary to stderr.")
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
		defer func() {
			err := out.Sync()
			if err != nil {
				fmt.Fprintln(os.Stderr, fmt.Errorf("sync output: %w", err))
				return
			}
		}()
		output = out
	}

	data, err := io.ReadAll(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("read input: %w", err))
		return
	}

	c := nif.Converter{LenientSize: lenient}
	res, warn, err := c.Convert(data)
	if warn != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("warning: %w", warn))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("error: %w", err))
		return
	}
	if verbose {
		s := res.Summary
		fmt.Fprintf(os.Stderr, "version: %d.%d.%d.%d stream: %d blocks: %d -> %d dropped: %d expanded: %d fastpath: %t\n",
			s.Version>>24, s.Version>>16&0xFF, s.Version>>8&0xFF, s.Version&0xFF,
			s.StreamVersion, s.BlocksIn, s.BlocksOut, len(s.Dropped), len(s.Expanded), s.FastPath)
		fmt.Fprintf(os.Stderr, "digest: %x\n", s.Digest)
	}
	if _, err := output.Write(res.Data); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("write output: %w", err))
	}
}
