// Package expr implements the two small condition languages referenced by
// schema field definitions: version gating (variables Version, User, Stream)
// and runtime field-value gating (variables are captured field values on the
// block being walked).
//
// Sources are compiled once and cached by source text, since the same few
// hundred expressions recur across millions of field instantiations. Macro
// aliases and dotted version literals are rewritten textually before the
// source reaches the compiler.
//
// An expression that cannot be compiled, or that references an unknown
// variable, evaluates to true: the field is included. Including a field only
// risks a redundant swap, while excluding one desynchronizes the cursor for
// the rest of the block.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	govaluate "gopkg.in/Knetic/govaluate.v3"
)

// VersionCtx carries the three file-wide version numbers available to
// version expressions.
type VersionCtx struct {
	File   uint32
	User   uint32
	Stream uint32
}

func (v VersionCtx) params() map[string]interface{} {
	return map[string]interface{}{
		"Version": float64(v.File),
		"User":    float64(v.User),
		"Stream":  float64(v.Stream),
	}
}

// PackVersion packs four 8-bit version components big-endian into one
// integer, so that packed versions compare in release order.
func PackVersion(a, b, c, d uint32) uint32 {
	return a<<24 | b<<16 | c<<8 | d
}

// ParseVersion parses a dotted version literal of two to four components,
// such as "20.2.0.7". Missing trailing components are zero.
func ParseVersion(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return 0, fmt.Errorf("version %q: want 2 to 4 components", s)
	}
	var v uint32
	for i := 0; i < 4; i++ {
		var n uint64
		if i < len(parts) {
			var err error
			n, err = strconv.ParseUint(parts[i], 10, 8)
			if err != nil {
				return 0, fmt.Errorf("version %q: %w", s, err)
			}
		}
		v = v<<8 | uint32(n)
	}
	return v, nil
}

// Ver is ParseVersion for version literals fixed at compile time; it panics
// on a malformed literal.
func Ver(s string) uint32 {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Macro aliases for common version ranges. Expanded textually before the
// source is compiled.
var macros = map[string]string{
	"#NI#":    "(User < 11)",
	"#BS#":    "(User >= 11)",
	"#FO3#":   "(User >= 11 && Stream == 34)",
	"#SKY#":   "(User >= 11 && Stream >= 83)",
	"#BS202#": "(Version == 335675399 && User >= 11)", // 20.2.0.7
}

var (
	macroReplacer  *strings.Replacer
	versionLiteral = regexp.MustCompile(`\d+\.\d+\.\d+(?:\.\d+)?`)
	hexLiteral     = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)
)

func init() {
	pairs := make([]string, 0, len(macros)*2)
	for k, v := range macros {
		pairs = append(pairs, k, v)
	}
	macroReplacer = strings.NewReplacer(pairs...)
}

// rewrite expands macros and converts dotted version and hex literals into
// plain integers, which is all the compiler understands.
func rewrite(src string) string {
	src = macroReplacer.Replace(src)
	src = versionLiteral.ReplaceAllStringFunc(src, func(lit string) string {
		v, err := ParseVersion(lit)
		if err != nil {
			return lit
		}
		return strconv.FormatUint(uint64(v), 10)
	})
	src = hexLiteral.ReplaceAllStringFunc(src, func(lit string) string {
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return lit
		}
		return strconv.FormatUint(n, 10)
	})
	return src
}

type compiled struct {
	expr *govaluate.EvaluableExpression
	err  error
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]compiled{}
)

// Compile returns the compiled form of src, consulting the process-wide
// cache first. Compilation failures are cached as well; the cache is
// populated idempotently and never invalidated, so concurrent conversions
// may share it.
func Compile(src string) (*govaluate.EvaluableExpression, error) {
	cacheMu.RLock()
	c, ok := cache[src]
	cacheMu.RUnlock()
	if ok {
		return c.expr, c.err
	}
	e, err := govaluate.NewEvaluableExpression(rewrite(src))
	cacheMu.Lock()
	cache[src] = compiled{expr: e, err: err}
	cacheMu.Unlock()
	return e, err
}

// truthy interprets an evaluation result: booleans stand for themselves,
// numbers are true when non-zero, anything else defaults to inclusion.
func truthy(v interface{}) bool {
	switch v := v.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return true
	}
}

// EvalVersion evaluates a version condition against the file's version
// numbers. An empty source and any failure both evaluate to true.
func EvalVersion(src string, v VersionCtx) bool {
	if src == "" {
		return true
	}
	return EvalCond(src, v.params())
}

// EvalCond evaluates a field condition against captured field values. An
// empty source and any failure both evaluate to true.
func EvalCond(src string, params map[string]interface{}) bool {
	if src == "" {
		return true
	}
	e, err := Compile(src)
	if err != nil {
		return true
	}
	res, err := e.Evaluate(params)
	if err != nil {
		return true
	}
	return truthy(res)
}

// EvalNumber evaluates src as a numeric expression against captured field
// values. Unlike conditions there is no conservative default: a length that
// cannot be determined reports ok == false and the caller skips the field.
func EvalNumber(src string, params map[string]interface{}) (int64, bool) {
	if src == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(src, 10, 64); err == nil {
		return n, true
	}
	if v, ok := params[src]; ok {
		if f, ok := v.(float64); ok {
			return int64(f), true
		}
	}
	e, err := Compile(src)
	if err != nil {
		return 0, false
	}
	res, err := e.Evaluate(params)
	if err != nil {
		return 0, false
	}
	switch res := res.(type) {
	case float64:
		return int64(res), true
	case bool:
		if res {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
