package prepop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrPathSyntax       = errors.New("jsonpath: syntax error")
	ErrPathNotFound     = errors.New("jsonpath: key not found")
	ErrNotObject        = errors.New("jsonpath: value is not an object")
	ErrNotArray         = errors.New("jsonpath: value is not an array")
	ErrIndexOutOfRange  = errors.New("jsonpath: index out of range")
	errMultipleWildcard = fmt.Errorf("%w: only one [*] is supported", ErrPathSyntax)
)

type segmentKind int

const (
	segKey segmentKind = iota
	segIndex
	segWildcard
)

type segment struct {
	kind  segmentKind
	key   string
	index int
}

// Path is a compiled restricted JSONPath: $ followed by .key, [n] and at most one [*]
type Path struct {
	raw  string
	segs []segment
}

func (p Path) String() string { return p.raw }

// ParsePath compiles expr. The leading "$" is optional; "" and "$" select the whole document.
func ParsePath(expr string) (Path, error) {
	p := Path{raw: expr}
	s := strings.TrimSpace(expr)
	s = strings.TrimPrefix(s, "$")

	wildcards := 0
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '.':
			i++
			start := i
			for i < len(s) && s[i] != '.' && s[i] != '[' {
				i++
			}
			if i == start {
				return Path{}, fmt.Errorf("%w: empty key at offset %d in %q", ErrPathSyntax, start, expr)
			}
			p.segs = append(p.segs, segment{kind: segKey, key: s[start:i]})
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("%w: unclosed [ in %q", ErrPathSyntax, expr)
			}
			inner := strings.TrimSpace(s[i+1 : i+end])
			i += end + 1
			if inner == "*" {
				wildcards++
				if wildcards > 1 {
					return Path{}, errMultipleWildcard
				}
				p.segs = append(p.segs, segment{kind: segWildcard})
				continue
			}
			if q := unquote(inner); q != "" {
				p.segs = append(p.segs, segment{kind: segKey, key: q})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return Path{}, fmt.Errorf("%w: bad index %q in %q", ErrPathSyntax, inner, expr)
			}
			p.segs = append(p.segs, segment{kind: segIndex, index: n})
		case i == 0:
			// bare "a.b" without the leading "$."
			start := i
			for i < len(s) && s[i] != '.' && s[i] != '[' {
				i++
			}
			p.segs = append(p.segs, segment{kind: segKey, key: s[start:i]})
		default:
			return Path{}, fmt.Errorf("%w: unexpected %q at offset %d in %q", ErrPathSyntax, c, i, expr)
		}
	}
	return p, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return ""
}

// Eval selects the value at p inside doc.
// A wildcard maps the rest of the path over every element and drops elements where it fails.
func (p Path) Eval(doc any) (any, error) {
	return eval(p.segs, doc)
}

func eval(segs []segment, cur any) (any, error) {
	for i, seg := range segs {
		switch seg.kind {
		case segKey:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: cannot read %q", ErrNotObject, seg.key)
			}
			v, ok := obj[seg.key]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrPathNotFound, seg.key)
			}
			cur = v
		case segIndex:
			arr, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: cannot index [%d]", ErrNotArray, seg.index)
			}
			if seg.index >= len(arr) {
				return nil, fmt.Errorf("%w: [%d] of %d", ErrIndexOutOfRange, seg.index, len(arr))
			}
			cur = arr[seg.index]
		case segWildcard:
			arr, ok := cur.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: cannot expand [*]", ErrNotArray)
			}
			out := make([]any, 0, len(arr))
			for _, el := range arr {
				v, err := eval(segs[i+1:], el)
				if err != nil {
					continue
				}
				out = append(out, v)
			}
			return out, nil
		}
	}
	return cur, nil
}

// Extract parses expr and evaluates it in one step
func Extract(doc any, expr string) (any, error) {
	p, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	return p.Eval(doc)
}
