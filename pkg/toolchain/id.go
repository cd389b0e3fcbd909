package toolchain

import (
	"fmt"
	"sort"
	"strings"

	"pytc/pkg/semver"
)

// Implementation names an interpreter implementation.
type Implementation string

const (
	CPython Implementation = "cpython"
	PyPy    Implementation = "pypy"
)

var implementationAliases = map[string]Implementation{
	"cpython": CPython,
	"python":  CPython,
	"py":      CPython,
	"pypy":    PyPy,
}

// Implementations returns the known implementations in name order.
func Implementations() []Implementation {
	seen := map[Implementation]bool{}
	var out []Implementation
	for _, impl := range implementationAliases {
		if !seen[impl] {
			seen[impl] = true
			out = append(out, impl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseImplementation maps a user supplied name (or alias) to an Implementation.
func ParseImplementation(name string) (Implementation, error) {
	impl, ok := implementationAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", &ParseError{Input: name, Err: ErrUnknownImplementation}
	}
	return impl, nil
}

// ID is the canonical identity of an interpreter.
// IDs are comparable values and can be used as map keys.
type ID struct {
	Implementation Implementation
	Version        semver.Version
	Variant        string
}

// String returns the canonical string representation of the toolchain id
// Example: ID{CPython, 3.11.4, ""} -> "cpython@3.11.4"
func (id ID) String() string {
	s := fmt.Sprintf("%s@%s", id.Implementation, id.Version)
	if id.Variant != "" {
		s += "+" + id.Variant
	}
	return s
}

// Compare orders ids by implementation, then version, then variant (all ascending).
func Compare(a, b ID) int {
	if a.Implementation != b.Implementation {
		if a.Implementation < b.Implementation {
			return -1
		}
		return 1
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}
	return strings.Compare(a.Variant, b.Variant)
}

// Parse parses a fully specified toolchain id.
//
// Formats supported:
//   - name@major.minor.patch[+variant]
//   - name@major.minor[+variant]    -> patch defaults to 0
//   - major.minor[.patch][+variant] -> name defaults to cpython
//
// Examples:
//   - "cpython@3.11.4"              -> ID{CPython, 3.11.4, ""}
//   - "pypy@3.9"                    -> ID{PyPy, 3.9.0, ""}
//   - "3.13.0+freethreaded"         -> ID{CPython, 3.13.0, "freethreaded"}
func Parse(input string) (ID, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return ID{}, &ParseError{Input: input, Err: ErrInvalidFormat, Detail: "empty"}
	}

	name, rest, hasName := splitName(in)
	impl := CPython
	if hasName {
		var err error
		impl, err = ParseImplementation(name)
		if err != nil {
			return ID{}, &ParseError{Input: input, Err: ErrUnknownImplementation}
		}
	} else if !startsWithDigit(in) {
		if _, err := ParseImplementation(in); err != nil {
			return ID{}, &ParseError{Input: input, Err: ErrUnknownImplementation}
		}
		return ID{}, &ParseError{Input: input, Err: ErrInvalidFormat, Detail: "missing version"}
	}

	versionPart, variant, err := splitVariant(input, rest)
	if err != nil {
		return ID{}, err
	}
	v, parts, err := semver.ParsePartial(versionPart)
	if err != nil || parts < 2 {
		return ID{}, &ParseError{Input: input, Err: ErrInvalidFormat, Detail: "version must be major.minor[.patch]"}
	}

	return ID{Implementation: impl, Version: v, Variant: variant}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(input string) ID {
	id, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return id
}

// DirName returns the store directory prefix for this id.
// Example: "cpython@3.11.4+debug" -> "cpython@3.11.4+debug"
func (id ID) DirName() string {
	return strings.NewReplacer("/", "-", ":", "-", `\`, "-").Replace(id.String())
}

func splitName(in string) (name, rest string, ok bool) {
	idx := strings.Index(in, "@")
	if idx < 0 {
		return "", in, false
	}
	return in[:idx], in[idx+1:], true
}

func splitVariant(input, rest string) (string, string, error) {
	parts := strings.SplitN(rest, "+", 2)
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	variant := parts[1]
	if !validVariant(variant) {
		return "", "", &ParseError{Input: input, Err: ErrInvalidFormat, Detail: fmt.Sprintf("invalid variant %q", variant)}
	}
	return parts[0], variant, nil
}

// ValidateVariant checks that v only uses lowercase letters, digits, '-', '_' and '.'.
func ValidateVariant(v string) error {
	if v != "" && !validVariant(v) {
		return &ParseError{Input: v, Err: ErrInvalidFormat, Detail: fmt.Sprintf("invalid variant %q", v)}
	}
	return nil
}

func validVariant(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
