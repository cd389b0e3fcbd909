package toolchain

import (
	"strings"

	"pytc/pkg/semver"
)

// Request is a possibly partial toolchain id. Empty fields are wildcards.
type Request struct {
	// Implementation is empty when the request did not name one.
	Implementation Implementation
	Version        semver.Version
	// VersionParts is how many leading version components are fixed (0-3).
	VersionParts int
	// Variant is empty when any variant is acceptable.
	Variant string
	Raw     string
}

// ParseRequest parses a partial toolchain request such as "3.11",
// "cpython", "pypy@3.9" or "cpython@3.11.4".
func ParseRequest(input string) (Request, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return Request{}, &ParseError{Input: input, Err: ErrInvalidFormat, Detail: "empty"}
	}

	req := Request{Raw: in}
	name, rest, hasName := splitName(in)
	if !hasName {
		if !startsWithDigit(in) {
			impl, err := ParseImplementation(in)
			if err != nil {
				return Request{}, &ParseError{Input: input, Err: ErrUnknownImplementation}
			}
			req.Implementation = impl
			return req, nil
		}
	} else {
		impl, err := ParseImplementation(name)
		if err != nil {
			return Request{}, &ParseError{Input: input, Err: ErrUnknownImplementation}
		}
		req.Implementation = impl
	}

	versionPart, variant, err := splitVariant(input, rest)
	if err != nil {
		return Request{}, err
	}
	v, parts, err := semver.ParsePartial(versionPart)
	if err != nil {
		return Request{}, &ParseError{Input: input, Err: ErrInvalidFormat, Detail: "version is not numeric-dot-delimited"}
	}
	req.Version = v
	req.VersionParts = parts
	req.Variant = variant
	return req, nil
}

// RequestFor returns a request that matches exactly id.
func RequestFor(id ID) Request {
	return Request{
		Implementation: id.Implementation,
		Version:        id.Version,
		VersionParts:   3,
		Variant:        id.Variant,
		Raw:            id.String(),
	}
}

// Matches reports whether id satisfies every non-wildcard field of the request.
func (r Request) Matches(id ID) bool {
	if r.Implementation != "" && r.Implementation != id.Implementation {
		return false
	}
	if r.Variant != "" && r.Variant != id.Variant {
		return false
	}
	want := [3]int{r.Version.Major, r.Version.Minor, r.Version.Patch}
	got := [3]int{id.Version.Major, id.Version.Minor, id.Version.Patch}
	for i := 0; i < r.VersionParts; i++ {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

// ImplementationExplicit reports whether the request named an implementation.
func (r Request) ImplementationExplicit() bool {
	return r.Implementation != ""
}

func (r Request) String() string {
	return r.Raw
}
