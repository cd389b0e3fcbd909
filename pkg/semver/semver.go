package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// ErrInvalid is returned when a version string is not numeric-dot-delimited.
var ErrInvalid = errors.New("invalid version")

// Version is a (major, minor, patch) triple. The zero value is 0.0.0.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a fully specified "major.minor.patch" version.
func Parse(v string) (Version, error) {
	out, parts, err := ParsePartial(v)
	if err != nil {
		return Version{}, err
	}
	if parts != 3 {
		return Version{}, fmt.Errorf("%w: %q needs major.minor.patch", ErrInvalid, v)
	}
	return out, nil
}

// ParsePartial parses one to three dot-separated numeric components and
// reports how many were present. Missing components are zero.
func ParsePartial(v string) (Version, int, error) {
	if v == "" {
		return Version{}, 0, fmt.Errorf("%w: empty", ErrInvalid)
	}
	fields := strings.Split(v, ".")
	if len(fields) > 3 {
		return Version{}, 0, fmt.Errorf("%w: %q has too many components", ErrInvalid, v)
	}

	var nums [3]int
	for i, f := range fields {
		if f == "" {
			return Version{}, 0, fmt.Errorf("%w: %q has an empty component", ErrInvalid, v)
		}
		for _, r := range f {
			if r < '0' || r > '9' {
				return Version{}, 0, fmt.Errorf("%w: %q is not numeric", ErrInvalid, v)
			}
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return Version{}, 0, fmt.Errorf("%w: %q: %v", ErrInvalid, v, err)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, len(fields), nil
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare compares two versions
// Returns: -1 if v < other, 0 if equal, 1 if v > other
func (v Version) Compare(other Version) int {
	a := [3]int{v.Major, v.Minor, v.Patch}
	b := [3]int{other.Major, other.Minor, other.Patch}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// Less returns true if v < other (for sorting)
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Greater returns true if v > other (for sorting)
func (v Version) Greater(other Version) bool {
	return v.Compare(other) > 0
}

// Versions is a slice of Version that implements sort.Interface
type Versions []Version

func (v Versions) Len() int           { return len(v) }
func (v Versions) Swap(i, j int)      { v[i], v[j] = v[j], v[i] }
func (v Versions) Less(i, j int) bool { return v[i].Less(v[j]) }

// Constraint is a range expression such as ">=3.10, <3.13".
type Constraint struct {
	raw string
	c   *mmsemver.Constraints
}

// NewConstraint parses a constraint expression.
func NewConstraint(expr string) (*Constraint, error) {
	c, err := mmsemver.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", expr, err)
	}
	return &Constraint{raw: expr, c: c}, nil
}

// Check reports whether v satisfies the constraint.
func (c *Constraint) Check(v Version) bool {
	if c == nil {
		return true
	}
	return c.c.Check(mmsemver.New(uint64(v.Major), uint64(v.Minor), uint64(v.Patch), "", ""))
}

func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}
