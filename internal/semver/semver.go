// Package semver wraps github.com/Masterminds/semver/v3 with the
// version and constraint operations the solver needs: strict semantic
// ordering, requirement conjunction, and highest-satisfying selection.
package semver

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version.
type Version struct {
	v *mm.Version
}

// Constraint is a semantic version requirement.
//
// Examples:
// - ">=1.2.0 <2.0.0"
// - "^1.0.0"
// - "~1.4"
type Constraint struct {
	raw string
	c   *mm.Constraints
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func ParseConstraint(raw string) (Constraint, error) {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{raw: raw, c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the constraint as written.
func (c Constraint) String() string { return c.raw }

// String returns the version as written.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Prerelease returns the prerelease tag, empty for releases.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

func Satisfies(v Version, c Constraint) bool {
	if v.v == nil || c.c == nil {
		return false
	}
	return c.c.Check(v.v)
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
//
// A release outranks any prerelease of the same triple; prerelease
// identifiers compare field by field, numerically when numeric.
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// Conjunction is the AND of every requirement that reached a component.
// A version satisfies the conjunction only if it satisfies each member.
type Conjunction struct {
	members []Constraint
}

func (c *Conjunction) Add(member Constraint) {
	c.members = append(c.members, member)
}

func (c *Conjunction) SatisfiedBy(v Version) bool {
	for _, m := range c.members {
		if !Satisfies(v, m) {
			return false
		}
	}
	return true
}

// Len returns the number of requirements merged so far.
func (c *Conjunction) Len() int { return len(c.members) }

// MaxSatisfying returns the highest version in candidates satisfying the
// conjunction. Ties keep the first encountered.
func MaxSatisfying(c *Conjunction, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !c.SatisfiedBy(candidate) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}
