package capability

import (
	"path"
	"strings"
)

// CheckShape rejects declarations whose scope is dangerous regardless of
// what the caller has granted. This is the publish-path entry point: a
// registry can refuse an upload with an unconstrained scope before any
// consumer ever resolves it.
func CheckShape(declared []Declaration) error {
	for _, d := range declared {
		if err := checkShape(d); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a version's declared capabilities against the granted
// policy. Default-deny: any declaration not contained by a grant of the
// same token fails with *UngrantedError. Declarations with dangerous
// shapes fail with *PolicyViolationError even when nominally granted, so
// callers can tell "ask the user to grant" apart from "reject the
// artifact".
func Validate(declared []Declaration, granted Policy) error {
	if err := CheckShape(declared); err != nil {
		return err
	}
	for _, d := range declared {
		grants := granted.grantsFor(d.Token())
		if err := checkContained(d, grants); err != nil {
			return err
		}
	}
	return nil
}

func checkShape(d Declaration) error {
	violation := func(scope, reason string) error {
		return &PolicyViolationError{Token: d.Token(), Scope: scope, Reason: reason}
	}

	switch d := d.(type) {
	case FSRead:
		return checkPathShape(d.Token(), d.Paths)
	case FSWrite:
		return checkPathShape(d.Token(), d.Paths)
	case NetOutbound:
		if len(d.Hosts) == 0 {
			return violation("", "unscoped network access")
		}
		for _, h := range d.Hosts {
			if h == "" || strings.Contains(h, "*") {
				return violation(h, "wildcard host")
			}
		}
	case SysExec:
		if len(d.Binaries) == 0 {
			return violation("", "unscoped execute")
		}
		for _, b := range d.Binaries {
			if b == "" || b == "*" {
				return violation(b, "wildcard executable")
			}
		}
	case EnvRead:
		if len(d.Vars) == 0 {
			return violation("", "unscoped environment read")
		}
		for _, v := range d.Vars {
			if v == "" || v == "*" {
				return violation(v, "wildcard environment variable")
			}
		}
	}
	return nil
}

func checkPathShape(token Token, paths []string) error {
	if len(paths) == 0 {
		return &PolicyViolationError{Token: token, Reason: "unscoped filesystem access"}
	}
	for _, p := range paths {
		if p == "" || strings.Contains(p, "*") {
			return &PolicyViolationError{Token: token, Scope: p, Reason: "wildcard path"}
		}
		cleaned := path.Clean(p)
		if cleaned == "/" {
			return &PolicyViolationError{Token: token, Scope: p, Reason: "filesystem root"}
		}
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return &PolicyViolationError{Token: token, Scope: p, Reason: "path escapes its root"}
		}
	}
	return nil
}

func checkContained(d Declaration, grants []Declaration) error {
	ungranted := func(scope string) error {
		return &UngrantedError{Token: d.Token(), Scope: scope}
	}

	switch d := d.(type) {
	case FSRead:
		return checkPathsContained(d.Token(), d.Paths, grants)
	case FSWrite:
		return checkPathsContained(d.Token(), d.Paths, grants)
	case NetOutbound:
		for _, h := range d.Hosts {
			if !hostGranted(h, grants) {
				return ungranted(h)
			}
		}
	case SysExec:
		for _, b := range d.Binaries {
			if !nameGranted(b, grants) {
				return ungranted(b)
			}
		}
	case EnvRead:
		for _, v := range d.Vars {
			if !nameGranted(v, grants) {
				return ungranted(v)
			}
		}
	}
	return nil
}

func checkPathsContained(token Token, paths []string, grants []Declaration) error {
	for _, p := range paths {
		if !pathGranted(p, grants) {
			return &UngrantedError{Token: token, Scope: p}
		}
	}
	return nil
}

// pathGranted reports whether declared resolves under some granted path
// prefix. Comparison is segment-aware: /srv/data does not grant
// /srv/database.
func pathGranted(declared string, grants []Declaration) bool {
	cleaned := path.Clean(declared)
	for _, g := range grants {
		var prefixes []string
		switch g := g.(type) {
		case FSRead:
			prefixes = g.Paths
		case FSWrite:
			prefixes = g.Paths
		default:
			continue
		}
		for _, prefix := range prefixes {
			cp := path.Clean(prefix)
			if cleaned == cp || strings.HasPrefix(cleaned, cp+"/") {
				return true
			}
		}
	}
	return false
}

// hostGranted reports whether declared matches a granted host exactly or
// is a subdomain of one.
func hostGranted(declared string, grants []Declaration) bool {
	for _, g := range grants {
		no, ok := g.(NetOutbound)
		if !ok {
			continue
		}
		for _, h := range no.Hosts {
			if declared == h || strings.HasSuffix(declared, "."+h) {
				return true
			}
		}
	}
	return false
}

func nameGranted(declared string, grants []Declaration) bool {
	for _, g := range grants {
		var names []string
		switch g := g.(type) {
		case SysExec:
			names = g.Binaries
		case EnvRead:
			names = g.Vars
		default:
			continue
		}
		for _, n := range names {
			if declared == n {
				return true
			}
		}
	}
	return false
}
