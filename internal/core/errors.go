package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a component or version is unknown.
// Surfaced immediately, never retried.
var ErrNotFound = errors.New("not found")

// ErrUnavailable marks registry I/O failures. Callers may retry with
// backoff; domain errors never wrap it.
var ErrUnavailable = errors.New("registry unavailable")

// NotFoundError wraps ErrNotFound with the identity that missed.
type NotFoundError struct {
	PURL    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("component %s version %s not found", e.PURL, e.Version)
	}
	return fmt.Sprintf("component %s not found", e.PURL)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RequirementPath is one chain of requirements that reached a component,
// from a requested root down to the edge carrying the requirement.
type RequirementPath struct {
	// Path is the chain of component PURLs, root first.
	Path []string
	// Requirement is the version requirement the last edge carries.
	Requirement string
}

func (p RequirementPath) String() string {
	return fmt.Sprintf("%s (%s)", strings.Join(p.Path, " > "), p.Requirement)
}

// ConflictError reports an unsatisfiable version constraint for one
// component. It names every competing requirement path so the caller
// can see which roots disagree.
type ConflictError struct {
	PURL  string
	Paths []RequirementPath
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no version of %s satisfies all requirements:", e.PURL)
	for _, p := range e.Paths {
		b.WriteString("\n  ")
		b.WriteString(p.String())
	}
	return b.String()
}

// GraphError aggregates every node that failed during graph building, so
// a single resolution reports all conflicts and missing components at
// once instead of just the first.
type GraphError struct {
	Nodes []NodeError
}

// NodeError is one failed node inside a GraphError.
type NodeError struct {
	PURL string
	Err  error
}

func (e *GraphError) Error() string {
	if len(e.Nodes) == 1 {
		return e.Nodes[0].Err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d components failed to resolve:", len(e.Nodes))
	for _, n := range e.Nodes {
		b.WriteString("\n")
		b.WriteString(n.Err.Error())
	}
	return b.String()
}

func (e *GraphError) Unwrap() []error {
	errs := make([]error, len(e.Nodes))
	for i, n := range e.Nodes {
		errs[i] = n.Err
	}
	return errs
}
