// Package resolve is the registry-side trust and resolution engine for a
// versioned, signed, capability-scoped plugin distribution system. It
// decides whether a combination of artifact versions is safe and
// consistent to install.
//
// Three subsystems share one data model: the constraint solver turns
// requested (component, requirement) pairs into one consistent graph of
// exact, approved, non-yanked versions; the capability validator checks
// a version's declared sandbox capabilities against the caller's granted
// policy; and the trust gate verifies the signature double-lock and the
// malware scan verdict. The Planner sequences them into one atomic
// installation plan.
//
// Basic usage:
//
//	src := fetch.NewSource("https://registry.example.com", nil)
//	planner := resolve.NewPlanner(fetch.NewSnapshot(src))
//
//	plan, err := planner.ResolvePlan(ctx,
//		[]resolve.Request{{PURL: "pkg:envforge/http-client", Requirement: "^1.0"}},
//		resolve.ProfileRuntime,
//		granted,
//	)
//
// Resolution is read-only: nothing is written anywhere until the caller
// accepts the returned plan. The capability and trust checks are also
// independently invocable (packages capability and trust) so the publish
// path can pre-reject dangerous artifacts at upload time.
package resolve

import (
	"github.com/envforge/resolve/internal/core"
	"github.com/envforge/resolve/internal/solver"
)

// Re-export types from internal/core
type (
	// Component is the identity node for one named plugin across all of
	// its versions.
	Component = core.Component

	// Version is one published version of a component.
	Version = core.Version

	// ApprovalStatus is the review state of a published version.
	ApprovalStatus = core.ApprovalStatus

	// DependencyEdge is a directed requirement from a version to a
	// target component.
	DependencyEdge = core.DependencyEdge

	// EdgeKind classifies a dependency edge.
	EdgeKind = core.EdgeKind

	// Signature is one append-only signature row for a version.
	Signature = core.Signature

	// SignerType distinguishes developer and platform signatures.
	SignerType = core.SignerType

	// ScanResult is the 1:1 malware scan record for a version.
	ScanResult = core.ScanResult

	// ScanStatus is the malware scanner's verdict.
	ScanStatus = core.ScanStatus

	// Source is the read-only registry lookup resolution runs against.
	Source = core.Source

	// MemorySource is an in-memory Source for tests and tooling that
	// already holds a snapshot of the registry data.
	MemorySource = core.MemorySource

	// PURL is a parsed Package URL.
	PURL = core.PURL
)

// Re-export types from the solver
type (
	// Request is one requested root: a component PURL and a version
	// requirement.
	Request = solver.Request

	// Profile selects which dependency edge kinds resolution follows.
	Profile = solver.Profile
)

// Re-export constants
const (
	ApprovalPending  = core.ApprovalPending
	ApprovalApproved = core.ApprovalApproved
	ApprovalRejected = core.ApprovalRejected

	KindRuntime = core.KindRuntime
	KindDev     = core.KindDev
	KindBuild   = core.KindBuild

	SignerDeveloper = core.SignerDeveloper
	SignerPlatform  = core.SignerPlatform

	ScanPending    = core.ScanPending
	ScanSafe       = core.ScanSafe
	ScanSuspicious = core.ScanSuspicious
	ScanMalicious  = core.ScanMalicious
	ScanFailed     = core.ScanFailed

	// ProfileRuntime follows runtime edges only.
	ProfileRuntime = solver.ProfileRuntime
	// ProfileDev follows runtime and dev edges.
	ProfileDev = solver.ProfileDev
	// ProfileBuildAll follows runtime, dev, and build edges.
	ProfileBuildAll = solver.ProfileBuildAll
)

// Re-export errors
var (
	// ErrNotFound matches unknown component/version lookups.
	ErrNotFound = core.ErrNotFound

	// ErrUnavailable matches registry I/O failures, eligible for
	// caller-side retry with backoff. Domain errors never match it.
	ErrUnavailable = core.ErrUnavailable
)

// Error types
type (
	NotFoundError   = core.NotFoundError
	ConflictError   = core.ConflictError
	GraphError      = core.GraphError
	RequirementPath = core.RequirementPath
)

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return core.NewMemorySource()
}

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purl string) (*PURL, error) {
	return core.ParsePURL(purl)
}
