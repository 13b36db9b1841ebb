// Package core provides the shared data model, error values, and the
// registry lookup interface.
package core

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/envforge/resolve/capability"
)

// Component is the identity node for one named plugin across all of its
// versions. Immutable once published.
type Component struct {
	ID        uuid.UUID
	PURL      string
	Ecosystem string
	Name      string
}

// ApprovalStatus is the review state of a published version.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Version is one published version of a component. Artifact fields are
// immutable; approval status and yank state are the only mutable fields
// and only move forward (approved versions may be yanked, never silently
// reverted to pending).
type Version struct {
	ID          uuid.UUID
	ComponentID uuid.UUID

	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Raw        string

	// ArtifactRef is the OCI reference of the stored artifact.
	ArtifactRef   string
	IntegrityHash digest.Digest

	ApprovalStatus ApprovalStatus
	Yanked         bool
	YankedReason   string

	// Dependencies are the requirement edges declared by this version's
	// manifest. Self-edges are rejected at publish time.
	Dependencies []DependencyEdge

	// Capabilities are the sandbox capabilities this version declares.
	Capabilities []capability.Declaration
}

// EdgeKind classifies a dependency edge. Which kinds a resolution
// follows depends on the install profile.
type EdgeKind string

const (
	KindRuntime EdgeKind = "runtime"
	KindDev     EdgeKind = "dev"
	KindBuild   EdgeKind = "build"
)

// DependencyEdge is a directed requirement from one version to a target
// component. Multiple edges per source version are permitted.
type DependencyEdge struct {
	SourceVersionID uuid.UUID
	TargetPURL      string
	Requirement     string
	Kind            EdgeKind
}

// SignerType distinguishes the two halves of the double-lock: the
// developer's signature over the artifact and the platform's
// co-signature attesting that approval and scanning occurred.
type SignerType string

const (
	SignerDeveloper SignerType = "developer"
	SignerPlatform  SignerType = "platform"
)

// Signature is one signature row for a version. Rows are appended at
// publish and approval time, never edited or removed.
type Signature struct {
	ID        uuid.UUID
	VersionID uuid.UUID
	Signer    SignerType
	SignerID  *uuid.UUID

	Blob        []byte
	PublicKey   []byte
	Certificate []byte
}

// ScanStatus is the malware scanner's verdict for a version.
type ScanStatus string

const (
	ScanPending    ScanStatus = "pending"
	ScanSafe       ScanStatus = "safe"
	ScanSuspicious ScanStatus = "suspicious"
	ScanMalicious  ScanStatus = "malicious"

	// ScanFailed records a scan that could not complete. Treated like
	// pending by the trust gate: not safe, not fatal.
	ScanFailed ScanStatus = "failed"
)

// ScanResult is the 1:1 scan record for a version. It exists from the
// moment a version is published, defaulting to pending until the
// scanner reports.
type ScanResult struct {
	VersionID uuid.UUID
	Status    ScanStatus
	Report    json.RawMessage
}
