// Package publish runs the upload-time checks a registry applies before
// a version row is ever created: the developer's artifact signature, the
// claimed integrity digest, capability scope shapes, and the declared
// dependency edges. Artifacts with dangerous capability shapes are
// rejected here, before any consumer resolution touches them.
package publish

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/envforge/resolve/capability"
	"github.com/envforge/resolve/internal/core"
	"github.com/envforge/resolve/internal/semver"
)

var (
	// ErrBadSignature is returned when the developer signature does not
	// verify over the artifact bytes.
	ErrBadSignature = errors.New("invalid artifact signature")

	// ErrIntegrityMismatch is returned when the claimed integrity hash
	// does not match the uploaded artifact.
	ErrIntegrityMismatch = errors.New("integrity hash mismatch")

	// ErrSelfDependency is returned when a version declares a dependency
	// on its own component.
	ErrSelfDependency = errors.New("self-dependency")
)

// Dependency is one dependency declared by the submitted manifest.
type Dependency struct {
	PURL        string
	Requirement string
	Kind        core.EdgeKind
}

// Submission is an upload the registry is about to accept.
type Submission struct {
	PURL    string
	Version string

	Artifact []byte
	// Signature is the developer's ed25519 signature over the artifact
	// bytes, verified against the publisher's registered key.
	Signature []byte
	PublicKey []byte

	// IntegrityHash is the hash the client claims for the artifact.
	IntegrityHash digest.Digest

	Declarations []capability.Declaration
	Dependencies []Dependency
}

// Check validates a submission. Every problem is reported, not just the
// first, so a publisher fixes the whole manifest in one round trip.
func Check(sub Submission) error {
	var errs []error

	purl, err := core.ParsePURL(sub.PURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("purl %q: %w", sub.PURL, err))
		purl = nil
	}

	if _, err := semver.ParseVersion(sub.Version); err != nil {
		errs = append(errs, err)
	}

	if err := checkSignature(sub); err != nil {
		errs = append(errs, err)
	}
	if err := checkIntegrity(sub); err != nil {
		errs = append(errs, err)
	}
	if err := capability.CheckShape(sub.Declarations); err != nil {
		errs = append(errs, err)
	}

	for _, dep := range sub.Dependencies {
		if err := checkDependency(dep, purl); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkSignature(sub Submission) error {
	if len(sub.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key is %d bytes, want %d", ErrBadSignature, len(sub.PublicKey), ed25519.PublicKeySize)
	}
	if len(sub.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes, want %d", ErrBadSignature, len(sub.Signature), ed25519.SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(sub.PublicKey), sub.Artifact, sub.Signature) {
		return ErrBadSignature
	}
	return nil
}

func checkIntegrity(sub Submission) error {
	if sub.IntegrityHash == "" {
		return fmt.Errorf("%w: no integrity hash supplied", ErrIntegrityMismatch)
	}
	if err := sub.IntegrityHash.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityMismatch, err)
	}
	actual := sub.IntegrityHash.Algorithm().FromBytes(sub.Artifact)
	if actual != sub.IntegrityHash {
		return fmt.Errorf("%w: artifact hashes to %s, manifest claims %s", ErrIntegrityMismatch, actual, sub.IntegrityHash)
	}
	return nil
}

func checkDependency(dep Dependency, self *core.PURL) error {
	target, err := core.ParsePURL(dep.PURL)
	if err != nil {
		return fmt.Errorf("dependency purl %q: %w", dep.PURL, err)
	}
	if self != nil && target.Type == self.Type && target.FullName() == self.FullName() {
		return fmt.Errorf("%w: %s depends on itself", ErrSelfDependency, dep.PURL)
	}
	if _, err := semver.ParseConstraint(dep.Requirement); err != nil {
		return fmt.Errorf("dependency %s: %w", dep.PURL, err)
	}
	switch dep.Kind {
	case core.KindRuntime, core.KindDev, core.KindBuild:
	default:
		return fmt.Errorf("dependency %s: unknown kind %q", dep.PURL, dep.Kind)
	}
	return nil
}
