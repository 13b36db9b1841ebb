package trust

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/envforge/resolve/internal/core"
)

// Request carries everything a policy needs to judge one version.
type Request struct {
	Version    core.Version
	Signatures []core.Signature
	Scan       core.ScanResult
}

// Policy judges one version at publish or resolution time. The registry
// publish path stacks the gate with site-local policies through
// RequireAll.
type Policy interface {
	Evaluate(ctx context.Context, req Request) error
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, req Request) error

func (f PolicyFunc) Evaluate(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// RequireAll returns a policy that passes only if all given policies
// pass. Evaluation stops at the first failure; nil policies are skipped.
func RequireAll(policies ...Policy) Policy {
	return PolicyFunc(func(ctx context.Context, req Request) error {
		for i, p := range policies {
			if p == nil {
				continue
			}
			if err := p.Evaluate(ctx, req); err != nil {
				return fmt.Errorf("policy %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// RequireAny returns a policy that passes if at least one policy passes.
// If all fail, the error includes every failure message.
func RequireAny(policies ...Policy) Policy {
	return PolicyFunc(func(ctx context.Context, req Request) error {
		var valid []Policy
		for _, p := range policies {
			if p != nil {
				valid = append(valid, p)
			}
		}
		if len(valid) == 0 {
			return fmt.Errorf("trust: RequireAny requires at least one policy")
		}

		var errs []string
		for _, p := range valid {
			if err := p.Evaluate(ctx, req); err != nil {
				errs = append(errs, err.Error())
				continue
			}
			return nil
		}
		return fmt.Errorf("trust: all %d policies failed: %s", len(valid), strings.Join(errs, "; "))
	})
}

// Policy adapts the gate to the Policy interface; untrusted decisions
// become a *TrustError.
func (g *Gate) Policy() Policy {
	return PolicyFunc(func(ctx context.Context, req Request) error {
		d := g.Check(ctx, req.Version, req.Signatures, req.Scan)
		if d.Trusted {
			return nil
		}
		return &TrustError{
			VersionID:   req.Version.ID,
			Reason:      d.Reason,
			Fatal:       d.Fatal,
			Overridable: d.Overridable,
		}
	})
}

// TrustError reports an untrusted version. Fatal errors (malicious scan
// verdicts) are never overridable; soft ones may be, through an
// explicit, logged Gate.Override.
type TrustError struct {
	VersionID   uuid.UUID
	Reason      string
	Fatal       bool
	Overridable bool
}

func (e *TrustError) Error() string {
	return fmt.Sprintf("version %s untrusted: %s", e.VersionID, e.Reason)
}
