// Package trust decides whether a version may be installed: the
// signature double-lock (developer plus platform co-signature), the
// malware scan verdict, and the approval/yank lifecycle state.
package trust

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/envforge/resolve/internal/core"
)

// Decision is the outcome of a trust check.
type Decision struct {
	Trusted bool
	// Reason explains an untrusted decision.
	Reason string
	// Fatal decisions can never be overridden (a malicious scan verdict).
	Fatal bool
	// Overridable decisions may be flipped by an explicit, logged
	// override from the caller.
	Overridable bool
}

// Override is an explicit caller allowance to install one version whose
// scan verdict is not yet safe. Overrides are only minted through
// Gate.Override, which logs them; they cannot bypass a fatal decision.
type Override struct {
	Actor     string
	VersionID uuid.UUID
	Reason    string
	grantedAt time.Time
}

// Gate checks versions against the trust rules.
//
// A Gate holds no mutable state; configuration is explicit so one test
// process can run several gates with different policies side by side.
type Gate struct {
	allowOverride bool
	logger        *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithSuspiciousOverride makes suspicious and pending scan decisions
// overridable through Gate.Override. Malicious stays fatal.
func WithSuspiciousOverride() Option {
	return func(g *Gate) {
		g.allowOverride = true
	}
}

// WithLogger sets the logger used for audit records. Defaults to
// discarding.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckOption configures one trust check.
type CheckOption func(*checkConfig)

type checkConfig struct {
	override     *Override
	acceptYanked bool
}

// WithOverride presents an override allowance for the checked version.
func WithOverride(o Override) CheckOption {
	return func(c *checkConfig) {
		c.override = &o
	}
}

// WithYankAccepted waives the yank refusal for this check. Used when the
// caller pinned the exact version knowingly, as a locked install does;
// every other rule still applies.
func WithYankAccepted() CheckOption {
	return func(c *checkConfig) {
		c.acceptYanked = true
	}
}

// Check verifies the trust state of one version. Trusted requires all
// of: a safe scan verdict, exactly one platform signature, at least one
// developer signature, approved status, and no yank.
//
// The platform co-signature is the registry's attestation that approval
// and scanning happened; a developer signature alone is never enough, so
// one compromised key cannot fully authorize an artifact.
func (g *Gate) Check(ctx context.Context, version core.Version, sigs []core.Signature, scan core.ScanResult, opts ...CheckOption) Decision {
	var cfg checkConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if scan.Status == core.ScanMalicious {
		return Decision{Reason: "malicious scan verdict", Fatal: true}
	}
	if version.ApprovalStatus != core.ApprovalApproved {
		return Decision{Reason: fmt.Sprintf("approval status is %s", version.ApprovalStatus)}
	}
	if version.Yanked && !cfg.acceptYanked {
		reason := "version is yanked"
		if version.YankedReason != "" {
			reason = fmt.Sprintf("version is yanked: %s", version.YankedReason)
		}
		return Decision{Reason: reason}
	}

	var developer, platform int
	for _, s := range sigs {
		switch s.Signer {
		case core.SignerDeveloper:
			developer++
		case core.SignerPlatform:
			platform++
		}
	}
	if platform == 0 {
		return Decision{Reason: "missing platform signature"}
	}
	if platform > 1 {
		return Decision{Reason: fmt.Sprintf("%d platform signatures, want exactly one", platform)}
	}
	if developer == 0 {
		return Decision{Reason: "missing developer signature"}
	}

	switch scan.Status {
	case core.ScanSafe:
		return Decision{Trusted: true}
	case core.ScanSuspicious, core.ScanPending, core.ScanFailed:
		d := Decision{Reason: "pending review", Overridable: g.allowOverride}
		if scan.Status != core.ScanSuspicious {
			d.Reason = fmt.Sprintf("scan is %s", scan.Status)
		}
		if d.Overridable && cfg.override != nil && cfg.override.VersionID == version.ID {
			g.logger.WarnContext(ctx, "trust override applied",
				"version_id", version.ID,
				"actor", cfg.override.Actor,
				"reason", cfg.override.Reason,
				"scan_status", string(scan.Status),
			)
			return Decision{Trusted: true}
		}
		return d
	default:
		return Decision{Reason: fmt.Sprintf("unknown scan status %q", scan.Status)}
	}
}

// Override mints an override allowance for one version and writes the
// audit record. It fails when the gate is not configured to allow
// overrides; it never inspects the scan itself, since a fatal verdict is
// enforced again inside Check.
func (g *Gate) Override(ctx context.Context, actor string, versionID uuid.UUID, reason string) (Override, error) {
	if !g.allowOverride {
		return Override{}, fmt.Errorf("trust: overrides are disabled for this gate")
	}
	if actor == "" {
		return Override{}, fmt.Errorf("trust: override requires an actor")
	}
	if reason == "" {
		return Override{}, fmt.Errorf("trust: override requires a reason")
	}
	o := Override{
		Actor:     actor,
		VersionID: versionID,
		Reason:    reason,
		grantedAt: time.Now(),
	}
	g.logger.WarnContext(ctx, "trust override granted",
		"version_id", versionID,
		"actor", actor,
		"reason", reason,
	)
	return o, nil
}
