package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/envforge/resolve/capability"
	"github.com/envforge/resolve/internal/core"
	"github.com/envforge/resolve/internal/solver"
	"github.com/envforge/resolve/trust"
)

// Stage names the point in the pipeline where a node failed.
type Stage string

const (
	StageGraph      Stage = "graph"
	StageCapability Stage = "capability"
	StageTrust      Stage = "trust"
)

// NodeFailure is one component that blocked the plan.
type NodeFailure struct {
	PURL  string
	Stage Stage
	Err   error
}

// PlanError reports every node that blocked a plan. Planning is
// all-or-nothing: a single failing node fails the whole plan, but the
// error still enumerates all of them so the caller can fix the full set
// at once instead of replanning one failure at a time.
type PlanError struct {
	Failures []NodeFailure
}

func (e *PlanError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan blocked by %d component(s):", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s [%s]: %v", f.PURL, f.Stage, f.Err)
	}
	return b.String()
}

func (e *PlanError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Step is one installable unit of a plan: the exact version to install
// and the capability grants it will run under.
type Step struct {
	Component   Component
	Version     Version
	ArtifactRef string
	// Grant is the subset of the caller's policy the step actually
	// declared, so the runtime sandbox can be provisioned per plugin.
	Grant capability.Policy
}

// Plan is a complete, validated installation plan: every step passed
// capability validation and the trust gate, and steps are ordered so
// dependencies install before dependents.
type Plan struct {
	Profile Profile
	Steps   []Step
}

// Planner sequences the solver, the capability validator, and the trust
// gate into one atomic planning operation.
type Planner struct {
	src    core.Source
	gate   *trust.Gate
	logger *slog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithGate sets the trust gate. Defaults to a gate that allows no
// overrides.
func WithGate(g *trust.Gate) PlannerOption {
	return func(p *Planner) {
		p.gate = g
	}
}

// WithLogger sets the planner's logger. Defaults to discarding.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner creates a Planner reading from src.
func NewPlanner(src Source, opts ...PlannerOption) *Planner {
	p := &Planner{
		src:    src,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.gate == nil {
		p.gate = trust.NewGate(trust.WithLogger(p.logger))
	}
	return p
}

// PlanOption configures one planning run.
type PlanOption func(*planConfig)

type planConfig struct {
	solverOpts []solver.Option
	overrides  []trust.Override
	pins       map[string]string
}

// WithPin forces one component to an exact version during resolution,
// bypassing yank exclusion for that version. The trust gate's yank
// refusal is waived for the pinned version too; everything else it
// checks still applies.
func WithPin(purl, version string) PlanOption {
	return func(c *planConfig) {
		c.solverOpts = append(c.solverOpts, solver.WithPin(purl, version))
		if c.pins == nil {
			c.pins = make(map[string]string)
		}
		c.pins[purl] = version
	}
}

// WithTrustOverride presents an override allowance minted through
// Gate.Override. It applies only to the version it names.
func WithTrustOverride(o trust.Override) PlanOption {
	return func(c *planConfig) {
		c.overrides = append(c.overrides, o)
	}
}

// ResolvePlan resolves the requested components into a dependency graph,
// validates every resolved version's declared capabilities against the
// granted policy, and runs every version through the trust gate. It
// returns a plan only when every node passes every check.
//
// Blocking failures come back as a *PlanError listing every failing
// node. Registry I/O failures abort planning immediately and are
// returned as-is so the caller can retry; they never appear inside a
// PlanError.
func (p *Planner) ResolvePlan(ctx context.Context, requests []Request, profile Profile, granted capability.Policy, opts ...PlanOption) (*Plan, error) {
	var cfg planConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	graph, err := solver.Resolve(ctx, p.src, requests, profile, cfg.solverOpts...)
	if err != nil {
		var gerr *core.GraphError
		if !errors.As(err, &gerr) {
			return nil, err
		}
		perr := &PlanError{}
		for _, n := range gerr.Nodes {
			perr.Failures = append(perr.Failures, NodeFailure{
				PURL:  n.PURL,
				Stage: StageGraph,
				Err:   n.Err,
			})
		}
		return nil, perr
	}

	perr := &PlanError{}
	plan := &Plan{Profile: profile, Steps: make([]Step, 0, graph.Len())}

	for _, node := range graph.Nodes() {
		purl := node.Component.PURL

		if err := capability.Validate(node.Version.Capabilities, granted); err != nil {
			perr.Failures = append(perr.Failures, NodeFailure{
				PURL:  purl,
				Stage: StageCapability,
				Err:   err,
			})
			continue
		}

		sigs, err := p.src.GetSignatures(ctx, node.Version.ID)
		if err != nil {
			return nil, err
		}
		scan, err := p.src.GetScanResult(ctx, node.Version.ID)
		if err != nil {
			return nil, err
		}

		var checkOpts []trust.CheckOption
		for _, o := range cfg.overrides {
			if o.VersionID == node.Version.ID {
				checkOpts = append(checkOpts, trust.WithOverride(o))
			}
		}
		if pin, ok := cfg.pins[purl]; ok && pin == node.Version.Raw {
			checkOpts = append(checkOpts, trust.WithYankAccepted())
		}

		d := p.gate.Check(ctx, node.Version, sigs, *scan, checkOpts...)
		if !d.Trusted {
			perr.Failures = append(perr.Failures, NodeFailure{
				PURL:  purl,
				Stage: StageTrust,
				Err: &trust.TrustError{
					VersionID:   node.Version.ID,
					Reason:      d.Reason,
					Fatal:       d.Fatal,
					Overridable: d.Overridable,
				},
			})
			continue
		}

		plan.Steps = append(plan.Steps, Step{
			Component:   node.Component,
			Version:     node.Version,
			ArtifactRef: node.Version.ArtifactRef,
			Grant:       capability.Policy{Grants: node.Version.Capabilities},
		})
	}

	if len(perr.Failures) > 0 {
		return nil, perr
	}

	p.logger.DebugContext(ctx, "plan built",
		"profile", string(profile),
		"steps", len(plan.Steps))
	return plan, nil
}
