// Package solver turns requested (component, requirement) pairs into one
// consistent graph of exact, non-yanked, approved versions.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/envforge/resolve/internal/core"
	"github.com/envforge/resolve/internal/semver"
)

// Profile selects which dependency edge kinds a resolution follows.
type Profile string

const (
	// ProfileRuntime follows runtime edges only (distribution installs).
	ProfileRuntime Profile = "runtime"
	// ProfileDev follows runtime and dev edges.
	ProfileDev Profile = "dev"
	// ProfileBuildAll follows runtime, dev, and build edges.
	ProfileBuildAll Profile = "build-all"
)

// Follows reports whether the profile expands edges of the given kind.
func (p Profile) Follows(kind core.EdgeKind) bool {
	switch kind {
	case core.KindRuntime:
		return true
	case core.KindDev:
		return p == ProfileDev || p == ProfileBuildAll
	case core.KindBuild:
		return p == ProfileBuildAll
	}
	return false
}

// Valid reports whether p is one of the known profiles.
func (p Profile) Valid() bool {
	return p == ProfileRuntime || p == ProfileDev || p == ProfileBuildAll
}

// Request is one requested root: a component PURL and a version
// requirement. An empty requirement means any version.
type Request struct {
	PURL        string
	Requirement string
}

// Option configures a resolution.
type Option func(*config)

type config struct {
	pins map[string]string
}

// WithPin pins a component to an exact version string. A pinned
// component bypasses the yank filter (the explicit pin override for
// already-locked installs); approval is still required.
func WithPin(purl, version string) Option {
	return func(c *config) {
		if c.pins == nil {
			c.pins = make(map[string]string)
		}
		c.pins[purl] = version
	}
}

// node is the solver's working state for one component. Nodes live in a
// flat arena keyed by PURL; edges are PURL references, never pointers,
// so cyclic graphs need no ownership cycles.
type node struct {
	purl      string
	component core.Component

	conj  semver.Conjunction
	paths []core.RequirementPath

	// candidates is the admissible version set, highest first.
	candidates []candidate

	resolved bool
	pinned   candidate

	// failed marks a node whose failure has been recorded; conflicted
	// selects a ConflictError built from the node's full path list once
	// the queue drains, err carries any other failure.
	failed     bool
	conflicted bool
	err        error
}

type candidate struct {
	version core.Version
	parsed  semver.Version
}

type workItem struct {
	purl        string
	requirement string
	path        []string
}

// Resolve builds the dependency graph for the requested roots. The
// candidate set for each component is every approved, non-yanked version
// satisfying the conjunction of all requirements reaching it; the
// highest such version wins.
//
// A component's version is selected only once every queued requirement
// targeting it has been merged, so diamond paths constrain the pick
// instead of racing it. A requirement that arrives after selection (a
// longer path, or a cycle) first re-checks the pinned version; if the
// pinned version no longer satisfies the grown conjunction the node is
// re-pinned to the highest version that does, and only an empty
// intersection is a conflict. Re-pins move strictly downward, so the
// loop terminates even on cyclic graphs.
//
// Domain failures (unknown components, unsatisfiable constraints) are
// collected across the whole graph and returned as a *core.GraphError.
// Registry I/O failures abort immediately and are returned as-is so the
// caller can retry them.
func Resolve(ctx context.Context, src core.Source, requests []Request, profile Profile, opts ...Option) (*Graph, error) {
	if !profile.Valid() {
		return nil, fmt.Errorf("unknown install profile %q", profile)
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	arena := make(map[string]*node)
	// inbound counts still-queued requirements per component.
	inbound := make(map[string]int)
	var failedNodes []*node
	fail := func(n *node, err error) {
		if !n.failed {
			n.failed = true
			failedNodes = append(failedNodes, n)
		}
		if err != nil && n.err == nil {
			n.err = err
		}
	}

	queue := make([]workItem, 0, len(requests))
	push := func(item workItem) {
		inbound[item.purl]++
		queue = append(queue, item)
	}
	for _, req := range requests {
		requirement := req.Requirement
		if requirement == "" {
			requirement = "*"
		}
		push(workItem{
			purl:        req.PURL,
			requirement: requirement,
			path:        []string{req.PURL},
		})
	}

	expand := func(n *node, along []string) {
		for _, edge := range followedEdges(n.pinned.version, profile, n.purl) {
			push(workItem{
				purl:        edge.TargetPURL,
				requirement: edge.Requirement,
				path:        appendPath(along, edge.TargetPURL),
			})
		}
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		inbound[item.purl]--

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, seen := arena[item.purl]
		if !seen {
			var err error
			n, err = loadNode(ctx, src, item.purl, cfg.pins)
			if err != nil {
				var nf *core.NotFoundError
				if errors.As(err, &nf) {
					n = &node{purl: item.purl}
					arena[item.purl] = n
					n.paths = append(n.paths, requirementPath(item))
					fail(n, err)
					continue
				}
				return nil, err
			}
			arena[item.purl] = n
		}

		n.paths = append(n.paths, requirementPath(item))
		if n.failed {
			continue
		}

		constraint, err := semver.ParseConstraint(item.requirement)
		if err != nil {
			fail(n, err)
			continue
		}
		n.conj.Add(constraint)

		if n.resolved {
			// Late requirement: the pinned version either still holds,
			// or the node re-pins against the full conjunction.
			if semver.Satisfies(n.pinned.parsed, constraint) {
				continue
			}
			best, ok := maxSatisfying(&n.conj, n.candidates)
			if !ok {
				n.conflicted = true
				fail(n, nil)
				continue
			}
			n.pinned = best
			expand(n, item.path)
			continue
		}

		if inbound[item.purl] > 0 {
			// More queued requirements target this component; merge them
			// all before picking a version.
			continue
		}

		best, ok := maxSatisfying(&n.conj, n.candidates)
		if !ok {
			n.conflicted = true
			fail(n, nil)
			continue
		}
		n.resolved = true
		n.pinned = best
		expand(n, item.path)
	}

	if len(failedNodes) > 0 {
		failed := make([]core.NodeError, 0, len(failedNodes))
		for _, n := range failedNodes {
			err := n.err
			if n.conflicted {
				err = &core.ConflictError{PURL: n.purl, Paths: n.paths}
			}
			failed = append(failed, core.NodeError{PURL: n.purl, Err: err})
		}
		return nil, &core.GraphError{Nodes: failed}
	}

	return buildGraph(arena, profile), nil
}

func loadNode(ctx context.Context, src core.Source, purl string, pins map[string]string) (*node, error) {
	component, err := src.GetComponent(ctx, purl)
	if err != nil {
		return nil, err
	}
	versions, err := src.GetVersions(ctx, purl)
	if err != nil {
		return nil, err
	}

	pin, pinned := pins[purl]
	n := &node{purl: purl, component: *component}
	for _, v := range versions {
		if v.ApprovalStatus != core.ApprovalApproved {
			continue
		}
		if pinned {
			if v.Raw != pin {
				continue
			}
		} else if v.Yanked {
			continue
		}
		parsed, err := semver.ParseVersion(v.Raw)
		if err != nil {
			continue
		}
		n.candidates = append(n.candidates, candidate{version: v, parsed: parsed})
	}

	// Highest first; raw string breaks exact ties so ordering is total.
	sort.SliceStable(n.candidates, func(i, j int) bool {
		if cmp := semver.Compare(n.candidates[i].parsed, n.candidates[j].parsed); cmp != 0 {
			return cmp > 0
		}
		return n.candidates[i].version.Raw < n.candidates[j].version.Raw
	})
	return n, nil
}

func maxSatisfying(conj *semver.Conjunction, candidates []candidate) (candidate, bool) {
	for _, c := range candidates {
		if conj.SatisfiedBy(c.parsed) {
			return c, true
		}
	}
	return candidate{}, false
}

// followedEdges returns the profile-relevant edges of a version, sorted
// for deterministic expansion order. Self-edges are dropped; the publish
// path rejects them, so here they are just inert data.
func followedEdges(v core.Version, profile Profile, selfPURL string) []core.DependencyEdge {
	var edges []core.DependencyEdge
	for _, e := range v.Dependencies {
		if !profile.Follows(e.Kind) {
			continue
		}
		if e.TargetPURL == selfPURL {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].TargetPURL != edges[j].TargetPURL {
			return edges[i].TargetPURL < edges[j].TargetPURL
		}
		return edges[i].Requirement < edges[j].Requirement
	})
	return edges
}

func requirementPath(item workItem) core.RequirementPath {
	return core.RequirementPath{Path: item.path, Requirement: item.requirement}
}

func appendPath(path []string, purl string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = purl
	return out
}
