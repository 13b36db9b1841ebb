package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/envforge/resolve/internal/core"
)

type versionSpec struct {
	raw      string
	yanked   bool
	approval core.ApprovalStatus
	deps     []core.DependencyEdge
}

func dep(target, requirement string, kind core.EdgeKind) core.DependencyEdge {
	return core.DependencyEdge{TargetPURL: target, Requirement: requirement, Kind: kind}
}

func runtimeDep(target, requirement string) core.DependencyEdge {
	return dep(target, requirement, core.KindRuntime)
}

func buildSource(t *testing.T, components map[string][]versionSpec) *core.MemorySource {
	t.Helper()
	src := core.NewMemorySource()
	for purl, specs := range components {
		src.AddComponent(core.Component{ID: uuid.New(), PURL: purl})
		for _, spec := range specs {
			approval := spec.approval
			if approval == "" {
				approval = core.ApprovalApproved
			}
			src.AddVersion(purl, core.Version{
				ID:             uuid.New(),
				Raw:            spec.raw,
				ApprovalStatus: approval,
				Yanked:         spec.yanked,
				Dependencies:   spec.deps,
			})
		}
	}
	return src
}

func TestResolveEmptyRequests(t *testing.T) {
	src := core.NewMemorySource()
	g, err := Resolve(context.Background(), src, nil, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty graph, got %d nodes", g.Len())
	}
}

func TestResolveInvalidProfile(t *testing.T) {
	src := core.NewMemorySource()
	if _, err := Resolve(context.Background(), src, nil, Profile("staging")); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestResolvePicksHighestSatisfying(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {
			{raw: "1.0.0"},
			{raw: "1.4.2"},
			{raw: "1.2.0"},
			{raw: "2.0.0"},
		},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	n, ok := g.Node("pkg:envforge/a")
	if !ok {
		t.Fatal("node not resolved")
	}
	if n.Version.Raw != "1.4.2" {
		t.Errorf("resolved %s, want 1.4.2", n.Version.Raw)
	}
}

func TestResolveEmptyRequirementMeansAny(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0"}, {raw: "3.0.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n, _ := g.Node("pkg:envforge/a")
	if n.Version.Raw != "3.0.0" {
		t.Errorf("resolved %s, want 3.0.0", n.Version.Raw)
	}
}

// Diamond: both b and c require d, with different but compatible
// requirements. d resolves once, to the highest version satisfying the
// conjunction, and records both requirement paths.
func TestResolveDiamond(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "^1.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", ">=1.2.0"),
		}}},
		"pkg:envforge/d": {{raw: "1.1.0"}, {raw: "1.2.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "1.0.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if g.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", g.Len())
	}
	d, _ := g.Node("pkg:envforge/d")
	if d.Version.Raw != "1.2.0" {
		t.Errorf("d resolved to %s, want 1.2.0", d.Version.Raw)
	}
	if len(d.Paths) != 2 {
		t.Fatalf("expected 2 requirement paths on d, got %d", len(d.Paths))
	}
}

// The selected version must satisfy the conjunction of every path, not
// just the first one processed: with d constrained to ^1.0 by one branch
// and <1.2.0 by the other, 1.1.0 is the only admissible version even
// though 1.2.0 is higher.
func TestResolveDiamondConjunctionBoundsSelection(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "^1.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "<1.2.0"),
		}}},
		"pkg:envforge/d": {{raw: "1.1.0"}, {raw: "1.2.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "1.0.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, _ := g.Node("pkg:envforge/d")
	if d.Version.Raw != "1.1.0" {
		t.Errorf("d resolved to %s, want 1.1.0", d.Version.Raw)
	}
}

// A requirement reaching a component through a longer path arrives after
// the component was already selected. The selection moves down to the
// highest version satisfying the grown conjunction instead of reporting
// a conflict.
func TestResolveLateRequirementRepins(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/d", "*"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "<1.2.0"),
		}}},
		"pkg:envforge/d": {{raw: "1.1.0"}, {raw: "1.2.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "1.0.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, _ := g.Node("pkg:envforge/d")
	if d.Version.Raw != "1.1.0" {
		t.Errorf("d resolved to %s, want 1.1.0", d.Version.Raw)
	}
	if len(d.Paths) != 2 {
		t.Errorf("expected 2 requirement paths on d, got %d", len(d.Paths))
	}
}

// A re-pin follows the new version's dependency edges, so moving down a
// version still pulls in the dependencies that version declares.
func TestResolveRepinExpandsNewVersionEdges(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/d", "*"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "<1.2.0"),
		}}},
		"pkg:envforge/d": {
			{raw: "1.1.0", deps: []core.DependencyEdge{
				runtimeDep("pkg:envforge/legacy", "^1.0"),
			}},
			{raw: "1.2.0"},
		},
		"pkg:envforge/legacy": {{raw: "1.0.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "1.0.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, _ := g.Node("pkg:envforge/d")
	if d.Version.Raw != "1.1.0" {
		t.Fatalf("d resolved to %s, want 1.1.0", d.Version.Raw)
	}
	if _, ok := g.Node("pkg:envforge/legacy"); !ok {
		t.Error("legacy dependency of the re-pinned version was not resolved")
	}
}

func TestResolveDiamondConflictCitesAllPaths(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", "^1.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", ">=2.0.0"),
		}}},
		"pkg:envforge/d": {{raw: "1.1.0"}, {raw: "1.2.0"}},
	})

	_, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "1.0.0"}}, ProfileRuntime)
	if err == nil {
		t.Fatal("expected conflict")
	}

	var gerr *core.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *core.GraphError, got %T", err)
	}
	if len(gerr.Nodes) != 1 {
		t.Fatalf("expected 1 failed node, got %d", len(gerr.Nodes))
	}

	var conflict *core.ConflictError
	if !errors.As(gerr.Nodes[0].Err, &conflict) {
		t.Fatalf("expected *core.ConflictError, got %T", gerr.Nodes[0].Err)
	}
	if conflict.PURL != "pkg:envforge/d" {
		t.Errorf("conflict on %s, want pkg:envforge/d", conflict.PURL)
	}

	msg := conflict.Error()
	for _, path := range []string{
		"pkg:envforge/a > pkg:envforge/b > pkg:envforge/d (^1.0)",
		"pkg:envforge/a > pkg:envforge/c > pkg:envforge/d (>=2.0.0)",
	} {
		if !strings.Contains(msg, path) {
			t.Errorf("conflict message missing path %q:\n%s", path, msg)
		}
	}
}

// A conflict names every competing requirement path, including ones
// that reach the component after the conflict is first detected.
func TestResolveConflictCitesLateArrivingPaths(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/b", "^1.0"),
			runtimeDep("pkg:envforge/c", "^1.0"),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", ">=2.0.0"),
		}}},
		"pkg:envforge/c": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/x", "^1.0"),
		}}},
		"pkg:envforge/x": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/d", ">=3.0.0"),
		}}},
		"pkg:envforge/d": {{raw: "1.1.0"}},
	})

	_, err := Resolve(context.Background(), src,
		[]Request{
			{PURL: "pkg:envforge/a", Requirement: "1.0.0"},
			{PURL: "pkg:envforge/d", Requirement: "^1.0"},
		}, ProfileRuntime)

	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *core.ConflictError, got %v", err)
	}
	if len(conflict.Paths) != 3 {
		t.Fatalf("expected 3 requirement paths, got %d:\n%s", len(conflict.Paths), conflict)
	}

	msg := conflict.Error()
	for _, path := range []string{
		"pkg:envforge/d (^1.0)",
		"pkg:envforge/a > pkg:envforge/b > pkg:envforge/d (>=2.0.0)",
		"pkg:envforge/a > pkg:envforge/c > pkg:envforge/x > pkg:envforge/d (>=3.0.0)",
	} {
		if !strings.Contains(msg, path) {
			t.Errorf("conflict message missing path %q:\n%s", path, msg)
		}
	}
}

func TestResolveCollectsAllFailures(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/missing", "^1.0"),
			runtimeDep("pkg:envforge/old", ">=9.0.0"),
		}}},
		"pkg:envforge/old": {{raw: "1.0.0"}},
	})

	_, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "*"}}, ProfileRuntime)

	var gerr *core.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *core.GraphError, got %v", err)
	}
	if len(gerr.Nodes) != 2 {
		t.Fatalf("expected 2 failed nodes, got %d: %v", len(gerr.Nodes), gerr)
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Error("expected the missing component to surface ErrNotFound")
	}
}

func TestResolveExcludesYankedAndUnapproved(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {
			{raw: "1.0.0"},
			{raw: "1.1.0", yanked: true},
			{raw: "1.2.0", approval: core.ApprovalPending},
			{raw: "1.3.0", approval: core.ApprovalRejected},
		},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n, _ := g.Node("pkg:envforge/a")
	if n.Version.Raw != "1.0.0" {
		t.Errorf("resolved %s, want 1.0.0", n.Version.Raw)
	}
}

// When the only version matching the requirement is yanked, resolution
// fails; it never falls back to a version outside the requirement.
func TestResolveYankedOnlyMatchFails(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {
			{raw: "1.0.0"},
			{raw: "2.0.0", yanked: true},
		},
	})

	_, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^2.0"}}, ProfileRuntime)

	var gerr *core.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *core.GraphError, got %v", err)
	}
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *core.ConflictError, got %v", err)
	}
}

// A pin names an exact version and bypasses the yank filter, so an
// already-locked install can keep resolving a version yanked after the
// lock was taken. Approval is still required.
func TestResolvePinBypassesYank(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {
			{raw: "1.0.0"},
			{raw: "1.1.0", yanked: true},
		},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime,
		WithPin("pkg:envforge/a", "1.1.0"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n, _ := g.Node("pkg:envforge/a")
	if n.Version.Raw != "1.1.0" {
		t.Errorf("resolved %s, want pinned 1.1.0", n.Version.Raw)
	}
}

func TestResolvePinDoesNotBypassApproval(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {
			{raw: "1.1.0", approval: core.ApprovalRejected},
		},
	})

	_, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime,
		WithPin("pkg:envforge/a", "1.1.0"))
	var gerr *core.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *core.GraphError, got %v", err)
	}
}

// A dev-dependency cycle between two components terminates and resolves
// each exactly once.
func TestResolveCycleTerminates(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			dep("pkg:envforge/b", "^1.0", core.KindDev),
		}}},
		"pkg:envforge/b": {{raw: "1.0.0", deps: []core.DependencyEdge{
			dep("pkg:envforge/a", "^1.0", core.KindDev),
		}}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileDev)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.Len())
	}
	order := g.Order()
	if len(order) != 2 {
		t.Fatalf("expected 2 entries in order, got %v", order)
	}
}

func TestResolveProfileFiltersEdges(t *testing.T) {
	specs := map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			dep("pkg:envforge/run", "^1.0", core.KindRuntime),
			dep("pkg:envforge/dev", "^1.0", core.KindDev),
			dep("pkg:envforge/build", "^1.0", core.KindBuild),
		}}},
		"pkg:envforge/run":   {{raw: "1.0.0"}},
		"pkg:envforge/dev":   {{raw: "1.0.0"}},
		"pkg:envforge/build": {{raw: "1.0.0"}},
	}

	tests := []struct {
		profile Profile
		want    int
	}{
		{ProfileRuntime, 2},
		{ProfileDev, 3},
		{ProfileBuildAll, 4},
	}
	for _, tt := range tests {
		src := buildSource(t, specs)
		g, err := Resolve(context.Background(), src,
			[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, tt.profile)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.profile, err)
		}
		if g.Len() != tt.want {
			t.Errorf("profile %s: %d nodes, want %d", tt.profile, g.Len(), tt.want)
		}
	}
}

func TestResolveOrderDependenciesFirst(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/app": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/lib", "^1.0"),
		}}},
		"pkg:envforge/lib": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/base", "^1.0"),
		}}},
		"pkg:envforge/base": {{raw: "1.0.0"}},
	})

	g, err := Resolve(context.Background(), src,
		[]Request{{PURL: "pkg:envforge/app", Requirement: "^1.0"}}, ProfileRuntime)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pos := make(map[string]int)
	for i, purl := range g.Order() {
		pos[purl] = i
	}
	if !(pos["pkg:envforge/base"] < pos["pkg:envforge/lib"] && pos["pkg:envforge/lib"] < pos["pkg:envforge/app"]) {
		t.Errorf("order does not put dependencies first: %v", g.Order())
	}
}

func TestResolveDeterministic(t *testing.T) {
	specs := map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0", deps: []core.DependencyEdge{
			runtimeDep("pkg:envforge/z", "^1.0"),
			runtimeDep("pkg:envforge/m", "^1.0"),
			runtimeDep("pkg:envforge/b", "^1.0"),
		}}},
		"pkg:envforge/z": {{raw: "1.0.0"}},
		"pkg:envforge/m": {{raw: "1.0.0"}},
		"pkg:envforge/b": {{raw: "1.0.0"}},
	}

	var first []string
	for i := 0; i < 5; i++ {
		src := buildSource(t, specs)
		g, err := Resolve(context.Background(), src,
			[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		order := g.Order()
		if first == nil {
			first = order
			continue
		}
		if fmt.Sprint(order) != fmt.Sprint(first) {
			t.Fatalf("order varies between runs: %v vs %v", first, order)
		}
	}
}

type failingSource struct {
	*core.MemorySource
}

func (f failingSource) GetVersions(ctx context.Context, purl string) ([]core.Version, error) {
	return nil, fmt.Errorf("fetch versions: %w", core.ErrUnavailable)
}

// Registry I/O failures abort resolution and propagate as-is; they are
// never folded into a GraphError.
func TestResolveIOErrorPropagates(t *testing.T) {
	mem := core.NewMemorySource()
	mem.AddComponent(core.Component{ID: uuid.New(), PURL: "pkg:envforge/a"})

	_, err := Resolve(context.Background(), failingSource{mem},
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime)
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var gerr *core.GraphError
	if errors.As(err, &gerr) {
		t.Error("I/O error must not be wrapped in a GraphError")
	}
}

func TestResolveContextCancellation(t *testing.T) {
	src := buildSource(t, map[string][]versionSpec{
		"pkg:envforge/a": {{raw: "1.0.0"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Resolve(ctx, src,
		[]Request{{PURL: "pkg:envforge/a", Requirement: "^1.0"}}, ProfileRuntime)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
