package deps

import (
	"reflect"
	"testing"

	"github.com/codeprov/codeprov-go/internal/models"
)

func edges(pairs ...[2]string) []models.Dependency {
	out := make([]models.Dependency, len(pairs))
	for i, p := range pairs {
		out[i] = models.Dependency{RepoID: "r", FromPath: p[0], ToPath: p[1]}
	}
	return out
}

func TestImpactedSingleHop(t *testing.T) {
	// a imports b, c imports b. Changing b impacts a and c.
	g := NewGraph(edges([2]string{"a.py", "b.py"}, [2]string{"c.py", "b.py"}))

	got := g.Impacted([]string{"b.py"}, 1)
	want := []string{"a.py", "c.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Impacted = %v, want %v", got, want)
	}
}

func TestImpactedDepthBound(t *testing.T) {
	// d -> c -> b -> a import chain
	g := NewGraph(edges([2]string{"d.py", "c.py"}, [2]string{"c.py", "b.py"}, [2]string{"b.py", "a.py"}))

	if got := g.Impacted([]string{"a.py"}, 1); !reflect.DeepEqual(got, []string{"b.py"}) {
		t.Errorf("depth 1 = %v", got)
	}
	if got := g.Impacted([]string{"a.py"}, 2); !reflect.DeepEqual(got, []string{"b.py", "c.py"}) {
		t.Errorf("depth 2 = %v", got)
	}
	if got := g.Impacted([]string{"a.py"}, 0); !reflect.DeepEqual(got, []string{"b.py", "c.py", "d.py"}) {
		t.Errorf("unbounded = %v", got)
	}
}

func TestImpactedCycleTerminates(t *testing.T) {
	g := NewGraph(edges([2]string{"a.py", "b.py"}, [2]string{"b.py", "a.py"}))

	got := g.Impacted([]string{"a.py"}, 0)
	if !reflect.DeepEqual(got, []string{"b.py"}) {
		t.Errorf("Impacted in cycle = %v, want [b.py]", got)
	}
}

func TestImpactedExcludesStartSet(t *testing.T) {
	g := NewGraph(edges([2]string{"a.py", "b.py"}))
	got := g.Impacted([]string{"a.py", "b.py"}, 0)
	if len(got) != 0 {
		t.Errorf("Impacted = %v, want empty", got)
	}
}

func TestResolvePython(t *testing.T) {
	r := NewResolver([]string{"pkg/mod.py", "pkg/sub/__init__.py", "top.py"})

	tests := []struct {
		target string
		want   string
	}{
		{"pkg.mod", "pkg/mod.py"},
		{"pkg.sub", "pkg/sub/__init__.py"},
		{"top", "top.py"},
		{"os", ""},
		{"requests", ""},
	}
	for _, tt := range tests {
		if got := r.Resolve("x.py", tt.target, "python"); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestResolveRelativeJS(t *testing.T) {
	r := NewResolver([]string{"src/util.ts", "src/components/index.tsx", "src/app.ts"})

	tests := []struct {
		from, target, want string
	}{
		{"src/app.ts", "./util", "src/util.ts"},
		{"src/app.ts", "./components", "src/components/index.tsx"},
		{"src/components/index.tsx", "../util", "src/util.ts"},
		{"src/app.ts", "react", ""},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.from, tt.target, "typescript"); got != tt.want {
			t.Errorf("Resolve(%q from %q) = %q, want %q", tt.target, tt.from, got, tt.want)
		}
	}
}
