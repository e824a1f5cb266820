package deps

import (
	"path"
	"strings"
)

// Resolver maps import targets emitted by the extractor onto the known
// file paths of a repository. Targets that resolve outside the repo
// (stdlib, third-party packages) resolve to nothing.
type Resolver struct {
	files map[string]struct{}
}

func NewResolver(paths []string) *Resolver {
	files := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		files[p] = struct{}{}
	}
	return &Resolver{files: files}
}

// Resolve returns the repository path an import target refers to, or ""
// when the target is external. fromPath is the importing file, used to
// resolve relative JS/TS specifiers.
func (r *Resolver) Resolve(fromPath, target, language string) string {
	switch language {
	case "python":
		return r.resolvePython(target)
	case "javascript", "typescript":
		return r.resolveRelative(fromPath, target)
	}
	return ""
}

func (r *Resolver) resolvePython(target string) string {
	// "pkg.mod" maps to pkg/mod.py or pkg/mod/__init__.py.
	base := strings.ReplaceAll(strings.TrimLeft(target, "."), ".", "/")
	if base == "" {
		return ""
	}
	for _, candidate := range []string{base + ".py", base + "/__init__.py"} {
		if _, ok := r.files[candidate]; ok {
			return candidate
		}
	}
	return ""
}

func (r *Resolver) resolveRelative(fromPath, target string) string {
	if !strings.HasPrefix(target, ".") {
		return ""
	}
	base := path.Join(path.Dir(fromPath), target)
	candidates := []string{base}
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx", ".mjs"} {
		candidates = append(candidates, base+ext, path.Join(base, "index"+ext))
	}
	for _, candidate := range candidates {
		if _, ok := r.files[candidate]; ok {
			return candidate
		}
	}
	return ""
}
