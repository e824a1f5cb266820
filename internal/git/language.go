package git

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".py":  "python",
	".pyi": "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// DetectLanguage returns the parser language key for a file path, or ""
// when the file is not a supported source file.
func DetectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// IsSourceFile reports whether the file is analyzable source. Generated and
// minified artifacts are excluded; embedding them adds noise, not signal.
func IsSourceFile(path string) bool {
	if DetectLanguage(path) == "" {
		return false
	}
	for _, suffix := range []string{".min.js", ".bundle.js", ".d.ts", ".pb.js", ".pb.ts", "_pb.js", "_pb.ts"} {
		if strings.HasSuffix(path, suffix) {
			return false
		}
	}
	for _, dir := range []string{"node_modules/", "vendor/", "dist/", "build/", "__pycache__/"} {
		if strings.Contains(path, dir) {
			return false
		}
	}
	return true
}
