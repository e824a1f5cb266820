package git

import (
	"testing"
	"time"
)

func TestParseLog(t *testing.T) {
	output := "\x01abc123|Alice|ALICE@Example.com|2024-03-01T10:00:00+00:00|add auth module\n" +
		"10\t2\tsrc/auth.py\n" +
		"5\t0\tsrc/util.py\n" +
		"-\t-\tassets/logo.png\n" +
		"\n" +
		"\x01def456|Bob|bob@example.com|2024-02-28T09:30:00+01:00|initial commit\n" +
		"100\t0\tsrc/util.py\n"

	commits, err := parseLog(output)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}

	first := commits[0]
	if first.SHA != "abc123" {
		t.Errorf("SHA = %q", first.SHA)
	}
	if first.AuthorEmail != "alice@example.com" {
		t.Errorf("email not lowercased: %q", first.AuthorEmail)
	}
	if first.Message != "add auth module" {
		t.Errorf("message = %q", first.Message)
	}
	if !first.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	// Binary file skipped
	if len(first.Files) != 2 {
		t.Fatalf("got %d files, want 2 (binary skipped)", len(first.Files))
	}
	if first.Files[0].Path != "src/auth.py" || first.Files[0].Additions != 10 || first.Files[0].Deletions != 2 {
		t.Errorf("file stat = %+v", first.Files[0])
	}

	if commits[1].SHA != "def456" || len(commits[1].Files) != 1 {
		t.Errorf("second commit = %+v", commits[1])
	}
}

func TestParseLogMessageWithPipes(t *testing.T) {
	output := "\x01aaa|Alice|a@example.com|2024-01-01T00:00:00Z|fix: handle a|b|c edge\n" +
		"1\t1\tmain.py\n"
	commits, err := parseLog(output)
	if err != nil {
		t.Fatal(err)
	}
	if commits[0].Message != "fix: handle a|b|c edge" {
		t.Errorf("message = %q", commits[0].Message)
	}
}

func TestParseLogEmpty(t *testing.T) {
	commits, err := parseLog("")
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 0 {
		t.Errorf("got %d commits, want 0", len(commits))
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/app.py", "python"},
		{"lib/index.js", "javascript"},
		{"lib/index.jsx", "javascript"},
		{"web/main.ts", "typescript"},
		{"web/view.tsx", "typescript"},
		{"README.md", ""},
		{"Makefile", ""},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsSourceFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/app.py", true},
		{"web/main.ts", true},
		{"dist/app.min.js", false},
		{"types/api.d.ts", false},
		{"node_modules/lodash/index.js", false},
		{"docs/guide.md", false},
	}
	for _, tt := range tests {
		if got := IsSourceFile(tt.path); got != tt.want {
			t.Errorf("IsSourceFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
