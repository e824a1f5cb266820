package hosting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePushPayload(t *testing.T) {
	payload := []byte(`{
		"ref": "refs/heads/main",
		"after": "deadbeef",
		"repository": {"full_name": "acme/api"},
		"commits": [
			{"added": ["src/new.py"], "modified": ["src/auth.py"], "removed": []},
			{"added": [], "modified": ["src/auth.py", "src/db.py"], "removed": ["old.py"]}
		]
	}`)

	event, err := ParsePushPayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "acme/api", event.RepoFullName)
	assert.Equal(t, "main", event.Ref)
	assert.Equal(t, "deadbeef", event.HeadSHA)
	// Deduplicated union of added + modified + removed.
	assert.ElementsMatch(t, []string{"src/new.py", "src/auth.py", "src/db.py", "old.py"}, event.ChangedFiles)
}

func TestParsePushPayloadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "push: stuff happened"},
		{"missing repository", `{"ref": "refs/heads/main", "after": "abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePushPayload([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestFakePlatformWebhookIdempotent(t *testing.T) {
	ctx := context.Background()
	f := NewFakePlatform()

	require.NoError(t, f.RegisterWebhook(ctx, "acme", "api", "https://hooks.example.com/push", ""))
	require.NoError(t, f.RegisterWebhook(ctx, "acme", "api", "https://hooks.example.com/push", ""))

	assert.Len(t, f.Hooks["acme/api"], 1)
}
