package queue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeprov/codeprov-go/internal/storage"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, srv *Server, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	return rec
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "topsecret")

	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"acme/api"}}`)
	rec := postWebhook(t, srv, body, map[string]string{
		"X-Hub-Signature-256": signBody("topsecret", body),
		"X-GitHub-Event":      "push",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	item, err := s.ClaimNextPendingWebhook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, item.Payload)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "topsecret")

	body := []byte(`{}`)
	rec := postWebhook(t, srv, body, map[string]string{
		"X-Hub-Signature-256": signBody("wrongsecret", body),
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, err := s.ClaimNextPendingWebhook(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "topsecret")

	rec := postWebhook(t, srv, []byte(`{}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookNoSecretSkipsCheck(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "")

	rec := postWebhook(t, srv, []byte(`{"repository":{"full_name":"acme/api"}}`), nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhookIgnoresNonPushEvents(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "")

	rec := postWebhook(t, srv, []byte(`{}`), map[string]string{"X-GitHub-Event": "issues"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	_, err := s.ClaimNextPendingWebhook(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWebhookRejectsGet(t *testing.T) {
	s := storage.NewMemoryStore()
	p, _ := testProcessor(s)
	srv := NewServer(":0", p, "")

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
