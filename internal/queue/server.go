package queue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeprov/codeprov-go/internal/metrics"
)

// maxPayloadBytes bounds webhook bodies; pushes larger than this are
// pathological and get rejected before touching the store.
const maxPayloadBytes = 10 << 20

// Server is the webhook intake endpoint. It validates, enqueues, and
// returns immediately; all real work happens in the Processor workers.
type Server struct {
	processor *Processor
	secret    string
	logger    *slog.Logger
	httpSrv   *http.Server
}

func NewServer(addr string, processor *Processor, secret string) *Server {
	s := &Server{
		processor: processor,
		secret:    secret,
		logger:    slog.Default().With("component", "webhook-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("webhook server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxPayloadBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if !s.validSignature(r, body) {
		s.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// Only push events carry new commits; everything else is acknowledged
	// and dropped.
	if event := r.Header.Get("X-GitHub-Event"); event != "" && event != "push" {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	id, err := s.processor.Enqueue(r.Context(), body)
	if err != nil {
		s.logger.Error("enqueue failed", "error", err)
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int64{"queued": id})
}

// validSignature checks the X-Hub-Signature-256 header when a secret is
// configured. No secret means no check.
func (s *Server) validSignature(r *http.Request, body []byte) bool {
	if s.secret == "" {
		return true
	}
	header := r.Header.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimPrefix(header, "sha256=")), []byte(expected))
}
