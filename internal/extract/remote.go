package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteExtractor calls an external parsing service over HTTP.
// Contract: POST {url}/parse with {"code": ..., "language": ...},
// 200 response body matching Result.
type RemoteExtractor struct {
	url    string
	client *http.Client
}

// NewRemoteExtractor builds a client for the parsing service at baseURL.
func NewRemoteExtractor(baseURL string, timeout time.Duration) *RemoteExtractor {
	return &RemoteExtractor{
		url:    strings.TrimSuffix(baseURL, "/") + "/parse",
		client: &http.Client{Timeout: timeout},
	}
}

type parseRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Parse sends the source to the parsing service.
func (e *RemoteExtractor) Parse(ctx context.Context, code, language string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return &Result{}, nil
	}

	body, err := json.Marshal(parseRequest{Code: code, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshal parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call parsing service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("parsing service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}
	return &result, nil
}
