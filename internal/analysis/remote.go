package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/swar/internal/model"
)

const maxRemoteBody = 1 << 20

// Remote posts the session to a hosted analysis function that owns the
// prompts and the model choice, and replies with a verdict object.
type Remote struct {
	endpoint string
	http     *http.Client
	opts     options
}

// NewRemote creates a client for the endpoint. A nil httpClient uses
// http.DefaultClient.
func NewRemote(endpoint string, httpClient *http.Client, opts ...Option) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Remote{endpoint: endpoint, http: httpClient, opts: buildOptions(opts)}
}

// Analyze implements Analyzer.
func (r *Remote) Analyze(ctx context.Context, req model.AnalysisRequest) model.AIAnalysis {
	raw, err := r.post(ctx, req)
	if err != nil {
		kind := Classify(err)
		slog.Warn("analysis request failed", "endpoint", r.endpoint, "kind", kind, "error", err)
		return TransportFailure(kind, err)
	}
	slog.Debug("analysis response", "raw", raw)
	return Normalize(req.SessionType, raw)
}

func (r *Remote) post(ctx context.Context, req model.AnalysisRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	if err := r.opts.wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post analysis: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return "", fmt.Errorf("read analysis: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}
