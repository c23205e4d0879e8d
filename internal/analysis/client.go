package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/swar/internal/analysis/prompts"
	"github.com/pavelanni/swar/internal/model"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Analyzer produces a verdict for a finished session. It never returns an
// error: failures come back as a degraded analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) model.AIAnalysis
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, req model.AnalysisRequest) model.AIAnalysis

// Analyze calls f(ctx, req).
func (f AnalyzerFunc) Analyze(ctx context.Context, req model.AnalysisRequest) model.AIAnalysis {
	return f(ctx, req)
}

type options struct {
	limiter *rate.Limiter
}

// Option configures a client.
type Option func(*options)

// WithRateLimit caps outgoing calls at perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	api   *openai.Client
	model string
	opts  options
}

// New creates a new analysis client.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		opts:  buildOptions(opts),
	}
}

// Ping checks that the API is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Analyze implements Analyzer.
func (c *Client) Analyze(ctx context.Context, req model.AnalysisRequest) model.AIAnalysis {
	raw, err := c.complete(ctx, req)
	if err != nil {
		kind := Classify(err)
		slog.Warn("analysis request failed", "type", req.SessionType, "kind", kind, "error", err)
		return TransportFailure(kind, err)
	}
	slog.Debug("analysis response", "raw", raw)
	return Normalize(req.SessionType, raw)
}

func (c *Client) complete(ctx context.Context, req model.AnalysisRequest) (string, error) {
	system, err := prompts.System(req.SessionType, req.Grade)
	if err != nil {
		return "", err
	}
	user, err := prompts.Session(req)
	if err != nil {
		return "", err
	}
	schema, err := SchemaFor(req.SessionType)
	if err != nil {
		return "", err
	}
	schemaBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}

	if err := c.opts.wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: json.RawMessage(schemaBytes),
				// Type-specific fields are optional, which strict mode forbids.
				Strict: false,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("analysis API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// StatusError is a non-2xx reply from the analysis endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis endpoint returned %d %s", e.Code, http.StatusText(e.Code))
}

// Classify maps a transport error onto the error kinds shown to teachers.
func Classify(err error) model.AIErrorKind {
	var (
		apiErr    *openai.APIError
		reqErr    *openai.RequestError
		statusErr *StatusError
		status    int
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &statusErr):
		status = statusErr.Code
	}
	switch status {
	case http.StatusTooManyRequests:
		return model.AIRateLimited
	case http.StatusPaymentRequired:
		return model.AIPaymentRequired
	default:
		return model.AIUpstreamError
	}
}

// TransportFailure is the analysis reported when the endpoint could not be
// reached or refused the call.
func TransportFailure(kind model.AIErrorKind, err error) model.AIAnalysis {
	a := model.AIAnalysis{
		OverallAccuracy: 0,
		IsFlagged:       false,
		Degraded:        true,
		ErrorKind:       kind,
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Normalize turns raw model output into an analysis. Output that is not a
// valid verdict for the assessment type is flagged, with the raw text kept
// for the reviewer.
func Normalize(t model.AssessmentType, raw string) model.AIAnalysis {
	content := stripFences(raw)

	schema, err := SchemaFor(t)
	if err != nil {
		return unparsable(raw, err)
	}
	if err := validate(schema, content); err != nil {
		slog.Warn("analysis response rejected", "type", t, "error", err)
		return unparsable(raw, err)
	}

	var a model.AIAnalysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		slog.Warn("analysis response rejected", "type", t, "error", err)
		return unparsable(raw, err)
	}
	a.Degraded = false
	a.ErrorKind = ""
	a.Error = ""
	return a
}

func unparsable(raw string, err error) model.AIAnalysis {
	return model.AIAnalysis{
		OverallAccuracy:  0,
		IsFlagged:        true,
		DetailedAnalysis: raw,
		Degraded:         true,
		Error:            err.Error(),
	}
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
