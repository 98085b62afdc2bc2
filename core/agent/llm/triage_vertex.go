package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/httputil"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	maxErrorBody       = 4096
)

type VertexConfig struct {
	ProjectID   string
	Location    string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// Endpoint overrides the generateContent URL (tests, private endpoints).
	Endpoint string
	// TokenSource overrides application default credentials.
	TokenSource oauth2.TokenSource
	// HTTPClient, when set, is used as is and must handle auth itself.
	HTTPClient *http.Client
}

// VertexClassifier calls Gemini generateContent on Vertex AI.
type VertexClassifier struct {
	httpClient  *http.Client
	endpoint    string
	maxTokens   int
	temperature float64
	breaker     *resilience.Breaker
}

func NewVertexClassifier(ctx context.Context, cfg VertexConfig) (*VertexClassifier, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.ProjectID == "" || cfg.Location == "" || cfg.Model == "" {
			return nil, apperr.ConfigError("vertex project, location and model are required")
		}
		endpoint = fmt.Sprintf(
			"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			cfg.Location, cfg.ProjectID, cfg.Location, cfg.Model)
	}

	client := cfg.HTTPClient
	if client == nil {
		ts := cfg.TokenSource
		if ts == nil {
			var err error
			ts, err = google.DefaultTokenSource(ctx, cloudPlatformScope)
			if err != nil {
				return nil, apperr.ConfigError("no Google application default credentials for vertex").WithError(err)
			}
		}
		base := httputil.NewOptimizedClient(httputil.LLMClientConfig(cfg.Timeout))
		client = &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
			Timeout:   base.Timeout,
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	return &VertexClassifier{
		httpClient:  client,
		endpoint:    endpoint,
		maxTokens:   maxTokens,
		temperature: temperature,
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerConfig("vertex")),
	}, nil
}

func (c *VertexClassifier) Name() string { return "vertex" }

type vertexPart struct {
	Text string `json:"text"`
}

type vertexContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []vertexPart `json:"parts"`
}

type vertexGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type vertexSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type vertexRequest struct {
	Contents         []vertexContent        `json:"contents"`
	GenerationConfig vertexGenerationConfig `json:"generationConfig"`
	SafetySettings   []vertexSafetySetting  `json:"safetySettings,omitempty"`
}

type vertexResponse struct {
	Candidates []struct {
		Content      vertexContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Newsletters and marketing trip the default safety filters surprisingly
// often; only block high-probability harm.
var defaultSafetySettings = []vertexSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

// Classify requests application/json output and returns candidate texts as is.
func (c *VertexClassifier) Classify(ctx context.Context, prompt string) (*domain.RawResponse, error) {
	payload, err := json.Marshal(vertexRequest{
		Contents: []vertexContent{{Role: "user", Parts: []vertexPart{{Text: prompt}}}},
		GenerationConfig: vertexGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      c.temperature,
			MaxOutputTokens:  c.maxTokens,
		},
		SafetySettings: defaultSafetySettings,
	})
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	start := time.Now()
	var body []byte
	err = c.breaker.Execute(func() error {
		var callErr error
		body, callErr = c.post(ctx, payload)
		return callErr
	}, func(err error) bool {
		appErr := apperr.AsAppError(err)
		status, _ := appErr.Details["status"].(int)
		return isClientStatus(status)
	})
	if err != nil {
		metrics.RecordClassify(c.Name(), "error", time.Since(start))
		if resilience.IsRejected(err) {
			return nil, apperr.Transport("vertex", 0, "circuit breaker open", err)
		}
		return nil, err
	}
	metrics.RecordClassify(c.Name(), "ok", time.Since(start))

	var resp vertexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Transport("vertex", http.StatusOK, truncate(string(body)), err)
	}

	raw := &domain.RawResponse{Model: resp.ModelVersion}
	for _, cand := range resp.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			raw.Candidates = append(raw.Candidates, sb.String())
		}
	}
	if len(resp.Candidates) > 0 {
		raw.FinishReason = resp.Candidates[0].FinishReason
	}
	return raw, nil
}

func (c *VertexClassifier) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Transport("vertex", 0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport("vertex", 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transport("vertex", resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Transport("vertex", resp.StatusCode, truncate(string(body)), nil)
	}
	return body, nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody]
}

var _ out.ClassificationService = (*VertexClassifier)(nil)
