package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/codeinspire/inspire/internal/domain/candidate"
	"github.com/codeinspire/inspire/internal/domain/insight"
	"github.com/codeinspire/inspire/internal/metrics"
)

const (
	defaultSummaryMaxTokens = 700
	contextReadmeLimit      = 3000
)

const summarizerSystemPrompt = "You are a senior engineer who analyzes " +
	"repositories and explains what a developer can learn from them. " +
	"Respond with a single JSON object with keys: summary (string, 2-3 sentences), " +
	"key_features (array of 3-5 strings), learning_insights (array of 3-5 strings), " +
	"implementation_tips (array of 3-5 strings). No other text."

// Summarizer generates learning insights for a candidate via chat completion.
type Summarizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// SummarizerConfig holds summarization provider settings.
type SummarizerConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewSummarizer creates an insight provider on the OpenAI chat API.
func NewSummarizer(cfg *SummarizerConfig) *Summarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultSummaryMaxTokens
	}

	return &Summarizer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// Summarize generates prose insights for one candidate. Errors here are
// per-candidate: the caller degrades the single result, never the request.
func (s *Summarizer) Summarize(ctx context.Context, c *candidate.Candidate) (insight.Insight, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildContext(c)},
		},
	})
	if err != nil {
		metrics.InsightRequestsTotal.WithLabelValues(s.model, "degraded").Inc()
		return insight.Insight{}, fmt.Errorf("chat completion for %s: %w", c.FullName(), err)
	}
	if len(resp.Choices) == 0 {
		metrics.InsightRequestsTotal.WithLabelValues(s.model, "degraded").Inc()
		return insight.Insight{}, fmt.Errorf("empty completion for %s", c.FullName())
	}

	ins, err := parseInsight(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.InsightRequestsTotal.WithLabelValues(s.model, "degraded").Inc()
		return insight.Insight{}, fmt.Errorf("parse insight for %s: %w", c.FullName(), err)
	}

	metrics.InsightRequestsTotal.WithLabelValues(s.model, "success").Inc()
	s.logger.Debug("Insight generated",
		zap.String("repo", c.FullName()),
		zap.Duration("latency", time.Since(start)),
	)
	return ins, nil
}

// buildContext formats the candidate metadata and readme excerpt the model
// analyzes.
func buildContext(c *candidate.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", c.FullName())
	desc := c.Description()
	if desc == "" {
		desc = "No description"
	}
	fmt.Fprintf(&b, "Description: %s\n", desc)
	lang := c.Language()
	if lang == "" {
		lang = "Unknown"
	}
	fmt.Fprintf(&b, "Language: %s\n", lang)
	fmt.Fprintf(&b, "Stars: %d\n", c.Stars())
	if !c.CreatedAt().IsZero() {
		fmt.Fprintf(&b, "Created: %s\n", c.CreatedAt().Format("2006-01-02"))
	}
	if !c.UpdatedAt().IsZero() {
		fmt.Fprintf(&b, "Last updated: %s\n", c.UpdatedAt().Format("2006-01-02"))
	}
	if readme := c.ReadmeExcerpt(); readme != "" {
		if len(readme) > contextReadmeLimit {
			// Back up to a rune boundary so the prompt never carries a
			// split multi-byte character.
			cut := contextReadmeLimit
			for cut > 0 && !utf8.RuneStart(readme[cut]) {
				cut--
			}
			readme = readme[:cut]
		}
		fmt.Fprintf(&b, "README preview:\n%s\n", readme)
	}
	return b.String()
}

// parseInsight decodes the model's JSON reply, tolerating markdown fences.
func parseInsight(content string) (insight.Insight, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var parsed struct {
		Summary            string   `json:"summary"`
		KeyFeatures        []string `json:"key_features"`
		LearningInsights   []string `json:"learning_insights"`
		ImplementationTips []string `json:"implementation_tips"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return insight.Insight{}, fmt.Errorf("decode insight json: %w", err)
	}
	if parsed.Summary == "" {
		return insight.Insight{}, fmt.Errorf("insight json has no summary")
	}

	return insight.New(
		parsed.Summary,
		parsed.KeyFeatures,
		parsed.LearningInsights,
		parsed.ImplementationTips,
	), nil
}
