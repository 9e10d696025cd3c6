// Package llm analyzes DAG failures with the Anthropic API, turning raw
// failure counts into categorized findings and suggested actions for the
// scheduled reports.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/models"
)

// ErrDisabled is returned when no API key is configured. Reports degrade
// to counts-only rather than failing.
var ErrDisabled = errors.New("llm analysis disabled: no api key configured")

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 2048
)

const systemPrompt = `You are an Airflow operations assistant. You receive a JSON list of failing DAGs from a health dashboard and respond with a failure analysis.

Respond with ONLY a JSON object, no prose and no markdown fences, with this shape:
{
  "summary": "one paragraph overview",
  "categories": [{"name": "...", "count": 0, "dag_ids": ["..."], "description": "..."}],
  "action_items": [{"priority": "high|medium|low", "title": "...", "description": "...", "affected_dags": ["..."]}]
}

Group failures that likely share a cause into one category. Order action items by priority.`

// Config holds the Anthropic API settings.
type Config struct {
	APIKey    string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model     string `env:"LLM_MODEL"         yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// DagFailure is one failing DAG presented to the model.
type DagFailure struct {
	Domain       string          `json:"domain"`
	DagID        string          `json:"dag_id"`
	FailedCount  int             `json:"failed_count"`
	TotalRuns    int             `json:"total_runs"`
	LastRunState models.RunState `json:"last_run_state,omitempty"`
}

// Analyzer wraps the Anthropic client. A zero API key produces a
// disabled analyzer whose AnalyzeFailures returns ErrDisabled.
type Analyzer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	enabled   bool
	log       logger.Logger
}

// NewAnalyzer creates a failure analyzer from config.
func NewAnalyzer(cfg Config, log logger.Logger) *Analyzer {
	a := &Analyzer{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		enabled:   cfg.APIKey != "",
		log:       log,
	}
	if a.model == "" {
		a.model = defaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.enabled {
		a.client = anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	}
	return a
}

// Enabled reports whether an API key is configured.
func (a *Analyzer) Enabled() bool {
	return a.enabled
}

// AnalyzeFailures asks the model to categorize the failing DAGs and
// propose actions. An empty failure list yields an all-clear analysis
// without an API call.
func (a *Analyzer) AnalyzeFailures(ctx context.Context, failures []DagFailure) (*models.FailureAnalysis, error) {
	if !a.enabled {
		return nil, ErrDisabled
	}
	if len(failures) == 0 {
		return &models.FailureAnalysis{Summary: "No failing DAGs in this window."}, nil
	}

	payload, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("encode failures: %w", err)
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
		},
		Temperature: anthropic.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	analysis, err := parseAnalysis(text.String())
	if err != nil {
		return nil, err
	}

	a.log.Debug("Failure analysis completed",
		logger.Int("failures", len(failures)),
		logger.Int("categories", len(analysis.Categories)),
	)
	return analysis, nil
}

// parseAnalysis decodes the model output, tolerating markdown fences
// despite the prompt asking for bare JSON.
func parseAnalysis(text string) (*models.FailureAnalysis, error) {
	text = strings.TrimSpace(text)
	if after, found := strings.CutPrefix(text, "```json"); found {
		text = after
	} else if after, found := strings.CutPrefix(text, "```"); found {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var analysis models.FailureAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return &analysis, nil
}
