package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultModel = "llama3.2"
	untitled     = "Untitled Meeting"
)

const systemPrompt = `You summarize meeting transcripts. Reply with a single JSON object:
{"title": string, "keyPoints": [string], "decisions": [{"text": string, "timestamp": string|null}],
"actionItems": [{"task": string, "assignee": string|null, "dueDate": string|null, "completed": false}],
"nextSteps": [string]}
Use only facts from the transcript. Use empty arrays when nothing applies.`

// OllamaClient summarizes through an Ollama server.
type OllamaClient struct {
	client *resty.Client
	model  string
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Model is one locally available model.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if model == "" {
		model = DefaultModel
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &OllamaClient{client: client, model: model}
}

func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) Summarize(ctx context.Context, transcript string) (MeetingSummary, error) {
	req := generateRequest{
		Model:  c.model,
		System: systemPrompt,
		Prompt: "Transcript:\n\n" + transcript,
		Stream: false,
		Format: "json",
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/generate")
	if err != nil {
		return MeetingSummary{}, fmt.Errorf("%w: failed to reach summarization service: %v", ErrInference, err)
	}
	if resp.IsError() {
		return MeetingSummary{}, fmt.Errorf("%w: summarization service returned %d: %s", ErrInference, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return MeetingSummary{}, fmt.Errorf("%w: failed to decode generate response: %v", ErrInference, err)
	}

	summary, err := parseSummary(out.Response)
	if err != nil {
		return MeetingSummary{}, err
	}

	slog.Debug("Summary generated", "model", c.model, "title", summary.Title, "actionItems", len(summary.ActionItems))
	return summary, nil
}

// ListModels returns the models the server has pulled.
func (c *OllamaClient) ListModels(ctx context.Context) ([]Model, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list models: %v", ErrInference, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: model listing returned %d", ErrInference, resp.StatusCode())
	}

	var out tagsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode model list: %v", ErrInference, err)
	}
	return out.Models, nil
}

func parseSummary(raw string) (MeetingSummary, error) {
	raw = strings.TrimSpace(raw)
	// Models sometimes wrap the object in a markdown fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var summary MeetingSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return MeetingSummary{}, fmt.Errorf("%w: model returned invalid summary JSON: %v", ErrInference, err)
	}

	summary.Title = strings.TrimSpace(summary.Title)
	if summary.Title == "" {
		summary.Title = untitled
	}
	if summary.KeyPoints == nil {
		summary.KeyPoints = []string{}
	}
	if summary.Decisions == nil {
		summary.Decisions = []Decision{}
	}
	if summary.ActionItems == nil {
		summary.ActionItems = []ActionItem{}
	}
	if summary.NextSteps == nil {
		summary.NextSteps = []string{}
	}
	return summary, nil
}
