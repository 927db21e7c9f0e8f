package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// WhisperClient talks to a whisper.cpp server.
type WhisperClient struct {
	client   *resty.Client
	language string
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	AvgLogprob *float64 `json:"avg_logprob"`
}

// NewWhisperClient returns a client for baseURL. An empty language lets the
// server detect it.
func NewWhisperClient(baseURL, language string, timeout time.Duration) *WhisperClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return &WhisperClient{client: client, language: language}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	form := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
	}
	if c.language != "" {
		form["language"] = c.language
	}

	slog.Debug("Sending audio for transcription", "file", audioPath)

	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetFormData(form).
		Post("/inference")
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: failed to reach transcription service: %v", ErrInference, err)
	}
	if resp.IsError() {
		return Transcription{}, fmt.Errorf("%w: transcription service returned %d: %s", ErrInference, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var out whisperResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Transcription{}, fmt.Errorf("%w: failed to decode transcription: %v", ErrInference, err)
	}

	t := Transcription{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Segments: make([]Segment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		seg := Segment{
			Offset: s.Start,
			End:    s.End,
			Text:   strings.TrimSpace(s.Text),
		}
		if s.AvgLogprob != nil {
			confidence := confidenceFromLogprob(*s.AvgLogprob)
			seg.Confidence = &confidence
		}
		t.Segments = append(t.Segments, seg)
	}
	sort.SliceStable(t.Segments, func(i, j int) bool {
		return t.Segments[i].Offset < t.Segments[j].Offset
	})

	if t.Text == "" && len(t.Segments) > 0 {
		parts := make([]string, 0, len(t.Segments))
		for _, s := range t.Segments {
			parts = append(parts, s.Text)
		}
		t.Text = strings.Join(parts, " ")
	}

	slog.Debug("Transcription complete", "file", audioPath, "segments", len(t.Segments), "language", t.Language)
	return t, nil
}

func confidenceFromLogprob(logprob float64) float64 {
	c := math.Exp(logprob)
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return math.Round(c*1e4) / 1e4
}
