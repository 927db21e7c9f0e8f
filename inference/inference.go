// Package inference holds the clients for the local transcription and
// summarization services.
package inference

import (
	"context"
	"errors"
)

// ErrInference wraps every transport or service failure.
var ErrInference = errors.New("inference failed")

// Segment is one timed span of a transcription.
type Segment struct {
	Offset     float64
	End        float64
	Text       string
	Confidence *float64
}

// Transcription is the result of transcribing one audio file.
type Transcription struct {
	Text     string
	Language string
	Segments []Segment
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Transcription, error)
}

type Decision struct {
	Text      string  `json:"text"`
	Timestamp *string `json:"timestamp,omitempty"`
}

type ActionItem struct {
	Task      string  `json:"task"`
	Assignee  *string `json:"assignee,omitempty"`
	DueDate   *string `json:"dueDate,omitempty"`
	Completed bool    `json:"completed"`
}

// MeetingSummary is the structured summary returned by the model.
type MeetingSummary struct {
	Title       string       `json:"title"`
	KeyPoints   []string     `json:"keyPoints"`
	Decisions   []Decision   `json:"decisions"`
	ActionItems []ActionItem `json:"actionItems"`
	NextSteps   []string     `json:"nextSteps"`
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (MeetingSummary, error)
	// Model names the model recorded on each summary.
	Model() string
}
