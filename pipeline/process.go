package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/bosley/minutes/capture"
	"github.com/bosley/minutes/inference"
	"github.com/bosley/minutes/store"
	"github.com/google/uuid"
)

// process transcribes, summarizes and stores one recording. Any failure
// leaves the store untouched.
func (o *Orchestrator) process(run *Run) (int64, error) {
	ctx := run.ctx
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	slog.Info("Processing audio file", "run", run.ID, "file", run.Recording.Path)

	transcription, err := o.cfg.Transcriber.Transcribe(ctx, run.Recording.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to transcribe: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	summary, err := o.cfg.Summarizer.Summarize(ctx, transcription.Text)
	if err != nil {
		return 0, fmt.Errorf("failed to summarize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	meeting, transcript, stored := buildRecords(run.Recording, transcription, summary, o.cfg.Summarizer.Model())
	if err := o.cfg.Store.CommitMeeting(ctx, meeting, transcript, stored); err != nil {
		return 0, fmt.Errorf("failed to save meeting: %w", err)
	}

	if err := o.Refresh(ctx); err != nil {
		slog.Warn("Failed to refresh recent meetings", "error", err)
	}

	if o.cfg.Notifier != nil {
		if err := o.cfg.Notifier.Notify(ctx, notificationTitle, stored.Title); err != nil {
			slog.Warn("Failed to send notification", "error", err)
		}
	}

	slog.Info("Meeting processed",
		"run", run.ID,
		"meetingID", meeting.ID,
		"title", meeting.Title,
		"segments", len(transcript.Segments))
	return meeting.ID, nil
}

func buildRecords(rec capture.Recording, t inference.Transcription, s inference.MeetingSummary, model string) (*store.Meeting, *store.Transcript, *store.Summary) {
	path := rec.Path
	meeting := &store.Meeting{
		Title:         s.Title,
		Date:          rec.StartedAt,
		Duration:      rec.Duration,
		AudioFilePath: &path,
	}
	if t.Language != "" {
		language := t.Language
		meeting.Language = &language
	}

	segments := make([]store.Segment, 0, len(t.Segments))
	for _, seg := range t.Segments {
		segments = append(segments, store.Segment{
			ID:         uuid.New(),
			Offset:     seg.Offset,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}
	transcript := &store.Transcript{
		FullText: t.Text,
		Segments: segments,
	}

	decisions := make([]store.Decision, 0, len(s.Decisions))
	for _, d := range s.Decisions {
		decisions = append(decisions, store.Decision{ID: uuid.New(), Text: d.Text, Timestamp: d.Timestamp})
	}
	items := make([]store.ActionItem, 0, len(s.ActionItems))
	for _, a := range s.ActionItems {
		items = append(items, store.ActionItem{
			ID:        uuid.New(),
			Task:      a.Task,
			Assignee:  a.Assignee,
			DueDate:   a.DueDate,
			Completed: a.Completed,
		})
	}
	summary := &store.Summary{
		Title:       s.Title,
		KeyPoints:   s.KeyPoints,
		Decisions:   decisions,
		ActionItems: items,
		NextSteps:   s.NextSteps,
		Model:       model,
	}

	return meeting, transcript, summary
}
