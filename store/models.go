package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/bosley/minutes/capture"
	"github.com/google/uuid"
)

// Meeting is one recorded or imported meeting. ID is zero until the
// meeting has been saved.
type Meeting struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	Duration      int       `json:"duration"`
	AudioFilePath *string   `json:"audioFilePath,omitempty"`
	Language      *string   `json:"language,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FormattedDuration renders Duration as M:SS or H:MM:SS.
func (m Meeting) FormattedDuration() string {
	return capture.FormatDuration(m.Duration)
}

func (m *Meeting) validate() error {
	if m.Duration < 0 {
		return fmt.Errorf("%w: meeting duration %d is negative", ErrInvalid, m.Duration)
	}
	return nil
}

// Segment is a timed span of transcript text. Offset is in seconds from
// the start of the recording.
type Segment struct {
	ID         uuid.UUID `json:"id"`
	Offset     float64   `json:"offset"`
	Text       string    `json:"text"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Timestamp renders Offset as MM:SS, or HH:MM:SS from one hour up.
func (s Segment) Timestamp() string {
	total := int(s.Offset)
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

type Transcript struct {
	ID        int64     `json:"id"`
	MeetingID int64     `json:"meetingId"`
	FullText  string    `json:"fullText"`
	Segments  []Segment `json:"segments"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks that segments are in offset order and that every
// confidence lies in [0,1].
func (t *Transcript) Validate() error {
	var errs []error
	for i, seg := range t.Segments {
		if i > 0 && seg.Offset < t.Segments[i-1].Offset {
			errs = append(errs, fmt.Errorf("segment %d offset %.2f precedes %.2f", i, seg.Offset, t.Segments[i-1].Offset))
		}
		if seg.Confidence != nil && (*seg.Confidence < 0 || *seg.Confidence > 1) {
			errs = append(errs, fmt.Errorf("segment %d confidence %.4f out of range", i, *seg.Confidence))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

type Decision struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Timestamp *string   `json:"timestamp,omitempty"`
}

type ActionItem struct {
	ID        uuid.UUID `json:"id"`
	Task      string    `json:"task"`
	Assignee  *string   `json:"assignee,omitempty"`
	DueDate   *string   `json:"dueDate,omitempty"`
	Completed bool      `json:"completed"`
}

type Summary struct {
	ID          int64        `json:"id"`
	MeetingID   int64        `json:"meetingId"`
	Title       string       `json:"title"`
	KeyPoints   []string     `json:"keyPoints"`
	Decisions   []Decision   `json:"decisions"`
	ActionItems []ActionItem `json:"actionItems"`
	NextSteps   []string     `json:"nextSteps"`
	Model       string       `json:"modelUsed"`
	CreatedAt   time.Time    `json:"createdAt"`
}
