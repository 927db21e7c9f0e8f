package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func sampleRecords(title string, date time.Time) (*Meeting, *Transcript, *Summary) {
	m := &Meeting{
		Title:         title,
		Date:          date,
		Duration:      125,
		AudioFilePath: ptr("/tmp/meeting_1.wav"),
		Language:      ptr("en"),
	}
	t := &Transcript{
		FullText: "we agreed to ship the release on friday",
		Segments: []Segment{
			{ID: uuid.New(), Offset: 0, Text: "we agreed", Confidence: ptr(0.91)},
			{ID: uuid.New(), Offset: 3.5, Text: "to ship the release on friday"},
		},
	}
	s := &Summary{
		Title:     title,
		KeyPoints: []string{"release on friday"},
		Decisions: []Decision{{ID: uuid.New(), Text: "ship friday", Timestamp: ptr("00:03")}},
		ActionItems: []ActionItem{
			{ID: uuid.New(), Task: "tag the release", Assignee: ptr("sam")},
		},
		NextSteps: []string{"announce"},
		Model:     "llama3.2",
	}
	return m, t, s
}

func TestCommitMeetingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	date := time.Unix(1700000000, 0)
	m, tr, sum := sampleRecords("Release sync", date)
	require.NoError(t, s.CommitMeeting(ctx, m, tr, sum))

	require.NotZero(t, m.ID)
	assert.Equal(t, m.ID, tr.MeetingID)
	assert.Equal(t, m.ID, sum.MeetingID)
	assert.NotZero(t, tr.ID)
	assert.NotZero(t, sum.ID)

	got, err := s.FetchMeeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Release sync", got.Title)
	assert.True(t, got.Date.Equal(date))
	assert.Equal(t, 125, got.Duration)
	assert.Equal(t, "2:05", got.FormattedDuration())
	require.NotNil(t, got.AudioFilePath)
	assert.Equal(t, "/tmp/meeting_1.wav", *got.AudioFilePath)
	require.NotNil(t, got.Language)
	assert.Equal(t, "en", *got.Language)

	gotTranscript, err := s.FetchTranscript(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.FullText, gotTranscript.FullText)
	assert.Equal(t, tr.Segments, gotTranscript.Segments)

	gotSummary, err := s.FetchSummary(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, sum.KeyPoints, gotSummary.KeyPoints)
	assert.Equal(t, sum.Decisions, gotSummary.Decisions)
	assert.Equal(t, sum.ActionItems, gotSummary.ActionItems)
	assert.Equal(t, sum.NextSteps, gotSummary.NextSteps)
	assert.Equal(t, "llama3.2", gotSummary.Model)
}

func TestCommitMeetingRollsBackInvalidTranscript(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m, tr, sum := sampleRecords("Broken", time.Unix(1700000000, 0))
	tr.Segments[1].Offset = -1

	err := s.CommitMeeting(ctx, m, tr, sum)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Zero(t, m.ID)
	assert.Zero(t, tr.MeetingID)

	all, err := s.FetchAllMeetings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitMeetingRollsBackOnSummaryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meetings").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO transcripts").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO summaries").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := New(db)
	m, tr, sum := sampleRecords("Doomed", time.Unix(1700000000, 0))

	err = s.CommitMeeting(context.Background(), m, tr, sum)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, m.ID)
	assert.Zero(t, tr.ID)
	assert.Zero(t, sum.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitMeetingCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meetings").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO transcripts").WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO summaries").WithArgs(int64(7), "Fine", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "llama3.2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	s := New(db)
	m, tr, sum := sampleRecords("Fine", time.Unix(1700000000, 0))
	require.NoError(t, s.CommitMeeting(context.Background(), m, tr, sum))

	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, int64(3), tr.ID)
	assert.Equal(t, int64(4), sum.ID)
	assert.Equal(t, int64(7), sum.MeetingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMeetingOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m := &Meeting{Title: "Standup", Date: time.Unix(1700000000, 0)}
	id, err := s.SaveMeeting(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)

	_, err = s.SaveMeeting(ctx, m)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.SaveMeeting(ctx, &Meeting{Title: "Negative", Duration: -1})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSaveChildrenRequireMeeting(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.ErrorIs(t, s.SaveTranscript(ctx, &Transcript{FullText: "orphan"}), ErrInvalid)
	assert.ErrorIs(t, s.SaveSummary(ctx, &Summary{Title: "orphan"}), ErrInvalid)

	m := &Meeting{Title: "Parent", Date: time.Unix(1700000000, 0)}
	_, err := s.SaveMeeting(ctx, m)
	require.NoError(t, err)

	tr := &Transcript{MeetingID: m.ID, FullText: "hello"}
	require.NoError(t, s.SaveTranscript(ctx, tr))
	assert.NotZero(t, tr.ID)

	sum := &Summary{MeetingID: m.ID, Title: "Parent", Model: "llama3.2"}
	require.NoError(t, s.SaveSummary(ctx, sum))

	got, err := s.FetchSummary(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.KeyPoints)
	assert.NotNil(t, got.Decisions)

	// A meeting holds at most one transcript.
	err = s.SaveTranscript(ctx, &Transcript{MeetingID: m.ID, FullText: "again"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestDeleteMeetingCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m, tr, sum := sampleRecords("Gone soon", time.Unix(1700000000, 0))
	require.NoError(t, s.CommitMeeting(ctx, m, tr, sum))
	keep, keepTr, keepSum := sampleRecords("Still here", time.Unix(1700003600, 0))
	require.NoError(t, s.CommitMeeting(ctx, keep, keepTr, keepSum))

	require.NoError(t, s.DeleteMeeting(ctx, m.ID))

	_, err := s.FetchMeeting(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FetchTranscript(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FetchSummary(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteMeeting(ctx, m.ID), ErrNotFound)

	got, err := s.FetchMeeting(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, "Still here", got.Title)
	gotTr, err := s.FetchTranscript(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, keepTr.ID, gotTr.ID)
	assert.Len(t, gotTr.Segments, 2)
	gotSum, err := s.FetchSummary(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, keepSum.ID, gotSum.ID)
	assert.Equal(t, keepSum.NextSteps, gotSum.NextSteps)

	var transcripts, summaries int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&transcripts))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&summaries))
	assert.Equal(t, 1, transcripts)
	assert.Equal(t, 1, summaries)
}

func TestCorruptBlobReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	m, tr, sum := sampleRecords("Corrupt", time.Unix(1700000000, 0))
	require.NoError(t, s.CommitMeeting(ctx, m, tr, sum))

	_, err := s.db.ExecContext(ctx, `UPDATE transcripts SET segments = ? WHERE meeting_id = ?`, []byte("{not json"), m.ID)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`UPDATE summaries SET decisions = ?, key_points = NULL, action_items = ?, next_steps = ? WHERE meeting_id = ?`,
		[]byte("\x00\x01"), []byte(`{"task":`), []byte(`[1, 2`), m.ID)
	require.NoError(t, err)

	gotTranscript, err := s.FetchTranscript(ctx, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, gotTranscript.Segments)
	assert.Empty(t, gotTranscript.Segments)
	assert.Equal(t, tr.FullText, gotTranscript.FullText)

	gotSummary, err := s.FetchSummary(ctx, m.ID)
	require.NoError(t, err)
	for name, got := range map[string]int{
		"key_points":   len(gotSummary.KeyPoints),
		"decisions":    len(gotSummary.Decisions),
		"action_items": len(gotSummary.ActionItems),
		"next_steps":   len(gotSummary.NextSteps),
	} {
		assert.Zero(t, got, name)
	}
	assert.NotNil(t, gotSummary.Decisions)
	assert.NotNil(t, gotSummary.ActionItems)
	assert.NotNil(t, gotSummary.NextSteps)
	assert.Equal(t, sum.Title, gotSummary.Title)
}

func TestFetchRecentMeetings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 6; i++ {
		_, err := s.SaveMeeting(ctx, &Meeting{
			Title: fmt.Sprintf("Meeting %d", i),
			Date:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recent, err := s.FetchRecentMeetings(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "Meeting 5", recent[0].Title)
	assert.Equal(t, "Meeting 1", recent[4].Title)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].Date.After(recent[i-1].Date))
	}

	all, err := s.FetchAllMeetings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestSearchMeetings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	older, olderT, olderS := sampleRecords("Budget review", time.Unix(1700000000, 0))
	olderT.FullText = "the Roadmap slipped a week"
	require.NoError(t, s.CommitMeeting(ctx, older, olderT, olderS))

	newer, newerT, newerS := sampleRecords("Roadmap planning", time.Unix(1700086400, 0))
	newerT.FullText = "roadmap roadmap roadmap"
	require.NoError(t, s.CommitMeeting(ctx, newer, newerT, newerS))

	_, err := s.SaveMeeting(ctx, &Meeting{Title: "100% done_ok", Date: time.Unix(1699000000, 0)})
	require.NoError(t, err)

	found, err := s.SearchMeetings(ctx, "ROADMAP")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, newer.ID, found[0].ID)
	assert.Equal(t, older.ID, found[1].ID)

	found, err = s.SearchMeetings(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100% done_ok", found[0].Title)

	found, err = s.SearchMeetings(ctx, "%")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = s.SearchMeetings(ctx, "e_o")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = s.SearchMeetings(ctx, "nothing like this")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestTranscriptValidate(t *testing.T) {
	ok := Transcript{Segments: []Segment{{Offset: 0}, {Offset: 0}, {Offset: 2, Confidence: ptr(1.0)}}}
	assert.NoError(t, ok.Validate())

	outOfOrder := Transcript{Segments: []Segment{{Offset: 5}, {Offset: 2}}}
	assert.ErrorIs(t, outOfOrder.Validate(), ErrInvalid)

	badConfidence := Transcript{Segments: []Segment{{Offset: 0, Confidence: ptr(1.2)}}}
	assert.ErrorIs(t, badConfidence.Validate(), ErrInvalid)
}

func TestSegmentTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", Segment{Offset: 0}.Timestamp())
	assert.Equal(t, "02:05", Segment{Offset: 125.9}.Timestamp())
	assert.Equal(t, "01:02:05", Segment{Offset: 3725}.Timestamp())
}

func TestSummaryMarkdown(t *testing.T) {
	sum := Summary{
		Title:     "Release sync",
		KeyPoints: []string{"ship friday"},
		Decisions: []Decision{{Text: "freeze main", Timestamp: ptr("02:10")}, {Text: "no hotfixes"}},
		ActionItems: []ActionItem{
			{Task: "tag release", Assignee: ptr("sam"), DueDate: ptr("2024-05-03")},
			{Task: "write notes", Completed: true},
		},
	}

	want := "# Release sync\n\n## Executive Summary\n\n" +
		"- ship friday\n" +
		"\n## Key Decisions\n\n" +
		"- freeze main [Timestamp: 02:10]\n" +
		"- no hotfixes\n" +
		"\n## Action Items\n\n" +
		"- [ ] tag release - Assigned to: sam - Due: 2024-05-03\n" +
		"- [x] write notes\n"
	assert.Equal(t, want, sum.Markdown())
}
