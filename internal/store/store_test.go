package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "fission.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMeetingCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	meetings, err := s.Meetings(ctx)
	require.NoError(t, err)
	assert.Empty(t, meetings)

	first, err := s.AddMeeting(ctx, "Standup")
	require.NoError(t, err)
	second, err := s.AddMeeting(ctx, "Retro")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	meetings, err = s.Meetings(ctx)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.Equal(t, "Standup", meetings[0].Title)
	assert.Equal(t, "Retro", meetings[1].Title)
	assert.True(t, fixed.Equal(meetings[0].CreatedAt), "created_at round-trips")

	require.NoError(t, s.UpdateMeeting(ctx, first, "Daily standup"))
	m, err := s.Meeting(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Daily standup", m.Title)

	assert.ErrorIs(t, s.UpdateMeeting(ctx, 999, "x"), ErrNotFound)
	_, err = s.Meeting(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMeetingCascadesToTasks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	keep, err := s.AddMeeting(ctx, "Keep")
	require.NoError(t, err)
	drop, err := s.AddMeeting(ctx, "Drop")
	require.NoError(t, err)

	_, err = s.AddTask(ctx, keep, "stay")
	require.NoError(t, err)
	orphan, err := s.AddTask(ctx, drop, "go away")
	require.NoError(t, err)
	_, err = s.AddTask(ctx, drop, "also go")
	require.NoError(t, err)

	require.NoError(t, s.DeleteMeeting(ctx, drop))

	_, err = s.Meeting(ctx, drop)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Task(ctx, orphan)
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := s.TasksForMeeting(ctx, keep)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "stay", tasks[0].Content)

	assert.ErrorIs(t, s.DeleteMeeting(ctx, drop), ErrNotFound)
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	meetingID, err := s.AddMeeting(ctx, "Planning")
	require.NoError(t, err)

	a, err := s.AddTask(ctx, meetingID, "Buy milk")
	require.NoError(t, err)
	b, err := s.AddTask(ctx, meetingID, "Call John")
	require.NoError(t, err)

	tasks, err := s.TasksForMeeting(ctx, meetingID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Call John"}, Contents(tasks))
	assert.False(t, tasks[0].Done)
	assert.Equal(t, meetingID, tasks[0].MeetingID)

	require.NoError(t, s.UpdateTask(ctx, a, "Buy oat milk"))
	require.NoError(t, s.SetTaskDone(ctx, b, true))

	got, err := s.Task(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", got.Content)
	got, err = s.Task(ctx, b)
	require.NoError(t, err)
	assert.True(t, got.Done)

	require.NoError(t, s.SetTaskDone(ctx, b, false))
	got, err = s.Task(ctx, b)
	require.NoError(t, err)
	assert.False(t, got.Done)

	require.NoError(t, s.DeleteTask(ctx, a))
	assert.ErrorIs(t, s.DeleteTask(ctx, a), ErrNotFound)
	assert.ErrorIs(t, s.UpdateTask(ctx, a, "x"), ErrNotFound)
	assert.ErrorIs(t, s.SetTaskDone(ctx, a, true), ErrNotFound)

	tasks, err = s.TasksForMeeting(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestAddTasksIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	meetingID, err := s.AddMeeting(ctx, "Planning")
	require.NoError(t, err)

	ids, err := s.AddTasks(ctx, meetingID, []string{"Buy milk", "Call John"})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	ids, err = s.AddTasks(ctx, meetingID, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = s.db.ExecContext(ctx, `CREATE TRIGGER reject_task BEFORE INSERT ON tasks
		WHEN NEW.content = 'reject' BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	require.NoError(t, err)

	_, err = s.AddTasks(ctx, meetingID, []string{"Book room", "reject", "Send invite"})
	require.Error(t, err)

	tasks, err := s.TasksForMeeting(ctx, meetingID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Call John"}, Contents(tasks))
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Setting(ctx, SettingSummaryStyle)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, SettingSummaryStyle, "casual"))
	require.NoError(t, s.SetSetting(ctx, SettingSummaryStyle, "friend"))

	value, ok, err := s.Setting(ctx, SettingSummaryStyle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "friend", value)
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AddMeeting(context.Background(), "ephemeral")
	require.NoError(t, err)
	m, err := s.Meeting(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ephemeral", m.Title)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fission.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.AddMeeting(ctx, "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	m, err := s.Meeting(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "persisted", m.Title)
}
