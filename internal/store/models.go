package store

import "time"

// Meeting is a recorded note ("pill") that owns a set of tasks.
type Meeting struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is one action item belonging to a meeting.
type Task struct {
	ID        int64  `json:"id"`
	MeetingID int64  `json:"meeting_id"`
	Content   string `json:"content"`
	Done      bool   `json:"done"`
}

// Contents returns the task texts in order.
func Contents(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Content)
	}
	return out
}

// SettingSummaryStyle holds the preferred summary style.
const SettingSummaryStyle = "summary_style"
