package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"

	fserrors "fission/internal/errors"
	"fission/internal/notes"
	"fission/internal/store"
)

// isTTY reports whether both stdin and stdout are terminals.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return red("Error: not found")
	}
	if errors.Is(err, notes.ErrTitleRequired) || errors.Is(err, notes.ErrContentRequired) {
		return red("Error: " + err.Error())
	}
	return red("Error: " + fserrors.FormatForUser(err))
}

func noticeText(level notes.NoticeLevel, msg string) string {
	switch level {
	case notes.NoticeHard:
		return red(msg)
	case notes.NoticeSoft:
		return yellow(msg)
	default:
		return msg
	}
}

func checkbox(done bool) string {
	if done {
		return green("[x]")
	}
	return "[ ]"
}

func formatTask(t store.Task) string {
	content := t.Content
	if t.Done {
		content = gray(content)
	}
	return fmt.Sprintf("  %s %s %s", gray(fmt.Sprintf("#%d", t.ID)), checkbox(t.Done), content)
}

func formatMeeting(m store.Meeting) string {
	return fmt.Sprintf("%s %s %s", cyan(fmt.Sprintf("%4d", m.ID)), bold(m.Title), gray(m.CreatedAt.Local().Format("2006-01-02 15:04")))
}

// renderMarkdown styles text for the terminal. Plain output is returned
// unchanged when stdout is not a TTY or the renderer fails.
func renderMarkdown(content string) string {
	if !isTTY() || strings.TrimSpace(content) == "" {
		return content
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w-4, 120)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
