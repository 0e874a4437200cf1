package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fission/internal/store"
	"fission/internal/summary"
)

func newRecordCommand(cli *CLI) *cobra.Command {
	var title, transcript, file string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Save a transcript as a meeting and extract its action items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := transcriptInput(cmd, transcript, file)
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			outcome, err := app.Notes.SaveRecording(commandContext(cmd), title, text)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, outcome)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, formatMeeting(outcome.Meeting))
			if outcome.Notice != "" {
				fmt.Fprintln(out, noticeText(outcome.NoticeLevel, outcome.Notice))
			}
			for _, t := range outcome.Tasks {
				fmt.Fprintln(out, formatTask(t))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Meeting title (required)")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Transcript text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the transcript from a file, or - for stdin")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newExtractCommand(cli *CLI) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "extract [text...]",
		Short: "Extract action items without saving anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := transcriptInput(cmd, strings.Join(args, " "), file)
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			res := app.Notes.ExtractPreview(commandContext(cmd), text)
			if cli.jsonOutput {
				payload := map[string]any{"status": res.Status, "items": res.Items}
				if res.Err != nil {
					payload["error"] = res.Err.Error()
				}
				return cli.printJSON(cmd, payload)
			}
			if !res.OK() {
				return fmt.Errorf("extraction %s: %w", res.Status, res.Err)
			}
			out := cmd.OutOrStdout()
			if len(res.Items) == 0 {
				fmt.Fprintln(out, gray("No action items."))
			}
			for _, item := range res.Items {
				fmt.Fprintf(out, "  - %s\n", item)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the transcript from a file, or - for stdin")
	return cmd
}

func newSummaryCommand(cli *CLI) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "summary <meeting-id>",
		Short: "Summarise a meeting in the chosen style",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			outcome, err := app.Notes.Summarize(commandContext(cmd), id, style)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, outcome)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderMarkdown(outcome.Text))
			if outcome.Source == summary.SourceFallback {
				fmt.Fprintln(out, gray("(model unavailable, showing the task list)"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "formal, casual, friend or simple (default: saved preference)")
	return cmd
}

func newMeetingsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "meetings",
		Aliases: []string{"meeting", "m"},
		Short:   "List, rename and delete meetings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			meetings, err := app.Notes.Meetings(commandContext(cmd))
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, meetings)
			}
			out := cmd.OutOrStdout()
			if len(meetings) == 0 {
				fmt.Fprintln(out, gray("No meetings yet."))
			}
			for _, m := range meetings {
				fmt.Fprintln(out, formatMeeting(m))
			}
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename <meeting-id> <title>",
		Short: "Change a meeting title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.RenameMeeting(commandContext(cmd), id, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			return cli.done(cmd, "Renamed meeting %d", id)
		},
	}

	del := &cobra.Command{
		Use:   "delete <meeting-id>",
		Short: "Delete a meeting and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.DeleteMeeting(commandContext(cmd), id); err != nil {
				return err
			}
			return cli.done(cmd, "Deleted meeting %d", id)
		},
	}

	cmd.AddCommand(list, rename, del)
	return cmd
}

func newTasksCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage the action items of a meeting",
	}

	list := &cobra.Command{
		Use:   "list <meeting-id>",
		Short: "List a meeting's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			tasks, err := app.Notes.Tasks(commandContext(cmd), id)
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, tasks)
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, gray("No tasks."))
			}
			for _, t := range tasks {
				fmt.Fprintln(out, formatTask(t))
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <meeting-id> <content>",
		Short: "Add a task to a meeting",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			task, err := app.Notes.AddTask(commandContext(cmd), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, task)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTask(*task))
			return nil
		},
	}

	edit := &cobra.Command{
		Use:   "edit <task-id> <content>",
		Short: "Replace a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.EditTask(commandContext(cmd), id, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			return cli.done(cmd, "Updated task %d", id)
		},
	}

	var undo bool
	done := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.SetTaskDone(commandContext(cmd), id, !undo); err != nil {
				return err
			}
			if undo {
				return cli.done(cmd, "Reopened task %d", id)
			}
			return cli.done(cmd, "Completed task %d", id)
		},
	}
	done.Flags().BoolVar(&undo, "undo", false, "Mark the task as not done")

	del := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.DeleteTask(commandContext(cmd), id); err != nil {
				return err
			}
			return cli.done(cmd, "Deleted task %d", id)
		},
	}

	cmd.AddCommand(list, add, edit, done, del)
	return cmd
}

func newSettingsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write stored preferences",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			value, ok, err := app.Notes.Setting(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("setting %q: %w", args[0], store.ErrNotFound)
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, map[string]string{"key": args[0], "value": value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a preference (summary_style accepts formal, casual, friend, simple)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			if err := app.Notes.SetSetting(commandContext(cmd), args[0], args[1]); err != nil {
				return err
			}
			value, _, err := app.Notes.Setting(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return cli.done(cmd, "%s = %s", args[0], value)
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

// done prints a confirmation line, or {"ok":true} in JSON mode.
func (c *CLI) done(cmd *cobra.Command, format string, args ...any) error {
	if c.jsonOutput {
		return c.printJSON(cmd, map[string]bool{"ok": true})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), green(fmt.Sprintf(format, args...)))
	return err
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// transcriptInput prefers file ("-" reads stdin) over inline text.
func transcriptInput(cmd *cobra.Command, inline, file string) (string, error) {
	switch file {
	case "":
		return inline, nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		return string(data), nil
	}
}
