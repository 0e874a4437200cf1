package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func newModelCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and download the local weights",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show where the weights live and whether they are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			st := app.Notes.ModelStatus()
			if cli.jsonOutput {
				return cli.printJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold("Weights:"), st.Path)
			if st.Present {
				size := ""
				if info, err := os.Stat(st.Path); err == nil {
					size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
				}
				fmt.Fprintf(out, "%s %s%s\n", bold("Status: "), green("present"), size)
			} else {
				fmt.Fprintf(out, "%s %s\n", bold("Status: "), yellow("missing, run `fission model pull`"))
			}
			fmt.Fprintf(out, "%s %s (%s)\n", bold("Backend:"), app.Config.LLM.Provider, app.Config.LLM.BaseURL)
			return nil
		},
	}

	var yes bool
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Copy or download the weights and verify them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cli.app()
			if err != nil {
				return err
			}
			st := app.Notes.ModelStatus()
			if !st.Present && !yes && isTTY() {
				ok, err := confirm(fmt.Sprintf("Fetch %s from %s", app.Config.Model.File, app.Config.Model.Repo))
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("download cancelled")
				}
			}

			progress := newProgressPrinter(cmd.ErrOrStderr(), !cli.jsonOutput)
			handle, err := app.Notes.PrepareModel(commandContext(cmd), progress.status, progress.progress)
			progress.finish()
			if err != nil {
				return err
			}
			if cli.jsonOutput {
				return cli.printJSON(cmd, handle)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s)\n", green("Ready:"), handle.Path, humanize.Bytes(uint64(handle.Size)), handle.Source)
			return nil
		},
	}
	pull.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask before downloading")

	cmd.AddCommand(status, pull)
	return cmd
}

func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// progressPrinter redraws a single status line while weights are fetched.
type progressPrinter struct {
	out     io.Writer
	enabled bool
	drawn   bool
}

func newProgressPrinter(out io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{out: out, enabled: enabled}
}

func (p *progressPrinter) status(msg string) {
	if !p.enabled {
		return
	}
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
	fmt.Fprintln(p.out, gray(msg))
}

func (p *progressPrinter) progress(fraction float64) {
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.out, "\r%s %5.1f%%", cyan(progressBar(fraction, 30)), fraction*100)
	p.drawn = true
}

func (p *progressPrinter) finish() {
	if p.enabled && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func progressBar(fraction float64, width int) string {
	fraction = max(0, min(fraction, 1))
	filled := int(fraction * float64(width))
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return "[" + string(bar) + "]"
}
