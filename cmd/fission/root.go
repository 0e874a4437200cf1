package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fission/internal/config"
	"fission/internal/jsonx"
	"fission/internal/logging"
	"fission/internal/observability"
)

// CLI holds the state shared by every subcommand.
type CLI struct {
	configFile string
	verbose    bool
	jsonOutput bool

	cfg       config.Config
	loaded    bool
	container *Container

	// newContainer is swapped in tests.
	newContainer func(config.Config) (*Container, error)
	overrides    []config.Option
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&CLI{newContainer: buildContainer})
}

func newRootCommand(cli *CLI) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fission",
		Short: "Turn voice notes into action items with a local model",
		Long: fmt.Sprintf(`%s

Fission stores meeting transcripts, extracts their action items with a small
on-device model served by llama.cpp and writes short summaries in one of
four registers.

%s
  fission record -t "Standup" -f notes.txt   # Save and analyse a transcript
  fission tasks list 3                        # Action items of meeting 3
  fission summary 3 --style casual            # Summarise meeting 3
  fission model pull                          # Download the weights
  fission serve                               # HTTP API with live events
  fission mcp                                 # MCP tools over stdio`,
			bold("fission "+appVersion()),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.loadConfig()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cli.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cli.configFile, "config", "c", "", "Config file (default ./fission.yaml or ~/.fission/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVar(&cli.jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(
		newServeCommand(cli),
		newMCPCommand(cli),
		newRecordCommand(cli),
		newExtractCommand(cli),
		newSummaryCommand(cli),
		newMeetingsCommand(cli),
		newTasksCommand(cli),
		newSettingsCommand(cli),
		newModelCommand(cli),
		newConfigCommand(cli),
		newVersionCommand(),
	)
	return rootCmd
}

func (c *CLI) loadConfig() error {
	if c.loaded {
		return nil
	}
	opts := append([]config.Option{config.WithConfigFile(c.configFile)}, c.overrides...)
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if c.verbose {
		level = logging.LevelDebug
	}
	if err := logging.Configure(level, cfg.Logging.File); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	c.cfg = cfg
	c.loaded = true
	return nil
}

// app builds the container on first use so commands such as version and
// config never open the database.
func (c *CLI) app() (*Container, error) {
	if c.container != nil {
		return c.container, nil
	}
	if err := c.loadConfig(); err != nil {
		return nil, err
	}
	container, err := c.newContainer(c.cfg)
	if err != nil {
		return nil, err
	}
	if !c.jsonOutput {
		container.onStatus = statusPrinter
	}
	c.container = container
	return container, nil
}

func (c *CLI) close() error {
	if c.container == nil {
		return nil
	}
	err := c.container.Close()
	c.container = nil
	return err
}

// componentLogger honours logging.format: "json" routes through the slog
// structured logger, anything else uses the line-oriented component logger.
func (c *CLI) componentLogger(component string) logging.Logger {
	if strings.EqualFold(c.cfg.Logging.Format, "json") {
		return logging.FromObservabilityWithComponent(observability.NewLogger(c.cfg.LogConfig()), component)
	}
	return logging.NewComponentLogger(component)
}

func (c *CLI) printJSON(cmd *cobra.Command, v any) error {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// statusPrinter echoes model status lines on stderr while the engine
// starts from a CLI command.
func statusPrinter(msg string) {
	fmt.Fprintln(os.Stderr, gray(msg))
}
