package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fission/internal/config"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cli.jsonOutput {
				return cli.printJSON(cmd, cli.cfg)
			}
			data, err := yaml.Marshal(cli.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			if used := config.ConfigFileUsed(config.WithConfigFile(cli.configFile)); used != "" {
				fmt.Fprintln(out, gray("# "+used))
			}
			_, err = out.Write(data)
			return err
		},
	}

	var path string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the resolved configuration to a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home dir: %w", err)
				}
				path = filepath.Join(home, ".fission", "config.yaml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, cli.cfg); err != nil {
				return err
			}
			return cli.done(cmd, "Wrote %s", path)
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "o", "", "Destination (default ~/.fission/config.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}
